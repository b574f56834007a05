package domain

import "time"

// TradeResult es el resultado de ejecutar un trade contra los pools AMM.
type TradeResult struct {
	Market         Market  // mercado con los pools actualizados
	SharesReceived float64 // cada share paga 1 SP si la opción gana, 0 si no
	ExecutionPrice float64 // probabilidad pre-trade, fijada al ejecutar
}

// EstimateReturn calcula las shares que devolvería un trade hipotético sin
// mutar nada. Es un modelo de ejecución a precio constante (sin price
// impact), deliberadamente optimista: una estimación, no un fill garantizado.
func EstimateReturn(m Market, optionID string, amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	price := m.Probability(optionID)
	if price <= 0 {
		return 0
	}
	return amount / price
}

// ExecuteTrade ejecuta un trade atómico sobre una opción del mercado:
//
//  1. Fija el precio de ejecución con la probabilidad pre-trade.
//  2. shares = amount / precio.
//  3. Añade amount al pool de la opción — esto es lo que mueve los
//     precios de los trades siguientes.
//  4. Incrementa volumen acumulado y contador de traders.
//  5. Añade un punto a la serie de precios con la probabilidad
//     post-trade de la opción primaria (índice 0).
//
// No tiene efectos secundarios fuera del Market devuelto: el mercado de
// entrada queda intacto (slices copiadas) y el caller es responsable de
// persistir el resultado y crear la posición correspondiente.
//
// El pool total solo crece, así que una vez que existe algún trade la
// probabilidad por pools nunca divide por cero.
func ExecuteTrade(m Market, optionID string, amount float64) (TradeResult, error) {
	if amount <= 0 {
		return TradeResult{}, ErrInvalidAmount
	}
	if m.Resolved {
		return TradeResult{}, ErrMarketResolved
	}
	if _, ok := m.Option(optionID); !ok {
		return TradeResult{}, ErrOptionNotFound
	}

	price := m.Probability(optionID)
	if price <= 0 {
		return TradeResult{}, ErrOptionNotFound
	}
	shares := amount / price

	updated := m
	updated.Options = make([]Option, len(m.Options))
	copy(updated.Options, m.Options)
	for i := range updated.Options {
		if updated.Options[i].ID == optionID {
			updated.Options[i].Pool += amount
		}
	}

	updated.TotalVolume += amount
	updated.TotalTraders++

	point := PricePoint{Timestamp: time.Now().UTC(), Price: 0.5}
	if len(updated.Options) > 0 {
		point.Price = updated.Probability(updated.Options[0].ID)
	}
	updated.PriceHistory = append(append([]PricePoint{}, m.PriceHistory...), point)

	return TradeResult{
		Market:         updated,
		SharesReceived: shares,
		ExecutionPrice: price,
	}, nil
}
