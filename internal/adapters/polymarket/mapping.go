package polymarket

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const (
	// poolSeedScale convierte un precio del feed en un pool inicial:
	// pool = precio × 1000, con suelo de 1 para que el total nunca sea 0.
	poolSeedScale = 1000.0
	poolSeedFloor = 1.0
)

// mapEvents convierte los eventos Gamma a domain.Market.
//
// Un evento con varios mercados Yes/No (p.ej. una primaria con un mercado
// por candidato) se agrupa en un único mercado MULTI_CHOICE con una opción
// por sub-mercado. Un evento con un solo mercado se mapea directo como
// BINARY o MULTI_CHOICE según sus outcomes.
func (c *Client) mapEvents(events []gammaEvent) []domain.Market {
	markets := make([]domain.Market, 0, len(events))

	for _, ev := range events {
		valid := make([]gammaMarket, 0, len(ev.Markets))
		for _, gm := range ev.Markets {
			// Un mercado cuenta solo si está activo, abierto y con volumen.
			if gm.Active && !gm.Closed && gm.volume() >= c.minVolume {
				valid = append(valid, gm)
			}
		}
		if len(valid) == 0 {
			continue
		}

		if len(valid) > 1 && isBinaryGroup(valid) {
			markets = append(markets, c.mapGroupedEvent(ev, valid))
			continue
		}

		// Formato mixto o inusual: cada mercado como card independiente.
		for _, gm := range valid {
			if m, ok := c.mapSingleMarket(gm, ev.Title); ok {
				markets = append(markets, m)
			}
		}
	}

	return markets
}

// isBinaryGroup detecta el patrón "muchos mercados Yes/No bajo un evento":
// cada sub-mercado es un candidato/opción del mismo desenlace.
func isBinaryGroup(markets []gammaMarket) bool {
	outcomes := markets[0].parsedOutcomes()
	return len(outcomes) == 2 &&
		strings.EqualFold(outcomes[0], "Yes") &&
		strings.EqualFold(outcomes[1], "No")
}

// mapGroupedEvent agrupa sub-mercados Yes/No en un mercado MULTI_CHOICE.
// Cada opción lleva el precio Yes de su sub-mercado como precio externo
// observado, y un pool semilla derivado de ese precio para el AMM.
func (c *Client) mapGroupedEvent(ev gammaEvent, markets []gammaMarket) domain.Market {
	options := make([]domain.Option, 0, len(markets))
	var totalVolume float64

	for _, gm := range markets {
		yesPrice := 0.5
		if prices := gm.parsedOutcomePrices(); len(prices) > 0 {
			yesPrice = prices[0]
		}
		label := gm.Question
		if label == "" {
			label = ev.Title
		}
		options = append(options, domain.Option{
			ID:        gm.ID,
			Label:     label,
			GammaID:   gm.ID,
			Pool:      seedPool(yesPrice),
			LivePrice: yesPrice,
		})
		totalVolume += gm.volume()
	}

	return domain.Market{
		ID:          ev.ID,
		Question:    ev.Title,
		Type:        domain.MarketMultiChoice,
		Options:     options,
		TotalVolume: totalVolume,
		CreatedAt:   time.Now().UTC(),
	}
}

// mapSingleMarket mapea un mercado suelto. Para binarios los pools se
// siembran invertidos (pool = (1 − precio) × 1000) de forma que el pricing
// por pool contrario reproduzca el precio del feed. Para multi-opción el
// pool es directo (pool = precio × 1000).
func (c *Client) mapSingleMarket(gm gammaMarket, fallbackTitle string) (domain.Market, bool) {
	outcomes := gm.parsedOutcomes()
	prices := gm.parsedOutcomePrices()
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return domain.Market{}, false
	}

	typ := domain.MarketMultiChoice
	if len(outcomes) == 2 && strings.EqualFold(outcomes[0], "Yes") {
		typ = domain.MarketBinary
	}

	options := make([]domain.Option, 0, len(outcomes))
	for i, label := range outcomes {
		pool := prices[i]
		if typ == domain.MarketBinary {
			pool = 1.0 - prices[i]
		}
		options = append(options, domain.Option{
			ID:      fmt.Sprintf("%s_%d", gm.ID, i),
			Label:   label,
			GammaID: gm.ID,
			Pool:    seedPool(pool),
		})
	}

	question := gm.Question
	if question == "" {
		question = fallbackTitle
	}

	m := domain.Market{
		ID:          gm.ID,
		Question:    question,
		Type:        typ,
		Options:     options,
		TotalVolume: gm.volume(),
		Resolved:    gm.Closed,
		CreatedAt:   time.Now().UTC(),
	}

	if gm.Closed {
		m.WinnerOptionID = winnerOption(options, prices, c.winnerThreshold)
	}
	return m, true
}

// winnerOption devuelve el ID de la opción cuyo precio final supera el
// umbral de resolución (convención del feed: el outcome ganador cierra a
// ~1.0). Vacío si ningún precio lo supera.
func winnerOption(options []domain.Option, prices []float64, threshold float64) string {
	for i, p := range prices {
		if i < len(options) && p >= threshold {
			return options[i].ID
		}
	}
	return ""
}

// seedPool convierte un precio en pool inicial con suelo mínimo.
func seedPool(price float64) float64 {
	pool := price * poolSeedScale
	if pool < poolSeedFloor {
		return poolSeedFloor
	}
	return pool
}
