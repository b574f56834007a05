package polymarket

import (
	"encoding/json"
	"strconv"
)

// DTOs raw de la API Gamma de Polymarket. Solo se usan dentro de este
// paquete. La conversión a domain entities se hace en mapping.go.

// gammaEventsResponse es la respuesta de GET /events.
type gammaEventsResponse []gammaEvent

// gammaEvent agrupa uno o más mercados bajo una misma pregunta.
type gammaEvent struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Active      bool          `json:"active"`
	Closed      bool          `json:"closed"`
	Volume      json.Number   `json:"volume"`
	EndDateISO  string        `json:"endDateIso"`
	Markets     []gammaMarket `json:"markets"`
	Tags        []gammaTag    `json:"tags"`
}

// gammaMarket es un mercado concreto (un par Yes/No o una lista de
// outcomes). Gamma devuelve outcomes y outcomePrices como arrays JSON
// codificados dentro de strings, p.ej. "[\"Yes\", \"No\"]".
type gammaMarket struct {
	ID            string      `json:"id"`
	Question      string      `json:"question"`
	ConditionID   string      `json:"conditionId"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
	VolumeNum     json.Number `json:"volumeNum"`
	LiquidityNum  json.Number `json:"liquidityNum"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
}

// gammaTag etiqueta un evento (Politics, Crypto, ...).
type gammaTag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// parsedOutcomes decodifica el array de outcomes. Campos ausentes o
// malformados devuelven una lista vacía — nunca tumban el feed entero.
func (m gammaMarket) parsedOutcomes() []string {
	if m.Outcomes == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(m.Outcomes), &out); err != nil {
		return nil
	}
	return out
}

// parsedOutcomePrices decodifica el array de precios. Gamma los manda
// normalmente como strings dentro del array ("[\"0.72\", \"0.28\"]"),
// pero toleramos también números sin comillas. Las entradas no numéricas
// se descartan.
func (m gammaMarket) parsedOutcomePrices() []float64 {
	if m.OutcomePrices == "" {
		return nil
	}
	var raw []any
	if err := json.Unmarshal([]byte(m.OutcomePrices), &raw); err != nil {
		return nil
	}
	prices := make([]float64, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				prices = append(prices, f)
			}
		case float64:
			prices = append(prices, v)
		}
	}
	return prices
}

// volume devuelve el volumen del mercado como float64, 0 si no parsea.
func (m gammaMarket) volume() float64 {
	v, err := m.VolumeNum.Float64()
	if err != nil {
		return 0
	}
	return v
}
