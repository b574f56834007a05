package domain

import "time"

// MarketType distingue mercados binarios (Yes/No) de multi-opción.
type MarketType string

const (
	MarketBinary      MarketType = "BINARY"
	MarketMultiChoice MarketType = "MULTI_CHOICE"
)

const (
	// Clamp para precios externos: evita shares infinitas (p=0)
	// y payoffs triviales (p=1).
	minClampPrice = 0.001
	maxClampPrice = 0.999
)

// Market representa una pregunta operable con pools AMM simulados.
// Es inmutable salvo por ExecuteTrade (pools) y por la resolución
// (Resolved + WinnerOptionID, que se fijan una vez y nunca se revierten).
type Market struct {
	ID             string
	Question       string
	Type           MarketType
	Options        []Option
	TotalVolume    float64
	TotalTraders   int
	Resolved       bool
	WinnerOptionID string // vacío hasta que el mercado resuelve
	PriceHistory   []PricePoint
	CreatedAt      time.Time
}

// Option es un desenlace posible dentro de un mercado.
type Option struct {
	ID      string
	Label   string
	GammaID string // ID del mercado Gamma subyacente, usado para re-consultar resolución

	// Pool es el stake acumulado que respalda esta opción (siempre ≥ 0,
	// solo crece — los trades añaden, nunca restan).
	Pool float64

	// LivePrice es la probabilidad observada directamente en el feed.
	// Si es > 0 tiene prioridad sobre el pricing por pools.
	LivePrice float64
}

// PricePoint es un punto de la serie histórica de precios.
// Se muestrea solo en trades, no con reloj fijo.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// Probability devuelve la probabilidad implícita de la opción dada,
// siempre en (0, 1).
//
// Si la opción tiene precio externo observado (LivePrice), devuelve ese
// precio con clamp a [0.001, 0.999]. En modo pool-ratio:
//
//	BINARY:       p = pool contrario / pool total
//	MULTI_CHOICE: p = pool propio / pool total
//
// Casos degenerados: < 2 opciones → 1.0; pool total ≤ 0 → reparto 1/N.
func (m Market) Probability(optionID string) float64 {
	opt, ok := m.Option(optionID)
	if !ok {
		return 0
	}
	return optionProbability(opt, m.Type, m.Options)
}

// optionProbability calcula la probabilidad de una opción concreta.
func optionProbability(opt Option, typ MarketType, all []Option) float64 {
	if opt.LivePrice > 0 {
		return clampPrice(opt.LivePrice)
	}

	if len(all) < 2 {
		// Mercado degenerado de un solo desenlace.
		return 1.0
	}

	var total float64
	for _, o := range all {
		total += o.Pool
	}
	if total <= 0 {
		return 1.0 / float64(len(all))
	}

	if typ == MarketBinary && len(all) == 2 {
		// Convención binaria: el precio de Yes deriva del pool de No.
		return (total - opt.Pool) / total
	}
	return opt.Pool / total
}

// Option devuelve la opción con el ID dado.
func (m Market) Option(optionID string) (Option, bool) {
	for _, o := range m.Options {
		if o.ID == optionID {
			return o, true
		}
	}
	return Option{}, false
}

// YesOption devuelve el lado Yes de un mercado binario (la primera opción).
func (m Market) YesOption() Option {
	if len(m.Options) == 0 {
		return Option{}
	}
	return m.Options[0]
}

// TotalPool devuelve el stake acumulado entre todas las opciones.
func (m Market) TotalPool() float64 {
	var total float64
	for _, o := range m.Options {
		total += o.Pool
	}
	return total
}

// OptionForPosition localiza la opción del mercado que corresponde a una
// posición. Normalmente es un match exacto por ID; para posiciones de
// mercados agrupados (OptionID == GammaID) re-consultadas individualmente,
// la opción es el lado Yes del mercado re-mapeado.
func (m Market) OptionForPosition(p Position) (Option, bool) {
	if opt, ok := m.Option(p.OptionID); ok {
		return opt, true
	}
	if p.OptionID != "" && p.OptionID == p.GammaID && len(m.Options) > 0 {
		return m.Options[0], true
	}
	return Option{}, false
}

// clampPrice fuerza un precio externo al rango abierto (0, 1).
func clampPrice(p float64) float64 {
	if p < minClampPrice {
		return minClampPrice
	}
	if p > maxClampPrice {
		return maxClampPrice
	}
	return p
}

// TruncateQuestion devuelve la pregunta truncada a maxLen caracteres,
// usando el ID como fallback si está vacía.
func TruncateQuestion(question, id string, maxLen int) string {
	q := question
	if q == "" {
		if len(id) > 20 {
			q = id[:20] + "..."
		} else {
			q = id
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
