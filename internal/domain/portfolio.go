package domain

// Portfolio es la cuenta del usuario: balance de play-money y contadores
// acumulados. Se muta solo por ejecución de trades (débito), resolución
// de posiciones (crédito) y recargas explícitas.
type Portfolio struct {
	Username      string
	Balance       float64 // SP (sim points), nunca negativo
	TotalWinnings float64
	TotalTrades   int
	TradesWon     int
}

// WinRate devuelve el porcentaje de apuestas ganadas (0–100).
func (p Portfolio) WinRate() float64 {
	if p.TotalTrades == 0 {
		return 0
	}
	return float64(p.TradesWon) / float64(p.TotalTrades) * 100.0
}
