package domain

import "time"

// PositionStatus es el ciclo de vida de una posición: OPEN → WON | LOST.
// Las transiciones son terminales — nunca se vuelve a OPEN y no hay
// resoluciones parciales.
type PositionStatus string

const (
	PositionOpen PositionStatus = "OPEN"
	PositionWon  PositionStatus = "WON"
	PositionLost PositionStatus = "LOST"
)

// Position es una apuesta creada por exactamente un trade exitoso.
// El Reconciler solo la muta marcando la resolución; shares, precio y
// amount quedan fijados al crearla.
type Position struct {
	ID          string
	MarketID    string // mercado (card) sobre el que se apostó
	GammaID     string // mercado Gamma concreto, para re-consultar resolución
	OptionID    string
	Question    string
	OptionLabel string
	Shares      float64
	EntryPrice  float64
	AmountPaid  float64
	PlacedAt    time.Time

	Status     PositionStatus
	ResolvedAt *time.Time
	Payout     float64 // shares × 1.0 si ganó, 0 si perdió
}

// IsOpen devuelve true si la posición sigue sin resolver.
func (p Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// Settle devuelve una copia de la posición marcada como resuelta.
func (p Position) Settle(won bool, at time.Time) Position {
	settled := p
	if won {
		settled.Status = PositionWon
		settled.Payout = p.Shares * 1.0
	} else {
		settled.Status = PositionLost
		settled.Payout = 0
	}
	t := at.UTC()
	settled.ResolvedAt = &t
	return settled
}
