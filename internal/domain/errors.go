package domain

import "errors"

// Errores de validación de trading. Todos son recuperables y se devuelven
// tipados desde las operaciones — nunca como panics. Un trade rechazado
// deja pools, balance y posiciones exactamente como estaban.
var (
	ErrInvalidAmount       = errors.New("trade amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMarketNotFound      = errors.New("market not found")
	ErrMarketResolved      = errors.New("market already resolved")
	ErrOptionNotFound      = errors.New("option not found")
)
