package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Notifier presenta el estado del simulador al usuario.
type Notifier interface {
	// NotifyMarkets muestra los mercados del último refresh.
	// En la implementación de consola, imprime una tabla formateada.
	NotifyMarkets(ctx context.Context, markets []domain.Market) error

	// NotifyPortfolio muestra el balance y las posiciones.
	NotifyPortfolio(ctx context.Context, p domain.Portfolio, open, settled []domain.Position) error
}
