package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Storage persiste la cuenta del usuario y el último snapshot de mercados.
type Storage interface {
	// LoadAccount devuelve el portfolio, las posiciones abiertas y el
	// histórico de posiciones resueltas. Si no hay datos guardados
	// devuelve found=false y el caller inicializa una cuenta fresca.
	LoadAccount(ctx context.Context) (p domain.Portfolio, open, settled []domain.Position, found bool, err error)

	// SaveAccount persiste portfolio y posiciones en una sola transacción —
	// o se escribe todo o no se escribe nada.
	SaveAccount(ctx context.Context, p domain.Portfolio, open, settled []domain.Position) error

	// SaveMarkets guarda el último snapshot bueno del feed.
	SaveMarkets(ctx context.Context, markets []domain.Market) error

	// LoadMarkets devuelve el último snapshot guardado.
	LoadMarkets(ctx context.Context) ([]domain.Market, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
