package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// MarketProvider obtiene snapshots de mercados desde el feed externo.
// El core los trata como entrada inmutable: si el fetch falla, se opera
// sobre el último snapshot bueno y se reintenta en el siguiente ciclo.
type MarketProvider interface {
	// FetchMarkets devuelve los mercados activos ordenados por volumen,
	// ya mapeados a entidades de dominio.
	FetchMarkets(ctx context.Context) ([]domain.Market, error)

	// FetchMarket re-consulta un mercado Gamma concreto por su ID.
	// Lo usa el reconciliador de fondo para resolver posiciones cuyos
	// mercados ya no aparecen en el listado activo.
	FetchMarket(ctx context.Context, gammaID string) (domain.Market, error)
}
