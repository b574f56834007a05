package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const (
	gammaEventsPath = "/events"
	gammaMarketPath = "/markets"
)

// FetchMarkets implementa ports.MarketProvider. Pide los eventos activos
// ordenados por volumen de 24h y los mapea a mercados de dominio.
//
// Hay que pedir closed=false y archived=false explícitamente: sin esos
// filtros la API devuelve solo eventos viejos ya cerrados, que el mapeo
// descartaría todos.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("archived", "false")
	q.Set("limit", fmt.Sprintf("%d", c.limit))
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")

	var resp gammaEventsResponse
	reqURL := c.gammaBase + gammaEventsPath + "?" + q.Encode()
	if err := c.get(ctx, c.eventsLimiter, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("gamma.FetchMarkets: %w", err)
	}

	markets := c.mapEvents(resp)
	slog.Debug("gamma fetch complete",
		"events", len(resp),
		"markets", len(markets),
	)
	return markets, nil
}

// FetchMarket re-consulta un mercado Gamma concreto por ID. Lo usa el
// reconciliador de fondo para comprobar resoluciones de posiciones cuyos
// mercados ya no salen en el listado activo.
func (c *Client) FetchMarket(ctx context.Context, gammaID string) (domain.Market, error) {
	var gm gammaMarket
	reqURL := fmt.Sprintf("%s%s/%s", c.gammaBase, gammaMarketPath, url.PathEscape(gammaID))
	if err := c.get(ctx, c.marketLimiter, reqURL, &gm); err != nil {
		return domain.Market{}, fmt.Errorf("gamma.FetchMarket %s: %w", gammaID, err)
	}

	m, ok := c.mapSingleMarket(gm, "")
	if !ok {
		return domain.Market{}, fmt.Errorf("gamma.FetchMarket %s: market has no parseable outcomes", gammaID)
	}
	return m, nil
}
