package reconciler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/application/broker"
	"github.com/alejandrodnm/polysim/internal/application/reconciler"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStorage es un ports.Storage en memoria para los tests.
type memStorage struct {
	portfolio domain.Portfolio
	open      []domain.Position
	settled   []domain.Position
	found     bool
}

func (m *memStorage) LoadAccount(context.Context) (domain.Portfolio, []domain.Position, []domain.Position, bool, error) {
	return m.portfolio, m.open, m.settled, m.found, nil
}

func (m *memStorage) SaveAccount(_ context.Context, p domain.Portfolio, open, settled []domain.Position) error {
	m.portfolio, m.open, m.settled, m.found = p, open, settled, true
	return nil
}

func (m *memStorage) SaveMarkets(context.Context, []domain.Market) error { return nil }
func (m *memStorage) LoadMarkets(context.Context) ([]domain.Market, error) {
	return nil, nil
}
func (m *memStorage) Close() error { return nil }

// fakeProvider sirve mercados por GammaID y registra las consultas.
type fakeProvider struct {
	markets map[string]domain.Market
	errs    map[string]error
	calls   []string
}

func (f *fakeProvider) FetchMarkets(context.Context) ([]domain.Market, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) FetchMarket(_ context.Context, gammaID string) (domain.Market, error) {
	f.calls = append(f.calls, gammaID)
	if err, ok := f.errs[gammaID]; ok {
		return domain.Market{}, err
	}
	m, ok := f.markets[gammaID]
	if !ok {
		return domain.Market{}, errors.New("market not found")
	}
	return m, nil
}

// activeMarket replica cómo se mapea un mercado suelto del feed: el ID
// del mercado es el ID Gamma y las opciones llevan IDs sintéticos.
func activeMarket() domain.Market {
	return domain.Market{
		ID:       "g-100",
		Question: "Will X happen?",
		Type:     domain.MarketBinary,
		Options: []domain.Option{
			{ID: "g-100_0", Label: "Yes", GammaID: "g-100", Pool: 400},
			{ID: "g-100_1", Label: "No", GammaID: "g-100", Pool: 600},
		},
	}
}

func resolvedRefetch(winnerYes bool) domain.Market {
	m := domain.Market{
		ID:       "g-100",
		Question: "Will X happen?",
		Type:     domain.MarketBinary,
		Options: []domain.Option{
			{ID: "g-100_0", Label: "Yes", GammaID: "g-100"},
			{ID: "g-100_1", Label: "No", GammaID: "g-100"},
		},
		Resolved: true,
	}
	if winnerYes {
		m.WinnerOptionID = "g-100_0"
	} else {
		m.WinnerOptionID = "g-100_1"
	}
	return m
}

func newBrokerWithPosition(t *testing.T) (*broker.Broker, domain.Position) {
	t.Helper()
	b, err := broker.New(context.Background(), &memStorage{}, broker.Config{})
	require.NoError(t, err)
	_, err = b.SetMarkets(context.Background(), []domain.Market{activeMarket()})
	require.NoError(t, err)
	pos, err := b.PlaceTrade(context.Background(), "g-100", "g-100_0", 100)
	require.NoError(t, err)
	return b, pos
}

func TestRunOnce_NoOpenPositions(t *testing.T) {
	b, err := broker.New(context.Background(), &memStorage{}, broker.Config{})
	require.NoError(t, err)
	provider := &fakeProvider{}

	r := reconciler.New(reconciler.Config{}, provider, b)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Checked)
	// Sin posiciones abiertas no se hace ninguna llamada a la API.
	assert.Empty(t, provider.calls)
}

func TestRunOnce_ResolvesWonPosition(t *testing.T) {
	b, pos := newBrokerWithPosition(t)

	// El mercado resolvió mientras la app estaba cerrada y ya no sale en
	// el listado activo; el worker lo re-consulta por su ID Gamma.
	provider := &fakeProvider{markets: map[string]domain.Market{
		"g-100": resolvedRefetch(true),
	}}

	r := reconciler.New(reconciler.Config{}, provider, b)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"g-100"}, provider.calls)
	assert.Equal(t, 1, summary.Won)
	assert.InDelta(t, pos.Shares, summary.TotalPayout, 0.001)
	assert.Empty(t, b.OpenPositions())
}

func TestRunOnce_ResolvesLostPosition(t *testing.T) {
	b, _ := newBrokerWithPosition(t)
	provider := &fakeProvider{markets: map[string]domain.Market{
		"g-100": resolvedRefetch(false),
	}}

	r := reconciler.New(reconciler.Config{}, provider, b)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Lost)
	assert.InDelta(t, 99_900.0, b.Portfolio().Balance, 0.0001)
}

func TestRunOnce_DeduplicatesMarkets(t *testing.T) {
	b, _ := newBrokerWithPosition(t)
	// Segunda posición sobre el mismo mercado Gamma.
	_, err := b.PlaceTrade(context.Background(), "g-100", "g-100_1", 50)
	require.NoError(t, err)

	provider := &fakeProvider{errs: map[string]error{"g-100": errors.New("api down")}}
	r := reconciler.New(reconciler.Config{}, provider, b)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	// Dos posiciones, una sola consulta.
	assert.Equal(t, []string{"g-100"}, provider.calls)
	assert.Equal(t, 2, summary.Checked)
}

func TestRunOnce_FetchFailureLeavesPositionOpen(t *testing.T) {
	b, _ := newBrokerWithPosition(t)

	provider := &fakeProvider{errs: map[string]error{"g-100": errors.New("timeout")}}
	r := reconciler.New(reconciler.Config{}, provider, b)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	// El fetch fallido se salta: nada resuelto, nada corrupto.
	assert.Equal(t, 0, summary.Resolved)
	assert.Len(t, b.OpenPositions(), 1)
	assert.InDelta(t, 99_900.0, b.Portfolio().Balance, 0.0001)
}

func TestRunOnce_ContextCancelled(t *testing.T) {
	b, _ := newBrokerWithPosition(t)
	provider := &fakeProvider{markets: map[string]domain.Market{
		"g-100": resolvedRefetch(true),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Pace largo: el único camino de salida es la cancelación.
	r := reconciler.New(reconciler.Config{Pace: time.Hour}, provider, b)
	_, err := r.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
