package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alejandrodnm/polysim/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveFixture(t *testing.T, path string) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
}

func marketByID(t *testing.T, markets []domain.Market, id string) domain.Market {
	t.Helper()
	for _, m := range markets {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("market %s not found", id)
	return domain.Market{}
}

func TestFetchMarkets_MapsFixture(t *testing.T) {
	srv := serveFixture(t, "../../../testdata/fixtures/gamma_events.json")
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, polymarket.FeedConfig{})
	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)

	// ev-1001 (binario), ev-2002 (agrupado). ev-3003 se descarta entero
	// (un mercado cerrado, otro bajo el suelo de volumen) y ev-4004 tiene
	// los outcomes malformados.
	require.Len(t, markets, 2)
}

func TestFetchMarkets_SingleBinary(t *testing.T) {
	srv := serveFixture(t, "../../../testdata/fixtures/gamma_events.json")
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, polymarket.FeedConfig{})
	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)

	m := marketByID(t, markets, "510001")
	assert.Equal(t, domain.MarketBinary, m.Type)
	assert.Equal(t, "Will the Fed cut rates in September?", m.Question)
	assert.False(t, m.Resolved)
	require.Len(t, m.Options, 2)

	// Pools binarios sembrados invertidos: pool(Yes) = (1−0.72)×1000,
	// de forma que el pricing por pool contrario reproduce el feed.
	assert.Equal(t, "510001_0", m.Options[0].ID)
	assert.Equal(t, "Yes", m.Options[0].Label)
	assert.Equal(t, "510001", m.Options[0].GammaID)
	assert.InDelta(t, 280.0, m.Options[0].Pool, 0.001)
	assert.InDelta(t, 720.0, m.Options[1].Pool, 0.001)
	assert.InDelta(t, 0.72, m.Probability("510001_0"), 0.0001)
	assert.InDelta(t, 0.28, m.Probability("510001_1"), 0.0001)
}

func TestFetchMarkets_GroupedEvent(t *testing.T) {
	srv := serveFixture(t, "../../../testdata/fixtures/gamma_events.json")
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, polymarket.FeedConfig{})
	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)

	m := marketByID(t, markets, "ev-2002")
	assert.Equal(t, domain.MarketMultiChoice, m.Type)
	assert.Equal(t, "Who will win the party nomination?", m.Question)
	require.Len(t, m.Options, 3)

	// Cada opción es un sub-mercado: ID == GammaID, precio Yes como
	// precio externo y pool semilla derivado.
	alice := m.Options[0]
	assert.Equal(t, "520001", alice.ID)
	assert.Equal(t, "520001", alice.GammaID)
	assert.Equal(t, "Will Alice win the nomination?", alice.Label)
	assert.InDelta(t, 0.55, alice.LivePrice, 0.0001)
	assert.InDelta(t, 550.0, alice.Pool, 0.001)

	// El precio externo manda sobre los pools.
	assert.InDelta(t, 0.55, m.Probability("520001"), 0.0001)
	assert.InDelta(t, 0.30, m.Probability("520002"), 0.0001)

	// Volumen del evento = suma de los sub-mercados.
	assert.InDelta(t, 980_000.0, m.TotalVolume, 0.5)
}

func TestFetchMarkets_MinVolumeFilter(t *testing.T) {
	srv := serveFixture(t, "../../../testdata/fixtures/gamma_events.json")
	defer srv.Close()

	// Con el suelo alto, solo sobrevive el evento agrupado.
	client := polymarket.NewClient(srv.URL, polymarket.FeedConfig{MinVolume: 150_000})
	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)

	require.Len(t, markets, 1)
	assert.Equal(t, "ev-2002", markets[0].ID)
}

func TestFetchMarket_ResolvedWithWinner(t *testing.T) {
	srv := serveFixture(t, "../../../testdata/fixtures/gamma_market_resolved.json")
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, polymarket.FeedConfig{})
	m, err := client.FetchMarket(context.Background(), "520001")
	require.NoError(t, err)

	assert.Equal(t, "520001", m.ID)
	assert.True(t, m.Resolved)
	// El outcome que cierra a 0.99 ≥ threshold es el ganador.
	assert.Equal(t, "520001_0", m.WinnerOptionID)
}

func TestFetchMarket_NoParseableOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "999", "question": "Broken", "outcomes": "not-json", "outcomePrices": ""}`))
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, polymarket.FeedConfig{})
	_, err := client.FetchMarket(context.Background(), "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parseable outcomes")
}

func TestFetchMarkets_ServerErrorRetriesThenFails(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, polymarket.FeedConfig{})
	_, err := client.FetchMarkets(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, hits) // intento inicial + 3 retries
}

func TestFetchMarkets_RecoversAfterTransientError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, polymarket.FeedConfig{})
	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, markets)
	assert.Equal(t, 2, hits)
}
