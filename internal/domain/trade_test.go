package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeNowFixed() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

// --- EstimateReturn ---

func TestEstimateReturn_Basic(t *testing.T) {
	m := binaryMarket(400, 600) // p(Yes) = 0.60
	shares := EstimateReturn(m, "mkt-1_0", 100)
	assert.InDelta(t, 166.6667, shares, 0.001)
}

func TestEstimateReturn_DoesNotMutate(t *testing.T) {
	m := binaryMarket(400, 600)
	first := EstimateReturn(m, "mkt-1_0", 100)
	second := EstimateReturn(m, "mkt-1_0", 100)
	assert.Equal(t, first, second)
	assert.InDelta(t, 400.0, m.Options[0].Pool, 0.0001)
}

func TestEstimateReturn_InvalidInputs(t *testing.T) {
	m := binaryMarket(400, 600)
	assert.Equal(t, 0.0, EstimateReturn(m, "mkt-1_0", 0))
	assert.Equal(t, 0.0, EstimateReturn(m, "mkt-1_0", -5))
	assert.Equal(t, 0.0, EstimateReturn(m, "nope", 100))
}

// --- ExecuteTrade ---

func TestExecuteTrade_BinaryMovesPrice(t *testing.T) {
	// Yes=400, No=600: comprar 100 en Yes ejecuta a 0.60 y deja
	// p(Yes) = 600/1100 ≈ 0.545 (el pool propio crece, el contrario no).
	m := binaryMarket(400, 600)
	res, err := ExecuteTrade(m, "mkt-1_0", 100)
	require.NoError(t, err)

	assert.InDelta(t, 0.60, res.ExecutionPrice, 0.0001)
	assert.InDelta(t, 166.6667, res.SharesReceived, 0.001)
	assert.InDelta(t, 500.0, res.Market.Options[0].Pool, 0.0001)
	assert.InDelta(t, 600.0, res.Market.Options[1].Pool, 0.0001)
	assert.InDelta(t, 600.0/1100.0, res.Market.Probability("mkt-1_0"), 0.0001)
}

func TestExecuteTrade_MultiChoice(t *testing.T) {
	// Pools [300, 300, 400]: comprar 200 en la primera opción ejecuta a
	// 0.30 y deja p = 500/1200 ≈ 0.417.
	m := multiMarket(300, 300, 400)
	res, err := ExecuteTrade(m, "a", 200)
	require.NoError(t, err)

	assert.InDelta(t, 0.30, res.ExecutionPrice, 0.0001)
	assert.InDelta(t, 666.667, res.SharesReceived, 0.01)
	assert.InDelta(t, 500.0, res.Market.Options[0].Pool, 0.0001)
	assert.InDelta(t, 500.0/1200.0, res.Market.Probability("a"), 0.0001)
}

func TestExecuteTrade_LivePriceIgnoresPool(t *testing.T) {
	// Con precio externo el pool propio no importa para la ejecución, y el
	// precio directo de esta opción no toca el pricing por pools del resto.
	m := multiMarket(300, 300, 400)
	m.Options[0].LivePrice = 0.85

	res, err := ExecuteTrade(m, "a", 85)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, res.ExecutionPrice, 0.0001)
	assert.InDelta(t, 100.0, res.SharesReceived, 0.001)

	// Las demás opciones siguen en pool-ratio sobre los pools nuevos.
	assert.InDelta(t, 300.0/1085.0, res.Market.Probability("b"), 0.0001)
}

func TestExecuteTrade_MultiChoiceMonotonic(t *testing.T) {
	// En modo own-pool comprar una opción sube su precio.
	m := multiMarket(300, 300, 400)
	before := m.Probability("a")
	res, err := ExecuteTrade(m, "a", 50)
	require.NoError(t, err)
	assert.Greater(t, res.Market.Probability("a"), before)
}

func TestExecuteTrade_AccumulatesVolumeAndTraders(t *testing.T) {
	m := binaryMarket(400, 600)
	m.TotalVolume = 1000
	m.TotalTraders = 7

	res, err := ExecuteTrade(m, "mkt-1_1", 25)
	require.NoError(t, err)
	assert.InDelta(t, 1025.0, res.Market.TotalVolume, 0.0001)
	assert.Equal(t, 8, res.Market.TotalTraders)
}

func TestExecuteTrade_AppendsPricePoint(t *testing.T) {
	m := binaryMarket(400, 600)
	res, err := ExecuteTrade(m, "mkt-1_0", 100)
	require.NoError(t, err)

	require.Len(t, res.Market.PriceHistory, 1)
	// El punto registra la probabilidad post-trade de la opción primaria.
	assert.InDelta(t, res.Market.Probability("mkt-1_0"), res.Market.PriceHistory[0].Price, 0.0001)
	assert.False(t, res.Market.PriceHistory[0].Timestamp.IsZero())
}

func TestExecuteTrade_InputUntouched(t *testing.T) {
	m := binaryMarket(400, 600)
	m.PriceHistory = []PricePoint{{Price: 0.5}}

	_, err := ExecuteTrade(m, "mkt-1_0", 100)
	require.NoError(t, err)

	assert.InDelta(t, 400.0, m.Options[0].Pool, 0.0001)
	assert.Equal(t, 0.0, m.TotalVolume)
	assert.Len(t, m.PriceHistory, 1)
}

func TestExecuteTrade_Rejections(t *testing.T) {
	m := binaryMarket(400, 600)

	_, err := ExecuteTrade(m, "mkt-1_0", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ExecuteTrade(m, "mkt-1_0", -10)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ExecuteTrade(m, "nope", 100)
	assert.ErrorIs(t, err, ErrOptionNotFound)

	resolved := binaryMarket(400, 600)
	resolved.Resolved = true
	_, err = ExecuteTrade(resolved, "mkt-1_0", 100)
	assert.ErrorIs(t, err, ErrMarketResolved)
}

func TestExecuteTrade_SequentialTradesCompound(t *testing.T) {
	m := multiMarket(100, 100)
	res1, err := ExecuteTrade(m, "a", 100)
	require.NoError(t, err)
	res2, err := ExecuteTrade(res1.Market, "a", 100)
	require.NoError(t, err)

	// El segundo trade ejecuta más caro que el primero.
	assert.Greater(t, res2.ExecutionPrice, res1.ExecutionPrice)
	assert.Less(t, res2.SharesReceived, res1.SharesReceived)
	assert.Len(t, res2.Market.PriceHistory, 2)
}

// --- Settle ---

func TestSettle_Won(t *testing.T) {
	p := Position{ID: "pos-1", Shares: 150, Status: PositionOpen}
	settled := p.Settle(true, timeNowFixed())
	assert.Equal(t, PositionWon, settled.Status)
	assert.InDelta(t, 150.0, settled.Payout, 0.0001)
	require.NotNil(t, settled.ResolvedAt)
	// La original no se toca.
	assert.Equal(t, PositionOpen, p.Status)
}

func TestSettle_Lost(t *testing.T) {
	p := Position{ID: "pos-1", Shares: 150, Status: PositionOpen}
	settled := p.Settle(false, timeNowFixed())
	assert.Equal(t, PositionLost, settled.Status)
	assert.Equal(t, 0.0, settled.Payout)
	assert.False(t, settled.IsOpen())
}

func TestPortfolio_WinRate(t *testing.T) {
	assert.Equal(t, 0.0, Portfolio{}.WinRate())
	p := Portfolio{TotalTrades: 8, TradesWon: 6}
	assert.InDelta(t, 75.0, p.WinRate(), 0.0001)
}
