package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/pkg/types"
)

func seedAccount(t *testing.T, st storage.Store) {
	t.Helper()
	require.NoError(t, st.SaveAccount(context.Background(), types.Account{
		ID:      "acc1",
		Active:  true,
		Balance: decimal.NewFromInt(10000),
	}))
}

func TestComputeUnknownAccount(t *testing.T) {
	calc := NewCalculator(storage.NewMemory())
	_, err := calc.Compute(context.Background(), "nobody")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
}

func TestComputeEmptyAccount(t *testing.T) {
	store := storage.NewMemory()
	seedAccount(t, store)

	m, err := NewCalculator(store).Compute(context.Background(), "acc1")
	require.NoError(t, err)

	assert.True(t, m.TotalExposure.IsZero())
	assert.True(t, m.DailyPnL.IsZero())
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitFactor)
	assert.Zero(t, m.RiskScore)
	assert.Zero(t, m.OpenPositions)
	assert.Nil(t, m.LastTradeAt)
}

func TestComputeExposureAndLeverage(t *testing.T) {
	store := storage.NewMemory()
	seedAccount(t, store)
	ctx := context.Background()

	require.NoError(t, store.SavePosition(ctx, types.Position{
		ID:        "p1",
		AccountID: "acc1",
		Symbol:    "BTC/USDT",
		Size:      decimal.NewFromInt(2),
		MarkPrice: decimal.NewFromInt(10000),
		Status:    types.PositionStatusOpen,
	}))
	require.NoError(t, store.SavePosition(ctx, types.Position{
		ID:        "p2",
		AccountID: "acc1",
		Symbol:    "ETH/USDT",
		Size:      decimal.NewFromInt(1),
		MarkPrice: decimal.NewFromInt(5000),
		Status:    types.PositionStatusClosed,
	}))

	m, err := NewCalculator(store).Compute(ctx, "acc1")
	require.NoError(t, err)

	// Only the open position counts: 2 x 10000 against the 10000 balance.
	assert.Equal(t, "20000", m.TotalExposure.String())
	assert.Equal(t, 1, m.OpenPositions)
	assert.InDelta(t, 2.0, m.LeverageUsage, 0.0001)
}

func TestComputeDailyPnLWindow(t *testing.T) {
	store := storage.NewMemory()
	seedAccount(t, store)
	ctx := context.Background()

	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, store.SaveTrade(ctx, types.Trade{
		ID: "old", AccountID: "acc1", PnL: decimal.NewFromInt(-500),
		Status: types.TradeStatusCompleted, CreatedAt: yesterday,
	}))
	require.NoError(t, store.SaveTrade(ctx, types.Trade{
		ID: "today", AccountID: "acc1", PnL: decimal.NewFromInt(-200),
		Status: types.TradeStatusCompleted, CreatedAt: time.Now(),
	}))
	require.NoError(t, store.SaveTrade(ctx, types.Trade{
		ID: "pending", AccountID: "acc1", PnL: decimal.NewFromInt(-900),
		Status: types.TradeStatusPending, CreatedAt: time.Now(),
	}))

	m, err := NewCalculator(store).Compute(ctx, "acc1")
	require.NoError(t, err)

	assert.Equal(t, "-200", m.DailyPnL.String())
	require.NotNil(t, m.LastTradeAt)
}

func TestComputeWinRateAndProfitFactor(t *testing.T) {
	store := storage.NewMemory()
	seedAccount(t, store)
	ctx := context.Background()

	pnls := []int64{100, 50, -50}
	for i, pnl := range pnls {
		require.NoError(t, store.SaveTrade(ctx, types.Trade{
			ID:        string(rune('a' + i)),
			AccountID: "acc1",
			PnL:       decimal.NewFromInt(pnl),
			Status:    types.TradeStatusCompleted,
			CreatedAt: time.Now().Add(-time.Hour),
		}))
	}

	m, err := NewCalculator(store).Compute(ctx, "acc1")
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3.0, m.WinRate, 0.0001)
	assert.InDelta(t, 3.0, m.ProfitFactor, 0.0001)
}

func TestProfitFactorZeroWithoutLosses(t *testing.T) {
	trades := []types.Trade{
		{PnL: decimal.NewFromInt(100)},
		{PnL: decimal.NewFromInt(200)},
	}
	assert.Zero(t, profitFactor(trades))
}

func TestDrawdowns(t *testing.T) {
	points := func(values ...int64) []types.EquityPoint {
		out := make([]types.EquityPoint, len(values))
		for i, v := range values {
			out[i] = types.EquityPoint{Equity: decimal.NewFromInt(v)}
		}
		return out
	}

	maxDD, currentDD := drawdowns(points(1000, 1200, 900, 1000))
	assert.InDelta(t, 0.25, maxDD, 0.0001)
	assert.InDelta(t, 200.0/1200.0, currentDD, 0.0001)

	maxDD, currentDD = drawdowns(points(1000, 1100, 1200))
	assert.Zero(t, maxDD)
	assert.Zero(t, currentDD)

	maxDD, currentDD = drawdowns(nil)
	assert.Zero(t, maxDD)
	assert.Zero(t, currentDD)
}

func TestSharpeRatio(t *testing.T) {
	now := time.Now()
	equity := []types.EquityPoint{
		{Equity: decimal.NewFromInt(10000), Time: now.AddDate(0, 0, -2)},
		{Equity: decimal.NewFromInt(11000), Time: now.AddDate(0, 0, -1)},
		{Equity: decimal.NewFromFloat(10450), Time: now},
	}

	// Daily returns +10% and -5%: positive mean, annualized.
	got := sharpeRatio(equity)
	assert.Greater(t, got, 0.0)

	// Too little history yields zero.
	assert.Zero(t, sharpeRatio(equity[:1]))
	assert.Zero(t, sharpeRatio(nil))
}

func TestCompositeScoreClamped(t *testing.T) {
	m := &types.RiskMetrics{
		CurrentDrawdown: 0.9,
		LeverageUsage:   5,
		DailyPnL:        decimal.NewFromInt(-10000),
	}
	assert.Equal(t, 100.0, compositeScore(m))

	m = &types.RiskMetrics{
		CurrentDrawdown: 0.1,
		LeverageUsage:   1.5,
		DailyPnL:        decimal.NewFromInt(-500),
	}
	// 10 + 10 + 5
	assert.InDelta(t, 25.0, compositeScore(m), 0.0001)
}

func TestComputeIsIdempotent(t *testing.T) {
	store := storage.NewMemory()
	seedAccount(t, store)
	ctx := context.Background()

	require.NoError(t, store.SaveTrade(ctx, types.Trade{
		ID: "t1", AccountID: "acc1", PnL: decimal.NewFromInt(-300),
		Status: types.TradeStatusCompleted, CreatedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.SavePosition(ctx, types.Position{
		ID: "p1", AccountID: "acc1", Size: decimal.NewFromInt(1),
		MarkPrice: decimal.NewFromInt(500), Status: types.PositionStatusOpen,
	}))
	require.NoError(t, store.SaveEquityPoint(ctx, types.EquityPoint{
		AccountID: "acc1", Equity: decimal.NewFromInt(9700), Time: time.Now(),
	}))

	calc := NewCalculator(store)
	first, err := calc.Compute(ctx, "acc1")
	require.NoError(t, err)
	second, err := calc.Compute(ctx, "acc1")
	require.NoError(t, err)

	assert.True(t, first.TotalExposure.Equal(second.TotalExposure))
	assert.True(t, first.DailyPnL.Equal(second.DailyPnL))
	assert.Equal(t, first.MaxDrawdown, second.MaxDrawdown)
	assert.Equal(t, first.CurrentDrawdown, second.CurrentDrawdown)
	assert.Equal(t, first.SharpeRatio, second.SharpeRatio)
	assert.Equal(t, first.WinRate, second.WinRate)
	assert.Equal(t, first.ProfitFactor, second.ProfitFactor)
	assert.Equal(t, first.LeverageUsage, second.LeverageUsage)
	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, first.OpenPositions, second.OpenPositions)
}
