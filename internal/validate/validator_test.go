package validate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/risk-engine/internal/assess"
	"github.com/tradegate/risk-engine/internal/config"
	"github.com/tradegate/risk-engine/internal/metrics"
	"github.com/tradegate/risk-engine/internal/rules"
	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/pkg/types"
)

type stubExchange struct {
	balances   []types.Balance
	balanceErr error
	ticker     *types.Ticker
	tickerErr  error
	book       *types.OrderBook
	bookErr    error
}

func (s *stubExchange) GetBalance(ctx context.Context, accountID string) ([]types.Balance, error) {
	return s.balances, s.balanceErr
}

func (s *stubExchange) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	return s.ticker, s.tickerErr
}

func (s *stubExchange) GetOrderBook(ctx context.Context, symbol string, limit int) (*types.OrderBook, error) {
	return s.book, s.bookErr
}

func (s *stubExchange) PlaceOrder(ctx context.Context, order *types.OrderRequest) (string, error) {
	return "1", nil
}

func (s *stubExchange) Name() string { return "stub" }
func (s *stubExchange) Close() error { return nil }

func healthyExchange() *stubExchange {
	level := types.PriceLevel{Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(100)}
	return &stubExchange{
		balances: []types.Balance{{
			Asset: "USDT",
			Free:  decimal.NewFromInt(10000),
			Total: decimal.NewFromInt(10000),
		}},
		ticker: &types.Ticker{
			Symbol:           "BTC/USDT",
			Last:             decimal.NewFromInt(100),
			Volume24h:        decimal.NewFromInt(1_000_000),
			ChangePercent24h: 1.0,
			UpdatedAt:        time.Now(),
		},
		book: &types.OrderBook{
			Symbol: "BTC/USDT",
			Bids:   []types.PriceLevel{level, level, level, level, level},
			Asks:   []types.PriceLevel{level, level, level, level, level},
		},
	}
}

func testValidationConfig() config.ValidationConfig {
	return config.ValidationConfig{
		MaxOrderAmount:       1_000_000,
		PriceDeviationWarn:   0.10,
		PriceDeviationError:  0.30,
		LowVolumeThreshold:   10_000,
		HighVolatilityPct:    20,
		BalanceMarginBuffer:  0.10,
		LiquidityWarnRatio:   0.10,
		LiquidityErrorRatio:  0.30,
		MarketSlippageValue:  10_000,
		LimitDistanceWarnPct: 0.05,
		TradingOpenHour:      9,
		TradingCloseHour:     16,
	}
}

func newTestValidator(t *testing.T, ex *stubExchange) (*Validator, *storage.Memory) {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemory()
	require.NoError(t, store.SaveAccount(ctx, types.Account{
		ID:      "acc1",
		Name:    "test",
		Active:  true,
		Balance: decimal.NewFromInt(10000),
	}))

	ruleStore, err := rules.NewStore(ctx, store)
	require.NoError(t, err)

	assessor := assess.NewAssessor(ruleStore, metrics.NewCalculator(store), store, nil)
	return NewValidator(store, ex, assessor, testValidationConfig()), store
}

func limitBuy(amount, price int64) *types.OrderRequest {
	return &types.OrderRequest{
		AccountID: "acc1",
		Symbol:    "BTC/USDT",
		Type:      types.OrderTypeLimit,
		Side:      types.OrderSideBuy,
		Amount:    decimal.NewFromInt(amount),
		Price:     decimal.NewFromInt(price),
	}
}

func TestValidateOrderHappyPath(t *testing.T) {
	v, _ := newTestValidator(t, healthyExchange())

	result := v.ValidateOrder(context.Background(), limitBuy(1, 100))

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateOrderRejectsMalformedParameters(t *testing.T) {
	v, _ := newTestValidator(t, healthyExchange())

	order := limitBuy(1, 100)
	order.Type = "iceberg"
	result := v.ValidateOrder(context.Background(), order)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unknown order type")
}

func TestValidateOrderParameterChecks(t *testing.T) {
	v, _ := newTestValidator(t, healthyExchange())
	ctx := context.Background()

	order := limitBuy(1, 100)
	order.Amount = decimal.Zero
	result := v.ValidateOrder(ctx, order)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "amount must be positive")

	order = limitBuy(1, 100)
	order.Price = decimal.Zero
	result = v.ValidateOrder(ctx, order)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "require a positive price")

	order = limitBuy(1, 100)
	order.Type = types.OrderTypeStop
	order.Price = decimal.Zero
	result = v.ValidateOrder(ctx, order)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "positive stop price")
}

func TestValidateOrderUnknownAccount(t *testing.T) {
	v, _ := newTestValidator(t, healthyExchange())

	order := limitBuy(1, 100)
	order.AccountID = "nobody"
	result := v.ValidateOrder(context.Background(), order)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not found")
}

func TestValidateOrderInactiveAccount(t *testing.T) {
	v, store := newTestValidator(t, healthyExchange())
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, types.Account{
		ID:      "frozen",
		Active:  false,
		Balance: decimal.NewFromInt(10000),
	}))

	order := limitBuy(1, 100)
	order.AccountID = "frozen"
	result := v.ValidateOrder(ctx, order)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "inactive")
}

func TestValidateOrderInsufficientBalance(t *testing.T) {
	ex := healthyExchange()
	ex.balances[0].Free = decimal.NewFromInt(50)
	v, _ := newTestValidator(t, ex)

	result := v.ValidateOrder(context.Background(), limitBuy(1, 100))

	assert.False(t, result.Valid)

	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "insufficient balance") {
			found = true
		}
	}
	assert.True(t, found, "expected an insufficient balance error, got %v", result.Errors)
}

func TestValidateOrderMissingQuoteAssetMeansZeroBalance(t *testing.T) {
	ex := healthyExchange()
	// The venue answers, but holds only BTC; the persisted 10000 balance
	// must not stand in for the absent USDT.
	ex.balances = []types.Balance{{
		Asset: "BTC",
		Free:  decimal.NewFromInt(5),
		Total: decimal.NewFromInt(5),
	}}
	v, _ := newTestValidator(t, ex)

	result := v.ValidateOrder(context.Background(), limitBuy(1, 100))

	assert.False(t, result.Valid)

	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "insufficient balance: available 0") {
			found = true
		}
	}
	assert.True(t, found, "expected a zero-balance error, got %v", result.Errors)
}

func TestValidateOrderBalanceFetchFallsBack(t *testing.T) {
	ex := healthyExchange()
	ex.balanceErr = errors.New("venue down")
	v, _ := newTestValidator(t, ex)

	result := v.ValidateOrder(context.Background(), limitBuy(1, 100))

	// Falls back to the persisted balance of 10000 and still validates.
	assert.True(t, result.Valid)

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "last known balance") {
			found = true
		}
	}
	assert.True(t, found, "expected a fallback warning, got %v", result.Warnings)
}

func TestValidateOrderPriceDeviation(t *testing.T) {
	v, _ := newTestValidator(t, healthyExchange())
	ctx := context.Background()

	// 40% above market is a hard error.
	result := v.ValidateOrder(ctx, limitBuy(1, 140))
	assert.False(t, result.Valid)

	// 15% above market only warns.
	result = v.ValidateOrder(ctx, limitBuy(1, 115))
	assert.True(t, result.Valid)

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "deviates") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateOrderStopPriceSides(t *testing.T) {
	v, _ := newTestValidator(t, healthyExchange())
	ctx := context.Background()

	// Buy stop above the limit price is invalid.
	order := &types.OrderRequest{
		AccountID: "acc1",
		Symbol:    "BTC/USDT",
		Type:      types.OrderTypeStopLimit,
		Side:      types.OrderSideBuy,
		Amount:    decimal.NewFromInt(1),
		Price:     decimal.NewFromInt(90),
		StopPrice: decimal.NewFromInt(100),
	}
	result := v.ValidateOrder(ctx, order)
	assert.False(t, result.Valid)

	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "buy stop price") {
			found = true
		}
	}
	assert.True(t, found, "expected a stop side error, got %v", result.Errors)

	// Sell stop below the limit price is the mirror case.
	order.Side = types.OrderSideSell
	order.Price = decimal.NewFromInt(110)
	result = v.ValidateOrder(ctx, order)
	assert.False(t, result.Valid)

	// A plain stop order has no limit price; the message names the market
	// price it was checked against.
	stop := &types.OrderRequest{
		AccountID: "acc1",
		Symbol:    "BTC/USDT",
		Type:      types.OrderTypeStop,
		Side:      types.OrderSideBuy,
		Amount:    decimal.NewFromInt(1),
		StopPrice: decimal.NewFromInt(110),
	}
	result = v.ValidateOrder(ctx, stop)
	assert.False(t, result.Valid)

	found = false
	for _, e := range result.Errors {
		if strings.Contains(e, "below the market price") {
			found = true
		}
	}
	assert.True(t, found, "expected a market price reference, got %v", result.Errors)
}

func TestValidateOrderNoAdjustedOrderWhenInvalid(t *testing.T) {
	v, _ := newTestValidator(t, healthyExchange())

	// 60 x 100 = 6000 breaches the 5000 single-trade limit, producing both
	// a risk error and an adjustment suggestion.
	result := v.ValidateOrder(context.Background(), limitBuy(60, 100))

	assert.False(t, result.Valid)
	assert.Nil(t, result.AdjustedOrder)
}

func TestValidateOrderLiquidityCheckDegrades(t *testing.T) {
	ex := healthyExchange()
	ex.bookErr = errors.New("depth unavailable")
	v, _ := newTestValidator(t, ex)

	result := v.ValidateOrder(context.Background(), limitBuy(1, 100))

	assert.True(t, result.Valid)

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "liquidity check skipped") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateOrderMarketDataUnavailable(t *testing.T) {
	ex := healthyExchange()
	ex.tickerErr = errors.New("no ticker")
	v, _ := newTestValidator(t, ex)

	result := v.ValidateOrder(context.Background(), limitBuy(1, 100))

	assert.False(t, result.Valid)

	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "market data unavailable") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateOrderTradingHoursWarnOnly(t *testing.T) {
	v, _ := newTestValidator(t, healthyExchange())
	v.now = func() time.Time {
		// A Sunday, well outside trading hours.
		return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	}

	result := v.ValidateOrder(context.Background(), limitBuy(1, 100))

	assert.True(t, result.Valid)
	assert.GreaterOrEqual(t, len(result.Warnings), 2)
}

func TestQuoteAsset(t *testing.T) {
	assert.Equal(t, "USDT", quoteAsset("BTC/USDT"))
	assert.Equal(t, "USDT", quoteAsset("BTCUSDT"))
	assert.Equal(t, "BTC", quoteAsset("ETHBTC"))
	assert.Equal(t, "", quoteAsset("XYZ"))
}
