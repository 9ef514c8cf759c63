package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/pkg/cache"
	"github.com/tradegate/risk-engine/pkg/types"
)

const (
	tickerTTL    = 5 * time.Second
	orderBookTTL = 2 * time.Second
	balanceTTL   = 10 * time.Second
)

// Binance connects to Binance spot. Market data reads are cached briefly so
// a burst of validations does not burn the API weight budget.
type Binance struct {
	client      *binance.Client
	cache       *cache.TTLCache
	rateLimiter *cache.RateLimiter
	logger      *logrus.Entry
	testnet     bool
	timeout     time.Duration
}

// NewBinance creates a Binance spot connector. Every API call is bounded by
// the given timeout; zero disables the bound.
func NewBinance(apiKey, apiSecret string, testnet bool, timeout time.Duration) *Binance {
	client := binance.NewClient(apiKey, apiSecret)
	if testnet {
		client.BaseURL = "https://testnet.binance.vision/api"
	}

	return &Binance{
		client:      client,
		cache:       cache.NewTTLCache(),
		rateLimiter: cache.NewRateLimiter(1200, time.Minute), // Binance weight limit
		logger:      logrus.WithField("component", "binance"),
		testnet:     testnet,
		timeout:     timeout,
	}
}

func (b *Binance) Name() string { return "binance" }

// callCtx derives the per-call context so a stalled venue cannot hold a
// validation open past the configured budget.
func (b *Binance) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Binance) GetBalance(ctx context.Context, accountID string) ([]types.Balance, error) {
	cacheKey := "balance:" + accountID
	if cached, ok := b.cache.Get(cacheKey); ok {
		return cached.([]types.Balance), nil
	}
	if !b.rateLimiter.Allow("account") {
		return nil, fmt.Errorf("%w: rate limit exceeded", ErrUpstreamUnavailable)
	}

	ctx, cancel := b.callCtx(ctx)
	defer cancel()

	res, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get account: %v", ErrUpstreamUnavailable, err)
	}

	balances := make([]types.Balance, 0, len(res.Balances))
	for _, raw := range res.Balances {
		free, err := decimal.NewFromString(raw.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(raw.Locked)
		if err != nil {
			continue
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, types.Balance{
			Asset: raw.Asset,
			Free:  free,
			Used:  locked,
			Total: free.Add(locked),
		})
	}

	b.cache.Set(cacheKey, balances, balanceTTL)
	return balances, nil
}

func (b *Binance) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	venueSymbol := toVenueSymbol(symbol)
	cacheKey := "ticker:" + venueSymbol
	if cached, ok := b.cache.Get(cacheKey); ok {
		return cached.(*types.Ticker), nil
	}
	if !b.rateLimiter.Allow("ticker") {
		return nil, fmt.Errorf("%w: rate limit exceeded", ErrUpstreamUnavailable)
	}

	ctx, cancel := b.callCtx(ctx)
	defer cancel()

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(venueSymbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: ticker %s: %v", ErrUpstreamUnavailable, symbol, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no ticker for symbol %s", symbol)
	}

	last, err := decimal.NewFromString(stats[0].LastPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last price for %s: %w", symbol, err)
	}
	quoteVolume, err := decimal.NewFromString(stats[0].QuoteVolume)
	if err != nil {
		return nil, fmt.Errorf("failed to parse volume for %s: %w", symbol, err)
	}
	changePct, err := decimal.NewFromString(stats[0].PriceChangePercent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse change percent for %s: %w", symbol, err)
	}

	ticker := &types.Ticker{
		Symbol:           symbol,
		Last:             last,
		Volume24h:        quoteVolume,
		ChangePercent24h: changePct.InexactFloat64(),
		UpdatedAt:        time.Now(),
	}
	b.cache.Set(cacheKey, ticker, tickerTTL)
	return ticker, nil
}

func (b *Binance) GetOrderBook(ctx context.Context, symbol string, limit int) (*types.OrderBook, error) {
	venueSymbol := toVenueSymbol(symbol)
	cacheKey := fmt.Sprintf("depth:%s:%d", venueSymbol, limit)
	if cached, ok := b.cache.Get(cacheKey); ok {
		return cached.(*types.OrderBook), nil
	}
	if !b.rateLimiter.Allow("depth") {
		return nil, fmt.Errorf("%w: rate limit exceeded", ErrUpstreamUnavailable)
	}

	ctx, cancel := b.callCtx(ctx)
	defer cancel()

	res, err := b.client.NewDepthService().Symbol(venueSymbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: depth %s: %v", ErrUpstreamUnavailable, symbol, err)
	}

	book := &types.OrderBook{
		Symbol:    symbol,
		Bids:      make([]types.PriceLevel, 0, len(res.Bids)),
		Asks:      make([]types.PriceLevel, 0, len(res.Asks)),
		UpdatedAt: time.Now(),
	}
	for _, bid := range res.Bids {
		if level, ok := parseLevel(bid.Price, bid.Quantity); ok {
			book.Bids = append(book.Bids, level)
		}
	}
	for _, ask := range res.Asks {
		if level, ok := parseLevel(ask.Price, ask.Quantity); ok {
			book.Asks = append(book.Asks, level)
		}
	}

	b.cache.Set(cacheKey, book, orderBookTTL)
	return book, nil
}

func (b *Binance) PlaceOrder(ctx context.Context, order *types.OrderRequest) (string, error) {
	if !b.rateLimiter.Allow("create_order") {
		return "", fmt.Errorf("%w: rate limit exceeded", ErrUpstreamUnavailable)
	}

	ctx, cancel := b.callCtx(ctx)
	defer cancel()

	svc := b.client.NewCreateOrderService().
		Symbol(toVenueSymbol(order.Symbol)).
		Side(toVenueSide(order.Side)).
		Type(toVenueType(order.Type)).
		Quantity(order.Amount.String())

	switch order.Type {
	case types.OrderTypeLimit:
		svc.TimeInForce(binance.TimeInForceTypeGTC).Price(order.Price.String())
	case types.OrderTypeStop:
		svc.StopPrice(order.StopPrice.String())
	case types.OrderTypeStopLimit:
		svc.TimeInForce(binance.TimeInForceTypeGTC).
			Price(order.Price.String()).
			StopPrice(order.StopPrice.String())
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: create order: %v", ErrUpstreamUnavailable, err)
	}

	b.logger.WithFields(logrus.Fields{
		"account": order.AccountID,
		"symbol":  order.Symbol,
		"order":   res.OrderID,
	}).Info("order placed")

	return fmt.Sprintf("%d", res.OrderID), nil
}

func (b *Binance) Close() error {
	b.cache.Stop()
	return nil
}

func parseLevel(price, quantity string) (types.PriceLevel, bool) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return types.PriceLevel{}, false
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return types.PriceLevel{}, false
	}
	return types.PriceLevel{Price: p, Quantity: q}, true
}

// toVenueSymbol converts "BTC/USDT" to the venue form "BTCUSDT".
func toVenueSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func toVenueSide(side types.OrderSide) binance.SideType {
	if side == types.OrderSideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func toVenueType(orderType types.OrderType) binance.OrderType {
	switch orderType {
	case types.OrderTypeMarket:
		return binance.OrderTypeMarket
	case types.OrderTypeStop:
		return binance.OrderTypeStopLoss
	case types.OrderTypeStopLimit:
		return binance.OrderTypeStopLossLimit
	default:
		return binance.OrderTypeLimit
	}
}
