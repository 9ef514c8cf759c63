package exchange

import (
	"context"

	"github.com/tradegate/risk-engine/pkg/types"
)

// Noop is an exchange connector used when no venue credentials are
// configured. Every read reports the upstream as unavailable, which pushes
// callers onto their persisted-data fallbacks.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (Noop) Name() string { return "none" }

func (Noop) GetBalance(ctx context.Context, accountID string) ([]types.Balance, error) {
	return nil, ErrUpstreamUnavailable
}

func (Noop) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	return nil, ErrUpstreamUnavailable
}

func (Noop) GetOrderBook(ctx context.Context, symbol string, limit int) (*types.OrderBook, error) {
	return nil, ErrUpstreamUnavailable
}

func (Noop) PlaceOrder(ctx context.Context, order *types.OrderRequest) (string, error) {
	return "", ErrUpstreamUnavailable
}

func (Noop) Close() error { return nil }
