package exchange

import (
	"context"
	"errors"

	"github.com/tradegate/risk-engine/pkg/types"
)

// ErrUpstreamUnavailable is returned when the venue cannot be reached or
// refuses the request. Callers decide whether to fail open or closed.
var ErrUpstreamUnavailable = errors.New("exchange upstream unavailable")

// Exchange is the venue connector the engine reads balances and market data
// from. Implementations are safe for concurrent use.
type Exchange interface {
	// GetBalance returns the asset balances of the account.
	GetBalance(ctx context.Context, accountID string) ([]types.Balance, error)

	// GetTicker returns 24h ticker statistics for a symbol.
	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)

	// GetOrderBook returns order book depth for a symbol.
	GetOrderBook(ctx context.Context, symbol string, limit int) (*types.OrderBook, error)

	// PlaceOrder submits a validated order and returns the venue order ID.
	PlaceOrder(ctx context.Context, order *types.OrderRequest) (string, error)

	// Name returns the venue name.
	Name() string

	// Close releases connector resources.
	Close() error
}
