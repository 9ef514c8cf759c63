package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides
const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// Order types
const (
	OrderTypeMarket    = "market"
	OrderTypeLimit     = "limit"
	OrderTypeStop      = "stop"
	OrderTypeStopLimit = "stop_limit"
)

// Trade status
const (
	TradeStatusPending   = "pending"
	TradeStatusCompleted = "completed"
	TradeStatusFailed    = "failed"
)

// Position status
const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Type aliases for readability
type OrderSide = string
type OrderType = string

// TradeRequest is an intent to trade, checked by the risk assessor before
// it becomes an order.
type TradeRequest struct {
	Symbol string          `json:"symbol"`
	Side   OrderSide       `json:"side"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price,omitempty"`
}

// Value returns the notional value of the request. A zero price (market
// order without a reference price) counts each unit at 1.
func (r TradeRequest) Value() decimal.Decimal {
	if r.Price.IsZero() {
		return r.Amount
	}
	return r.Amount.Mul(r.Price)
}

// OrderRequest is a full order submission passed through the validation
// pipeline.
type OrderRequest struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Type      OrderType       `json:"type"`
	Side      OrderSide       `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price,omitempty"`
	StopPrice decimal.Decimal `json:"stop_price,omitempty"`
}

// Value returns the notional order value. Unlike TradeRequest.Value a
// missing price yields zero; balance checks treat an unpriced market order
// as free until the risk stage prices it.
func (r OrderRequest) Value() decimal.Decimal {
	return r.Amount.Mul(r.Price)
}

// TradeIntent converts the order into the shape the risk assessor checks.
func (r OrderRequest) TradeIntent() TradeRequest {
	return TradeRequest{
		Symbol: r.Symbol,
		Side:   r.Side,
		Amount: r.Amount,
		Price:  r.Price,
	}
}

// Account is the trading account the engine gatekeeps for.
type Account struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	Balance     decimal.Decimal `json:"balance"`     // last known total balance
	DailyLimit  decimal.Decimal `json:"daily_limit"` // max order value per day, zero means unlimited
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// Balance represents a single asset balance on an exchange account.
type Balance struct {
	Asset string          `json:"asset"`
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
	Total decimal.Decimal `json:"total"`
}

// Trade represents an executed trade.
type Trade struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	PnL       decimal.Decimal `json:"pnl"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Position represents an open or closed position.
type Position struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	MarkPrice  decimal.Decimal `json:"mark_price"`
	Leverage   float64         `json:"leverage,omitempty"`
	Status     string          `json:"status"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// Notional returns size x mark price.
func (p Position) Notional() decimal.Decimal {
	return p.Size.Abs().Mul(p.MarkPrice)
}

// Ticker represents 24h ticker statistics for a symbol.
type Ticker struct {
	Symbol           string          `json:"symbol"`
	Last             decimal.Decimal `json:"last"`
	Volume24h        decimal.Decimal `json:"volume_24h"`
	ChangePercent24h float64         `json:"change_percent_24h"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PriceLevel represents a price level in an order book.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBook represents order book depth for a symbol.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Depth returns the notional depth of one side of the book.
func Depth(levels []PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Price.Mul(l.Quantity))
	}
	return total
}

// EquityPoint is one sample of the account equity curve.
type EquityPoint struct {
	AccountID string          `json:"account_id"`
	Equity    decimal.Decimal `json:"equity"`
	Time      time.Time       `json:"time"`
}
