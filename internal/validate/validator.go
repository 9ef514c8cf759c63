package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/internal/assess"
	"github.com/tradegate/risk-engine/internal/config"
	"github.com/tradegate/risk-engine/internal/exchange"
	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/pkg/types"
)

const orderBookLevels = 20

// Validator runs the pre-trade pipeline. Stages append to errors and
// warnings; only malformed parameters and an unknown account stop the
// pipeline early. The caller always gets a structured result.
type Validator struct {
	storage  storage.Store
	exchange exchange.Exchange
	assessor *assess.Assessor
	cfg      config.ValidationConfig
	logger   *logrus.Entry

	now func() time.Time
}

func NewValidator(st storage.Store, ex exchange.Exchange, assessor *assess.Assessor, cfg config.ValidationConfig) *Validator {
	return &Validator{
		storage:  st,
		exchange: ex,
		assessor: assessor,
		cfg:      cfg,
		logger:   logrus.WithField("component", "validator"),
		now:      time.Now,
	}
}

// ValidateOrder runs all pipeline stages against the order.
func (v *Validator) ValidateOrder(ctx context.Context, order *types.OrderRequest) *types.OrderValidationResult {
	result := &types.OrderValidationResult{}

	// Stage 1: parameters. Fatal, nothing downstream can work with a
	// malformed order.
	if v.checkParameters(order, result); len(result.Errors) > 0 {
		return result
	}

	// Stage 2: account. Fatal when unknown.
	account, err := v.storage.GetAccount(ctx, order.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("account %s not found", order.AccountID))
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("account lookup failed: %v", err))
		}
		return result
	}

	v.checkBalance(ctx, order, account, result)

	ticker := v.checkMarketData(ctx, order, result)

	adjusted := v.checkRisk(ctx, order, result)

	v.checkOrderType(order, ticker, result)

	v.checkLiquidity(ctx, order, ticker, result)

	v.checkTradingTime(result)

	result.Valid = len(result.Errors) == 0
	if result.Valid {
		result.AdjustedOrder = adjusted
	}

	v.logger.WithFields(logrus.Fields{
		"account":  order.AccountID,
		"symbol":   order.Symbol,
		"valid":    result.Valid,
		"errors":   len(result.Errors),
		"warnings": len(result.Warnings),
	}).Debug("order validated")

	return result
}

func (v *Validator) checkParameters(order *types.OrderRequest, result *types.OrderValidationResult) {
	if order.AccountID == "" {
		result.Errors = append(result.Errors, "account id is required")
	}
	if order.Symbol == "" {
		result.Errors = append(result.Errors, "symbol is required")
	}

	switch order.Type {
	case types.OrderTypeMarket, types.OrderTypeLimit, types.OrderTypeStop, types.OrderTypeStopLimit:
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unknown order type %q", order.Type))
	}

	switch order.Side {
	case types.OrderSideBuy, types.OrderSideSell:
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unknown order side %q", order.Side))
	}

	if !order.Amount.IsPositive() {
		result.Errors = append(result.Errors, "amount must be positive")
	} else if order.Amount.GreaterThan(decimal.NewFromFloat(v.cfg.MaxOrderAmount)) {
		result.Errors = append(result.Errors, fmt.Sprintf("amount exceeds maximum %.0f", v.cfg.MaxOrderAmount))
	}

	if order.Type == types.OrderTypeLimit || order.Type == types.OrderTypeStopLimit {
		if !order.Price.IsPositive() {
			result.Errors = append(result.Errors, fmt.Sprintf("%s orders require a positive price", order.Type))
		}
	}
	if order.Type == types.OrderTypeStop || order.Type == types.OrderTypeStopLimit {
		if !order.StopPrice.IsPositive() {
			result.Errors = append(result.Errors, fmt.Sprintf("%s orders require a positive stop price", order.Type))
		}
	}
}

func (v *Validator) checkBalance(ctx context.Context, order *types.OrderRequest, account *types.Account, result *types.OrderValidationResult) {
	if !account.Active {
		result.Errors = append(result.Errors, fmt.Sprintf("account %s is inactive", account.ID))
	}

	orderValue := order.Value()

	available := account.Balance
	balances, err := v.exchange.GetBalance(ctx, order.AccountID)
	if err != nil {
		// Degrade to the last persisted balance rather than refusing the
		// order outright.
		result.Warnings = append(result.Warnings, "real-time balance unavailable, using last known balance")
		v.logger.WithError(err).WithField("account", order.AccountID).Warn("balance fetch failed")
	} else if quote := quoteAsset(order.Symbol); quote != "" {
		// A successful fetch is authoritative: a quote asset absent from
		// the response holds nothing, the stale persisted balance does not
		// apply.
		available = decimal.Zero
		for _, b := range balances {
			if b.Asset == quote {
				available = b.Free
				break
			}
		}
	}

	if order.Side == types.OrderSideBuy && orderValue.IsPositive() {
		if available.LessThan(orderValue) {
			result.Errors = append(result.Errors, fmt.Sprintf("insufficient balance: available %s, required %s", available, orderValue))
		} else {
			buffer := available.Mul(decimal.NewFromFloat(v.cfg.BalanceMarginBuffer))
			if available.Sub(orderValue).LessThan(buffer) {
				result.Warnings = append(result.Warnings, "order leaves less than the recommended balance buffer")
			}
		}
	}

	if account.DailyLimit.IsPositive() && orderValue.GreaterThan(account.DailyLimit) {
		result.Errors = append(result.Errors, fmt.Sprintf("order value %s exceeds daily limit %s", orderValue, account.DailyLimit))
	}
}

func (v *Validator) checkMarketData(ctx context.Context, order *types.OrderRequest, result *types.OrderValidationResult) *types.Ticker {
	ticker, err := v.exchange.GetTicker(ctx, order.Symbol)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("market data unavailable for %s", order.Symbol))
		v.logger.WithError(err).WithField("symbol", order.Symbol).Warn("ticker fetch failed")
		return nil
	}

	if order.Price.IsPositive() && ticker.Last.IsPositive() {
		deviation := order.Price.Sub(ticker.Last).Abs().Div(ticker.Last).InexactFloat64()
		if deviation > v.cfg.PriceDeviationError {
			result.Errors = append(result.Errors, fmt.Sprintf("order price deviates %.1f%% from market price %s", deviation*100, ticker.Last))
		} else if deviation > v.cfg.PriceDeviationWarn {
			result.Warnings = append(result.Warnings, fmt.Sprintf("order price deviates %.1f%% from market price %s", deviation*100, ticker.Last))
		}
	}

	if ticker.Volume24h.LessThan(decimal.NewFromFloat(v.cfg.LowVolumeThreshold)) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("low 24h volume %s for %s", ticker.Volume24h, order.Symbol))
	}
	if change := ticker.ChangePercent24h; change > v.cfg.HighVolatilityPct || change < -v.cfg.HighVolatilityPct {
		result.Warnings = append(result.Warnings, fmt.Sprintf("high volatility: %.1f%% move in 24h", change))
	}

	return ticker
}

// checkRisk runs the trade risk assessment and merges any suggested
// adjustments into a candidate order.
func (v *Validator) checkRisk(ctx context.Context, order *types.OrderRequest, result *types.OrderValidationResult) *types.OrderRequest {
	assessment := v.assessor.Assess(ctx, order.AccountID, order.TradeIntent())

	for _, violation := range assessment.Violations {
		result.Errors = append(result.Errors, violation.Message)
	}

	amount, ok := assessment.AdjustedParameters["amount"]
	if !ok {
		return nil
	}

	adjusted := *order
	adjusted.Amount = amount
	result.Warnings = append(result.Warnings, fmt.Sprintf("suggested amount adjustment to %s to fit position limits", amount))
	return &adjusted
}

func (v *Validator) checkOrderType(order *types.OrderRequest, ticker *types.Ticker, result *types.OrderValidationResult) {
	marketPrice := decimal.Zero
	if ticker != nil {
		marketPrice = ticker.Last
	}

	switch order.Type {
	case types.OrderTypeMarket:
		notional := order.Amount.Mul(marketPrice)
		if notional.GreaterThan(decimal.NewFromFloat(v.cfg.MarketSlippageValue)) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("large market order (%s notional) may suffer slippage", notional))
		}

	case types.OrderTypeLimit:
		if order.Price.IsPositive() && marketPrice.IsPositive() {
			distance := order.Price.Sub(marketPrice).Abs().Div(marketPrice).InexactFloat64()
			if distance > v.cfg.LimitDistanceWarnPct {
				result.Warnings = append(result.Warnings, fmt.Sprintf("limit price is %.1f%% away from market", distance*100))
			}
		}

	case types.OrderTypeStop, types.OrderTypeStopLimit:
		reference := order.Price
		if !reference.IsPositive() {
			reference = marketPrice
		}
		if !order.StopPrice.IsPositive() || !reference.IsPositive() {
			return
		}
		referenceName := "limit price"
		if !order.Price.IsPositive() {
			referenceName = "market price"
		}
		switch order.Side {
		case types.OrderSideBuy:
			if order.StopPrice.GreaterThanOrEqual(reference) {
				result.Errors = append(result.Errors, fmt.Sprintf("buy stop price must be below the %s", referenceName))
			}
		case types.OrderSideSell:
			if order.StopPrice.LessThanOrEqual(reference) {
				result.Errors = append(result.Errors, fmt.Sprintf("sell stop price must be above the %s", referenceName))
			}
		}
	}
}

func (v *Validator) checkLiquidity(ctx context.Context, order *types.OrderRequest, ticker *types.Ticker, result *types.OrderValidationResult) {
	book, err := v.exchange.GetOrderBook(ctx, order.Symbol, orderBookLevels)
	if err != nil {
		// Skipping the check with a warning beats failing the order on a
		// market-data hiccup.
		result.Warnings = append(result.Warnings, "order book unavailable, liquidity check skipped")
		return
	}

	midDepth := types.Depth(book.Bids).Add(types.Depth(book.Asks)).Div(decimal.NewFromInt(2))
	if !midDepth.IsPositive() {
		result.Warnings = append(result.Warnings, "empty order book, liquidity check skipped")
		return
	}

	orderValue := order.Value()
	if !orderValue.IsPositive() && ticker != nil {
		orderValue = order.Amount.Mul(ticker.Last)
	}

	ratio := orderValue.Div(midDepth).InexactFloat64()
	if ratio > v.cfg.LiquidityErrorRatio {
		result.Errors = append(result.Errors, fmt.Sprintf("order value is %.0f%% of available depth", ratio*100))
	} else if ratio > v.cfg.LiquidityWarnRatio {
		result.Warnings = append(result.Warnings, fmt.Sprintf("order value is %.0f%% of available depth", ratio*100))
	}
}

// checkTradingTime warns outside regular hours but never blocks; crypto
// venues trade around the clock.
func (v *Validator) checkTradingTime(result *types.OrderValidationResult) {
	now := v.now()

	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		result.Warnings = append(result.Warnings, "trading on a weekend, reduced liquidity expected")
	}
	if hour := now.Hour(); hour < v.cfg.TradingOpenHour || hour >= v.cfg.TradingCloseHour {
		result.Warnings = append(result.Warnings, fmt.Sprintf("outside regular trading hours (%02d:00-%02d:00)", v.cfg.TradingOpenHour, v.cfg.TradingCloseHour))
	}
}

var quoteAssets = []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"}

// quoteAsset extracts the quote currency from "BTC/USDT" or "BTCUSDT"
// style symbols. Returns "" when it cannot tell.
func quoteAsset(symbol string) string {
	if i := strings.IndexByte(symbol, '/'); i >= 0 {
		return strings.ToUpper(symbol[i+1:])
	}
	upper := strings.ToUpper(symbol)
	for _, quote := range quoteAssets {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return quote
		}
	}
	return ""
}
