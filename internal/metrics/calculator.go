package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/pkg/types"
)

// lookback is the trade and equity history window used for the behavioral
// metrics (win rate, profit factor, drawdown, Sharpe).
const lookback = 30 * 24 * time.Hour

// Calculator derives a point-in-time risk snapshot for an account from its
// persisted positions, trades and equity curve.
type Calculator struct {
	storage storage.Store
	logger  *logrus.Entry
}

func NewCalculator(st storage.Store) *Calculator {
	return &Calculator{
		storage: st,
		logger:  logrus.WithField("component", "metrics"),
	}
}

// Compute builds fresh metrics for the account. It only reads persisted
// state, so computing twice without intervening writes yields equal results.
func (c *Calculator) Compute(ctx context.Context, accountID string) (*types.RiskMetrics, error) {
	account, err := c.storage.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	positions, err := c.storage.OpenPositions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	totalExposure := decimal.Zero
	for _, p := range positions {
		totalExposure = totalExposure.Add(p.Notional())
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	recentTrades, err := c.storage.TradesSince(ctx, accountID, now.Add(-lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	completed := recentTrades[:0:0]
	for _, t := range recentTrades {
		if t.Status == types.TradeStatusCompleted {
			completed = append(completed, t)
		}
	}

	dailyPnL := decimal.Zero
	var lastTradeAt *time.Time
	for _, t := range completed {
		if !t.CreatedAt.Before(midnight) {
			dailyPnL = dailyPnL.Add(t.PnL)
		}
		if lastTradeAt == nil || t.CreatedAt.After(*lastTradeAt) {
			ts := t.CreatedAt
			lastTradeAt = &ts
		}
	}

	equity, err := c.storage.EquityHistory(ctx, accountID, now.Add(-lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load equity history: %w", err)
	}

	maxDD, currentDD := drawdowns(equity)

	currentEquity := account.Balance
	if len(equity) > 0 {
		currentEquity = equity[len(equity)-1].Equity
	}

	leverage := 0.0
	if currentEquity.IsPositive() {
		leverage = totalExposure.Div(currentEquity).InexactFloat64()
	}

	m := &types.RiskMetrics{
		AccountID:       accountID,
		TotalExposure:   totalExposure,
		DailyPnL:        dailyPnL,
		MaxDrawdown:     maxDD,
		CurrentDrawdown: currentDD,
		SharpeRatio:     sharpeRatio(equity),
		WinRate:         winRate(completed),
		ProfitFactor:    profitFactor(completed),
		CorrelationRisk: 0,
		LeverageUsage:   leverage,
		OpenPositions:   len(positions),
		LastTradeAt:     lastTradeAt,
		UpdatedAt:       now,
	}
	m.RiskScore = compositeScore(m)
	return m, nil
}

// winRate is the share of completed trades with positive PnL, or 0 when
// there are no trades.
func winRate(trades []types.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL.IsPositive() {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// profitFactor is gross profit over gross loss, or 0 when there are no
// losing trades.
func profitFactor(trades []types.Trade) float64 {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, t := range trades {
		if t.PnL.IsPositive() {
			grossProfit = grossProfit.Add(t.PnL)
		} else {
			grossLoss = grossLoss.Add(t.PnL.Abs())
		}
	}
	if !grossLoss.IsPositive() {
		return 0
	}
	return grossProfit.Div(grossLoss).InexactFloat64()
}

// drawdowns walks the equity curve and returns the maximum peak-to-trough
// decline and the decline from the running peak to the latest sample, both
// as fractions of the peak.
func drawdowns(equity []types.EquityPoint) (maxDD, currentDD float64) {
	if len(equity) == 0 {
		return 0, 0
	}

	peak := equity[0].Equity
	for _, point := range equity {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(point.Equity).Div(peak).InexactFloat64()
		if dd > maxDD {
			maxDD = dd
		}
		currentDD = dd
	}
	if currentDD < 0 {
		currentDD = 0
	}
	return maxDD, currentDD
}

// sharpeRatio annualizes the mean over stddev of daily equity returns. It
// collapses intraday samples to one closing value per day and needs at least
// two days of history.
func sharpeRatio(equity []types.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}

	byDay := make(map[string]decimal.Decimal)
	days := make([]string, 0)
	for _, point := range equity {
		day := point.Time.Format("2006-01-02")
		if _, seen := byDay[day]; !seen {
			days = append(days, day)
		}
		byDay[day] = point.Equity
	}
	if len(days) < 2 {
		return 0
	}
	sort.Strings(days)

	returns := make([]float64, 0, len(days)-1)
	for i := 1; i < len(days); i++ {
		prev := byDay[days[i-1]]
		if !prev.IsPositive() {
			continue
		}
		r := byDay[days[i]].Sub(prev).Div(prev).InexactFloat64()
		returns = append(returns, r)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(365)
}

// compositeScore maps the snapshot to a 0-100 score. Drawdown contributes
// its percentage, leverage beyond 1x contributes 20 points per turn, and a
// daily loss contributes one point per 100 lost.
func compositeScore(m *types.RiskMetrics) float64 {
	score := m.CurrentDrawdown * 100

	if m.LeverageUsage > 1 {
		score += (m.LeverageUsage - 1) * 20
	}
	if m.DailyPnL.IsNegative() {
		score += m.DailyPnL.Abs().InexactFloat64() / 100
	}

	return math.Min(100, score)
}
