package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/risk-engine/internal/assess"
	"github.com/tradegate/risk-engine/internal/config"
	"github.com/tradegate/risk-engine/internal/exchange"
	"github.com/tradegate/risk-engine/internal/metrics"
	"github.com/tradegate/risk-engine/internal/monitor"
	"github.com/tradegate/risk-engine/internal/rules"
	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/internal/validate"
	"github.com/tradegate/risk-engine/pkg/types"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Memory) {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemory()
	require.NoError(t, store.SaveAccount(ctx, types.Account{
		ID:      "acc1",
		Active:  true,
		Balance: decimal.NewFromInt(10000),
	}))

	ruleStore, err := rules.NewStore(ctx, store)
	require.NoError(t, err)

	calc := metrics.NewCalculator(store)
	assessor := assess.NewAssessor(ruleStore, calc, store, nil)
	validator := validate.NewValidator(store, exchange.NewNoop(), assessor, config.ValidationConfig{
		MaxOrderAmount:      1_000_000,
		PriceDeviationWarn:  0.10,
		PriceDeviationError: 0.30,
		BalanceMarginBuffer: 0.10,
		LiquidityWarnRatio:  0.10,
		LiquidityErrorRatio: 0.30,
		TradingOpenHour:     9,
		TradingCloseHour:    16,
	})
	alerts := monitor.NewAlertManager(store, nil, 10)
	mon := monitor.NewMonitor(store, calc, alerts, config.MonitorConfig{
		ScanInterval:  time.Minute,
		FastInterval:  time.Second,
		MaxAlertCache: 10,
	})
	t.Cleanup(mon.Stop)

	return New(store, ruleStore, calc, assessor, validator, mon, alerts), store
}

func TestEngineAssessRecordsViolationHistory(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	// 6000 value breaches the 5000 single-trade limit.
	assessment := eng.Assess(ctx, "acc1", types.TradeRequest{
		Symbol: "BTC/USDT",
		Side:   types.OrderSideBuy,
		Amount: decimal.NewFromInt(2),
		Price:  decimal.NewFromInt(3000),
	})
	require.False(t, assessment.Passed)

	status := eng.GetAccountRiskStatus(ctx, "acc1")
	require.NotEmpty(t, status.RecentViolations)
	assert.Equal(t, types.RulePositionSize, status.RecentViolations[0].Type)
}

func TestEngineValidateOrderFeedsViolationHistory(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	// The validation pipeline runs the same risk assessment, so violations
	// it finds must show up in the account status too.
	result := eng.ValidateOrder(ctx, &types.OrderRequest{
		AccountID: "acc1",
		Symbol:    "BTC/USDT",
		Type:      types.OrderTypeLimit,
		Side:      types.OrderSideBuy,
		Amount:    decimal.NewFromInt(60),
		Price:     decimal.NewFromInt(100),
	})
	require.False(t, result.Valid)

	status := eng.GetAccountRiskStatus(ctx, "acc1")
	require.NotEmpty(t, status.RecentViolations)

	found := false
	for _, v := range status.RecentViolations {
		if v.Type == types.RulePositionSize {
			found = true
		}
	}
	assert.True(t, found, "expected a position size violation in %v", status.RecentViolations)
}

func TestEngineStatusColdCacheComputes(t *testing.T) {
	eng, _ := newTestEngine(t)

	status := eng.GetAccountRiskStatus(context.Background(), "acc1")

	require.NotNil(t, status.Metrics)
	assert.Equal(t, "acc1", status.Metrics.AccountID)
	assert.Equal(t, types.SeverityLow, status.RiskLevel)
	assert.NotNil(t, status.ActiveAlerts)
}

func TestEngineStatusUnknownAccount(t *testing.T) {
	eng, _ := newTestEngine(t)

	status := eng.GetAccountRiskStatus(context.Background(), "ghost")

	assert.Nil(t, status.Metrics)
	assert.Equal(t, types.SeverityLow, status.RiskLevel)
}

func TestOverallRiskLevel(t *testing.T) {
	assert.Equal(t, types.SeverityLow, overallRiskLevel(nil))
	assert.Equal(t, types.SeverityLow, overallRiskLevel(&types.RiskMetrics{RiskScore: 40}))
	assert.Equal(t, types.SeverityMedium, overallRiskLevel(&types.RiskMetrics{RiskScore: 41}))
	assert.Equal(t, types.SeverityHigh, overallRiskLevel(&types.RiskMetrics{RiskScore: 61}))
	assert.Equal(t, types.SeverityCritical, overallRiskLevel(&types.RiskMetrics{RiskScore: 81}))
}

func TestEngineValidateOrderDelegation(t *testing.T) {
	eng, _ := newTestEngine(t)

	result := eng.ValidateOrder(context.Background(), &types.OrderRequest{
		AccountID: "acc1",
		Symbol:    "BTC/USDT",
		Type:      types.OrderTypeLimit,
		Side:      types.OrderSideBuy,
		Amount:    decimal.NewFromInt(1),
		Price:     decimal.NewFromInt(100),
	})

	// The noop exchange makes market data unavailable, which is an error
	// stage, but the pipeline still returns a structured verdict.
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestEngineRuleManagement(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	all, err := eng.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, all, 6)

	priority := 42
	updated, err := eng.UpdateRule(ctx, all[0].ID, types.RiskRulePatch{Priority: &priority})
	require.NoError(t, err)
	assert.Equal(t, 42, updated.Priority)

	_, err = eng.UpdateRule(ctx, "missing", types.RiskRulePatch{})
	assert.ErrorIs(t, err, storage.ErrRuleNotFound)
}

func TestEngineRiskReport(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Hour)
	for i := 0; i < 20; i++ {
		level := types.SeverityLow
		var violations []types.RiskViolation
		if i >= 10 {
			level = types.SeverityCritical
			violations = []types.RiskViolation{{
				RuleName: "Daily Loss Limit",
				Severity: types.SeverityCritical,
			}}
		}
		require.NoError(t, store.SaveAssessment(ctx, types.RiskAssessment{
			ID:         string(rune('a' + i)),
			AccountID:  "acc1",
			Passed:     i < 10,
			RiskLevel:  level,
			Violations: violations,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.SaveAlert(ctx, types.RiskAlert{
		ID: "al1", AccountID: "acc1", Type: types.AlertDailyLossLimit,
		Severity: types.SeverityCritical, Timestamp: time.Now(),
	}))
	require.NoError(t, store.SaveTrade(ctx, types.Trade{
		ID: "t1", AccountID: "acc1", Status: types.TradeStatusCompleted, CreatedAt: time.Now(),
	}))

	report, err := eng.GetRiskReport(ctx, "acc1", types.PeriodWeek)
	require.NoError(t, err)

	assert.Equal(t, 20, report.TotalAssessments)
	assert.Equal(t, 10, report.FailedAssessments)
	assert.Equal(t, 1, report.TotalAlerts)
	assert.Equal(t, 1, report.CriticalAlerts)
	assert.Equal(t, 1, report.TotalTrades)
	assert.Equal(t, types.TrendDeteriorating, report.RiskTrend)
	require.Len(t, report.TopViolations, 1)
	assert.Equal(t, "Daily Loss Limit", report.TopViolations[0].RuleName)
	assert.Equal(t, 10, report.TopViolations[0].Count)
}

func TestEngineRiskReportUnknownPeriod(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.GetRiskReport(context.Background(), "acc1", "quarter")
	assert.Error(t, err)
}

func TestEngineUpdateBalanceAppendsEquity(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.UpdateBalance(ctx, "acc1", decimal.NewFromInt(12000)))

	account, err := store.GetAccount(ctx, "acc1")
	require.NoError(t, err)
	assert.Equal(t, "12000", account.Balance.String())

	points, err := store.EquityHistory(ctx, "acc1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "12000", points[0].Equity.String())

	assert.ErrorIs(t, eng.UpdateBalance(ctx, "ghost", decimal.NewFromInt(1)), storage.ErrAccountNotFound)
}

func TestEngineRecordTrade(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.RecordTrade(ctx, types.Trade{
		ID:        "t1",
		AccountID: "acc1",
		PnL:       decimal.NewFromInt(10),
		Status:    types.TradeStatusCompleted,
	}))

	trades, err := store.TradesSince(ctx, "acc1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.False(t, trades[0].CreatedAt.IsZero())
}
