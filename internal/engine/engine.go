package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/internal/assess"
	"github.com/tradegate/risk-engine/internal/metrics"
	"github.com/tradegate/risk-engine/internal/monitor"
	"github.com/tradegate/risk-engine/internal/rules"
	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/internal/validate"
	"github.com/tradegate/risk-engine/pkg/types"
)

const (
	recentViolations  = 10
	topViolationCount = 5
)

// Engine is the public face of the risk engine. It delegates to the
// assessor, validator, rule store and monitor.
type Engine struct {
	storage   storage.Store
	rules     *rules.Store
	calc      *metrics.Calculator
	assessor  *assess.Assessor
	validator *validate.Validator
	monitor   *monitor.Monitor
	alerts    *monitor.AlertManager
	logger    *logrus.Entry
}

func New(st storage.Store, ruleStore *rules.Store, calc *metrics.Calculator, assessor *assess.Assessor, validator *validate.Validator, mon *monitor.Monitor, alerts *monitor.AlertManager) *Engine {
	return &Engine{
		storage:   st,
		rules:     ruleStore,
		calc:      calc,
		assessor:  assessor,
		validator: validator,
		monitor:   mon,
		alerts:    alerts,
		logger:    logrus.WithField("component", "engine"),
	}
}

// Assess evaluates a trade request against all enabled risk rules.
func (e *Engine) Assess(ctx context.Context, accountID string, trade types.TradeRequest) *types.RiskAssessment {
	return e.assessor.Assess(ctx, accountID, trade)
}

// ValidateOrder runs the full pre-trade validation pipeline.
func (e *Engine) ValidateOrder(ctx context.Context, order *types.OrderRequest) *types.OrderValidationResult {
	return e.validator.ValidateOrder(ctx, order)
}

// ListRules returns all risk rules, highest priority first.
func (e *Engine) ListRules(ctx context.Context) ([]types.RiskRule, error) {
	return e.rules.List(ctx)
}

// UpdateRule applies a partial update to a rule.
func (e *Engine) UpdateRule(ctx context.Context, ruleID string, patch types.RiskRulePatch) (*types.RiskRule, error) {
	return e.rules.Update(ctx, ruleID, patch)
}

// GetAccountRiskStatus returns the advisory risk view of an account. It is
// served from the monitor's cache where possible, falling back to a fresh
// computation on a cold cache.
func (e *Engine) GetAccountRiskStatus(ctx context.Context, accountID string) *types.AccountRiskStatus {
	snapshot, ok := e.monitor.CachedMetrics(accountID)
	if !ok {
		fresh, err := e.calc.Compute(ctx, accountID)
		if err != nil {
			e.logger.WithError(err).WithField("account", accountID).Warn("metrics unavailable for status")
		} else {
			snapshot = fresh
			e.monitor.StoreMetrics(fresh)
		}
	}

	status := &types.AccountRiskStatus{
		AccountID:        accountID,
		Metrics:          snapshot,
		ActiveAlerts:     e.alerts.Active(accountID),
		RecentViolations: e.assessor.RecentViolations(accountID, recentViolations),
		RiskLevel:        overallRiskLevel(snapshot),
	}
	if status.ActiveAlerts == nil {
		status.ActiveAlerts = []*types.RiskAlert{}
	}
	return status
}

// overallRiskLevel maps the composite metric score to a severity.
func overallRiskLevel(m *types.RiskMetrics) types.Severity {
	if m == nil {
		return types.SeverityLow
	}
	switch {
	case m.RiskScore > 80:
		return types.SeverityCritical
	case m.RiskScore > 60:
		return types.SeverityHigh
	case m.RiskScore > 40:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// GetRiskReport summarizes assessments, alerts and trades for a period.
func (e *Engine) GetRiskReport(ctx context.Context, accountID, period string) (*types.RiskReport, error) {
	startDate, err := periodStart(period)
	if err != nil {
		return nil, err
	}

	assessments, err := e.storage.ListAssessments(ctx, accountID, startDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessments: %w", err)
	}
	alerts, err := e.storage.ListAlerts(ctx, accountID, startDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	trades, err := e.storage.TradesSince(ctx, accountID, startDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	failed := 0
	for _, a := range assessments {
		if !a.Passed {
			failed++
		}
	}
	critical := 0
	for _, a := range alerts {
		if a.Severity == types.SeverityCritical {
			critical++
		}
	}

	return &types.RiskReport{
		AccountID:         accountID,
		Period:            period,
		StartDate:         startDate,
		TotalAssessments:  len(assessments),
		FailedAssessments: failed,
		TotalAlerts:       len(alerts),
		CriticalAlerts:    critical,
		TotalTrades:       len(trades),
		RiskTrend:         riskTrend(assessments),
		TopViolations:     topViolations(assessments),
	}, nil
}

func periodStart(period string) (time.Time, error) {
	now := time.Now()
	switch period {
	case types.PeriodDay:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	case types.PeriodWeek:
		return now.AddDate(0, 0, -7), nil
	case types.PeriodMonth:
		return now.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown report period %q", period)
	}
}

// riskTrend compares the mean risk level of the last ten assessments with
// the ten before them.
func riskTrend(assessments []types.RiskAssessment) string {
	if len(assessments) < 2 {
		return types.TrendStable
	}

	sort.Slice(assessments, func(i, j int) bool {
		return assessments[i].CreatedAt.Before(assessments[j].CreatedAt)
	})

	recentFrom := len(assessments) - recentViolations
	if recentFrom < 0 {
		recentFrom = 0
	}
	earlierFrom := recentFrom - recentViolations
	if earlierFrom < 0 {
		earlierFrom = 0
	}

	recent := assessments[recentFrom:]
	earlier := assessments[earlierFrom:recentFrom]
	if len(earlier) == 0 {
		return types.TrendStable
	}

	recentMean := meanLevel(recent)
	earlierMean := meanLevel(earlier)

	if recentMean < earlierMean*0.8 {
		return types.TrendImproving
	}
	if recentMean > earlierMean*1.2 {
		return types.TrendDeteriorating
	}
	return types.TrendStable
}

func meanLevel(assessments []types.RiskAssessment) float64 {
	if len(assessments) == 0 {
		return 0
	}
	sum := 0
	for _, a := range assessments {
		sum += int(a.RiskLevel) + 1
	}
	return float64(sum) / float64(len(assessments))
}

// topViolations ranks rule names by how often they were violated.
func topViolations(assessments []types.RiskAssessment) []types.ViolationCount {
	counts := make(map[string]int)
	for _, a := range assessments {
		for _, v := range a.Violations {
			counts[v.RuleName]++
		}
	}

	ranked := make([]types.ViolationCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, types.ViolationCount{RuleName: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].RuleName < ranked[j].RuleName
	})

	if len(ranked) > topViolationCount {
		ranked = ranked[:topViolationCount]
	}
	return ranked
}

// UpdateBalance stores a new account balance and appends a sample to the
// equity curve the drawdown and Sharpe computations read.
func (e *Engine) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	account, err := e.storage.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	now := time.Now()
	account.Balance = balance
	account.UpdatedAt = now
	if err := e.storage.SaveAccount(ctx, *account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	point := types.EquityPoint{AccountID: accountID, Equity: balance, Time: now}
	if err := e.storage.SaveEquityPoint(ctx, point); err != nil {
		return fmt.Errorf("failed to save equity point: %w", err)
	}
	return nil
}

// RecordTrade persists an executed trade so the daily P&L, win-rate and
// cooldown inputs stay current.
func (e *Engine) RecordTrade(ctx context.Context, trade types.Trade) error {
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	return e.storage.SaveTrade(ctx, trade)
}
