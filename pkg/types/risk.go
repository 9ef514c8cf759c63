package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Severity is an ordered risk severity. Higher values are worse, so the
// maximum severity across a violation set is a plain reduction.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Weight returns the scalar used for the per-assessment violation score.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 10
	case SeverityHigh:
		return 5
	case SeverityMedium:
		return 3
	default:
		return 1
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity parses a severity name.
func ParseSeverity(name string) (Severity, error) {
	for sev, n := range severityNames {
		if n == name {
			return sev, nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", name)
}

// MaxSeverity returns the highest severity among violations, or SeverityLow
// for an empty set.
func MaxSeverity(violations []RiskViolation) Severity {
	level := SeverityLow
	for _, v := range violations {
		if v.Severity > level {
			level = v.Severity
		}
	}
	return level
}

// RuleType identifies a risk rule evaluator.
type RuleType string

const (
	RulePositionSize RuleType = "position_size"
	RuleDailyLoss    RuleType = "daily_loss"
	RuleDrawdown     RuleType = "drawdown"
	RuleLeverage     RuleType = "leverage"
	RuleCooldown     RuleType = "cooldown"
	RuleCorrelation  RuleType = "correlation"
)

// RuleParams holds the named settings of a rule. Values are numeric or
// boolean depending on the rule type.
type RuleParams map[string]interface{}

// Float returns a numeric parameter, or def when absent or not numeric.
func (p RuleParams) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Bool returns a boolean parameter, or def when absent.
func (p RuleParams) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// RiskRule is a configurable risk rule. Rules are never deleted, only
// disabled via the Enabled flag.
type RiskRule struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       RuleType   `json:"type"`
	Enabled    bool       `json:"enabled"`
	Parameters RuleParams `json:"parameters"`
	Priority   int        `json:"priority"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RiskRulePatch carries partial updates for a rule.
type RiskRulePatch struct {
	Name       *string    `json:"name,omitempty"`
	Enabled    *bool      `json:"enabled,omitempty"`
	Parameters RuleParams `json:"parameters,omitempty"`
	Priority   *int       `json:"priority,omitempty"`
}

// RiskViolation records a single rule breach found during an assessment.
type RiskViolation struct {
	RuleID         string   `json:"rule_id"`
	RuleName       string   `json:"rule_name"`
	Type           RuleType `json:"type"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	CurrentValue   float64  `json:"current_value"`
	LimitValue     float64  `json:"limit_value"`
	Recommendation string   `json:"recommendation"`
}

// RiskAssessment is the verdict of one trade risk assessment. It is never
// mutated after creation.
type RiskAssessment struct {
	ID                 string                     `json:"id"`
	AccountID          string                     `json:"account_id"`
	Passed             bool                       `json:"passed"`
	RiskLevel          Severity                   `json:"risk_level"`
	RiskScore          int                        `json:"risk_score"` // severity-weighted violation score
	Violations         []RiskViolation            `json:"violations"`
	Recommendations    []string                   `json:"recommendations"`
	AdjustedParameters map[string]decimal.Decimal `json:"adjusted_parameters,omitempty"`
	CreatedAt          time.Time                  `json:"created_at"`
}

// RiskMetrics is a point-in-time risk snapshot for an account. Monetary
// figures are decimals, ratios are floats.
type RiskMetrics struct {
	AccountID       string          `json:"account_id"`
	TotalExposure   decimal.Decimal `json:"total_exposure"`
	DailyPnL        decimal.Decimal `json:"daily_pnl"`
	MaxDrawdown     float64         `json:"max_drawdown"`
	CurrentDrawdown float64         `json:"current_drawdown"`
	SharpeRatio     float64         `json:"sharpe_ratio"`
	WinRate         float64         `json:"win_rate"`
	ProfitFactor    float64         `json:"profit_factor"`
	CorrelationRisk float64         `json:"correlation_risk"`
	LeverageUsage   float64         `json:"leverage_usage"`
	RiskScore       float64         `json:"risk_score"` // 0-100 composite
	OpenPositions   int             `json:"open_positions"`
	LastTradeAt     *time.Time      `json:"last_trade_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Alert types raised by the risk monitor.
const (
	AlertHighRiskScore  = "HIGH_RISK_SCORE"
	AlertHighDrawdown   = "HIGH_DRAWDOWN"
	AlertDailyLossLimit = "DAILY_LOSS_LIMIT"
)

// Alert status
const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// RiskAlert is raised when an account crosses a monitored threshold.
// Status transitions (acknowledge/resolve) happen outside the engine.
type RiskAlert struct {
	ID        string                 `json:"id"`
	AccountID string                 `json:"account_id"`
	Type      string                 `json:"type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
}

// OrderValidationResult is the verdict of the order validation pipeline.
// AdjustedOrder is only populated when Valid is true.
type OrderValidationResult struct {
	Valid         bool          `json:"valid"`
	Errors        []string      `json:"errors"`
	Warnings      []string      `json:"warnings"`
	AdjustedOrder *OrderRequest `json:"adjusted_order,omitempty"`
}

// AccountRiskStatus is the advisory view of an account's risk state, served
// from caches rather than recomputed.
type AccountRiskStatus struct {
	AccountID        string          `json:"account_id"`
	Metrics          *RiskMetrics    `json:"metrics,omitempty"`
	ActiveAlerts     []*RiskAlert    `json:"active_alerts"`
	RecentViolations []RiskViolation `json:"recent_violations"`
	RiskLevel        Severity        `json:"risk_level"`
}

// Report periods
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// Risk trends
const (
	TrendImproving     = "improving"
	TrendStable        = "stable"
	TrendDeteriorating = "deteriorating"
)

// ViolationCount is one entry of a report's top-violations ranking.
type ViolationCount struct {
	RuleName string `json:"rule_name"`
	Count    int    `json:"count"`
}

// RiskReport summarizes risk activity for an account over a period.
type RiskReport struct {
	AccountID         string           `json:"account_id"`
	Period            string           `json:"period"`
	StartDate         time.Time        `json:"start_date"`
	TotalAssessments  int              `json:"total_assessments"`
	FailedAssessments int              `json:"failed_assessments"`
	TotalAlerts       int              `json:"total_alerts"`
	CriticalAlerts    int              `json:"critical_alerts"`
	TotalTrades       int              `json:"total_trades"`
	RiskTrend         string           `json:"risk_trend"`
	TopViolations     []ViolationCount `json:"top_violations"`
}
