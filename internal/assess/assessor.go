package assess

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/internal/metrics"
	"github.com/tradegate/risk-engine/internal/rules"
	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/pkg/types"
)

// Notifier receives every finished assessment. Implementations must not
// block for long; publish failures are logged, not propagated.
type Notifier interface {
	PublishAssessment(accountID string, assessment *types.RiskAssessment) error
}

const maxViolationHistory = 100

// Assessor runs every enabled rule against a trade request and aggregates
// the outcome into one verdict. Callers always get a structured assessment;
// internal failures surface as a synthetic critical verdict instead of an
// error. Every assessment, whichever path triggered it, feeds the
// per-account violation history.
type Assessor struct {
	rules    *rules.Store
	metrics  *metrics.Calculator
	storage  storage.Store
	notifier Notifier
	logger   *logrus.Entry

	mu         sync.Mutex
	violations map[string][]types.RiskViolation
}

func NewAssessor(ruleStore *rules.Store, calc *metrics.Calculator, st storage.Store, notifier Notifier) *Assessor {
	return &Assessor{
		rules:      ruleStore,
		metrics:    calc,
		storage:    st,
		notifier:   notifier,
		logger:     logrus.WithField("component", "assessor"),
		violations: make(map[string][]types.RiskViolation),
	}
}

// Assess evaluates the trade request against all enabled rules. All rules
// are evaluated; priority affects presentation order only, never
// short-circuiting.
func (a *Assessor) Assess(ctx context.Context, accountID string, trade types.TradeRequest) *types.RiskAssessment {
	m, err := a.metrics.Compute(ctx, accountID)
	if err != nil {
		a.logger.WithError(err).WithField("account", accountID).Error("metrics computation failed")
		return a.recordViolations(a.systemErrorAssessment(accountID))
	}

	enabled, err := a.rules.Enabled(ctx)
	if err != nil {
		a.logger.WithError(err).WithField("account", accountID).Error("rule listing failed")
		return a.recordViolations(a.systemErrorAssessment(accountID))
	}

	var violations []types.RiskViolation
	var recommendations []string
	for _, rule := range enabled {
		if v := Evaluate(rule, trade, m); v != nil {
			violations = append(violations, *v)
			recommendations = append(recommendations, v.Recommendation)
		}
	}

	assessment := &types.RiskAssessment{
		ID:                 uuid.New().String(),
		AccountID:          accountID,
		Passed:             len(violations) == 0,
		RiskLevel:          types.MaxSeverity(violations),
		RiskScore:          weightedScore(violations),
		Violations:         violations,
		Recommendations:    recommendations,
		AdjustedParameters: adjustedParameters(trade, violations),
		CreatedAt:          time.Now(),
	}

	a.recordViolations(assessment)
	a.record(ctx, assessment)

	if a.notifier != nil {
		if err := a.notifier.PublishAssessment(accountID, assessment); err != nil {
			a.logger.WithError(err).Warn("failed to publish assessment")
		}
	}

	return assessment
}

// recordViolations appends the assessment's violations to the bounded
// per-account history and returns the assessment unchanged.
func (a *Assessor) recordViolations(assessment *types.RiskAssessment) *types.RiskAssessment {
	if len(assessment.Violations) == 0 {
		return assessment
	}

	a.mu.Lock()
	history := append(a.violations[assessment.AccountID], assessment.Violations...)
	if len(history) > maxViolationHistory {
		history = history[len(history)-maxViolationHistory:]
	}
	a.violations[assessment.AccountID] = history
	a.mu.Unlock()

	return assessment
}

// RecentViolations returns up to n of the account's most recent violations,
// oldest first. Never nil.
func (a *Assessor) RecentViolations(accountID string, n int) []types.RiskViolation {
	a.mu.Lock()
	defer a.mu.Unlock()

	history := a.violations[accountID]
	if len(history) > n {
		history = history[len(history)-n:]
	}
	recent := make([]types.RiskViolation, 0, len(history))
	return append(recent, history...)
}

// weightedScore sums the severity weights of the violations. This scalar is
// for presentation and is distinct from RiskMetrics.RiskScore.
func weightedScore(violations []types.RiskViolation) int {
	score := 0
	for _, v := range violations {
		score += v.Severity.Weight()
	}
	return score
}

// adjustedParameters suggests at most one adjustment per violated rule.
// Position-size violations scale the amount down to fit the limit.
func adjustedParameters(trade types.TradeRequest, violations []types.RiskViolation) map[string]decimal.Decimal {
	adjusted := make(map[string]decimal.Decimal)
	for _, v := range violations {
		if v.Type != types.RulePositionSize {
			continue
		}
		if _, done := adjusted["amount"]; done {
			continue
		}
		if v.CurrentValue <= v.LimitValue || v.CurrentValue <= 0 {
			continue
		}
		ratio := decimal.NewFromFloat(v.LimitValue / v.CurrentValue)
		adjusted["amount"] = trade.Amount.Mul(ratio)
	}
	if len(adjusted) == 0 {
		return nil
	}
	return adjusted
}

// record persists the assessment for audit. Violations whose rule ID no
// longer resolves are re-pointed at a singleton fallback rule so the audit
// trail stays referentially intact; the caller still sees the original.
func (a *Assessor) record(ctx context.Context, assessment *types.RiskAssessment) {
	persisted := *assessment
	persisted.Violations = make([]types.RiskViolation, 0, len(assessment.Violations))

	for _, v := range assessment.Violations {
		if v.RuleID != "" {
			if _, err := a.rules.Get(ctx, v.RuleID); err == nil {
				persisted.Violations = append(persisted.Violations, v)
				continue
			}
		}
		fallbackID, err := a.fallbackRuleID(ctx)
		if err != nil {
			a.logger.WithError(err).Warn("dropping violation with unresolvable rule reference")
			continue
		}
		v.RuleID = fallbackID
		persisted.Violations = append(persisted.Violations, v)
	}

	if err := a.storage.SaveAssessment(ctx, persisted); err != nil {
		a.logger.WithError(err).WithField("account", assessment.AccountID).Error("failed to persist assessment")
	}
}

const fallbackRuleName = "default"

// fallbackRuleID returns the singleton disabled rule used as the audit
// reference for violations whose own rule disappeared, creating it on first
// use.
func (a *Assessor) fallbackRuleID(ctx context.Context) (string, error) {
	all, err := a.rules.List(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range all {
		if r.Name == fallbackRuleName {
			return r.ID, nil
		}
	}

	now := time.Now()
	fallback := types.RiskRule{
		ID:         uuid.New().String(),
		Name:       fallbackRuleName,
		Type:       "",
		Enabled:    false,
		Parameters: types.RuleParams{},
		Priority:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.storage.SaveRule(ctx, fallback); err != nil {
		return "", err
	}
	return fallback.ID, nil
}

// systemErrorAssessment is the structured verdict returned when the
// assessment itself cannot be built.
func (a *Assessor) systemErrorAssessment(accountID string) *types.RiskAssessment {
	return &types.RiskAssessment{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Passed:    false,
		RiskLevel: types.SeverityCritical,
		RiskScore: types.SeverityCritical.Weight(),
		Violations: []types.RiskViolation{{
			RuleID:         "system_error",
			RuleName:       "System Error",
			Type:           "system",
			Severity:       types.SeverityCritical,
			Message:        "risk assessment failed internally",
			Recommendation: "retry later or contact support",
		}},
		Recommendations: []string{"risk assessment failed, retry later"},
		CreatedAt:       time.Now(),
	}
}
