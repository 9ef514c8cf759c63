package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/pkg/types"
)

// Store manages the configurable risk rules. Rules are seeded once on an
// empty store and afterwards only changed through Update; they are never
// deleted, only disabled.
type Store struct {
	storage storage.Store
	logger  *logrus.Entry
}

// NewStore creates a rule store backed by the given storage and seeds the
// default rule set when no rules exist yet.
func NewStore(ctx context.Context, st storage.Store) (*Store, error) {
	s := &Store{
		storage: st,
		logger:  logrus.WithField("component", "rule-store"),
	}

	existing, err := st.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(existing) == 0 {
		if err := s.seedDefaults(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) seedDefaults(ctx context.Context) error {
	now := time.Now()
	defaults := []types.RiskRule{
		{
			Name: "Max Position Size",
			Type: types.RulePositionSize,
			Parameters: types.RuleParams{
				"maxPositionSize":       10000.0,
				"maxPositionPercentage": 10.0,
				"maxSinglePosition":     5000.0,
			},
			Priority: 10,
		},
		{
			Name: "Daily Loss Limit",
			Type: types.RuleDailyLoss,
			Parameters: types.RuleParams{
				"maxDailyLoss":           1000.0,
				"maxDailyLossPercentage": 5.0,
				"stopTradingOnLoss":      true,
			},
			Priority: 9,
		},
		{
			Name: "Max Drawdown",
			Type: types.RuleDrawdown,
			Parameters: types.RuleParams{
				"maxDrawdown":         0.15,
				"criticalDrawdown":    0.25,
				"autoReducePositions": true,
			},
			Priority: 8,
		},
		{
			Name: "Leverage Limit",
			Type: types.RuleLeverage,
			Parameters: types.RuleParams{
				"maxLeverage":      3.0,
				"maxNotionalValue": 50000.0,
				"marginCallLevel":  0.8,
			},
			Priority: 7,
		},
		{
			Name: "Trade Cooldown",
			Type: types.RuleCooldown,
			Parameters: types.RuleParams{
				"cooldownPeriod":   300.0, // seconds
				"maxTradesPerHour": 20.0,
				"maxTradesPerDay":  100.0,
			},
			Priority: 6,
		},
		{
			Name: "Correlation Risk",
			Type: types.RuleCorrelation,
			Parameters: types.RuleParams{
				"maxCorrelation":          0.8,
				"maxConcurrentPositions":  5.0,
				"diversificationRequired": true,
			},
			Priority: 5,
		},
	}

	for _, rule := range defaults {
		rule.ID = uuid.New().String()
		rule.Enabled = true
		rule.CreatedAt = now
		rule.UpdatedAt = now
		if err := s.storage.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", rule.Name, err)
		}
	}

	s.logger.WithField("count", len(defaults)).Info("seeded default risk rules")
	return nil
}

// List returns all rules ordered by priority, highest first.
func (s *Store) List(ctx context.Context) ([]types.RiskRule, error) {
	return s.storage.ListRules(ctx)
}

// Enabled returns the enabled rules ordered by priority, highest first.
func (s *Store) Enabled(ctx context.Context) ([]types.RiskRule, error) {
	all, err := s.storage.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]types.RiskRule, 0, len(all))
	for _, r := range all {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}

// Get returns one rule by ID.
func (s *Store) Get(ctx context.Context, ruleID string) (*types.RiskRule, error) {
	all, err := s.storage.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.ID == ruleID {
			return &r, nil
		}
	}
	return nil, storage.ErrRuleNotFound
}

// Update applies a partial update to a rule and returns the new state.
// Parameters in the patch are merged key by key over the existing set.
func (s *Store) Update(ctx context.Context, ruleID string, patch types.RiskRulePatch) (*types.RiskRule, error) {
	rule, err := s.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Enabled != nil {
		rule.Enabled = *patch.Enabled
	}
	if patch.Priority != nil {
		rule.Priority = *patch.Priority
	}
	if len(patch.Parameters) > 0 {
		merged := make(types.RuleParams, len(rule.Parameters)+len(patch.Parameters))
		for k, v := range rule.Parameters {
			merged[k] = v
		}
		for k, v := range patch.Parameters {
			merged[k] = v
		}
		rule.Parameters = merged
	}
	rule.UpdatedAt = time.Now()

	if err := s.storage.SaveRule(ctx, *rule); err != nil {
		return nil, fmt.Errorf("failed to save rule %s: %w", ruleID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"rule":    rule.Name,
		"enabled": rule.Enabled,
	}).Info("risk rule updated")

	return rule, nil
}
