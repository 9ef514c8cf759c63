package assess

import (
	"fmt"
	"time"

	"github.com/tradegate/risk-engine/pkg/types"
)

// Evaluate runs the evaluator for the rule's type against one trade request
// and the account's current metrics. It returns nil when the rule passes and
// never touches storage; everything it needs is in its arguments.
func Evaluate(rule types.RiskRule, trade types.TradeRequest, m *types.RiskMetrics) *types.RiskViolation {
	switch rule.Type {
	case types.RulePositionSize:
		return evaluatePositionSize(rule, trade, m)
	case types.RuleDailyLoss:
		return evaluateDailyLoss(rule, m)
	case types.RuleDrawdown:
		return evaluateDrawdown(rule, m)
	case types.RuleLeverage:
		return evaluateLeverage(rule, m)
	case types.RuleCooldown:
		return evaluateCooldown(rule, m)
	case types.RuleCorrelation:
		return evaluateCorrelation(rule, m)
	default:
		return nil
	}
}

func evaluatePositionSize(rule types.RiskRule, trade types.TradeRequest, m *types.RiskMetrics) *types.RiskViolation {
	tradeValue := trade.Value().InexactFloat64()
	maxPositionSize := rule.Parameters.Float("maxPositionSize", 0)
	maxSinglePosition := rule.Parameters.Float("maxSinglePosition", 0)

	if tradeValue > maxSinglePosition {
		return &types.RiskViolation{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Type:           rule.Type,
			Severity:       types.SeverityHigh,
			Message:        fmt.Sprintf("trade value %.2f exceeds single trade limit %.2f", tradeValue, maxSinglePosition),
			CurrentValue:   tradeValue,
			LimitValue:     maxSinglePosition,
			Recommendation: fmt.Sprintf("reduce trade value below %.2f", maxSinglePosition),
		}
	}

	projected := m.TotalExposure.InexactFloat64() + tradeValue
	if projected > maxPositionSize {
		return &types.RiskViolation{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Type:           rule.Type,
			Severity:       types.SeverityMedium,
			Message:        fmt.Sprintf("total exposure would reach %.2f, above position limit %.2f", projected, maxPositionSize),
			CurrentValue:   projected,
			LimitValue:     maxPositionSize,
			Recommendation: "reduce the trade size or close existing positions",
		}
	}
	return nil
}

func evaluateDailyLoss(rule types.RiskRule, m *types.RiskMetrics) *types.RiskViolation {
	maxDailyLoss := rule.Parameters.Float("maxDailyLoss", 0)

	currentLoss := 0.0
	if m.DailyPnL.IsNegative() {
		currentLoss = m.DailyPnL.Abs().InexactFloat64()
	}

	// Closed interval: hitting the limit exactly already violates.
	if currentLoss >= maxDailyLoss {
		return &types.RiskViolation{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Type:           rule.Type,
			Severity:       types.SeverityCritical,
			Message:        fmt.Sprintf("daily loss %.2f has reached the limit %.2f", currentLoss, maxDailyLoss),
			CurrentValue:   currentLoss,
			LimitValue:     maxDailyLoss,
			Recommendation: "stop trading for today and wait for the daily reset",
		}
	}
	return nil
}

func evaluateDrawdown(rule types.RiskRule, m *types.RiskMetrics) *types.RiskViolation {
	maxDrawdown := rule.Parameters.Float("maxDrawdown", 0)
	criticalDrawdown := rule.Parameters.Float("criticalDrawdown", 0)

	if m.CurrentDrawdown >= criticalDrawdown {
		return &types.RiskViolation{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Type:           rule.Type,
			Severity:       types.SeverityCritical,
			Message:        fmt.Sprintf("current drawdown %.2f%% has reached the critical level %.2f%%", m.CurrentDrawdown*100, criticalDrawdown*100),
			CurrentValue:   m.CurrentDrawdown,
			LimitValue:     criticalDrawdown,
			Recommendation: "close all positions and stop trading",
		}
	}
	if m.CurrentDrawdown >= maxDrawdown {
		return &types.RiskViolation{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Type:           rule.Type,
			Severity:       types.SeverityHigh,
			Message:        fmt.Sprintf("current drawdown %.2f%% exceeds the maximum %.2f%%", m.CurrentDrawdown*100, maxDrawdown*100),
			CurrentValue:   m.CurrentDrawdown,
			LimitValue:     maxDrawdown,
			Recommendation: "reduce positions or pause trading until the drawdown recovers",
		}
	}
	return nil
}

func evaluateLeverage(rule types.RiskRule, m *types.RiskMetrics) *types.RiskViolation {
	maxLeverage := rule.Parameters.Float("maxLeverage", 0)

	if m.LeverageUsage > maxLeverage {
		return &types.RiskViolation{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Type:           rule.Type,
			Severity:       types.SeverityHigh,
			Message:        fmt.Sprintf("leverage usage %.2fx exceeds the maximum %.2fx", m.LeverageUsage, maxLeverage),
			CurrentValue:   m.LeverageUsage,
			LimitValue:     maxLeverage,
			Recommendation: "reduce leverage by closing part of the open positions",
		}
	}
	return nil
}

func evaluateCooldown(rule types.RiskRule, m *types.RiskMetrics) *types.RiskViolation {
	// Fail open when the last trade timestamp is missing rather than block
	// the account on incomplete data.
	if m.LastTradeAt == nil {
		return nil
	}

	cooldownPeriod := rule.Parameters.Float("cooldownPeriod", 0)
	elapsed := time.Since(*m.LastTradeAt).Seconds()

	if elapsed < cooldownPeriod {
		return &types.RiskViolation{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Type:           rule.Type,
			Severity:       types.SeverityLow,
			Message:        fmt.Sprintf("only %.0fs since the last trade, cooldown is %.0fs", elapsed, cooldownPeriod),
			CurrentValue:   elapsed,
			LimitValue:     cooldownPeriod,
			Recommendation: fmt.Sprintf("wait %.0fs before trading again", cooldownPeriod-elapsed),
		}
	}
	return nil
}

func evaluateCorrelation(rule types.RiskRule, m *types.RiskMetrics) *types.RiskViolation {
	maxConcurrent := rule.Parameters.Float("maxConcurrentPositions", 0)

	if float64(m.OpenPositions) >= maxConcurrent {
		return &types.RiskViolation{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Type:           rule.Type,
			Severity:       types.SeverityMedium,
			Message:        fmt.Sprintf("open position count %d has reached the concurrent limit %.0f", m.OpenPositions, maxConcurrent),
			CurrentValue:   float64(m.OpenPositions),
			LimitValue:     maxConcurrent,
			Recommendation: "diversify and avoid concentrating in correlated assets",
		}
	}
	return nil
}
