package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tradegate/risk-engine/pkg/types"
)

// ErrAccountNotFound is returned when an account id is unknown.
var ErrAccountNotFound = errors.New("account not found")

// ErrRuleNotFound is returned when a rule id is unknown.
var ErrRuleNotFound = errors.New("rule not found")

// Store is the persistence collaborator for the risk engine. Implementations
// must be safe for concurrent use; the monitor, the assessor and request-time
// validation all call into the same store.
type Store interface {
	// Rules
	ListRules(ctx context.Context) ([]types.RiskRule, error)
	SaveRule(ctx context.Context, rule types.RiskRule) error

	// Accounts
	GetAccount(ctx context.Context, accountID string) (*types.Account, error)
	ListActiveAccounts(ctx context.Context) ([]types.Account, error)
	SaveAccount(ctx context.Context, account types.Account) error

	// Assessments (append-only audit records)
	SaveAssessment(ctx context.Context, assessment types.RiskAssessment) error
	ListAssessments(ctx context.Context, accountID string, since time.Time) ([]types.RiskAssessment, error)

	// Alerts
	SaveAlert(ctx context.Context, alert types.RiskAlert) error
	ListAlerts(ctx context.Context, accountID string, since time.Time) ([]types.RiskAlert, error)

	// Trade and position history windows
	SaveTrade(ctx context.Context, trade types.Trade) error
	TradesSince(ctx context.Context, accountID string, since time.Time) ([]types.Trade, error)
	SavePosition(ctx context.Context, position types.Position) error
	OpenPositions(ctx context.Context, accountID string) ([]types.Position, error)

	// Equity curve samples used for drawdown and Sharpe computations
	SaveEquityPoint(ctx context.Context, point types.EquityPoint) error
	EquityHistory(ctx context.Context, accountID string, since time.Time) ([]types.EquityPoint, error)
}
