package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tradegate/risk-engine/pkg/types"
)

// Memory is an in-process Store used by tests and by embedders that supply
// their own durability.
type Memory struct {
	mu          sync.RWMutex
	rules       map[string]types.RiskRule
	accounts    map[string]types.Account
	assessments map[string][]types.RiskAssessment
	alerts      map[string][]types.RiskAlert
	trades      map[string][]types.Trade
	positions   map[string][]types.Position
	equity      map[string][]types.EquityPoint
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rules:       make(map[string]types.RiskRule),
		accounts:    make(map[string]types.Account),
		assessments: make(map[string][]types.RiskAssessment),
		alerts:      make(map[string][]types.RiskAlert),
		trades:      make(map[string][]types.Trade),
		positions:   make(map[string][]types.Position),
		equity:      make(map[string][]types.EquityPoint),
	}
}

func (m *Memory) ListRules(ctx context.Context) ([]types.RiskRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]types.RiskRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	return rules, nil
}

func (m *Memory) SaveRule(ctx context.Context, rule types.RiskRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

func (m *Memory) GetAccount(ctx context.Context, accountID string) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, exists := m.accounts[accountID]
	if !exists {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (m *Memory) ListActiveAccounts(ctx context.Context) ([]types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var accounts []types.Account
	for _, a := range m.accounts {
		if a.Active {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (m *Memory) SaveAccount(ctx context.Context, account types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}

func (m *Memory) SaveAssessment(ctx context.Context, assessment types.RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[assessment.AccountID] = append(m.assessments[assessment.AccountID], assessment)
	return nil
}

func (m *Memory) ListAssessments(ctx context.Context, accountID string, since time.Time) ([]types.RiskAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.RiskAssessment
	for _, a := range m.assessments[accountID] {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) SaveAlert(ctx context.Context, alert types.RiskAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.AccountID] = append(m.alerts[alert.AccountID], alert)
	return nil
}

func (m *Memory) ListAlerts(ctx context.Context, accountID string, since time.Time) ([]types.RiskAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.RiskAlert
	for _, a := range m.alerts[accountID] {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) SaveTrade(ctx context.Context, trade types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.AccountID] = append(m.trades[trade.AccountID], trade)
	return nil
}

func (m *Memory) TradesSince(ctx context.Context, accountID string, since time.Time) ([]types.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Trade
	for _, t := range m.trades[accountID] {
		if !t.CreatedAt.Before(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SavePosition(ctx context.Context, position types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions := m.positions[position.AccountID]
	for i, p := range positions {
		if p.ID == position.ID {
			positions[i] = position
			return nil
		}
	}
	m.positions[position.AccountID] = append(positions, position)
	return nil
}

func (m *Memory) OpenPositions(ctx context.Context, accountID string) ([]types.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Position
	for _, p := range m.positions[accountID] {
		if p.Status == types.PositionStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) SaveEquityPoint(ctx context.Context, point types.EquityPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity[point.AccountID] = append(m.equity[point.AccountID], point)
	return nil
}

func (m *Memory) EquityHistory(ctx context.Context, accountID string, since time.Time) ([]types.EquityPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.EquityPoint
	for _, p := range m.equity[accountID] {
		if !p.Time.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
