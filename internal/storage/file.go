package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/pkg/types"
)

// Record kinds stored as date-partitioned JSONL logs.
const (
	kindAssessment = "assessments"
	kindAlert      = "alerts"
	kindTrade      = "trades"
	kindEquity     = "equity"
)

// Current-state files rewritten on save.
const (
	fileRules     = "rules.json"
	fileAccounts  = "accounts.json"
	filePositions = "positions.json"
)

// FileStore persists engine data under a base directory. Append-only records
// (assessments, alerts, trades, equity samples) go to one JSONL file per day
// per kind; small current-state sets (rules, accounts, positions) live in
// JSON files rewritten on save.
type FileStore struct {
	mu       sync.RWMutex
	basePath string
	logger   *logrus.Entry

	rules     map[string]types.RiskRule
	accounts  map[string]types.Account
	positions map[string]types.Position
}

// NewFileStore opens (or creates) a file store at basePath and loads the
// current-state files into memory.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	for _, kind := range []string{kindAssessment, kindAlert, kindTrade, kindEquity} {
		if err := os.MkdirAll(filepath.Join(basePath, kind), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", kind, err)
		}
	}

	fs := &FileStore{
		basePath:  basePath,
		logger:    logrus.WithField("component", "file-store"),
		rules:     make(map[string]types.RiskRule),
		accounts:  make(map[string]types.Account),
		positions: make(map[string]types.Position),
	}

	if err := loadStateFile(filepath.Join(basePath, fileRules), &fs.rules); err != nil {
		return nil, err
	}
	if err := loadStateFile(filepath.Join(basePath, fileAccounts), &fs.accounts); err != nil {
		return nil, err
	}
	if err := loadStateFile(filepath.Join(basePath, filePositions), &fs.positions); err != nil {
		return nil, err
	}

	return fs, nil
}

func loadStateFile[T any](path string, out *map[string]T) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (fs *FileStore) writeStateFile(name string, state interface{}) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	path := filepath.Join(fs.basePath, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

func (fs *FileStore) appendRecord(kind string, ts time.Time, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", kind, err)
	}

	path := filepath.Join(fs.basePath, kind, ts.Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}

// readRecords streams every JSONL record of kind whose file date is not
// older than since, decoding each line into a fresh T and passing it to
// keep. Corrupt lines are skipped, not fatal.
func readRecords[T any](fs *FileStore, kind string, since time.Time, keep func(T) bool) ([]T, error) {
	dir := filepath.Join(fs.basePath, kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	cutoff := since.Format("2006-01-02")
	var out []T
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		if strings.TrimSuffix(name, ".jsonl") < cutoff {
			continue
		}

		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			fs.logger.WithError(err).Warnf("skipping unreadable file %s", name)
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			var record T
			if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
				fs.logger.WithError(err).Warnf("skipping corrupt line in %s", name)
				continue
			}
			if keep(record) {
				out = append(out, record)
			}
		}
		f.Close()
	}
	return out, nil
}

func (fs *FileStore) ListRules(ctx context.Context) ([]types.RiskRule, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	rules := make([]types.RiskRule, 0, len(fs.rules))
	for _, r := range fs.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	return rules, nil
}

func (fs *FileStore) SaveRule(ctx context.Context, rule types.RiskRule) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.rules[rule.ID] = rule
	return fs.writeStateFile(fileRules, fs.rules)
}

func (fs *FileStore) GetAccount(ctx context.Context, accountID string) (*types.Account, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	account, exists := fs.accounts[accountID]
	if !exists {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (fs *FileStore) ListActiveAccounts(ctx context.Context) ([]types.Account, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var accounts []types.Account
	for _, a := range fs.accounts {
		if a.Active {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (fs *FileStore) SaveAccount(ctx context.Context, account types.Account) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.accounts[account.ID] = account
	return fs.writeStateFile(fileAccounts, fs.accounts)
}

func (fs *FileStore) SaveAssessment(ctx context.Context, assessment types.RiskAssessment) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.appendRecord(kindAssessment, assessment.CreatedAt, assessment)
}

func (fs *FileStore) ListAssessments(ctx context.Context, accountID string, since time.Time) ([]types.RiskAssessment, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return readRecords(fs, kindAssessment, since, func(a types.RiskAssessment) bool {
		return a.AccountID == accountID && !a.CreatedAt.Before(since)
	})
}

func (fs *FileStore) SaveAlert(ctx context.Context, alert types.RiskAlert) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.appendRecord(kindAlert, alert.Timestamp, alert)
}

func (fs *FileStore) ListAlerts(ctx context.Context, accountID string, since time.Time) ([]types.RiskAlert, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return readRecords(fs, kindAlert, since, func(a types.RiskAlert) bool {
		return a.AccountID == accountID && !a.Timestamp.Before(since)
	})
}

func (fs *FileStore) SaveTrade(ctx context.Context, trade types.Trade) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.appendRecord(kindTrade, trade.CreatedAt, trade)
}

func (fs *FileStore) TradesSince(ctx context.Context, accountID string, since time.Time) ([]types.Trade, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	trades, err := readRecords(fs, kindTrade, since, func(t types.Trade) bool {
		return t.AccountID == accountID && !t.CreatedAt.Before(since)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].CreatedAt.Before(trades[j].CreatedAt) })
	return trades, nil
}

func (fs *FileStore) SavePosition(ctx context.Context, position types.Position) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.positions[position.ID] = position
	return fs.writeStateFile(filePositions, fs.positions)
}

func (fs *FileStore) OpenPositions(ctx context.Context, accountID string) ([]types.Position, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []types.Position
	for _, p := range fs.positions {
		if p.AccountID == accountID && p.Status == types.PositionStatusOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (fs *FileStore) SaveEquityPoint(ctx context.Context, point types.EquityPoint) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.appendRecord(kindEquity, point.Time, point)
}

func (fs *FileStore) EquityHistory(ctx context.Context, accountID string, since time.Time) ([]types.EquityPoint, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	points, err := readRecords(fs, kindEquity, since, func(p types.EquityPoint) bool {
		return p.AccountID == accountID && !p.Time.Before(since)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

// Cleanup removes JSONL files older than retentionDays. Called on a daily
// schedule by the server.
func (fs *FileStore) Cleanup(retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format("2006-01-02")

	for _, kind := range []string{kindAssessment, kindAlert, kindTrade, kindEquity} {
		dir := filepath.Join(fs.basePath, kind)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			if strings.TrimSuffix(name, ".jsonl") < cutoff {
				if err := os.Remove(filepath.Join(dir, name)); err != nil {
					fs.logger.WithError(err).Warnf("failed to remove %s", name)
				}
			}
		}
	}
}
