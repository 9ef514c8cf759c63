package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/internal/config"
	"github.com/tradegate/risk-engine/internal/metrics"
	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/pkg/cache"
	"github.com/tradegate/risk-engine/pkg/types"
)

// Monitoring thresholds.
const (
	riskScoreThreshold = 70.0
	drawdownThreshold  = 0.2
	dailyLossThreshold = -1000.0
)

// Maintainer is implemented by stores with scheduled housekeeping.
type Maintainer interface {
	Cleanup(retentionDays int)
}

// Monitor runs two periodic tasks: a full scan that rescores every active
// account, and a fast check for near-real-time conditions. Each task has
// its own cancellation so one can be stopped without the other.
type Monitor struct {
	storage    storage.Store
	calc       *metrics.Calculator
	alerts     *AlertManager
	cache      *cache.TTLCache
	cfg        config.MonitorConfig
	logger     *logrus.Entry
	maintainer Maintainer
	retention  int

	cron      *cron.Cron
	stopScan  context.CancelFunc
	stopFast  context.CancelFunc
	fastCheck func(ctx context.Context)
}

func NewMonitor(st storage.Store, calc *metrics.Calculator, alerts *AlertManager, cfg config.MonitorConfig) *Monitor {
	return &Monitor{
		storage: st,
		calc:    calc,
		alerts:  alerts,
		cache:   cache.NewTTLCache(),
		cfg:     cfg,
		logger:  logrus.WithField("component", "monitor"),
	}
}

// WithMaintenance schedules a daily cleanup of records older than
// retentionDays on the given maintainer.
func (m *Monitor) WithMaintenance(maintainer Maintainer, retentionDays int) *Monitor {
	m.maintainer = maintainer
	m.retention = retentionDays
	return m
}

// SetFastCheck installs the fast-cadence hook. By default the fast task
// ticks without doing work; market-shock detection plugs in here.
func (m *Monitor) SetFastCheck(fn func(ctx context.Context)) {
	m.fastCheck = fn
}

// Start launches both monitoring tasks and the maintenance schedule.
func (m *Monitor) Start(ctx context.Context) {
	scanCtx, cancelScan := context.WithCancel(ctx)
	fastCtx, cancelFast := context.WithCancel(ctx)
	m.stopScan = cancelScan
	m.stopFast = cancelFast

	go m.scanLoop(scanCtx)
	go m.fastLoop(fastCtx)

	if m.maintainer != nil {
		m.cron = cron.New()
		m.cron.AddFunc("0 3 * * *", func() {
			m.logger.Info("running storage cleanup")
			m.maintainer.Cleanup(m.retention)
		})
		m.cron.Start()
	}

	m.logger.WithFields(logrus.Fields{
		"scan_interval": m.cfg.ScanInterval,
		"fast_interval": m.cfg.FastInterval,
	}).Info("risk monitor started")
}

// Stop cancels both tasks and the maintenance schedule.
func (m *Monitor) Stop() {
	if m.stopScan != nil {
		m.stopScan()
	}
	if m.stopFast != nil {
		m.stopFast()
	}
	if m.cron != nil {
		m.cron.Stop()
	}
	m.cache.Stop()
}

func (m *Monitor) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ScanAll(ctx)
		}
	}
}

func (m *Monitor) fastLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.FastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.fastCheck != nil {
				m.fastCheck(ctx)
			}
		}
	}
}

// ScanAll rescores every active account. A failure for one account is
// logged and must not stop the scan of the rest.
func (m *Monitor) ScanAll(ctx context.Context) {
	accounts, err := m.storage.ListActiveAccounts(ctx)
	if err != nil {
		m.logger.WithError(err).Error("failed to list accounts")
		return
	}

	for _, account := range accounts {
		if err := m.scanAccount(ctx, account.ID); err != nil {
			m.logger.WithError(err).WithField("account", account.ID).Error("account scan failed")
		}
	}
}

func (m *Monitor) scanAccount(ctx context.Context, accountID string) error {
	snapshot, err := m.calc.Compute(ctx, accountID)
	if err != nil {
		return err
	}

	m.cache.Set(metricsKey(accountID), snapshot, 2*m.cfg.ScanInterval)

	if snapshot.RiskScore > riskScoreThreshold {
		m.alerts.Raise(ctx, accountID, types.AlertHighRiskScore, map[string]interface{}{
			"risk_score": snapshot.RiskScore,
		})
	}
	if snapshot.CurrentDrawdown > drawdownThreshold {
		m.alerts.Raise(ctx, accountID, types.AlertHighDrawdown, map[string]interface{}{
			"drawdown": snapshot.CurrentDrawdown,
		})
	}
	if snapshot.DailyPnL.InexactFloat64() < dailyLossThreshold {
		m.alerts.Raise(ctx, accountID, types.AlertDailyLossLimit, map[string]interface{}{
			"daily_pnl": snapshot.DailyPnL.InexactFloat64(),
		})
	}

	return nil
}

// CachedMetrics returns the last scan's snapshot for the account, if it is
// still fresh. Advisory only; assessments always recompute.
func (m *Monitor) CachedMetrics(accountID string) (*types.RiskMetrics, bool) {
	v, ok := m.cache.Get(metricsKey(accountID))
	if !ok {
		return nil, false
	}
	return v.(*types.RiskMetrics), true
}

// StoreMetrics refreshes the advisory cache, used after request-time
// recomputation so status reads see the newest snapshot.
func (m *Monitor) StoreMetrics(snapshot *types.RiskMetrics) {
	m.cache.Set(metricsKey(snapshot.AccountID), snapshot, 2*m.cfg.ScanInterval)
}

func metricsKey(accountID string) string {
	return "metrics:" + accountID
}
