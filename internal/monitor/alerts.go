package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/pkg/types"
)

// AlertNotifier receives every raised alert. Publish failures are logged,
// not propagated.
type AlertNotifier interface {
	PublishAlert(alert *types.RiskAlert) error
}

// AlertManager classifies, caches, persists and publishes risk alerts. The
// per-account cache is bounded; old entries fall off the front.
type AlertManager struct {
	storage  storage.Store
	notifier AlertNotifier
	logger   *logrus.Entry
	maxCache int

	mu    sync.RWMutex
	cache map[string][]*types.RiskAlert
}

func NewAlertManager(st storage.Store, notifier AlertNotifier, maxCache int) *AlertManager {
	if maxCache <= 0 {
		maxCache = 100
	}
	return &AlertManager{
		storage:  st,
		notifier: notifier,
		logger:   logrus.WithField("component", "alerts"),
		maxCache: maxCache,
		cache:    make(map[string][]*types.RiskAlert),
	}
}

// Raise creates an alert of the given type, caches and persists it, and
// notifies subscribers.
func (am *AlertManager) Raise(ctx context.Context, accountID, alertType string, data map[string]interface{}) *types.RiskAlert {
	alert := &types.RiskAlert{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Type:      alertType,
		Severity:  alertSeverity(alertType, data),
		Message:   alertMessage(alertType, data),
		Data:      data,
		Status:    types.AlertStatusActive,
		Timestamp: time.Now(),
	}

	am.mu.Lock()
	alerts := append(am.cache[accountID], alert)
	if len(alerts) > am.maxCache {
		alerts = alerts[len(alerts)-am.maxCache:]
	}
	am.cache[accountID] = alerts
	am.mu.Unlock()

	if err := am.storage.SaveAlert(ctx, *alert); err != nil {
		am.logger.WithError(err).WithField("account", accountID).Error("failed to persist alert")
	}
	if am.notifier != nil {
		if err := am.notifier.PublishAlert(alert); err != nil {
			am.logger.WithError(err).Warn("failed to publish alert")
		}
	}

	am.logger.WithFields(logrus.Fields{
		"account":  accountID,
		"type":     alertType,
		"severity": alert.Severity.String(),
	}).Warn(alert.Message)

	return alert
}

// Active returns the cached alerts for the account that are still active.
func (am *AlertManager) Active(accountID string) []*types.RiskAlert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	var out []*types.RiskAlert
	for _, a := range am.cache[accountID] {
		if a.Status == types.AlertStatusActive {
			out = append(out, a)
		}
	}
	return out
}

func alertSeverity(alertType string, data map[string]interface{}) types.Severity {
	switch alertType {
	case types.AlertHighRiskScore:
		if num(data, "risk_score") > 90 {
			return types.SeverityCritical
		}
		return types.SeverityHigh
	case types.AlertHighDrawdown:
		if num(data, "drawdown") > 0.3 {
			return types.SeverityCritical
		}
		return types.SeverityHigh
	case types.AlertDailyLossLimit:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

func alertMessage(alertType string, data map[string]interface{}) string {
	switch alertType {
	case types.AlertHighRiskScore:
		return fmt.Sprintf("risk score too high: %.1f", num(data, "risk_score"))
	case types.AlertHighDrawdown:
		return fmt.Sprintf("drawdown too large: %.2f%%", num(data, "drawdown")*100)
	case types.AlertDailyLossLimit:
		return fmt.Sprintf("daily loss limit breached: %.2f", num(data, "daily_pnl"))
	default:
		return "risk warning"
	}
}

func num(data map[string]interface{}, key string) float64 {
	if v, ok := data[key].(float64); ok {
		return v
	}
	return 0
}
