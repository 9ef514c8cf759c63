package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/pkg/types"
)

// Subject layout for engine events.
const (
	subjectAssessment = "risk.assessment.%s"
	subjectAlert      = "risk.alert.%s"
)

// Notifier publishes engine events to NATS for downstream subscribers
// (UI, trading engine). Publishing is fire-and-forget.
type Notifier struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewNotifier connects to the NATS server.
func NewNotifier(url, clientID string) (*Notifier, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	logger := logrus.WithField("component", "nats")
	logger.WithField("url", url).Info("connected to nats")

	return &Notifier{conn: conn, logger: logger}, nil
}

// PublishAssessment publishes a finished risk assessment.
func (n *Notifier) PublishAssessment(accountID string, assessment *types.RiskAssessment) error {
	return n.publish(fmt.Sprintf(subjectAssessment, accountID), assessment)
}

// PublishAlert publishes a raised risk alert.
func (n *Notifier) PublishAlert(alert *types.RiskAlert) error {
	return n.publish(fmt.Sprintf(subjectAlert, alert.AccountID), alert)
}

func (n *Notifier) publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (n *Notifier) Close() {
	if err := n.conn.Drain(); err != nil {
		n.logger.WithError(err).Warn("failed to drain nats connection")
	}
}

// Noop is a Notifier stand-in used when no NATS URL is configured.
type Noop struct{}

func (Noop) PublishAssessment(string, *types.RiskAssessment) error { return nil }
func (Noop) PublishAlert(*types.RiskAlert) error                   { return nil }
