package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tradegate/risk-engine/internal/assess"
	"github.com/tradegate/risk-engine/internal/config"
	"github.com/tradegate/risk-engine/internal/engine"
	"github.com/tradegate/risk-engine/internal/exchange"
	"github.com/tradegate/risk-engine/internal/metrics"
	"github.com/tradegate/risk-engine/internal/monitor"
	"github.com/tradegate/risk-engine/internal/rules"
	"github.com/tradegate/risk-engine/internal/storage"
	"github.com/tradegate/risk-engine/internal/validate"
	"github.com/tradegate/risk-engine/pkg/nats"
	"github.com/tradegate/risk-engine/pkg/vault"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logger := logrus.WithField("component", "main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	store, err := storage.NewFileStore(cfg.Storage.BasePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open storage")
	}

	ex := buildExchange(cfg, logger)
	defer ex.Close()

	var notifier interface {
		assess.Notifier
		monitor.AlertNotifier
	}
	if cfg.NATS.URL != "" {
		n, err := nats.NewNotifier(cfg.NATS.URL, cfg.NATS.ClientID)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to nats")
		}
		defer n.Close()
		notifier = n
	} else {
		logger.Info("no nats url configured, notifications disabled")
		notifier = nats.Noop{}
	}

	ruleStore, err := rules.NewStore(ctx, store)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize rule store")
	}

	calc := metrics.NewCalculator(store)
	assessor := assess.NewAssessor(ruleStore, calc, store, notifier)
	validator := validate.NewValidator(store, ex, assessor, cfg.Validation)
	alerts := monitor.NewAlertManager(store, notifier, cfg.Monitor.MaxAlertCache)
	mon := monitor.NewMonitor(store, calc, alerts, cfg.Monitor).
		WithMaintenance(store, cfg.Storage.RetentionDays)

	riskEngine := engine.New(store, ruleStore, calc, assessor, validator, mon, alerts)

	mon.Start(ctx)
	defer mon.Stop()

	// Prime the metrics cache so status reads are warm from the start.
	mon.ScanAll(ctx)

	ruleCount := 0
	if all, err := riskEngine.ListRules(ctx); err == nil {
		ruleCount = len(all)
	}
	logger.WithFields(logrus.Fields{
		"rules":    ruleCount,
		"exchange": ex.Name(),
		"storage":  cfg.Storage.BasePath,
	}).Info("risk engine ready")

	<-ctx.Done()
	logger.Info("risk engine stopped")
}

// buildExchange picks the venue connector. Credentials come from Vault when
// configured, then from the environment, otherwise the connector is
// disabled and validation degrades to persisted data.
func buildExchange(cfg *config.Config, logger *logrus.Entry) exchange.Exchange {
	creds := vault.FromEnv()

	if cfg.Vault.Address != "" {
		client, err := vault.NewClient(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.WithError(err).Warn("vault unavailable, falling back to environment credentials")
		} else if c, err := client.Credentials(cfg.Vault.KeyPath); err != nil {
			logger.WithError(err).Warn("vault credential lookup failed, falling back to environment credentials")
		} else {
			creds = c
		}
	}

	if creds == nil {
		logger.Warn("no exchange credentials configured, market data disabled")
		return exchange.NewNoop()
	}
	return exchange.NewBinance(creds.APIKey, creds.APISecret, cfg.Exchange.TestNet, cfg.Exchange.FetchTimeout)
}
