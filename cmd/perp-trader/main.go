package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/db"
	"github.com/quantaxe/perp-trader/internal/exchange"
	"github.com/quantaxe/perp-trader/internal/livetrading"
	"github.com/quantaxe/perp-trader/internal/logging"
	"github.com/quantaxe/perp-trader/internal/monitor"
	"github.com/quantaxe/perp-trader/internal/notifier"
	"github.com/quantaxe/perp-trader/internal/position"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "perp-trader",
		Short: "Perpetual swap trading system for OKX",
		Long:  `Runs a single-symbol strategy loop against OKX perpetual swaps, with a separate account-wide take-profit/stop-loss monitor process.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "trade",
		Short: "Run the strategy trading loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrade()
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "monitor",
		Short: "Run the TP/SL monitor and position reporter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime bundles the collaborators both subcommands share.
type runtime struct {
	cfg      *config.Config
	log      *logrus.Logger
	exchange exchange.Exchange
	storage  db.Storage
	notifier notifier.Notifier
	tracker  *position.Tracker
}

func bootstrap() (*runtime, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	log.Infof("Main | loaded config for %s %s strategy %s (test mode: %v)",
		cfg.Symbol, cfg.Timeframe, cfg.Strategy, cfg.TestMode)

	rt := &runtime{cfg: cfg, log: log}
	rt.exchange = exchange.NewOKXExchange(cfg.Exchange, log)

	if cfg.Journal.DSN != "" {
		storage, err := db.New(cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal database: %w", err)
		}
		rt.storage = storage
	} else {
		log.Warn("Main | no journal DSN configured, events will not be persisted")
	}

	rt.notifier = buildNotifier(cfg, log)

	history := position.NewHistoryStore(cfg.HistoryFile, log)
	rt.tracker = position.NewTracker(log, history, rt.exchange, trackerStorage(rt.storage))
	return rt, nil
}

// trackerStorage narrows the db handle to the tracker's interface, keeping
// the nil check honest: a nil *db.Default must become a nil interface.
func trackerStorage(s db.Storage) position.Storage {
	if s == nil {
		return nil
	}
	return s
}

func buildNotifier(cfg *config.Config, log *logrus.Logger) notifier.Notifier {
	var sinks []notifier.Notifier
	if cfg.Notifications.WeComWebhookURL != "" {
		sinks = append(sinks, notifier.NewWeComNotifier(
			cfg.Notifications.WeComWebhookURL, cfg.Notifications.Retries, cfg.Notifications.RetryDelay()))
	}
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		sinks = append(sinks, notifier.NewTelegramNotifier(
			cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID,
			cfg.Notifications.Retries, cfg.Notifications.RetryDelay()))
	}
	switch len(sinks) {
	case 0:
		log.Warn("Main | no notification channels configured")
		return nil
	case 1:
		return sinks[0]
	default:
		return notifier.NewMulti(log, sinks...)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func runTrade() error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeStorage(rt)

	ctx, cancel := signalContext()
	defer cancel()

	sizer := position.NewSizer(rt.cfg, rt.exchange, rt.log)
	executor := position.NewExecutor(rt.cfg, rt.exchange, sizer, rt.tracker,
		rt.notifier, trackerStorage(rt.storage), rt.cfg.Strategy, rt.log)

	engine, err := livetrading.New(ctx, rt.cfg, rt.exchange, rt.tracker, executor, rt.notifier, rt.log)
	if err != nil {
		return fmt.Errorf("failed to start trading engine: %w", err)
	}

	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	rt.log.Info("Main | trading loop stopped")
	return nil
}

func runMonitor() error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeStorage(rt)

	ctx, cancel := signalContext()
	defer cancel()

	m := monitor.New(rt.cfg, rt.exchange, rt.tracker, rt.notifier, trackerStorage(rt.storage), rt.log)
	if err := m.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	rt.log.Info("Main | monitor stopped")
	return nil
}

func closeStorage(rt *runtime) {
	if rt.storage == nil {
		return
	}
	if err := rt.storage.Close(); err != nil {
		rt.log.Warnf("Main | failed to close journal database: %v", err)
	}
}
