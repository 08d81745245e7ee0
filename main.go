package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"userapi_tester/internal/config"
	"userapi_tester/internal/logging"
	"userapi_tester/internal/metrics"
	"userapi_tester/internal/probe"
	"userapi_tester/internal/recorder"
	"userapi_tester/internal/reporter"
	"userapi_tester/internal/runner"
)

const configPath = "config.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run exits cleanly however many BUG records the suite produced; only config
// and report persistence failures are errors.
func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := uuid.NewString()
	l, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		App:    "userapi-tester",
		RunID:  runID,
	})
	if err != nil {
		log.Printf("build logger: %v", err)
		l = zap.NewNop()
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	client := probe.New(cfg.BaseURL, l,
		probe.WithUserAgent(cfg.UserAgent),
		probe.WithMetrics(m),
	)
	rec := recorder.New(recorder.WithMetrics(m))
	r := runner.New(client, rec, l,
		runner.WithSlowThreshold(cfg.SlowThreshold),
		runner.WithMetrics(m),
	)

	l.Info("run started", zap.String("base_url", client.BaseURL()))
	startTime := time.Now()
	bundle := r.Run(ctx)
	duration := time.Since(startTime)

	rep := reporter.New(cfg.Report, runID)
	if err := rep.GenerateReport(bundle, duration); err != nil {
		l.Error("save reports", zap.Error(err))
		return fmt.Errorf("save reports: %w", err)
	}

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			l.Warn("metrics export", zap.Error(err))
		}
	}

	l.Info("run finished",
		zap.Int("records", len(bundle.All)),
		zap.Int("bugs", len(bundle.Bugs)),
		zap.Duration("duration", duration),
	)
	return nil
}
