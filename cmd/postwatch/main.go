// Package main wires together the postwatch crawl binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fieldworks/postwatch/internal/agent"
	"github.com/fieldworks/postwatch/internal/api"
	"github.com/fieldworks/postwatch/internal/checkpoint"
	"github.com/fieldworks/postwatch/internal/config"
	"github.com/fieldworks/postwatch/internal/confirm"
	"github.com/fieldworks/postwatch/internal/crawl"
	"github.com/fieldworks/postwatch/internal/credentials"
	"github.com/fieldworks/postwatch/internal/logging"
	"github.com/fieldworks/postwatch/internal/progress"
	"github.com/fieldworks/postwatch/internal/progress/sinks"
	"github.com/fieldworks/postwatch/internal/runner"
	"github.com/fieldworks/postwatch/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	summarySink := sinks.NewSummarySink()
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		summarySink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	gate := confirm.NewGate(logger.Named("confirm"))
	go confirm.FeedLines(ctx, os.Stdin, gate)

	checkpoints, err := checkpoint.NewStore(cfg.Output.CheckpointDir)
	if err != nil {
		return err
	}
	creds := credentials.NewFileStore(cfg.Output.CredentialsFile)

	nav := crawl.NewNavigator(cfg.Extract.OffsetParam, nil)
	agents := agent.Factory(agent.Config{
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavTimeout(),
		StepTimeout:       time.Duration(cfg.Browser.StepTimeout) * time.Second,
		WindowWidth:       cfg.Browser.WindowWidth,
		WindowHeight:      cfg.Browser.WindowHeight,
	})
	accessors := agent.AccessorFactory(
		agent.DefaultSelectors(),
		nav,
		time.Duration(cfg.Extract.AccessorPollMs)*time.Millisecond,
	)

	var records *postgres.RecordStore
	if cfg.DB.Enabled {
		records, err = postgres.NewRecordStore(ctx, cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("connect record store: %w", err)
		}
		defer records.Close()
	}

	if cfg.Server.Enabled {
		apiServer := api.NewServer(summarySink, gate, registry, logger.Named("api"))
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server started", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
		}()
	}

	r := runner.New(runner.Deps{
		Config:      cfg,
		Logger:      logger,
		Hub:         hub,
		Gate:        gate,
		Checkpoints: checkpoints,
		Credentials: creds,
		Agents:      agents,
		Accessors:   accessors,
		Records:     records,
	})
	report, err := r.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("crawl complete",
		zap.String("run_id", report.RunID),
		zap.Int("records", report.Records),
	)
	return nil
}
