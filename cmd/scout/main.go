/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/carverauto/scout/pkg/config"
	"github.com/carverauto/scout/pkg/coord"
	"github.com/carverauto/scout/pkg/lifecycle"
	"github.com/carverauto/scout/pkg/logger"
	"github.com/carverauto/scout/pkg/models"
	"github.com/carverauto/scout/pkg/scout"
	"github.com/carverauto/scout/pkg/version"
)

const shutdownTimeout = 10 * time.Second

type flags struct {
	configPath     string
	natsURL        string
	root           string
	host           string
	connectTimeout time.Duration
	logLevel       string
	lockFile       string
	version        bool
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", os.Getenv("SCOUT_CONFIG"), "Path to JSON config file")
	flag.StringVar(&f.natsURL, "nats-url", "", "NATS server URL (overrides config)")
	flag.StringVar(&f.root, "root", "", "Path holding service configurations (overrides config)")
	flag.StringVar(&f.host, "host", "", "Host identifier used in published paths (overrides config)")
	flag.DurationVar(&f.connectTimeout, "connect-timeout", 0, "Time allowed to reach the coordination store")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flag.StringVar(&f.lockFile, "lock-file", "", "Exclusive lock file preventing a second instance")
	flag.BoolVar(&f.version, "version", false, "Print version and exit")
	flag.Parse()

	return f
}

// apply copies explicitly set flags over the loaded configuration.
func (f flags) apply(cfg *config.Config) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "nats-url":
			cfg.NATSURL = f.natsURL
		case "root":
			cfg.ConfigRoot = f.root
		case "host":
			cfg.HostID = f.host
		case "connect-timeout":
			cfg.ConnectTimeout = models.Duration(f.connectTimeout)
		case "log-level":
			cfg.Logging.Level = f.logLevel
		case "lock-file":
			cfg.LockFile = f.lockFile
		}
	})
}

func run() error {
	f := parseFlags()
	if f.version {
		fmt.Println("scout", version.GetFullVersion())

		return nil
	}

	ctx := context.Background()

	bootstrap := logger.NewWithWriter(os.Stderr, zerolog.InfoLevel)

	cfg, err := config.Load(ctx, f.configPath, bootstrap)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	f.apply(cfg)

	if cfg.HostID, err = config.ResolveHostID(ctx, cfg.HostID); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	baseLogger, err := lifecycle.CreateLogger(ctx, &cfg.Logging)
	if err != nil {
		return err
	}

	mainLogger := baseLogger.WithComponent("scout")

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := lifecycle.ShutdownLogger(shutdownCtx); err != nil {
			log.Printf("Failed to shut down logger: %v", err)
		}
	}()

	lock, err := lifecycle.AcquireInstanceLock(cfg.LockFile)
	if err != nil {
		return err
	}

	defer func() {
		if err := lock.Release(); err != nil {
			mainLogger.Warn().Err(err).Msg("Failed to release instance lock")
		}
	}()

	metrics, err := newMetrics(ctx, cfg, mainLogger)
	if err != nil {
		return err
	}

	tp, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName: cfg.Logging.OTel.ServiceName,
		OTel:        cfg.TracingOTel(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	runCtx, stop := lifecycle.SignalContext(ctx, mainLogger)
	defer stop()

	store, err := coord.Connect(runCtx, cfg.CoordConfig(), baseLogger.WithComponent("coord"))
	if err != nil {
		return fmt.Errorf("cannot reach coordination store at %s: %w", cfg.NATSURL, err)
	}

	defer func() {
		if err := store.Close(); err != nil {
			mainLogger.Warn().Err(err).Msg("Failed to close coordination store")
		}
	}()

	daemon, err := scout.NewDaemon(scout.Options{
		ConfigRoot:   cfg.ConfigRoot,
		Host:         cfg.HostID,
		Tick:         time.Duration(cfg.TickInterval),
		CheckTimeout: time.Duration(cfg.CheckTimeout),
		Metrics:      metrics,
		Tracer:       tp.Tracer("github.com/carverauto/scout"),
		OnReady:      func() { lifecycle.NotifyReady(mainLogger) },
	}, store, baseLogger)
	if err != nil {
		return err
	}

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("host", cfg.HostID).
		Str("nats_url", cfg.NATSURL).
		Str("root", cfg.ConfigRoot).
		Msg("Starting scout")

	go func() {
		<-runCtx.Done()
		lifecycle.NotifyStopping(mainLogger)
	}()

	if err := daemon.Run(runCtx); err != nil {
		return err
	}

	mainLogger.Info().Msg("Scout stopped")

	return nil
}

func newMetrics(ctx context.Context, cfg *config.Config, log logger.Logger) (*scout.Metrics, error) {
	var provider metric.MeterProvider = noop.NewMeterProvider()

	mp, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    cfg.Logging.OTel.ServiceName,
		OTel:           cfg.MetricsOTel(),
		ExportInterval: time.Duration(cfg.Metrics.ExportInterval),
	})

	switch {
	case errors.Is(err, logger.ErrOTelMetricsDisabled):
		log.Debug().Msg("OTel metrics export disabled")
	case err != nil:
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	default:
		provider = mp
	}

	return scout.NewMetrics(provider)
}
