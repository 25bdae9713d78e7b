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

package scout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/scout/pkg/checker"
	"github.com/carverauto/scout/pkg/config"
	"github.com/carverauto/scout/pkg/coord"
	"github.com/carverauto/scout/pkg/logger"
)

var (
	errStoreRequired = errors.New("coordination store is required")
	errHostRequired  = errors.New("host identifier is required")
)

// Options configure a Daemon.
type Options struct {
	ConfigRoot   string
	Host         string
	Tick         time.Duration
	CheckTimeout time.Duration
	Runner       checker.Runner
	Metrics      *Metrics
	Tracer       trace.Tracer
	Watchers     *config.WatcherRegistry
	RetryInitial time.Duration
	RetryMax     time.Duration
	// OnReady is called once the initial reconcile has been attempted.
	OnReady func()
}

// Daemon watches the configuration collection and runs a monitor for every
// service found in it until its context is cancelled.
type Daemon struct {
	opts       Options
	store      coord.Store
	logger     logger.Logger
	publisher  *Publisher
	reconciler *Reconciler
	terminated atomic.Bool
}

func NewDaemon(opts Options, store coord.Store, log logger.Logger) (*Daemon, error) {
	if store == nil {
		return nil, errStoreRequired
	}

	if opts.Host == "" {
		return nil, errHostRequired
	}

	root, err := coord.CleanPath(opts.ConfigRoot)
	if err != nil {
		return nil, fmt.Errorf("config root: %w", err)
	}

	opts.ConfigRoot = root

	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}

	if opts.Watchers == nil {
		opts.Watchers = config.NewWatcherRegistry()
	}

	if opts.Runner == nil {
		opts.Runner = checker.NewCommandRunner(opts.CheckTimeout, log.WithComponent("checker"))
	}

	publisher := NewPublisher(store, log.WithComponent("publisher"), opts.Metrics)

	deps := MonitorDeps{
		Runner:    opts.Runner,
		Publisher: publisher,
		Host:      opts.Host,
		Tick:      opts.Tick,
		Logger:    log.WithComponent("monitor"),
		Metrics:   opts.Metrics,
		Tracer:    opts.Tracer,
	}

	return &Daemon{
		opts:      opts,
		store:     store,
		logger:    log.WithComponent("daemon"),
		publisher: publisher,
		reconciler: NewReconciler(ReconcilerOptions{
			Root:         root,
			Watchers:     opts.Watchers,
			RetryInitial: opts.RetryInitial,
			RetryMax:     opts.RetryMax,
		}, store, deps),
	}, nil
}

// Run reconciles monitors against the store until ctx is done, then stops
// every monitor. It returns an error only when the configuration root
// cannot be prepared.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.terminated.Store(true)

	if err := d.store.EnsurePath(ctx, d.opts.ConfigRoot); err != nil {
		return fmt.Errorf("ensure config root %s: %w", d.opts.ConfigRoot, err)
	}

	d.logger.Info().
		Str("root", d.opts.ConfigRoot).
		Str("host", d.opts.Host).
		Msg("Watching service configurations")

	if err := d.reconciler.Reconcile(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Initial reconcile failed, retrying")
	}

	if d.opts.OnReady != nil {
		d.opts.OnReady()
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Shutting down monitors")
			d.reconciler.StopAll()

			return nil
		case ev := <-d.reconciler.events:
			d.reconciler.handle(ctx, ev)
		}
	}
}

// Terminated reports whether Run has returned.
func (d *Daemon) Terminated() bool {
	return d.terminated.Load()
}

func (d *Daemon) Watchers() *config.WatcherRegistry {
	return d.opts.Watchers
}

// Monitors returns the running monitors keyed by service name.
func (d *Daemon) Monitors() map[string]*Monitor {
	return d.reconciler.Monitors()
}
