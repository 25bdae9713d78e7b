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
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/scout/pkg/checker"
	"github.com/carverauto/scout/pkg/logger"
	"github.com/carverauto/scout/pkg/models"
)

const (
	// DefaultTick is how often a monitor wakes to see whether a check is due.
	DefaultTick = time.Second

	retractTimeout = 5 * time.Second
	publishTimeout = 10 * time.Second
)

// MonitorState is the activity a monitor is currently engaged in.
type MonitorState int32

const (
	MonitorIdle MonitorState = iota
	MonitorChecking
	MonitorPublishing
	MonitorStopped
)

func (s MonitorState) String() string {
	switch s {
	case MonitorIdle:
		return "idle"
	case MonitorChecking:
		return "checking"
	case MonitorPublishing:
		return "publishing"
	case MonitorStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MonitorDeps are the collaborators shared by every monitor of a daemon.
type MonitorDeps struct {
	Runner    checker.Runner
	Publisher *Publisher
	Host      string
	Tick      time.Duration
	Logger    logger.Logger
	Metrics   *Metrics
	Tracer    trace.Tracer
	Now       func() time.Time
}

func (d *MonitorDeps) setDefaults() {
	if d.Tick <= 0 {
		d.Tick = DefaultTick
	}

	if d.Now == nil {
		d.Now = time.Now
	}

	if d.Metrics == nil {
		d.Metrics = NopMetrics()
	}

	if d.Logger == nil {
		d.Logger = logger.NewTestLogger()
	}

	if d.Tracer == nil {
		d.Tracer = otel.Tracer(instrumentationName)
	}
}

// Monitor periodically checks one service and publishes its status.
// Replace and Stop are delivered as messages; the configuration is only
// mutated on the monitor's own goroutine.
type Monitor struct {
	name   string
	deps   MonitorDeps
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	replaceCh chan models.ServiceConfig
	stopCh    chan struct{}
	doneCh    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	state atomic.Int32

	mu        sync.RWMutex
	cfg       models.ServiceConfig
	status    models.StatusRecord
	hasStatus bool

	// owned by the run goroutine
	lastCheck time.Time
	checked   bool
}

func NewMonitor(name string, cfg models.ServiceConfig, deps MonitorDeps) *Monitor {
	deps.setDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		name:      name,
		deps:      deps,
		logger:    deps.Logger.WithFields(map[string]interface{}{"service": name}),
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		replaceCh: make(chan models.ServiceConfig, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Name returns the service name the monitor was created for.
func (m *Monitor) Name() string {
	return m.name
}

// Start launches the monitor goroutine. Calling it again has no effect.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

// Replace hands a new configuration to the monitor. Only the most recent
// pending configuration is kept.
func (m *Monitor) Replace(cfg models.ServiceConfig) {
	for {
		select {
		case m.replaceCh <- cfg:
			return
		default:
		}

		select {
		case <-m.replaceCh:
		default:
		}
	}
}

// Stop asks the monitor to retract its entry and exit, and waits until it has.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.cancel()
	})

	m.Start()

	<-m.doneCh
}

// Done is closed once the monitor has stopped.
func (m *Monitor) Done() <-chan struct{} {
	return m.doneCh
}

func (m *Monitor) State() MonitorState {
	return MonitorState(m.state.Load())
}

func (m *Monitor) Config() models.ServiceConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cfg
}

// Status returns the most recently classified record, if any check has run.
func (m *Monitor) Status() (models.StatusRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.status, m.hasStatus
}

func (m *Monitor) setState(s MonitorState) {
	m.state.Store(int32(s))
}

func (m *Monitor) run() {
	defer close(m.doneCh)
	defer m.finish()

	m.deps.Metrics.monitorStarted()

	cfg := m.Config()
	m.logger.Info().
		Str("command", cfg.Command).
		Str("path", cfg.PublishPath(m.deps.Host)).
		Dur("interval", cfg.PollInterval()).
		Msg("Monitor started")

	ticker := time.NewTicker(m.deps.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		m.drainReplace()
		m.tick()

		select {
		case <-m.stopCh:
			return
		case cfg := <-m.replaceCh:
			m.apply(cfg)
		case <-ticker.C:
		}
	}
}

func (m *Monitor) drainReplace() {
	select {
	case cfg := <-m.replaceCh:
		m.apply(cfg)
	default:
	}
}

func (m *Monitor) apply(next models.ServiceConfig) {
	prev := m.Config()
	if prev == next {
		return
	}

	m.mu.Lock()
	m.cfg = next
	m.mu.Unlock()

	oldPath := prev.PublishPath(m.deps.Host)
	newPath := next.PublishPath(m.deps.Host)

	m.logger.Info().
		Str("command", next.Command).
		Str("path", newPath).
		Dur("interval", next.PollInterval()).
		Msg("Monitor configuration replaced")

	if oldPath == newPath {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, retractTimeout)
	defer cancel()

	if err := m.deps.Publisher.Retract(ctx, oldPath); err != nil {
		m.logger.Warn().Err(err).Str("path", oldPath).Msg("Failed to retract previous status entry")
	}
}

func (m *Monitor) tick() {
	cfg := m.Config()
	now := m.deps.Now()

	if m.checked && now.Sub(m.lastCheck) < cfg.PollInterval() {
		return
	}

	path := cfg.PublishPath(m.deps.Host)

	ctx, span := m.deps.Tracer.Start(m.ctx, "scout.check", trace.WithAttributes(
		attribute.String("scout.service", m.name),
		attribute.String("scout.path", path),
	))
	defer span.End()

	m.setState(MonitorChecking)
	defer m.setState(MonitorIdle)

	record := m.check(ctx, cfg)
	if m.ctx.Err() != nil {
		return
	}

	span.SetAttributes(attribute.String("scout.state", string(record.State)))

	m.setState(MonitorPublishing)

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	wrote, err := m.deps.Publisher.Publish(pubCtx, path, record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		m.logger.Warn().Err(err).Str("path", path).Msg("Publish failed, retrying on next tick")

		return
	}

	span.SetAttributes(attribute.Bool("scout.written", wrote))

	m.lastCheck = now
	m.checked = true
}

func (m *Monitor) check(ctx context.Context, cfg models.ServiceConfig) models.StatusRecord {
	output, err := m.deps.Runner.Run(ctx, cfg.Command)

	var record models.StatusRecord

	if err != nil {
		if m.ctx.Err() == nil {
			m.logger.Warn().Err(err).Str("command", cfg.Command).Msg("Check command failed")
			trace.SpanFromContext(ctx).RecordError(err)
		}

		record = checker.CheckFailed()
	} else {
		record = checker.Classify(output)
	}

	m.deps.Metrics.checkRan(m.name, err != nil)

	m.mu.Lock()
	m.status = record
	m.hasStatus = true
	m.mu.Unlock()

	m.logger.Debug().
		Str("state", string(record.State)).
		Str("since", record.Since).
		Str("pid", record.PID).
		Msg("Check completed")

	return record
}

func (m *Monitor) finish() {
	path := m.Config().PublishPath(m.deps.Host)

	ctx, cancel := context.WithTimeout(context.Background(), retractTimeout)
	defer cancel()

	if err := m.deps.Publisher.Retract(ctx, path); err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("Failed to retract status entry")
	}

	m.setState(MonitorStopped)
	m.deps.Metrics.monitorStopped()
	m.logger.Info().Msg("Monitor stopped")
}
