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
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	mapset "github.com/deckarep/golang-set"

	"github.com/carverauto/scout/pkg/config"
	"github.com/carverauto/scout/pkg/coord"
	"github.com/carverauto/scout/pkg/logger"
	"github.com/carverauto/scout/pkg/models"
)

const (
	defaultRetryInitial = time.Second
	defaultRetryMax     = 30 * time.Second
	eventBuffer         = 64
)

var (
	// ErrReconcile wraps failures to list the configuration collection.
	ErrReconcile = errors.New("failed to reconcile service configurations")

	errWatchLost = errors.New("watch closed without an event")
)

type eventKind int

const (
	eventChildren eventKind = iota
	eventConfig
)

type reconcileEvent struct {
	kind eventKind
	name string
	lost bool
}

type armedWatch struct {
	id     string
	cancel context.CancelFunc
}

// ReconcilerOptions tune a Reconciler.
type ReconcilerOptions struct {
	Root         string
	Watchers     *config.WatcherRegistry
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Reconciler keeps the set of running monitors in line with the service
// configurations stored under the root path. All of its state is owned by
// the goroutine that calls Reconcile and handle; watch forwarders only
// enqueue events.
type Reconciler struct {
	root     string
	store    coord.Store
	deps     MonitorDeps
	logger   logger.Logger
	watchers *config.WatcherRegistry

	retryInitial time.Duration
	retryMax     time.Duration

	events chan reconcileEvent

	known        mapset.Set
	configs      map[string]models.ServiceConfig
	watches      map[string]*armedWatch
	childWatch   *armedWatch
	childBackoff *backoff.ExponentialBackOff
	backoffs     map[string]*backoff.ExponentialBackOff

	mu       sync.RWMutex
	monitors map[string]*Monitor
}

func NewReconciler(opts ReconcilerOptions, store coord.Store, deps MonitorDeps) *Reconciler {
	deps.setDefaults()

	if opts.Watchers == nil {
		opts.Watchers = config.NewWatcherRegistry()
	}

	if opts.RetryInitial <= 0 {
		opts.RetryInitial = defaultRetryInitial
	}

	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}

	r := &Reconciler{
		root:         opts.Root,
		store:        store,
		deps:         deps,
		logger:       deps.Logger.WithComponent("reconciler"),
		watchers:     opts.Watchers,
		retryInitial: opts.RetryInitial,
		retryMax:     opts.RetryMax,
		events:       make(chan reconcileEvent, eventBuffer),
		known:        mapset.NewThreadUnsafeSet(),
		configs:      make(map[string]models.ServiceConfig),
		watches:      make(map[string]*armedWatch),
		backoffs:     make(map[string]*backoff.ExponentialBackOff),
		monitors:     make(map[string]*Monitor),
	}

	r.childBackoff = r.newBackoff()

	return r
}

func (r *Reconciler) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryInitial
	b.MaxInterval = r.retryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	return b
}

// Reconcile lists the configuration collection, re-arms the collection watch
// and starts or stops monitors for added or removed services.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	r.disarm(r.childWatch)
	r.childWatch = nil

	names, ch, err := r.store.ChildrenW(ctx, r.root)
	if err != nil {
		r.retryLater(ctx, reconcileEvent{kind: eventChildren}, r.childBackoff)

		return fmt.Errorf("%w: %s: %w", ErrReconcile, r.root, err)
	}

	r.childBackoff.Reset()
	r.childWatch = r.arm(ctx, ch, reconcileEvent{kind: eventChildren}, config.WatcherRegistration{
		Kind: config.WatcherKindChildren,
		Path: r.root,
	})

	current := mapset.NewThreadUnsafeSet()
	for _, name := range names {
		current.Add(name)
	}

	removed := sortedNames(r.known.Difference(current))
	added := sortedNames(current.Difference(r.known))
	r.known = current

	if len(added) > 0 || len(removed) > 0 {
		r.logger.Info().
			Strs("added", added).
			Strs("removed", removed).
			Int("services", current.Cardinality()).
			Msg("Service configuration set changed")
	}

	r.remove(removed)

	for _, name := range sortedNames(current) {
		// Added names, plus known names whose config watch went away with a
		// transient delete.
		if _, armed := r.watches[name]; !armed {
			r.refresh(ctx, name)
		}
	}

	return nil
}

func sortedNames(s mapset.Set) []string {
	names := make([]string, 0, s.Cardinality())

	s.Each(func(v interface{}) bool {
		names = append(names, v.(string))

		return false
	})

	sort.Strings(names)

	return names
}

// refresh re-reads one service configuration with a fresh watch and starts
// or updates its monitor.
func (r *Reconciler) refresh(ctx context.Context, name string) {
	r.disarm(r.watches[name])
	delete(r.watches, name)

	path := coord.JoinPath(r.root, name)
	log := r.logger.With().Str("service", name).Str("path", path).Logger()

	data, ch, err := r.store.GetW(ctx, path)
	if errors.Is(err, coord.ErrNoNode) {
		log.Debug().Msg("Service configuration disappeared before it could be read")

		return
	}

	if err != nil {
		log.Warn().Err(err).Msg("Failed to read service configuration")
		r.retryLater(ctx, reconcileEvent{kind: eventConfig, name: name}, r.backoffFor(name))

		return
	}

	r.backoffFor(name).Reset()
	r.watches[name] = r.arm(ctx, ch, reconcileEvent{kind: eventConfig, name: name}, config.WatcherRegistration{
		Service: name,
		Kind:    config.WatcherKindData,
		Path:    path,
	})

	cfg, err := models.ParseServiceConfig(data)
	if err != nil {
		log.Error().Err(err).Msg("Skipping malformed service configuration")

		return
	}

	if m, ok := r.monitor(name); ok {
		if r.configs[name] == cfg {
			return
		}

		r.configs[name] = cfg
		m.Replace(cfg)

		return
	}

	r.configs[name] = cfg

	m := NewMonitor(name, cfg, r.deps)

	r.mu.Lock()
	r.monitors[name] = m
	r.mu.Unlock()

	m.Start()
}

func (r *Reconciler) backoffFor(name string) *backoff.ExponentialBackOff {
	b, ok := r.backoffs[name]
	if !ok {
		b = r.newBackoff()
		r.backoffs[name] = b
	}

	return b
}

func (r *Reconciler) remove(names []string) {
	stopping := make([]*Monitor, 0, len(names))

	for _, name := range names {
		r.disarm(r.watches[name])
		delete(r.watches, name)
		delete(r.configs, name)
		delete(r.backoffs, name)

		if m, ok := r.monitor(name); ok {
			stopping = append(stopping, m)
		}
	}

	stopMonitors(stopping)

	r.mu.Lock()
	for _, name := range names {
		delete(r.monitors, name)
	}
	r.mu.Unlock()
}

func stopMonitors(monitors []*Monitor) {
	var wg sync.WaitGroup

	for _, m := range monitors {
		wg.Add(1)

		go func(m *Monitor) {
			defer wg.Done()

			m.Stop()
		}(m)
	}

	wg.Wait()
}

// handle applies one queued event.
func (r *Reconciler) handle(ctx context.Context, ev reconcileEvent) {
	switch ev.kind {
	case eventChildren:
		if ev.lost {
			r.retryLater(ctx, reconcileEvent{kind: eventChildren}, r.childBackoff)

			return
		}

		if err := r.Reconcile(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Reconcile failed, retrying")
		}
	case eventConfig:
		if !r.known.Contains(ev.name) {
			return
		}

		if ev.lost {
			r.retryLater(ctx, reconcileEvent{kind: eventConfig, name: ev.name}, r.backoffFor(ev.name))

			return
		}

		r.refresh(ctx, ev.name)
	}
}

func (r *Reconciler) enqueue(ctx context.Context, ev reconcileEvent) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

func (r *Reconciler) retryLater(ctx context.Context, ev reconcileEvent, b *backoff.ExponentialBackOff) {
	delay := b.NextBackOff()

	r.logger.Debug().
		Str("service", ev.name).
		Dur("delay", delay).
		Msg("Scheduling watch re-arm")

	time.AfterFunc(delay, func() {
		r.enqueue(ctx, ev)
	})
}

// arm forwards the first notification of ch as ev. A channel that closes
// without an event while ctx is live is reported as a lost watch.
func (r *Reconciler) arm(ctx context.Context, ch <-chan coord.Event, ev reconcileEvent, reg config.WatcherRegistration) *armedWatch {
	wctx, cancel := context.WithCancel(ctx)
	w := &armedWatch{id: r.watchers.Register(reg), cancel: cancel}

	go func() {
		select {
		case _, ok := <-ch:
			if wctx.Err() != nil {
				return
			}

			if !ok {
				r.watchers.MarkStopped(w.id, errWatchLost)

				ev.lost = true
			} else {
				r.watchers.MarkEvent(w.id, nil)
			}

			r.enqueue(wctx, ev)
		case <-wctx.Done():
		}
	}()

	return w
}

func (r *Reconciler) disarm(w *armedWatch) {
	if w == nil {
		return
	}

	w.cancel()
	r.watchers.Remove(w.id)
}

func (r *Reconciler) monitor(name string) (*Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.monitors[name]

	return m, ok
}

// Monitors returns a snapshot of the running monitors keyed by service name.
func (r *Reconciler) Monitors() map[string]*Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Monitor, len(r.monitors))
	for name, m := range r.monitors {
		out[name] = m
	}

	return out
}

// StopAll disarms every watch and stops every monitor, waiting for all of
// them to retract their entries.
func (r *Reconciler) StopAll() {
	r.disarm(r.childWatch)
	r.childWatch = nil

	for name, w := range r.watches {
		r.disarm(w)
		delete(r.watches, name)
	}

	r.mu.RLock()
	monitors := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		monitors = append(monitors, m)
	}
	r.mu.RUnlock()

	stopMonitors(monitors)

	r.mu.Lock()
	r.monitors = make(map[string]*Monitor)
	r.mu.Unlock()

	r.known = mapset.NewThreadUnsafeSet()
	r.configs = make(map[string]models.ServiceConfig)

	r.logger.Info().Int("monitors", len(monitors)).Msg("All monitors stopped")
}
