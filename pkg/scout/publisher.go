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

// Package scout runs one monitor per configured service and publishes each
// service's status into the coordination store.
package scout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/carverauto/scout/pkg/coord"
	"github.com/carverauto/scout/pkg/logger"
	"github.com/carverauto/scout/pkg/models"
)

// ErrPublish wraps every failure to write or retract a status entry.
var ErrPublish = errors.New("failed to publish status")

// Publisher writes status records as ephemeral entries and skips writes whose
// record equals the last one it successfully wrote to the same path.
type Publisher struct {
	store   coord.Store
	logger  logger.Logger
	metrics *Metrics

	mu        sync.Mutex
	published map[string]models.StatusRecord
}

func NewPublisher(store coord.Store, log logger.Logger, metrics *Metrics) *Publisher {
	if metrics == nil {
		metrics = NopMetrics()
	}

	return &Publisher{
		store:     store,
		logger:    log,
		metrics:   metrics,
		published: make(map[string]models.StatusRecord),
	}
}

// Publish makes record the content of the entry at path. It reports whether
// a write happened; an unchanged record is not written again. The entry is
// updated in place when it exists and created as an ephemeral node when it
// does not. On failure the previous record stays cached, so the next attempt
// writes again.
func (p *Publisher) Publish(ctx context.Context, path string, record models.StatusRecord) (bool, error) {
	if last, ok := p.Last(path); ok && last == record {
		p.metrics.skipped(path)

		return false, nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrPublish, path, err)
	}

	if err := p.write(ctx, path, data); err != nil {
		p.metrics.publishFailed(path)

		return false, fmt.Errorf("%w: %s: %w", ErrPublish, path, err)
	}

	p.mu.Lock()
	p.published[path] = record
	p.mu.Unlock()

	p.metrics.wrote(path)

	p.logger.Info().
		Str("path", path).
		Str("state", string(record.State)).
		Str("since", record.Since).
		Str("pid", record.PID).
		Msg("Published status")

	return true, nil
}

func (p *Publisher) write(ctx context.Context, path string, data []byte) error {
	if err := p.store.EnsurePath(ctx, coord.ParentPath(path)); err != nil {
		return err
	}

	err := p.store.Set(ctx, path, data)
	if !errors.Is(err, coord.ErrNoNode) {
		return err
	}

	p.logger.Debug().Str("path", path).Msg("Status entry not present, creating")

	err = p.store.Create(ctx, path, data, coord.Ephemeral)
	if errors.Is(err, coord.ErrNodeExists) {
		// Lost a race with another writer; the entry exists now.
		err = p.store.Set(ctx, path, data)
	}

	return err
}

// Retract deletes the entry at path and forgets its cached record. A missing
// entry is not an error.
func (p *Publisher) Retract(ctx context.Context, path string) error {
	p.Forget(path)

	err := p.store.Delete(ctx, path)
	if err != nil && !errors.Is(err, coord.ErrNoNode) {
		return fmt.Errorf("%w: retract %s: %w", ErrPublish, path, err)
	}

	if err == nil {
		p.logger.Info().Str("path", path).Msg("Retracted status")
	}

	return nil
}

// Forget drops the cached record for path so the next Publish writes.
func (p *Publisher) Forget(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.published, path)
}

// Last returns the record most recently written to path.
func (p *Publisher) Last(path string) (models.StatusRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.published[path]

	return rec, ok
}
