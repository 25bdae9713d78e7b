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

package coord

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const refreshTimeout = 5 * time.Second

func (s *NATSStore) track(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.owned[key] = append([]byte(nil), data...)
}

func (s *NATSStore) untrack(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.owned, key)
}

// stillOwned reports whether key is owned with the value last was taken from.
func (s *NATSStore) stillOwned(key string, last []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.owned[key]

	return ok && bytes.Equal(current, last)
}

func (s *NATSStore) ownedSnapshot() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]byte, len(s.owned))
	for k, v := range s.owned {
		out[k] = v
	}

	return out
}

// refreshInterval keeps owned entries well inside the bucket TTL.
func (s *NATSStore) refreshInterval() time.Duration {
	return time.Duration(s.cfg.SessionTTL) / 3
}

func (s *NATSStore) keepalive(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshOwned(ctx)
		}
	}
}

// refreshOwned rewrites every owned entry so it does not age out. An owned
// entry that has already expired, for example after a long partition, is
// restored from the last value this session wrote.
func (s *NATSStore) refreshOwned(ctx context.Context) {
	for key, last := range s.ownedSnapshot() {
		if ctx.Err() != nil {
			return
		}

		s.refreshEntry(ctx, key, last)
	}
}

// refreshEntry skips keys that were deleted or rewritten since the snapshot;
// restoring those would resurrect a retracted entry nobody tracks.
func (s *NATSStore) refreshEntry(ctx context.Context, key string, last []byte) {
	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()

	if !s.stillOwned(key, last) {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	entry, err := s.sessions.Get(opCtx, key)

	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		if _, err := s.sessions.Create(opCtx, key, last); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to restore expired session entry")

			return
		}

		s.logger.Warn().Str("key", key).Msg("Session entry had expired; restored")
	case err != nil:
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to read session entry for refresh")
	default:
		// A failed revision check means the entry was just written, which refreshes it anyway.
		if _, err := s.sessions.Update(opCtx, key, entry.Value(), entry.Revision()); err != nil {
			s.logger.Debug().Err(err).Str("key", key).Msg("Session entry refresh skipped")
		}
	}
}
