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
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// acceptFunc turns a watched entry into an Event, or rejects it as noise.
type acceptFunc func(entry jetstream.KeyValueEntry) (Event, bool)

func (s *NATSStore) GetW(ctx context.Context, path string) ([]byte, <-chan Event, error) {
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}

	key, err := pathToKey(path)
	if err != nil {
		return nil, nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)

	watchers, err := s.watchAll(watchCtx, key)
	if err != nil {
		cancel()

		return nil, nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	data, err := s.Get(ctx, path)
	if err != nil {
		s.stopWatchers(watchers)
		cancel()

		return nil, nil, err
	}

	ch := s.deliverOnce(watchCtx, cancel, watchers, func(entry jetstream.KeyValueEntry) (Event, bool) {
		if entry.Operation() != jetstream.KeyValuePut {
			return Event{Path: path, Type: EventDeleted}, true
		}

		// Keepalive rewrites and identical puts are not changes.
		if bytes.Equal(entry.Value(), data) {
			return Event{}, false
		}

		return Event{Path: path, Type: EventChanged}, true
	})

	return data, ch, nil
}

func (s *NATSStore) ChildrenW(ctx context.Context, path string) ([]string, <-chan Event, error) {
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}

	filter, err := childFilter(path)
	if err != nil {
		return nil, nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)

	watchers, err := s.watchAll(watchCtx, filter)
	if err != nil {
		cancel()

		return nil, nil, fmt.Errorf("failed to watch children of %s: %w", path, err)
	}

	children, err := s.Children(ctx, path)
	if err != nil {
		s.stopWatchers(watchers)
		cancel()

		return nil, nil, err
	}

	present := make(map[string]struct{}, len(children))
	for _, name := range children {
		present[name] = struct{}{}
	}

	ch := s.deliverOnce(watchCtx, cancel, watchers, func(entry jetstream.KeyValueEntry) (Event, bool) {
		name, err := childName(entry.Key())
		if err != nil {
			return Event{}, false
		}

		_, known := present[name]
		added := entry.Operation() == jetstream.KeyValuePut

		// Only membership changes count; data writes to known children do not.
		if added == known {
			return Event{}, false
		}

		return Event{Path: path, Type: EventChildren}, true
	})

	return children, ch, nil
}

// watchAll arms an updates-only watcher on every bucket.
func (s *NATSStore) watchAll(ctx context.Context, filter string) ([]jetstream.KeyWatcher, error) {
	watchers := make([]jetstream.KeyWatcher, 0, 2)

	for _, kv := range s.buckets() {
		w, err := kv.Watch(ctx, filter, jetstream.UpdatesOnly())
		if err != nil {
			s.stopWatchers(watchers)

			return nil, storeError(err)
		}

		watchers = append(watchers, w)
	}

	return watchers, nil
}

// deliverOnce forwards the first accepted entry from any watcher as an Event,
// then stops the watchers and closes the channel. The channel is closed
// without an event when ctx ends, the store closes or every watcher is lost.
func (s *NATSStore) deliverOnce(
	ctx context.Context, cancel context.CancelFunc, watchers []jetstream.KeyWatcher, accept acceptFunc,
) <-chan Event {
	out := make(chan Event, 1)
	entries := make(chan jetstream.KeyValueEntry)

	var wg sync.WaitGroup

	for _, w := range watchers {
		wg.Add(1)

		go func(w jetstream.KeyWatcher) {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case entry, ok := <-w.Updates():
					if !ok {
						return
					}

					if entry == nil {
						continue
					}

					select {
					case entries <- entry:
					case <-ctx.Done():
						return
					}
				}
			}
		}(w)
	}

	lost := make(chan struct{})

	go func() {
		wg.Wait()
		close(lost)
	}()

	go func() {
		defer close(out)
		defer s.stopWatchers(watchers)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-lost:
				s.logger.Debug().Msg("Watch lost before firing")

				return
			case entry := <-entries:
				if ev, ok := accept(entry); ok {
					out <- ev

					return
				}
			}
		}
	}()

	return out
}

// stopWatchers unsubscribes and drains so a blocked delivery callback can finish.
func (s *NATSStore) stopWatchers(watchers []jetstream.KeyWatcher) {
	for _, w := range watchers {
		if err := w.Stop(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to stop watcher")
		}

		go func(w jetstream.KeyWatcher) {
			for range w.Updates() { //nolint:revive // draining
			}
		}(w)
	}
}
