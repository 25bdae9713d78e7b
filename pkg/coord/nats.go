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
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/scout/pkg/logger"
)

const (
	reconnectWait       = time.Second
	connectRetryInitial = 250 * time.Millisecond
	connectRetryMax     = 2 * time.Second
	closeTimeout        = 5 * time.Second
)

// NATSStore implements Store on two JetStream key/value buckets. Persistent
// nodes live in the main bucket. Ephemeral nodes live in a session bucket
// whose entries expire after the session TTL; the store keeps the entries it
// owns alive and deletes them on Close.
type NATSStore struct {
	cfg       Config
	logger    logger.Logger
	nc        *nats.Conn
	data      jetstream.KeyValue
	sessions  jetstream.KeyValue
	sessionID string

	mu     sync.Mutex
	owned  map[string][]byte
	closed bool

	// restoreMu orders keepalive restores against deletes of session entries.
	restoreMu sync.Mutex

	done   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Store = (*NATSStore)(nil)

// Connect dials NATS, retrying with exponential backoff until
// cfg.ConnectTimeout elapses, then opens the buckets and starts the session.
// Failure to reach the server is reported as ErrConnection.
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*NATSStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts, err := natsOptions(&cfg, log)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.ConnectTimeout)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = connectRetryInitial
	bo.MaxInterval = connectRetryMax

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nc, err := backoff.Retry(connectCtx, func() (*nats.Conn, error) {
		return nats.Connect(cfg.URL, opts...)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("url", cfg.URL).Dur("retry_in", next).Msg("NATS connection attempt failed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, cfg.URL, err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")

	store, err := newNATSStore(connectCtx, nc, cfg, log)
	if err != nil {
		nc.Close()

		return nil, err
	}

	return store, nil
}

func natsOptions(cfg *Config, log logger.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(time.Duration(cfg.ConnectTimeout)),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	if cfg.TLS != nil {
		tlsConfig, err := cfg.TLS.load()
		if err != nil {
			return nil, err
		}

		opts = append(opts, nats.Secure(tlsConfig))
	}

	return opts, nil
}

func newNATSStore(ctx context.Context, nc *nats.Conn, cfg Config, log logger.Logger) (*NATSStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	data, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "scout service configs and persistent nodes",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", cfg.Bucket, err)
	}

	sessions, err := openSessionBucket(ctx, js, cfg, log)
	if err != nil {
		return nil, err
	}

	keepaliveCtx, cancel := context.WithCancel(context.Background())

	s := &NATSStore{
		cfg:       cfg,
		logger:    log,
		nc:        nc,
		data:      data,
		sessions:  sessions,
		sessionID: uuid.NewString(),
		owned:     make(map[string][]byte),
		done:      make(chan struct{}),
		cancel:    cancel,
	}

	s.wg.Add(1)

	go s.keepalive(keepaliveCtx)

	log.Info().
		Str("session_id", s.sessionID).
		Str("bucket", cfg.Bucket).
		Str("session_bucket", cfg.SessionBucket).
		Dur("session_ttl", time.Duration(cfg.SessionTTL)).
		Msg("Coordination session started")

	return s, nil
}

func openSessionBucket(ctx context.Context, js jetstream.JetStream, cfg Config, log logger.Logger) (jetstream.KeyValue, error) {
	ttl := time.Duration(cfg.SessionTTL)

	kvConfig := jetstream.KeyValueConfig{
		Bucket:         cfg.SessionBucket,
		Description:    "scout session-scoped status entries",
		History:        1,
		TTL:            ttl,
		LimitMarkerTTL: ttl,
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, kvConfig)
	if errors.Is(err, jetstream.ErrLimitMarkerTTLNotSupported) {
		log.Debug().Msg("Server lacks limit markers; expired session entries will not notify watchers")

		kvConfig.LimitMarkerTTL = 0
		kv, err = js.CreateOrUpdateKeyValue(ctx, kvConfig)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open session bucket %s: %w", cfg.SessionBucket, err)
	}

	return kv, nil
}

// SessionID identifies this store's session in logs.
func (s *NATSStore) SessionID() string {
	return s.sessionID
}

func (s *NATSStore) buckets() []jetstream.KeyValue {
	return []jetstream.KeyValue{s.sessions, s.data}
}

func (s *NATSStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	return nil
}

// lookup finds the bucket holding key.
func (s *NATSStore) lookup(ctx context.Context, key string) (jetstream.KeyValue, jetstream.KeyValueEntry, error) {
	for _, kv := range s.buckets() {
		entry, err := kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}

		if err != nil {
			return nil, nil, storeError(err)
		}

		return kv, entry, nil
	}

	return nil, nil, ErrNoNode
}

func (s *NATSStore) EnsurePath(ctx context.Context, path string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	clean, err := CleanPath(path)
	if err != nil {
		return err
	}

	segs := segments(clean)

	for i := range segs {
		key, err := pathToKey(pathSep + strings.Join(segs[:i+1], pathSep))
		if err != nil {
			return err
		}

		if _, err := s.data.Create(ctx, key, nil); err != nil && !errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("failed to ensure %s: %w", path, storeError(err))
		}
	}

	return nil
}

func (s *NATSStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Get(ctx, path)
	if errors.Is(err, ErrNoNode) {
		return false, nil
	}

	return err == nil, err
}

func (s *NATSStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	key, err := pathToKey(path)
	if err != nil {
		return nil, err
	}

	_, entry, err := s.lookup(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}

	return entry.Value(), nil
}

func (s *NATSStore) Children(ctx context.Context, path string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	filter, err := childFilter(path)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{})

	for _, kv := range s.buckets() {
		lister, err := kv.ListKeysFiltered(ctx, filter)
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to list children of %s: %w", path, storeError(err))
		}

		for key := range lister.Keys() {
			name, err := childName(key)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("Skipping undecodable key")

				continue
			}

			names[name] = struct{}{}
		}

		_ = lister.Stop()
	}

	children := make([]string, 0, len(names))
	for name := range names {
		children = append(children, name)
	}

	sort.Strings(children)

	return children, nil
}

func (s *NATSStore) Create(ctx context.Context, path string, data []byte, mode CreateMode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	key, err := pathToKey(path)
	if err != nil {
		return err
	}

	target, other := s.data, s.sessions
	if mode == Ephemeral {
		target, other = s.sessions, s.data
	}

	if _, err := other.Get(ctx, key); err == nil {
		return fmt.Errorf("%w: %s", ErrNodeExists, path)
	} else if !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to create %s: %w", path, storeError(err))
	}

	if _, err := target.Create(ctx, key, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrNodeExists, path)
		}

		return fmt.Errorf("failed to create %s: %w", path, storeError(err))
	}

	if mode == Ephemeral {
		s.track(key, data)
	}

	return nil
}

// Set overwrites an existing node. Setting an ephemeral node left behind by a
// previous session of this host takes ownership of it.
func (s *NATSStore) Set(ctx context.Context, path string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	key, err := pathToKey(path)
	if err != nil {
		return err
	}

	kv, _, err := s.lookup(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}

	if _, err := kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, storeError(err))
	}

	if kv == s.sessions {
		s.track(key, data)
	}

	return nil
}

func (s *NATSStore) Delete(ctx context.Context, path string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	key, err := pathToKey(path)
	if err != nil {
		return err
	}

	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()

	// Untracked first so an owned entry that already expired stays gone.
	s.untrack(key)

	kv, _, err := s.lookup(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	if err := kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, storeError(err))
	}

	return nil
}

// Close ends the session, deleting the ephemeral entries it owns.
func (s *NATSStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	owned := s.owned
	s.owned = nil
	s.mu.Unlock()

	close(s.done)
	s.cancel()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	for key := range owned {
		if err := s.sessions.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to remove session entry")
		}
	}

	s.nc.Close()

	s.logger.Info().Str("session_id", s.sessionID).Int("released", len(owned)).Msg("Coordination session closed")

	return nil
}

// storeError marks transport failures with ErrConnection.
func storeError(err error) error {
	switch {
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	default:
		return err
	}
}
