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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()

	select {
	case ev, ok := <-ch:
		require.True(t, ok, "watch closed without an event")

		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}

	return Event{}
}

func TestMemoryStoreNodes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.EnsurePath(ctx, "/confs"))
	require.NoError(t, s.EnsurePath(ctx, "/confs"))

	ok, err := s.Exists(ctx, "/confs")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Create(ctx, "/confs/nginx", []byte(`{}`), Persistent))
	assert.ErrorIs(t, s.Create(ctx, "/confs/nginx", nil, Persistent), ErrNodeExists)

	data, err := s.Get(ctx, "/confs/nginx")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	assert.ErrorIs(t, s.Set(ctx, "/confs/missing", nil), ErrNoNode)
	assert.ErrorIs(t, s.Delete(ctx, "/confs/missing"), ErrNoNode)

	_, err = s.Get(ctx, "/confs/missing")
	assert.ErrorIs(t, err, ErrNoNode)

	children, err := s.Children(ctx, "/confs")
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx"}, children)

	require.NoError(t, s.Delete(ctx, "/confs/nginx"))

	children, err = s.Children(ctx, "/confs")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestMemoryStoreWatchesFireOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.EnsurePath(ctx, "/confs"))

	_, childCh, err := s.ChildrenW(ctx, "/confs")
	require.NoError(t, err)

	require.NoError(t, s.Create(ctx, "/confs/a", []byte("1"), Persistent))

	ev := receiveEvent(t, childCh)
	assert.Equal(t, Event{Path: "/confs", Type: EventChildren}, ev)

	_, ok := <-childCh
	assert.False(t, ok, "watch should close after its event")

	_, dataCh, err := s.GetW(ctx, "/confs/a")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "/confs/a", []byte("1")))
	require.NoError(t, s.Set(ctx, "/confs/a", []byte("2")))

	ev = receiveEvent(t, dataCh)
	assert.Equal(t, EventChanged, ev.Type)

	_, dataCh, err = s.GetW(ctx, "/confs/a")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "/confs/a"))

	ev = receiveEvent(t, dataCh)
	assert.Equal(t, EventDeleted, ev.Type)
}

func TestMemoryStoreWatchClosesOnCancel(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.EnsurePath(context.Background(), "/confs"))

	ctx, cancel := context.WithCancel(context.Background())

	_, ch, err := s.ChildrenW(ctx, "/confs")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch not closed after cancel")
	}
}

func TestMemoryStoreEphemeralLifetime(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.EnsurePath(ctx, "/status/a"))
	require.NoError(t, s.Create(ctx, "/status/a/web01", []byte("x"), Ephemeral))

	s.ExpireSession()

	ok, err := s.Exists(ctx, "/status/a/web01")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Exists(ctx, "/status/a")
	require.NoError(t, err)
	assert.True(t, ok, "persistent parents survive session loss")

	require.NoError(t, s.Create(ctx, "/status/a/web01", []byte("x"), Ephemeral))
	require.NoError(t, s.Close())

	_, err = s.Get(ctx, "/status/a/web01")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryStoreFailNext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.FailNext(ErrConnection)
	assert.ErrorIs(t, s.Create(ctx, "/a", nil, Persistent), ErrConnection)
	assert.NoError(t, s.Create(ctx, "/a", nil, Persistent))
	assert.Equal(t, 1, s.Writes())
}
