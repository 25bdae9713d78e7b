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

package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcherRegistryLifecycle(t *testing.T) {
	r := NewWatcherRegistry()

	id := r.Register(WatcherRegistration{
		Service: "nginx",
		Kind:    WatcherKindData,
		Path:    "/confs/nginx",
	})
	require.NotEmpty(t, id)

	list := r.List()
	require.Len(t, list, 1)
	require.Equal(t, "nginx", list[0].Service)
	require.Equal(t, WatcherStatusRunning, list[0].Status)

	r.MarkEvent(id, nil)
	list = r.List()
	require.False(t, list[0].LastEvent.IsZero())
	require.Equal(t, 1, list[0].Events)

	r.MarkEvent(id, errors.New("re-arm failed"))
	list = r.List()
	require.Equal(t, WatcherStatusError, list[0].Status)
	require.Contains(t, list[0].LastError, "re-arm failed")

	r.MarkStopped(id, context.Canceled)
	list = r.List()
	require.Equal(t, WatcherStatusStopped, list[0].Status)
	require.Contains(t, list[0].LastError, "re-arm failed")

	r.Remove(id)
	require.Empty(t, r.List())

	r.MarkEvent("", nil)
	r.MarkStopped("missing", nil)
}

func TestWatcherRegistryOrdering(t *testing.T) {
	r := NewWatcherRegistry()

	r.Register(WatcherRegistration{Kind: WatcherKindData, Path: "/confs/b"})
	r.Register(WatcherRegistration{Kind: WatcherKindChildren, Path: "/confs"})
	r.Register(WatcherRegistration{Kind: WatcherKindData, Path: "/confs/a"})

	list := r.List()
	require.Len(t, list, 3)
	require.Equal(t, "/confs", list[0].Path)
	require.Equal(t, "/confs/a", list[1].Path)
	require.Equal(t, "/confs/b", list[2].Path)
}
