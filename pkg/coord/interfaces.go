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

//go:generate mockgen -destination=mock_store.go -package=coord github.com/carverauto/scout/pkg/coord Store

// Package coord is the hierarchical coordination store the registrar reads
// service configs from and publishes status entries to.
package coord

import "context"

// CreateMode selects the lifetime of a created node.
type CreateMode int

const (
	// Persistent nodes live until deleted.
	Persistent CreateMode = iota
	// Ephemeral nodes are removed automatically when the creating session ends.
	Ephemeral
)

func (m CreateMode) String() string {
	if m == Ephemeral {
		return "ephemeral"
	}

	return "persistent"
}

// EventType describes what a watch observed.
type EventType int

const (
	// EventChanged means the watched node was created or its data changed.
	EventChanged EventType = iota
	// EventDeleted means the watched node was removed.
	EventDeleted
	// EventChildren means a child was added to or removed from the watched node.
	EventChildren
)

func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "changed"
	case EventDeleted:
		return "deleted"
	case EventChildren:
		return "children"
	default:
		return "unknown"
	}
}

// Event is delivered on a watch channel.
type Event struct {
	Path string
	Type EventType
}

// Store is a hierarchical key/value namespace with session-scoped nodes and
// one-shot watches.
//
// Watch channels returned by GetW and ChildrenW deliver at most one Event and
// are then closed. They are also closed without an event when the watch
// context ends or the watch is lost; callers re-arm in either case.
type Store interface {
	// EnsurePath creates path and any missing ancestors as empty persistent nodes.
	EnsurePath(ctx context.Context, path string) error

	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)

	// Get returns the data stored at path, or ErrNoNode.
	Get(ctx context.Context, path string) ([]byte, error)

	// GetW is Get plus a one-shot watch on the node's data. The watch is armed
	// before the read, so no change after the returned data is missed. No watch
	// is left behind when an error is returned.
	GetW(ctx context.Context, path string) ([]byte, <-chan Event, error)

	// Children lists the names of the direct children of path, sorted.
	Children(ctx context.Context, path string) ([]string, error)

	// ChildrenW is Children plus a one-shot watch on the set of children.
	ChildrenW(ctx context.Context, path string) ([]string, <-chan Event, error)

	// Create makes a new node. It fails with ErrNodeExists when path is present.
	Create(ctx context.Context, path string, data []byte, mode CreateMode) error

	// Set replaces the data of an existing node, or fails with ErrNoNode.
	Set(ctx context.Context, path string, data []byte) error

	// Delete removes a node, or fails with ErrNoNode.
	Delete(ctx context.Context, path string) error

	// Close ends the session. Ephemeral nodes it created are removed.
	Close() error
}
