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
	"fmt"
	"sort"
	"sync"
)

type memNode struct {
	data      []byte
	ephemeral bool
}

type memWatch struct {
	path string
	ch   chan Event
	once sync.Once
	done chan struct{}
}

func newMemWatch(path string) *memWatch {
	return &memWatch{path: path, ch: make(chan Event, 1), done: make(chan struct{})}
}

// fire delivers ev, or just closes the channel when ev is nil.
func (w *memWatch) fire(ev *Event) {
	w.once.Do(func() {
		if ev != nil {
			w.ch <- *ev
		}

		close(w.ch)
		close(w.done)
	})
}

// MemoryStore is an in-process Store with the same node, session and watch
// semantics as NATSStore. It backs tests and local dry runs.
type MemoryStore struct {
	mu           sync.Mutex
	nodes        map[string]*memNode
	dataWatches  map[string][]*memWatch
	childWatches map[string][]*memWatch
	writes       int
	closed       bool
	failNext     error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:        make(map[string]*memNode),
		dataWatches:  make(map[string][]*memWatch),
		childWatches: make(map[string][]*memWatch),
	}
}

// Writes counts successful Create and Set calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writes
}

// FailNext makes the next Set or Create return err.
func (m *MemoryStore) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failNext = err
}

// ExpireSession drops every ephemeral node as if the session had been lost.
func (m *MemoryStore) ExpireSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, n := range m.nodes {
		if n.ephemeral {
			m.removeLocked(p)
		}
	}
}

func (m *MemoryStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil

	return err
}

func (m *MemoryStore) checkLocked() error {
	if m.closed {
		return ErrClosed
	}

	return nil
}

func (m *MemoryStore) EnsurePath(_ context.Context, path string) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}

	cur := ""
	for _, seg := range segments(clean) {
		cur += pathSep + seg
		if _, ok := m.nodes[cur]; !ok {
			m.addLocked(cur, nil, false)
		}
	}

	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := m.Get(ctx, path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, ErrNoNode) {
		return false, nil
	}

	return false, err
}

func (m *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getLocked(clean)
}

func (m *MemoryStore) getLocked(path string) ([]byte, error) {
	if err := m.checkLocked(); err != nil {
		return nil, err
	}

	n, ok := m.nodes[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoNode, path)
	}

	return append([]byte(nil), n.data...), nil
}

func (m *MemoryStore) GetW(ctx context.Context, path string) ([]byte, <-chan Event, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.getLocked(clean)
	if err != nil {
		return nil, nil, err
	}

	w := newMemWatch(clean)
	m.dataWatches[clean] = append(m.dataWatches[clean], w)
	m.cancelOnDone(ctx, w, m.dataWatches)

	return data, w.ch, nil
}

func (m *MemoryStore) Children(_ context.Context, path string) ([]string, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.childrenLocked(clean)
}

func (m *MemoryStore) childrenLocked(path string) ([]string, error) {
	if err := m.checkLocked(); err != nil {
		return nil, err
	}

	children := make([]string, 0)

	for p := range m.nodes {
		if p != pathSep && ParentPath(p) == path {
			children = append(children, BaseName(p))
		}
	}

	sort.Strings(children)

	return children, nil
}

func (m *MemoryStore) ChildrenW(ctx context.Context, path string) ([]string, <-chan Event, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	children, err := m.childrenLocked(clean)
	if err != nil {
		return nil, nil, err
	}

	w := newMemWatch(clean)
	m.childWatches[clean] = append(m.childWatches[clean], w)
	m.cancelOnDone(ctx, w, m.childWatches)

	return children, w.ch, nil
}

func (m *MemoryStore) Create(_ context.Context, path string, data []byte, mode CreateMode) error {
	clean, err := pathToNode(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}

	if err := m.takeFailure(); err != nil {
		return err
	}

	if _, ok := m.nodes[clean]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, clean)
	}

	m.addLocked(clean, data, mode == Ephemeral)
	m.writes++

	return nil
}

func (m *MemoryStore) Set(_ context.Context, path string, data []byte) error {
	clean, err := pathToNode(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}

	if err := m.takeFailure(); err != nil {
		return err
	}

	n, ok := m.nodes[clean]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoNode, clean)
	}

	changed := !bytes.Equal(n.data, data)
	n.data = append([]byte(nil), data...)
	m.writes++

	if changed {
		m.fireLocked(m.dataWatches, clean, EventChanged)
	}

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, path string) error {
	clean, err := pathToNode(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}

	if _, ok := m.nodes[clean]; !ok {
		return fmt.Errorf("%w: %s", ErrNoNode, clean)
	}

	m.removeLocked(clean)

	return nil
}

// Close drops ephemeral nodes and closes all outstanding watches.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	for p, n := range m.nodes {
		if n.ephemeral {
			m.removeLocked(p)
		}
	}

	for _, watches := range []map[string][]*memWatch{m.dataWatches, m.childWatches} {
		for p, ws := range watches {
			for _, w := range ws {
				w.fire(nil)
			}

			delete(watches, p)
		}
	}

	m.closed = true

	return nil
}

func (m *MemoryStore) addLocked(path string, data []byte, ephemeral bool) {
	m.nodes[path] = &memNode{data: append([]byte(nil), data...), ephemeral: ephemeral}
	m.fireLocked(m.dataWatches, path, EventChanged)
	m.fireLocked(m.childWatches, ParentPath(path), EventChildren)
}

func (m *MemoryStore) removeLocked(path string) {
	delete(m.nodes, path)
	m.fireLocked(m.dataWatches, path, EventDeleted)
	m.fireLocked(m.childWatches, ParentPath(path), EventChildren)
}

func (m *MemoryStore) fireLocked(watches map[string][]*memWatch, path string, typ EventType) {
	ws := watches[path]
	if len(ws) == 0 {
		return
	}

	delete(watches, path)

	for _, w := range ws {
		w.fire(&Event{Path: path, Type: typ})
	}
}

// cancelOnDone closes w without an event if ctx ends before it fires.
func (m *MemoryStore) cancelOnDone(ctx context.Context, w *memWatch, watches map[string][]*memWatch) {
	go func() {
		select {
		case <-ctx.Done():
		case <-w.done:
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		ws := watches[w.path]
		for i, candidate := range ws {
			if candidate == w {
				watches[w.path] = append(ws[:i:i], ws[i+1:]...)

				break
			}
		}

		if len(watches[w.path]) == 0 {
			delete(watches, w.path)
		}

		w.fire(nil)
	}()
}

func pathToNode(path string) (string, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	if clean == pathSep {
		return "", fmt.Errorf("%w: the root cannot be written", ErrInvalidPath)
	}

	return clean, nil
}
