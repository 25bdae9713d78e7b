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

package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another instance holds the lock")

// InstanceLock keeps a second daemon on the same host from publishing the
// same entries.
type InstanceLock struct {
	lock *flock.Flock
}

// AcquireInstanceLock takes an exclusive, non-blocking lock on path. An empty
// path disables locking and returns a no-op lock.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	if path == "" {
		return &InstanceLock{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	l := flock.New(path)

	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, path)
	}

	return &InstanceLock{lock: l}, nil
}

// Release drops the lock. It is safe to call on a no-op lock.
func (l *InstanceLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}

	return l.lock.Unlock()
}
