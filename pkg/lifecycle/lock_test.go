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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/scout/pkg/logger"
)

func TestInstanceLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "scout.lock")

	first, err := AcquireInstanceLock(path)
	require.NoError(t, err)

	_, err = AcquireInstanceLock(path)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, first.Release())

	again, err := AcquireInstanceLock(path)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestInstanceLockDisabled(t *testing.T) {
	l, err := AcquireInstanceLock("")
	require.NoError(t, err)
	assert.NoError(t, l.Release())

	var nilLock *InstanceLock
	assert.NoError(t, nilLock.Release())
}

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	NotifyReady(logger.NewTestLogger())
	NotifyStopping(logger.NewTestLogger())
}
