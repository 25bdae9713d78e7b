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

package checker

import (
	"context"
	"os/exec"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/scout/pkg/logger"
)

func requireBinary(t *testing.T, name string) {
	t.Helper()

	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestCommandRunnerReturnsStdout(t *testing.T) {
	requireBinary(t, "echo")

	r := NewCommandRunner(time.Second, logger.NewTestLogger())

	out, err := r.Run(context.Background(), "echo   nginx  is running")
	require.NoError(t, err)
	assert.Equal(t, "nginx is running\n", out)
}

func TestCommandRunnerNonZeroExitIsNotAnError(t *testing.T) {
	requireBinary(t, "false")

	r := NewCommandRunner(time.Second, logger.NewTestLogger())

	out, err := r.Run(context.Background(), "false")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCommandRunnerErrors(t *testing.T) {
	r := NewCommandRunner(time.Second, logger.NewTestLogger())

	_, err := r.Run(context.Background(), "   ")
	require.ErrorIs(t, err, ErrCheckExecution)

	_, err = r.Run(context.Background(), "/nonexistent/definitely-not-a-command --status")
	require.ErrorIs(t, err, ErrCheckExecution)
}

func TestCommandRunnerTimeout(t *testing.T) {
	requireBinary(t, "sleep")

	r := NewCommandRunner(50*time.Millisecond, logger.NewTestLogger())

	start := time.Now()
	_, err := r.Run(context.Background(), "sleep 5")

	require.ErrorIs(t, err, ErrCheckExecution)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCommandRunnerCapsOutput(t *testing.T) {
	requireBinary(t, "head")

	r := NewCommandRunner(5*time.Second, logger.NewTestLogger())

	out, err := r.Run(context.Background(), "head -c 1048576 /dev/zero")
	require.NoError(t, err)
	assert.Len(t, out, MaxOutputBytes)
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{limit: 4}

	n, err := b.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.Write([]byte("cdef"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = b.Write([]byte("gh"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "abcd", b.String())
	assert.Equal(t, 4, b.dropped)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))

	// "é" is two bytes; cutting inside it drops the whole rune.
	got := truncate("aé", 2)
	assert.Equal(t, "a", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "aé", truncate("aéz", 3))
}

func TestRunnerFunc(t *testing.T) {
	var got string

	r := RunnerFunc(func(_ context.Context, command string) (string, error) {
		got = command

		return "running", nil
	})

	out, err := r.Run(context.Background(), "check nginx")
	require.NoError(t, err)
	assert.Equal(t, "running", out)
	assert.Equal(t, "check nginx", got)
}
