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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/carverauto/scout/pkg/logger"
)

const (
	// DefaultTimeout bounds a single check command.
	DefaultTimeout = 10 * time.Second

	// MaxOutputBytes is how much of a command's stdout is kept. The rest is
	// read and discarded so the command never blocks on a full pipe.
	MaxOutputBytes = 64 << 10

	waitDelay      = time.Second
	maxStderrBytes = 512
)

var (
	// ErrCheckExecution is returned when a check command cannot be run to completion.
	ErrCheckExecution = errors.New("check command failed to execute")

	errEmptyCommand = errors.New("empty command")
	errTimedOut     = errors.New("timed out")
)

// Runner executes a check command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, command string) (string, error)

func (f RunnerFunc) Run(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// CommandRunner runs commands directly, without a shell. The command string is
// split on whitespace, so quoting and pipes are not interpreted.
type CommandRunner struct {
	timeout time.Duration
	logger  logger.Logger
}

// NewCommandRunner returns a CommandRunner. A non-positive timeout selects DefaultTimeout.
func NewCommandRunner(timeout time.Duration, log logger.Logger) *CommandRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &CommandRunner{timeout: timeout, logger: log}
}

// Run executes command and returns what it wrote to stdout. A non-zero exit
// status is not an error: status commands commonly exit non-zero for stopped
// services and their output still classifies.
func (r *CommandRunner) Run(ctx context.Context, command string) (string, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return "", fmt.Errorf("%w: %w", ErrCheckExecution, errEmptyCommand)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stdout := &limitedBuffer{limit: MaxOutputBytes}
	stderr := &limitedBuffer{limit: maxStderrBytes + utf8.UTFMax}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // commands come from operator-managed config
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %q %w after %s", ErrCheckExecution, args[0], errTimedOut, r.timeout)
		}

		return "", fmt.Errorf("%w: %q: %w", ErrCheckExecution, args[0], ctxErr)
	}

	if stdout.dropped > 0 {
		r.logger.Warn().
			Str("command", args[0]).
			Int("dropped_bytes", stdout.dropped).
			Msg("Check command output truncated")
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Debug().
			Str("command", args[0]).
			Int("exit_code", exitErr.ExitCode()).
			Str("stderr", truncate(stderr.String(), maxStderrBytes)).
			Msg("Check command exited non-zero")

		return stdout.String(), nil
	}

	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrCheckExecution, args[0], err)
	}

	return stdout.String(), nil
}

// limitedBuffer keeps the first limit bytes written to it and counts the rest.
type limitedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room < 0 {
		room = 0
	}

	if len(p) > room {
		b.dropped += len(p) - room
		b.buf.Write(p[:room])
	} else {
		b.buf.Write(p)
	}

	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
