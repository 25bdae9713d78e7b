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

// Package checker runs service check commands and turns their output into status records.
package checker

import (
	"regexp"
	"strings"

	"github.com/carverauto/scout/pkg/models"
)

var (
	systemdActive = regexp.MustCompile(`(?m)^\s*Active:\s+(\S+)`)
	systemdSince  = regexp.MustCompile(`(?m)^\s*Active:[^\n]*?\bsince\s+([^;\n]+)`)
	pidPattern    = regexp.MustCompile(`(?i)\b(?:main\s+)?pid\b\s*[:=]?\s*(\d+)`)
)

// rule classifies output into a state, reporting false when it does not apply.
type rule func(output string) (models.ServiceState, bool)

// rules are tried in order; the first that applies decides the state.
var rules = []rule{
	phraseRule,
	systemdRule,
	bareWordRule,
}

var (
	systemdStates = map[string]models.ServiceState{
		"active":       models.StateActive,
		"reloading":    models.StateActive,
		"activating":   models.StateActive,
		"inactive":     models.StateInactive,
		"failed":       models.StateInactive,
		"deactivating": models.StateInactive,
	}

	bareWords = map[string]models.ServiceState{
		"running":     models.StateActive,
		"active":      models.StateActive,
		"up":          models.StateActive,
		"ok":          models.StateActive,
		"stopped":     models.StateInactive,
		"inactive":    models.StateInactive,
		"dead":        models.StateInactive,
		"down":        models.StateInactive,
		"failed":      models.StateInactive,
		"not running": models.StateInactive,
	}
)

// Classify maps raw check output to a StatusRecord. It never fails: output
// that no rule recognizes yields the unrecognized state.
func Classify(output string) models.StatusRecord {
	record := models.UnrecognizedStatus()

	for _, r := range rules {
		if state, ok := r(output); ok {
			record.State = state

			break
		}
	}

	if m := systemdSince.FindStringSubmatch(output); m != nil {
		if since := strings.TrimSpace(m[1]); since != "" {
			record.Since = since
		}
	}

	if m := pidPattern.FindStringSubmatch(output); m != nil {
		record.PID = m[1]
	}

	return record
}

// CheckFailed is the record published when the check command could not be run.
func CheckFailed() models.StatusRecord {
	return models.UnrecognizedStatus()
}

// phraseRule matches init-script output such as "nginx is running (pid 42)".
func phraseRule(output string) (models.ServiceState, bool) {
	switch {
	case strings.Contains(output, "is not running"):
		return models.StateInactive, true
	case strings.Contains(output, "is running"):
		return models.StateActive, true
	default:
		return "", false
	}
}

// systemdRule reads the "Active:" line of systemctl status.
func systemdRule(output string) (models.ServiceState, bool) {
	m := systemdActive.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}

	state, ok := systemdStates[strings.ToLower(m[1])]

	return state, ok
}

// bareWordRule handles commands that print a single word, such as systemctl is-active.
func bareWordRule(output string) (models.ServiceState, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}

		state, ok := bareWords[line]

		return state, ok
	}

	return "", false
}
