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

package models

// ServiceState is the classified state of a checked service.
type ServiceState string

const (
	StateActive       ServiceState = "active"
	StateInactive     ServiceState = "inactive"
	StateUnrecognized ServiceState = "unrecognized"
)

// UnknownValue fills StatusRecord fields the check output did not provide.
const UnknownValue = "unknown"

// StatusRecord is the document published for a service on one host.
// It is comparable, so equality drives deduplication of writes.
type StatusRecord struct {
	State ServiceState `json:"state"`
	Since string       `json:"since"`
	PID   string       `json:"pid"`
}

// UnrecognizedStatus is the record published when a check cannot be run
// or its output cannot be classified.
func UnrecognizedStatus() StatusRecord {
	return StatusRecord{
		State: StateUnrecognized,
		Since: UnknownValue,
		PID:   UnknownValue,
	}
}

// Valid reports whether the record holds one of the known states.
func (s StatusRecord) Valid() bool {
	switch s.State {
	case StateActive, StateInactive, StateUnrecognized:
		return s.Since != "" && s.PID != ""
	default:
		return false
	}
}
