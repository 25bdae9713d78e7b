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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carverauto/scout/pkg/models"
)

const systemctlActive = `● nginx.service - A high performance web server
     Loaded: loaded (/lib/systemd/system/nginx.service; enabled; vendor preset: enabled)
     Active: active (running) since Tue 2024-01-02 10:00:00 UTC; 2h 3min ago
       Docs: man:nginx(8)
   Main PID: 1234 (nginx)
      Tasks: 3 (limit: 4557)
`

const systemctlFailed = `● nginx.service - A high performance web server
     Loaded: loaded (/lib/systemd/system/nginx.service; enabled; vendor preset: enabled)
     Active: failed (Result: exit-code) since Wed 2024-01-03 08:15:42 UTC; 5s ago
    Process: 999 ExecStart=/usr/sbin/nginx (code=exited, status=1/FAILURE)
`

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected models.StatusRecord
	}{
		{
			name:     "init script running with pid",
			output:   "nginx is running (pid 4321)\n",
			expected: models.StatusRecord{State: models.StateActive, Since: models.UnknownValue, PID: "4321"},
		},
		{
			name:     "init script not running",
			output:   "nginx is not running\n",
			expected: models.StatusRecord{State: models.StateInactive, Since: models.UnknownValue, PID: models.UnknownValue},
		},
		{
			name:     "systemctl active",
			output:   systemctlActive,
			expected: models.StatusRecord{State: models.StateActive, Since: "Tue 2024-01-02 10:00:00 UTC", PID: "1234"},
		},
		{
			name:     "systemctl failed",
			output:   systemctlFailed,
			expected: models.StatusRecord{State: models.StateInactive, Since: "Wed 2024-01-03 08:15:42 UTC", PID: models.UnknownValue},
		},
		{
			name:     "bare word running",
			output:   "running\n",
			expected: models.StatusRecord{State: models.StateActive, Since: models.UnknownValue, PID: models.UnknownValue},
		},
		{
			name:     "systemctl is-active inactive",
			output:   "\n  inactive  \n",
			expected: models.StatusRecord{State: models.StateInactive, Since: models.UnknownValue, PID: models.UnknownValue},
		},
		{
			name:     "bare word not running",
			output:   "Not Running",
			expected: models.StatusRecord{State: models.StateInactive, Since: models.UnknownValue, PID: models.UnknownValue},
		},
		{
			name:     "empty output",
			output:   "",
			expected: models.UnrecognizedStatus(),
		},
		{
			name:     "unrelated output",
			output:   "hello world\nnothing to see",
			expected: models.UnrecognizedStatus(),
		},
		{
			name:     "unknown systemd state",
			output:   "Active: maintenance\n",
			expected: models.UnrecognizedStatus(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.output))
		})
	}
}

func TestClassifyPhrasePrecedence(t *testing.T) {
	out := "worker is running\nscheduler is not running\n"

	assert.Equal(t, models.StateInactive, Classify(out).State)
}

func TestClassifyIsStableAcrossRuns(t *testing.T) {
	later := "     Active: active (running) since Tue 2024-01-02 10:00:00 UTC; 2h 4min ago\n   Main PID: 1234 (nginx)\n"

	assert.Equal(t, Classify(systemctlActive), Classify(later))
}

func TestCheckFailed(t *testing.T) {
	assert.Equal(t, models.StatusRecord{
		State: models.StateUnrecognized,
		Since: models.UnknownValue,
		PID:   models.UnknownValue,
	}, CheckFailed())
}
