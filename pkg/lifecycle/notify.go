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
	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/carverauto/scout/pkg/logger"
)

// NotifyReady tells systemd (Type=notify units) that startup finished.
// Outside systemd it does nothing.
func NotifyReady(log logger.Logger) {
	notify(log, daemon.SdNotifyReady)
}

// NotifyStopping tells systemd that shutdown has begun.
func NotifyStopping(log logger.Logger) {
	notify(log, daemon.SdNotifyStopping)
}

func notify(log logger.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn().Err(err).Str("state", state).Msg("Failed to notify service manager")

		return
	}

	if sent {
		log.Debug().Str("state", state).Msg("Notified service manager")
	}
}
