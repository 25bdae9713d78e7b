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

package logger

import (
	"os"
	"strings"
	"time"

	"github.com/carverauto/scout/pkg/models"
)

const (
	defaultServiceName  = "scout"
	defaultBatchTimeout = 5 * time.Second
)

// DefaultConfig logs JSON at info level to stdout. Overrides come from the
// daemon configuration and its SCOUT_LOGGING_* variables.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Output: "stdout",
		File:   FileConfig{MaxSizeMB: defaultMaxSizeMB},
		OTel:   DefaultOTelConfig(),
	}
}

// DefaultOTelConfig honours the standard OTEL_SERVICE_NAME,
// OTEL_EXPORTER_OTLP_ENDPOINT and OTEL_EXPORTER_OTLP_HEADERS variables.
// Export stays disabled until configured.
func DefaultOTelConfig() OTelConfig {
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	return OTelConfig{
		Endpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Headers:      parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		ServiceName:  serviceName,
		BatchTimeout: models.Duration(defaultBatchTimeout),
	}
}

// parseHeaders reads the comma separated key=value list used by OTLP exporters.
func parseHeaders(s string) map[string]string {
	headers := make(map[string]string)

	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}
