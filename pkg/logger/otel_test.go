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
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}

	return nil
}

func (*recordingExporter) Shutdown(context.Context) error   { return nil }
func (*recordingExporter) ForceFlush(context.Context) error { return nil }

func TestDefaultOTelConfig(t *testing.T) {
	config := DefaultOTelConfig()

	if config.ServiceName == "" {
		t.Error("ServiceName should have a default value")
	}

	if time.Duration(config.BatchTimeout) != 5*time.Second {
		t.Errorf("Expected default BatchTimeout to be 5s, got %v", config.BatchTimeout)
	}
}

func TestDefaultOTelConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "scout-edge")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization=Bearer x, tenant = a,broken,=empty")

	config := DefaultOTelConfig()

	if config.Enabled {
		t.Error("OTel export should stay disabled until configured")
	}

	if config.ServiceName != "scout-edge" || config.Endpoint != "collector:4317" {
		t.Errorf("unexpected service/endpoint: %q %q", config.ServiceName, config.Endpoint)
	}

	want := map[string]string{"authorization": "Bearer x", "tenant": "a"}
	if len(config.Headers) != len(want) {
		t.Fatalf("Expected headers %v, got %v", want, config.Headers)
	}

	for k, v := range want {
		if config.Headers[k] != v {
			t.Errorf("header %s: expected %q, got %q", k, v, config.Headers[k])
		}
	}
}

func TestOTelWriterDisabled(t *testing.T) {
	writer, err := NewOTELWriter(context.Background(), OTelConfig{Enabled: false})
	if err == nil {
		t.Error("Expected error when OTel is disabled")
	}

	if writer != nil {
		t.Error("Writer should be nil when OTel is disabled")
	}
}

func TestOTelWriterNoEndpoint(t *testing.T) {
	writer, err := NewOTELWriter(context.Background(), OTelConfig{Enabled: true})
	if err == nil {
		t.Error("Expected error when endpoint is empty")
	}

	if writer != nil {
		t.Error("Writer should be nil when endpoint is empty")
	}
}

func TestOTelWriterEmitsRecords(t *testing.T) {
	exporter := &recordingExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))

	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	w := newOTelWriter(context.Background(), provider)

	line := `{"level":"warn","component":"publisher","path":"/status/a/web01","time":"2025-01-02T03:04:05Z","message":"Publish failed"}`
	if _, err := w.Write([]byte(line)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := w.Write([]byte("not json")); err != nil {
		t.Fatalf("Write of non-JSON should be ignored, got %v", err)
	}

	exporter.mu.Lock()
	defer exporter.mu.Unlock()

	if len(exporter.records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(exporter.records))
	}

	rec := exporter.records[0]

	if rec.Severity() != log.SeverityWarn {
		t.Errorf("Expected warn severity, got %v", rec.Severity())
	}

	if rec.Body().AsString() != "Publish failed" {
		t.Errorf("Unexpected body %q", rec.Body().AsString())
	}

	if rec.InstrumentationScope().Name != "publisher" {
		t.Errorf("Expected publisher scope, got %q", rec.InstrumentationScope().Name)
	}

	var path string

	rec.WalkAttributes(func(kv log.KeyValue) bool {
		if kv.Key == "path" {
			path = kv.Value.AsString()
		}

		return true
	})

	if path != "/status/a/web01" {
		t.Errorf("Expected path attribute, got %q", path)
	}
}

func TestMapZerologLevelToOTEL(t *testing.T) {
	cases := map[string]log.Severity{
		"debug":   log.SeverityDebug,
		"info":    log.SeverityInfo,
		"error":   log.SeverityError,
		"unknown": log.SeverityInfo,
	}

	for level, want := range cases {
		if got := mapZerologLevelToOTEL(level); got != want {
			t.Errorf("%s: expected %v, got %v", level, want, got)
		}
	}
}

func TestInitializeMetricsDisabled(t *testing.T) {
	if _, err := InitializeMetrics(context.Background(), MetricsConfig{}); err != ErrOTelMetricsDisabled {
		t.Errorf("Expected ErrOTelMetricsDisabled, got %v", err)
	}
}
