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

package scout

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/carverauto/scout/pkg/scout"

// Metrics holds the daemon's OpenTelemetry instruments.
type Metrics struct {
	checks          metric.Int64Counter
	checkFailures   metric.Int64Counter
	writes          metric.Int64Counter
	deduplicated    metric.Int64Counter
	publishFailures metric.Int64Counter
	monitors        metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(instrumentationName)

	var (
		m   Metrics
		err error
	)

	if m.checks, err = meter.Int64Counter("scout.checks",
		metric.WithDescription("Check commands executed")); err != nil {
		return nil, fmt.Errorf("scout.checks: %w", err)
	}

	if m.checkFailures, err = meter.Int64Counter("scout.check.failures",
		metric.WithDescription("Check commands that could not be executed")); err != nil {
		return nil, fmt.Errorf("scout.check.failures: %w", err)
	}

	if m.writes, err = meter.Int64Counter("scout.publish.writes",
		metric.WithDescription("Status records written to the coordination store")); err != nil {
		return nil, fmt.Errorf("scout.publish.writes: %w", err)
	}

	if m.deduplicated, err = meter.Int64Counter("scout.publish.deduplicated",
		metric.WithDescription("Publishes skipped because the record was unchanged")); err != nil {
		return nil, fmt.Errorf("scout.publish.deduplicated: %w", err)
	}

	if m.publishFailures, err = meter.Int64Counter("scout.publish.failures",
		metric.WithDescription("Status records that failed to publish")); err != nil {
		return nil, fmt.Errorf("scout.publish.failures: %w", err)
	}

	if m.monitors, err = meter.Int64UpDownCounter("scout.monitors",
		metric.WithDescription("Running service monitors")); err != nil {
		return nil, fmt.Errorf("scout.monitors: %w", err)
	}

	return &m, nil
}

// NopMetrics returns instruments that record nothing.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())

	return m
}

func serviceAttr(service string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("service", service))
}

func (m *Metrics) checkRan(service string, failed bool) {
	m.checks.Add(context.Background(), 1, serviceAttr(service))

	if failed {
		m.checkFailures.Add(context.Background(), 1, serviceAttr(service))
	}
}

func pathAttr(path string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("path", path))
}

func (m *Metrics) wrote(path string) {
	m.writes.Add(context.Background(), 1, pathAttr(path))
}

func (m *Metrics) skipped(path string) {
	m.deduplicated.Add(context.Background(), 1, pathAttr(path))
}

func (m *Metrics) publishFailed(path string) {
	m.publishFailures.Add(context.Background(), 1, pathAttr(path))
}

func (m *Metrics) monitorStarted() {
	m.monitors.Add(context.Background(), 1)
}

func (m *Metrics) monitorStopped() {
	m.monitors.Add(context.Background(), -1)
}
