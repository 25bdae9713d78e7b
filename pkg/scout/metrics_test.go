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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/carverauto/scout/pkg/coord"
	"github.com/carverauto/scout/pkg/logger"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				sums[m.Name] += dp.Value
			}
		}
	}

	return sums
}

func TestPublisherMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewMetrics(provider)
	require.NoError(t, err)

	store := coord.NewMemoryStore()
	p := NewPublisher(store, logger.NewTestLogger(), metrics)
	ctx := context.Background()

	_, err = p.Publish(ctx, "/s/web01", activeRecord)
	require.NoError(t, err)

	_, err = p.Publish(ctx, "/s/web01", activeRecord)
	require.NoError(t, err)

	store.FailNext(coord.ErrConnection)

	_, err = p.Publish(ctx, "/s/web01", inactiveRecord)
	require.Error(t, err)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["scout.publish.writes"])
	assert.Equal(t, int64(1), sums["scout.publish.deduplicated"])
	assert.Equal(t, int64(1), sums["scout.publish.failures"])
}

func TestMonitorMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewMetrics(provider)
	require.NoError(t, err)

	store := coord.NewMemoryStore()
	runner := &fakeRunner{output: "active"}
	log := logger.NewTestLogger()

	m := NewMonitor("nginx", testConfig("/services/nginx", 5), MonitorDeps{
		Runner:    runner,
		Publisher: NewPublisher(store, log, metrics),
		Host:      "web01",
		Tick:      testTick,
		Logger:    log,
		Metrics:   metrics,
		Now:       newFakeClock().Now,
	})

	m.Start()
	waitForRecord(t, store, "/services/nginx/web01", activeUnknown)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["scout.monitors"])
	assert.Equal(t, int64(1), sums["scout.checks"])

	m.Stop()

	sums = collectSums(t, reader)
	assert.Equal(t, int64(0), sums["scout.monitors"])
}
