package isolarcloud

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/joshp123/solarcloud/internal/rate"
)

// gather scrapes the collector and indexes gauge values by name and label set.
func gather(t *testing.T, c prometheus.Collector) map[string]map[string]float64 {
	t.Helper()
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(c))
	families, err := registry.Gather()
	require.NoError(t, err)

	out := make(map[string]map[string]float64, len(families))
	for _, family := range families {
		values := make(map[string]float64, len(family.GetMetric()))
		for _, metric := range family.GetMetric() {
			values[labelKey(metric.GetLabel())] = metric.GetGauge().GetValue()
		}
		out[family.GetName()] = values
	}
	return out
}

func labelKey(labels []*dto.LabelPair) string {
	key := ""
	for _, label := range labels {
		if key != "" {
			key += ","
		}
		key += label.GetName() + "=" + label.GetValue()
	}
	return key
}

func TestMetricsCollectorServesObservedSnapshot(t *testing.T) {
	transport := newFakeTransport()
	collector := NewMetricsCollector(NewClient(transport), []string{"P1"}, nil, zaptest.NewLogger(t).Sugar())

	collector.Observe(RealtimeResult{
		"P1": {
			"daily_yield": {ID: "83022", Code: "daily_yield", Value: 12.5, Unit: strPtr("kWh")},
			"power":       {ID: "83033", Code: "power", Value: "N/A"},
			"total_yield": {ID: "83024", Code: "total_yield", Value: nil},
		},
	}, time.Now())

	metrics := gather(t, collector)
	assert.Zero(t, transport.callCount())

	points := metrics["solarcloud_isolarcloud_point_value"]
	require.Len(t, points, 1)
	assert.Equal(t, 12.5, points["code=daily_yield,plant_id=P1,point_id=83022,unit=kWh"])
	assert.Equal(t, 1.0, metrics["solarcloud_isolarcloud_scrape_success"][""])
	assert.Equal(t, 1.0, metrics["solarcloud_isolarcloud_plants"][""])
	assert.NotZero(t, metrics["solarcloud_isolarcloud_last_success_timestamp_seconds"][""])
}

func TestMetricsCollectorFetchesWhenStale(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, realtimeBody(nil,
		map[string]any{"ps_id": "P1", "p83033": "3.25"},
	))
	collector := NewMetricsCollector(NewClient(transport), []string{"P1"}, []string{"power"}, nil)

	metrics := gather(t, collector)
	assert.Equal(t, 1, transport.callCount())
	assert.Equal(t, 3.25, metrics["solarcloud_isolarcloud_point_value"]["code=power,plant_id=P1,point_id=83033,unit="])

	gather(t, collector)
	assert.Equal(t, 1, transport.callCount())
}

func TestMetricsCollectorFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.err = errors.New("offline")
	collector := NewMetricsCollector(NewClient(transport), []string{"P1"}, nil, nil)
	collector.Observe(RealtimeResult{"P1": {"power": {ID: "83033", Code: "power", Value: 1.0}}}, time.Now().Add(-time.Hour))

	metrics := gather(t, collector)
	assert.Equal(t, 0.0, metrics["solarcloud_isolarcloud_scrape_success"][""])
	assert.Empty(t, metrics["solarcloud_isolarcloud_point_value"])
}

func TestMetricsCollectorRateLimitKeepsValues(t *testing.T) {
	transport := newFakeTransport()
	transport.err = rate.RateLimitError{Provider: pluginID, Reason: "throttled"}
	collector := NewMetricsCollector(NewClient(transport), []string{"P1"}, nil, nil)
	collector.Observe(RealtimeResult{"P1": {"power": {ID: "83033", Code: "power", Value: 1.0}}}, time.Now().Add(-time.Hour))

	metrics := gather(t, collector)
	assert.Equal(t, 0.0, metrics["solarcloud_isolarcloud_scrape_success"][""])
	assert.Equal(t, 1.0, metrics["solarcloud_isolarcloud_point_value"]["code=power,plant_id=P1,point_id=83033,unit="])
}

func TestMetricsCollectorScrapesNeverSeePartialSnapshot(t *testing.T) {
	collector := NewMetricsCollector(nil, []string{"P1"}, nil, nil)
	snapshot := func(round int) RealtimeResult {
		readings := make(map[string]Reading, 3)
		for i, id := range []string{"83022", "83024", "83033"} {
			code := CodeOf(id)
			readings[code] = Reading{ID: id, Code: code, Value: float64(round*10 + i)}
		}
		return RealtimeResult{"P1": readings}
	}
	collector.Observe(snapshot(0), time.Now())

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(collector))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for round := 1; ; round++ {
			select {
			case <-done:
				return
			default:
				collector.Observe(snapshot(round), time.Now())
			}
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	for i := 0; i < 200; i++ {
		families, err := registry.Gather()
		require.NoError(t, err)
		points := 0
		for _, family := range families {
			if family.GetName() == "solarcloud_isolarcloud_point_value" {
				points = len(family.GetMetric())
			}
		}
		require.Equal(t, 3, points, "gather %d", i)
	}
}
