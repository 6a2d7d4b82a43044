package isolarcloud

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// minFetchInterval matches the vendor's data refresh period.
const minFetchInterval = 5 * time.Minute

type cachedSnapshot struct {
	result    RealtimeResult
	fetchedAt time.Time
	success   bool
}

// MetricsCollector exports realtime readings as gauges. Scrapes inside the fetch
// interval are served from the last snapshot, which the poller also feeds.
type MetricsCollector struct {
	client        *Client
	plantIDs      []string
	measurePoints []string
	logger        *zap.SugaredLogger

	pointValue  *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
	success     prometheus.Gauge
	plants      prometheus.Gauge

	mu     sync.Mutex
	cached *cachedSnapshot

	// gaugeMu serializes snapshot publication with collection so a scrape never
	// sees pointValue between Reset and repopulate. Taken before mu.
	gaugeMu sync.Mutex
}

func NewMetricsCollector(client *Client, plantIDs, measurePoints []string, logger *zap.SugaredLogger) *MetricsCollector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MetricsCollector{
		client:        client,
		plantIDs:      plantIDs,
		measurePoints: measurePoints,
		logger:        logger,
		pointValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solarcloud_isolarcloud_point_value",
			Help: "Latest numeric value per plant and measure point",
		}, []string{"plant_id", "point_id", "code", "unit"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solarcloud_isolarcloud_last_success_timestamp_seconds",
			Help: "Last successful iSolarCloud fetch timestamp (epoch seconds)",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solarcloud_isolarcloud_scrape_success",
			Help: "Last fetch success (1=ok, 0=error)",
		}),
		plants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solarcloud_isolarcloud_plants",
			Help: "Plants present in the last snapshot",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.pointValue.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.success.Describe(ch)
	c.plants.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	fresh := c.cached != nil && time.Since(c.cached.fetchedAt) < minFetchInterval
	c.mu.Unlock()

	if !fresh {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		c.refresh(ctx)
	}
	c.collectAll(ch)
}

// Observe records a result fetched elsewhere so the next scrape does not call the API.
func (c *MetricsCollector) Observe(result RealtimeResult, at time.Time) {
	c.publish(cachedSnapshot{result: result, fetchedAt: at, success: true})
}

func (c *MetricsCollector) refresh(ctx context.Context) {
	if c.client == nil {
		c.fail(nil)
		return
	}

	plantIDs, err := c.client.ResolvePlants(ctx, c.plantIDs)
	if err != nil {
		c.fail(err)
		return
	}
	result, err := c.client.RealtimeData(ctx, plantIDs, c.measurePoints)
	if err != nil {
		c.fail(err)
		return
	}
	c.Observe(result, time.Now())
}

// fail records a failed fetch. Rate-limited fetches keep serving the previous values.
func (c *MetricsCollector) fail(err error) {
	if err != nil {
		c.logger.Warnw("isolarcloud metrics fetch failed", "error", err)
	}
	snapshot := cachedSnapshot{fetchedAt: time.Now(), success: false}
	if isRateLimit(err) {
		c.mu.Lock()
		if c.cached != nil {
			snapshot.result = c.cached.result
		}
		c.mu.Unlock()
	}
	c.publish(snapshot)
}

// publish stores snapshot and rewrites the gauges from it as one step.
func (c *MetricsCollector) publish(snapshot cachedSnapshot) {
	c.gaugeMu.Lock()
	defer c.gaugeMu.Unlock()

	c.mu.Lock()
	c.cached = &snapshot
	c.mu.Unlock()

	c.pointValue.Reset()
	for plantID, readings := range snapshot.result {
		for _, reading := range readings {
			value, ok := reading.Float()
			if !ok {
				continue
			}
			unit := ""
			if reading.Unit != nil {
				unit = *reading.Unit
			}
			c.pointValue.WithLabelValues(plantID, reading.ID, reading.Code, unit).Set(value)
		}
	}
	c.plants.Set(float64(len(snapshot.result)))

	if snapshot.success {
		c.success.Set(1)
		c.lastSuccess.Set(float64(snapshot.fetchedAt.Unix()))
	} else {
		c.success.Set(0)
	}
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.gaugeMu.Lock()
	defer c.gaugeMu.Unlock()
	c.pointValue.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.success.Collect(ch)
	c.plants.Collect(ch)
}
