// Package sink publishes polled plant readings to downstream systems.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigFastest

// Reading is one measure point value in a snapshot. Value is a float64, a string the
// vendor sent verbatim, or nil.
type Reading struct {
	PointID string  `json:"point_id"`
	Code    string  `json:"code"`
	Value   any     `json:"value"`
	Unit    *string `json:"unit"`
	Name    *string `json:"name"`
}

// Snapshot is every reading of one plant from one poll.
type Snapshot struct {
	RunID       string    `json:"run_id"`
	PlantID     string    `json:"plant_id"`
	CollectedAt time.Time `json:"collected_at"`
	Readings    []Reading `json:"readings"`
}

// Sink receives snapshots. Publish must be safe for concurrent use.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snapshot Snapshot) error
	Close() error
}

// Publisher receives the per-plant snapshots of one poll.
type Publisher interface {
	Publish(ctx context.Context, snapshots []Snapshot) error
}

var (
	publishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarcloud_sink_publish_total",
		Help: "Snapshots published per sink",
	}, []string{"sink"})
	publishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarcloud_sink_publish_errors_total",
		Help: "Failed snapshot publishes per sink",
	}, []string{"sink"})
	publishSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solarcloud_sink_publish_duration_seconds",
		Help:    "Snapshot publish latency per sink",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
)

// MetricsCollectors exposes the shared sink collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{publishTotal, publishErrors, publishSeconds}
}

var _ Publisher = (*Fanout)(nil)

// Fanout publishes each snapshot to every sink concurrently.
type Fanout struct {
	sinks  []Sink
	logger *zap.SugaredLogger
}

func NewFanout(logger *zap.SugaredLogger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish sends every snapshot to every sink. A failing sink does not stop the
// others; all failures are joined into the returned error.
func (f *Fanout) Publish(ctx context.Context, snapshots []Snapshot) error {
	if len(f.sinks) == 0 || len(snapshots) == 0 {
		return nil
	}

	errs := make([]error, len(f.sinks))
	var g errgroup.Group
	for i, s := range f.sinks {
		i, s := i, s
		g.Go(func() error {
			for _, snapshot := range snapshots {
				if err := publishOne(ctx, s, snapshot); err != nil {
					f.logger.Warnw("sink publish failed", "sink", s.Name(), "plant_id", snapshot.PlantID, "error", err)
					errs[i] = errors.Join(errs[i], err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func publishOne(ctx context.Context, s Sink, snapshot Snapshot) error {
	start := time.Now()
	err := s.Publish(ctx, snapshot)
	publishSeconds.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		publishErrors.WithLabelValues(s.Name()).Inc()
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	publishTotal.WithLabelValues(s.Name()).Inc()
	return nil
}
