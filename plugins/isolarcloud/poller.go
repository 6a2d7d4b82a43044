package isolarcloud

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joshp123/solarcloud/internal/sink"
)

// Poller fetches realtime data on an interval, feeds the metrics collector and
// publishes snapshots.
type Poller struct {
	client        *Client
	plantIDs      []string
	measurePoints []string
	interval      time.Duration
	publisher     sink.Publisher
	collector     *MetricsCollector
	logger        *zap.SugaredLogger
	now           func() time.Time
}

func NewPoller(client *Client, cfg Config, publisher sink.Publisher, collector *MetricsCollector, logger *zap.SugaredLogger) *Poller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		client:        client,
		plantIDs:      cfg.PlantIDs,
		measurePoints: cfg.MeasurePoints,
		interval:      interval,
		publisher:     publisher,
		collector:     collector,
		logger:        logger,
		now:           time.Now,
	}
}

// Run polls immediately and then on every tick until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warnw("isolarcloud poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one fetch-and-publish cycle and returns the snapshots it built.
func (p *Poller) Poll(ctx context.Context) ([]sink.Snapshot, error) {
	plantIDs, err := p.client.ResolvePlants(ctx, p.plantIDs)
	if err != nil {
		return nil, err
	}
	result, err := p.client.RealtimeData(ctx, plantIDs, p.measurePoints)
	if err != nil {
		return nil, err
	}

	collectedAt := p.now().UTC()
	if p.collector != nil {
		p.collector.Observe(result, collectedAt)
	}

	runID := uuid.NewString()
	snapshots := Snapshots(result, runID, collectedAt)
	p.logger.Infow("isolarcloud poll", "run_id", runID, "plants", len(snapshots))
	if p.publisher == nil {
		return snapshots, nil
	}
	if err := p.publisher.Publish(ctx, snapshots); err != nil {
		return snapshots, err
	}
	return snapshots, nil
}

// Snapshots flattens a realtime result into one snapshot per plant, ordered by plant
// id with readings ordered by point id.
func Snapshots(result RealtimeResult, runID string, collectedAt time.Time) []sink.Snapshot {
	plantIDs := make([]string, 0, len(result))
	for id := range result {
		plantIDs = append(plantIDs, id)
	}
	sort.Strings(plantIDs)

	out := make([]sink.Snapshot, 0, len(plantIDs))
	for _, plantID := range plantIDs {
		readings := make([]sink.Reading, 0, len(result[plantID]))
		for _, r := range result[plantID] {
			readings = append(readings, sink.Reading{
				PointID: r.ID,
				Code:    r.Code,
				Value:   r.Value,
				Unit:    r.Unit,
				Name:    r.Name,
			})
		}
		sort.Slice(readings, func(i, j int) bool { return readings[i].PointID < readings[j].PointID })
		out = append(out, sink.Snapshot{
			RunID:       runID,
			PlantID:     plantID,
			CollectedAt: collectedAt,
			Readings:    readings,
		})
	}
	return out
}
