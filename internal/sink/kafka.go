package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joshp123/solarcloud/internal/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes one message per plant snapshot, keyed by plant id so a plant's
// history stays on one partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(cfg *config.KafkaSinkConfig) (*KafkaSink, error) {
	if cfg == nil || len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, snapshot Snapshot) error {
	value, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snapshot.PlantID),
		Value: value,
		Time:  snapshot.CollectedAt,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(snapshot.RunID)},
		},
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
