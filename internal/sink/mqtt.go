package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/joshp123/solarcloud/internal/config"
)

const mqttPublishTimeout = 10 * time.Second

// publisher is the part of mqtt.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes one message per reading on <prefix>/<plant_id>/<code>.
type MQTTSink struct {
	client publisher
	closer func()
	prefix string
	qos    byte
	retain bool
}

func NewMQTTSink(cfg *config.MQTTSinkConfig) (*MQTTSink, error) {
	if cfg == nil || cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("solarcloud-" + uuid.NewString())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.PasswordFile != "" {
		password, err := config.ReadSecret(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt password: %w", err)
		}
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(30*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt: %w", token.Error())
	}

	return newMQTTSink(client, cfg, func() { client.Disconnect(250) }), nil
}

func newMQTTSink(client publisher, cfg *config.MQTTSinkConfig, closer func()) *MQTTSink {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = config.DefaultMQTTTopicPrefix
	}
	return &MQTTSink{
		client: client,
		closer: closer,
		prefix: prefix,
		qos:    byte(cfg.QoS),
		retain: cfg.Retain,
	}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Publish(ctx context.Context, snapshot Snapshot) error {
	for _, reading := range snapshot.Readings {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(struct {
			Reading
			CollectedAt time.Time `json:"collected_at"`
		}{reading, snapshot.CollectedAt})
		if err != nil {
			return fmt.Errorf("encode reading %s: %w", reading.Code, err)
		}

		topic := s.Topic(snapshot.PlantID, reading.Code)
		token := s.client.Publish(topic, s.qos, s.retain, payload)
		if !token.WaitTimeout(mqttPublishTimeout) {
			return fmt.Errorf("publish %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}
	return nil
}

func (s *MQTTSink) Topic(plantID, code string) string {
	return s.prefix + "/" + plantID + "/" + code
}

func (s *MQTTSink) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
