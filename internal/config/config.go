package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion                      = 1
	DefaultPath                        = "/etc/solarcloud/config.yaml"
	DefaultGRPCAddr                    = "0.0.0.0:9000"
	DefaultHTTPAddr                    = "0.0.0.0:8080"
	DefaultDashboardDir                = "/var/lib/solarcloud/dashboards"
	DefaultLogLevel                    = "info"
	DefaultOAuthPrefix                 = "solarcloud/oauth"
	DefaultOAuthRefreshIntervalSeconds = 600
	MinOAuthRefreshIntervalSeconds     = 30
	DefaultPollIntervalSeconds         = 300
	DefaultMQTTTopicPrefix             = "solarcloud"
)

// Config is the root of config.yaml.
type Config struct {
	SchemaVersion int                `yaml:"schema_version"`
	Core          *CoreConfig        `yaml:"core"`
	OAuth         *OAuthConfig       `yaml:"oauth"`
	Sinks         *SinksConfig       `yaml:"sinks"`
	ISolarCloud   *ISolarCloudConfig `yaml:"isolarcloud"`
}

type CoreConfig struct {
	GRPCAddr     string `yaml:"grpc_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	DashboardDir string `yaml:"dashboard_dir"`
	LogLevel     string `yaml:"log_level"`
}

// OAuthConfig controls token refresh and the optional S3 mirror of OAuth state.
type OAuthConfig struct {
	BlobEndpoint           string `yaml:"blob_endpoint"`
	BlobBucket             string `yaml:"blob_bucket"`
	BlobPrefix             string `yaml:"blob_prefix"`
	BlobRegion             string `yaml:"blob_region"`
	BlobAccessKeyFile      string `yaml:"blob_access_key_file"`
	BlobSecretKeyFile      string `yaml:"blob_secret_key_file"`
	RefreshEnabled         *bool  `yaml:"refresh_enabled"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
}

// RefreshInterval is how often the token refresher wakes. Zero disables it, and
// intervals under MinOAuthRefreshIntervalSeconds are raised to it.
func (c *OAuthConfig) RefreshInterval() time.Duration {
	if c == nil {
		return DefaultOAuthRefreshIntervalSeconds * time.Second
	}
	if c.RefreshEnabled != nil && !*c.RefreshEnabled {
		return 0
	}
	seconds := c.RefreshIntervalSeconds
	switch {
	case seconds <= 0:
		seconds = DefaultOAuthRefreshIntervalSeconds
	case seconds < MinOAuthRefreshIntervalSeconds:
		seconds = MinOAuthRefreshIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}

// BlobConfigured reports whether remote state mirroring is set up.
func (c *OAuthConfig) BlobConfigured() bool {
	return c != nil && c.BlobEndpoint != ""
}

type ISolarCloudConfig struct {
	Region              string   `yaml:"region"`
	BaseURL             string   `yaml:"base_url"`
	ApplicationID       string   `yaml:"application_id"`
	AppKeyFile          string   `yaml:"app_key_file"`
	AccessKeyFile       string   `yaml:"access_key_file"`
	BootstrapFile       string   `yaml:"bootstrap_file"`
	StatePath           string   `yaml:"state_path"`
	Lang                string   `yaml:"lang"`
	PlantIDs            []string `yaml:"plant_ids"`
	MeasurePoints       []string `yaml:"measure_points"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
}

type SinksConfig struct {
	MQTT   *MQTTSinkConfig   `yaml:"mqtt"`
	Kafka  *KafkaSinkConfig  `yaml:"kafka"`
	SQLite *SQLiteSinkConfig `yaml:"sqlite"`
}

type MQTTSinkConfig struct {
	Broker       string `yaml:"broker"`
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
	TopicPrefix  string `yaml:"topic_prefix"`
	QoS          int    `yaml:"qos"`
	Retain       bool   `yaml:"retain"`
}

type KafkaSinkConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SQLiteSinkConfig struct {
	Path string `yaml:"path"`
}

// LoadEnv reads .env files into the process environment. Missing files are ignored.
func LoadEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// ReadSecret returns the trimmed contents of a secret file. Empty files are rejected.
func ReadSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return value, nil
}

// Load parses the YAML config file, applies defaults and env overrides, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes, applies defaults and env overrides, and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core == nil {
		cfg.Core = &CoreConfig{}
	}
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}
	if cfg.Core.LogLevel == "" {
		cfg.Core.LogLevel = DefaultLogLevel
	}

	if cfg.OAuth == nil {
		cfg.OAuth = &OAuthConfig{}
	}
	if cfg.OAuth.BlobPrefix == "" {
		cfg.OAuth.BlobPrefix = DefaultOAuthPrefix
	}
	if cfg.OAuth.RefreshEnabled == nil {
		enabled := true
		cfg.OAuth.RefreshEnabled = &enabled
	}
	if cfg.OAuth.RefreshIntervalSeconds == 0 {
		cfg.OAuth.RefreshIntervalSeconds = DefaultOAuthRefreshIntervalSeconds
	}

	if cfg.ISolarCloud != nil && cfg.ISolarCloud.PollIntervalSeconds == 0 {
		cfg.ISolarCloud.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.Sinks != nil && cfg.Sinks.MQTT != nil && cfg.Sinks.MQTT.TopicPrefix == "" {
		cfg.Sinks.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
	}
}

// applyEnv lets SOLARCLOUD_* variables override listen addresses and plant selection.
func applyEnv(cfg *Config) {
	if value := os.Getenv("SOLARCLOUD_GRPC_ADDR"); value != "" {
		cfg.Core.GRPCAddr = value
	}
	if value := os.Getenv("SOLARCLOUD_HTTP_ADDR"); value != "" {
		cfg.Core.HTTPAddr = value
	}
	if value := os.Getenv("SOLARCLOUD_LOG_LEVEL"); value != "" {
		cfg.Core.LogLevel = value
	}
	if cfg.ISolarCloud == nil {
		return
	}
	if value := os.Getenv("SOLARCLOUD_PLANT_IDS"); value != "" {
		cfg.ISolarCloud.PlantIDs = splitList(value)
	}
	if value := os.Getenv("SOLARCLOUD_POLL_INTERVAL_SECONDS"); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			cfg.ISolarCloud.PollIntervalSeconds = seconds
		}
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core == nil {
		return errors.New("core config is required")
	}
	if cfg.Core.GRPCAddr == "" {
		return errors.New("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return errors.New("core.http_addr is required")
	}
	switch cfg.Core.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("core.log_level %q must be one of debug, info, warn, error", cfg.Core.LogLevel)
	}

	if cfg.OAuth == nil {
		return errors.New("oauth config is required")
	}
	if cfg.OAuth.BlobConfigured() {
		if cfg.OAuth.BlobBucket == "" {
			return errors.New("oauth.blob_bucket is required")
		}
		if cfg.OAuth.BlobAccessKeyFile == "" {
			return errors.New("oauth.blob_access_key_file is required")
		}
		if cfg.OAuth.BlobSecretKeyFile == "" {
			return errors.New("oauth.blob_secret_key_file is required")
		}
	}

	if isc := cfg.ISolarCloud; isc != nil {
		if isc.AppKeyFile == "" {
			return errors.New("isolarcloud.app_key_file is required")
		}
		if isc.AccessKeyFile == "" {
			return errors.New("isolarcloud.access_key_file is required")
		}
		if isc.BootstrapFile == "" {
			return errors.New("isolarcloud.bootstrap_file is required")
		}
		if isc.PollIntervalSeconds < 0 {
			return errors.New("isolarcloud.poll_interval_seconds must not be negative")
		}
		for _, id := range isc.PlantIDs {
			if strings.TrimSpace(id) == "" {
				return errors.New("isolarcloud.plant_ids must not contain empty ids")
			}
		}
	}

	if sinks := cfg.Sinks; sinks != nil {
		if sinks.MQTT != nil {
			if sinks.MQTT.Broker == "" {
				return errors.New("sinks.mqtt.broker is required")
			}
			if sinks.MQTT.QoS < 0 || sinks.MQTT.QoS > 2 {
				return errors.New("sinks.mqtt.qos must be 0, 1 or 2")
			}
		}
		if sinks.Kafka != nil {
			if len(sinks.Kafka.Brokers) == 0 {
				return errors.New("sinks.kafka.brokers is required")
			}
			if sinks.Kafka.Topic == "" {
				return errors.New("sinks.kafka.topic is required")
			}
		}
		if sinks.SQLite != nil && sinks.SQLite.Path == "" {
			return errors.New("sinks.sqlite.path is required")
		}
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.ISolarCloud != nil {
		enabled["isolarcloud"] = true
	}
	return enabled
}

// BootstrapPathForProvider resolves the OAuth bootstrap file path from config.
func BootstrapPathForProvider(cfg *Config, provider string) (string, error) {
	if cfg == nil {
		return "", errors.New("config is required")
	}
	switch provider {
	case "isolarcloud":
		if cfg.ISolarCloud == nil || cfg.ISolarCloud.BootstrapFile == "" {
			return "", errors.New("isolarcloud bootstrap_file is required")
		}
		return cfg.ISolarCloud.BootstrapFile, nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
