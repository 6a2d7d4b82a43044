package isolarcloud

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/solarcloud/internal/config"
)

const (
	defaultRegion       = "international"
	defaultLang         = "_en_US"
	defaultStatePath    = "/var/lib/solarcloud/isolarcloud-credentials.json"
	defaultPollInterval = 5 * time.Minute
)

var regionEndpoints = map[string]string{
	"international": "https://gateway.isolarcloud.com.hk/",
	"europe":        "https://gateway.isolarcloud.eu/",
	"china":         "https://gateway.isolarcloud.com/",
	"australia":     "https://augateway.isolarcloud.com/",
}

// authorizeEndpoints is the web console that hosts the OAuth consent page per region.
var authorizeEndpoints = map[string]string{
	"international": "https://web3.isolarcloud.com.hk/#/authorized-app",
	"europe":        "https://web3.isolarcloud.eu/#/authorized-app",
	"china":         "https://web3.isolarcloud.com/#/authorized-app",
	"australia":     "https://auweb3.isolarcloud.com/#/authorized-app",
}

// cloudIDs identifies the region to the consent page.
var cloudIDs = map[string]string{
	"china":         "1",
	"international": "2",
	"europe":        "3",
	"australia":     "7",
}

// Config defines runtime configuration for the iSolarCloud client.
type Config struct {
	Region        string
	BaseURL       string
	AuthorizeURL  string
	CloudID       string
	ApplicationID string
	AppKey        string
	AccessKey     string
	BootstrapFile string
	StatePath     string
	Lang          string
	PlantIDs      []string
	MeasurePoints []string
	PollInterval  time.Duration
}

// ConfigFromFile validates the config.yaml section and loads the key files it names.
func ConfigFromFile(cfg *config.ISolarCloudConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("isolarcloud config is required")
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	baseURL, ok := regionEndpoints[region]
	if !ok {
		return Config{}, fmt.Errorf("unknown isolarcloud region %q", region)
	}
	if override := strings.TrimSpace(cfg.BaseURL); override != "" {
		baseURL = override
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	appKey, err := config.ReadSecret(cfg.AppKeyFile)
	if err != nil {
		return Config{}, fmt.Errorf("read isolarcloud app key: %w", err)
	}
	accessKey, err := config.ReadSecret(cfg.AccessKeyFile)
	if err != nil {
		return Config{}, fmt.Errorf("read isolarcloud access key: %w", err)
	}

	for _, name := range cfg.MeasurePoints {
		if _, err := ResolveID(name); err != nil {
			return Config{}, err
		}
	}

	lang := strings.TrimSpace(cfg.Lang)
	if lang == "" {
		lang = defaultLang
	}
	statePath := strings.TrimSpace(cfg.StatePath)
	if statePath == "" {
		statePath = defaultStatePath
	}
	interval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return Config{
		Region:        region,
		BaseURL:       baseURL,
		AuthorizeURL:  authorizeEndpoints[region],
		CloudID:       cloudIDs[region],
		ApplicationID: strings.TrimSpace(cfg.ApplicationID),
		AppKey:        appKey,
		AccessKey:     accessKey,
		BootstrapFile: cfg.BootstrapFile,
		StatePath:     statePath,
		Lang:          lang,
		PlantIDs:      append([]string(nil), cfg.PlantIDs...),
		MeasurePoints: append([]string(nil), cfg.MeasurePoints...),
		PollInterval:  interval,
	}, nil
}
