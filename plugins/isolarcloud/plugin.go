package isolarcloud

import (
	"context"
	_ "embed"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/joshp123/solarcloud/internal/config"
	"github.com/joshp123/solarcloud/internal/core"
	"github.com/joshp123/solarcloud/internal/oauth"
	"github.com/joshp123/solarcloud/internal/rate"
	"github.com/joshp123/solarcloud/internal/sink"
)

const pluginID = "isolarcloud"

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin implements the solarcloud plugin contract.
type Plugin struct {
	cfg             Config
	client          *Client
	manager         *oauth.Manager
	refreshInterval time.Duration
	collector       *MetricsCollector
	poller          *Poller
	logger          *zap.SugaredLogger
	health          core.HealthStatus
	healthMessage   string
}

var (
	_ core.Plugin         = Plugin{}
	_ core.Runner         = Plugin{}
	_ core.HTTPRegistrant = Plugin{}
	_ rate.RateLimited    = Plugin{}
)

// NewPlugin constructs the iSolarCloud plugin from config. The second result is
// false when the plugin is not configured at all.
func NewPlugin(cfg *config.ISolarCloudConfig, oauthCfg *config.OAuthConfig, publisher sink.Publisher, logger *zap.SugaredLogger) (Plugin, bool) {
	if cfg == nil {
		return Plugin{}, false
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.With("plugin", pluginID)

	runtimeCfg, err := ConfigFromFile(cfg)
	if err != nil {
		return failed(logger, err), true
	}

	blobStore, err := oauth.NewBlobStore(oauthCfg)
	if err != nil {
		return failed(logger, err), true
	}
	manager, err := oauth.NewManager(
		OAuthDeclaration(runtimeCfg),
		runtimeCfg.BootstrapFile,
		blobStore,
		oauth.WithRefresher(NewTokenClient(runtimeCfg, WithLogger(logger))),
		oauth.WithLogger(logger),
	)
	if err != nil {
		return failed(logger, err), true
	}

	transport := NewHTTPTransport(runtimeCfg, manager, RateLimits())
	client := NewClient(transport,
		WithLogger(logger),
		WithLang(runtimeCfg.Lang),
		WithPlantIDs(runtimeCfg.PlantIDs),
	)
	collector := NewMetricsCollector(client, runtimeCfg.PlantIDs, runtimeCfg.MeasurePoints, logger)

	return Plugin{
		cfg:             runtimeCfg,
		client:          client,
		manager:         manager,
		refreshInterval: oauthCfg.RefreshInterval(),
		collector:       collector,
		poller:          NewPoller(client, runtimeCfg, publisher, collector, logger),
		logger:          logger,
		health:          core.HealthHealthy,
	}, true
}

func failed(logger *zap.SugaredLogger, err error) Plugin {
	logger.Errorw("isolarcloud plugin unavailable", "error", err)
	return Plugin{logger: logger, health: core.HealthError, healthMessage: err.Error()}
}

// RateLimits declares the gateway budget. Refused requests replay the last answer
// for up to one vendor refresh period.
func RateLimits() rate.Declaration {
	return rate.Provider(pluginID).
		Allow(30, rate.Minute).
		Allow(10000, rate.Day).
		ReplayFor(minFetchInterval)
}

func (p Plugin) RateLimits() rate.Declaration {
	return RateLimits()
}

func (p Plugin) ID() string {
	return pluginID
}

func (p Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    pluginID,
		DisplayName: "iSolarCloud",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
	}
}

func (p Plugin) AgentsMD() string {
	return agentsMD
}

func (p Plugin) OAuthDeclaration() oauth.Declaration {
	return OAuthDeclaration(p.cfg)
}

func (p Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "isolarcloud-overview", JSON: dashboardJSON}}
}

func (p Plugin) RegisterGRPC(server *grpc.Server) {
	RegisterISolarCloudService(server, p.client)
}

func (p Plugin) RegisterHTTP(router *mux.Router) {
	registerHTTP(router, p.client)
}

func (p Plugin) Collectors() []prometheus.Collector {
	if p.collector == nil {
		return nil
	}
	return []prometheus.Collector{p.collector}
}

// Run keeps the OAuth token fresh and polls until ctx ends.
func (p Plugin) Run(ctx context.Context) error {
	if p.manager == nil || p.poller == nil {
		<-ctx.Done()
		return nil
	}
	p.manager.StartWithInterval(ctx, p.refreshInterval)
	return p.poller.Run(ctx)
}

func (p Plugin) Health() core.HealthStatus {
	return p.health
}

func (p Plugin) HealthMessage() string {
	return p.healthMessage
}
