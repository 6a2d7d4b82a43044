package core

import (
	"context"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/joshp123/solarcloud/internal/oauth"
)

// HealthStatus represents plugin health states for registry reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Serving reports whether a plugin in this state still answers requests. A
// degraded plugin serves stale or partial data.
func (h HealthStatus) Serving() bool {
	return h == HealthHealthy || h == HealthDegraded
}

// Dashboard is a Grafana dashboard asset embedded by the plugin.
type Dashboard struct {
	Name string
	JSON []byte
}

// Manifest describes a plugin for discovery and registry metadata.
type Manifest struct {
	PluginID    string
	DisplayName string
	Version     string
	Services    []string
}

// Plugin is the compile-time contract for all solarcloud plugins.
type Plugin interface {
	ID() string
	Manifest() Manifest
	AgentsMD() string
	OAuthDeclaration() oauth.Declaration
	Dashboards() []Dashboard
	RegisterGRPC(*grpc.Server)
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// HTTPRegistrant allows plugins to expose REST handlers under /api.
type HTTPRegistrant interface {
	RegisterHTTP(*mux.Router)
}

// Runner is implemented by plugins with background work such as token refresh
// or polling. Run blocks until ctx ends.
type Runner interface {
	Run(ctx context.Context) error
}
