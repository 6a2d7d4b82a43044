package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/solarcloud/internal/rpc"
)

// RegistryServiceName is the gRPC service clients use for plugin discovery.
const RegistryServiceName = "solarcloud.registry.v1.Registry"

type PluginSummary struct {
	PluginID    string `json:"plugin_id"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Status      string `json:"status"`
}

type DashboardRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type PluginDescriptor struct {
	PluginID      string         `json:"plugin_id"`
	DisplayName   string         `json:"display_name"`
	Version       string         `json:"version"`
	Services      []string       `json:"services"`
	AgentsMD      string         `json:"agents_md"`
	Status        string         `json:"status"`
	HealthMessage string         `json:"health_message,omitempty"`
	Dashboards    []DashboardRef `json:"dashboards"`
}

type ListPluginsResponse struct {
	Plugins []PluginSummary `json:"plugins"`
}

type DescribePluginRequest struct {
	PluginID string `json:"plugin_id"`
}

type DescribePluginResponse struct {
	Plugin *PluginDescriptor `json:"plugin,omitempty"`
}

// RegistryService provides plugin discovery to clients.
type RegistryService struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewRegistryService(plugins []Plugin) *RegistryService {
	return &RegistryService{plugins: plugins}
}

func (r *RegistryService) ListPlugins(ctx context.Context) ListPluginsResponse {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := ListPluginsResponse{Plugins: []PluginSummary{}}
	for _, p := range r.plugins {
		manifest := p.Manifest()
		resp.Plugins = append(resp.Plugins, PluginSummary{
			PluginID:    manifest.PluginID,
			DisplayName: manifest.DisplayName,
			Version:     manifest.Version,
			Status:      string(p.Health()),
		})
	}
	return resp
}

func (r *RegistryService) DescribePlugin(ctx context.Context, req DescribePluginRequest) DescribePluginResponse {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		manifest := p.Manifest()
		if manifest.PluginID != req.PluginID {
			continue
		}

		descriptor := &PluginDescriptor{
			PluginID:      manifest.PluginID,
			DisplayName:   manifest.DisplayName,
			Version:       manifest.Version,
			Services:      manifest.Services,
			AgentsMD:      p.AgentsMD(),
			Status:        string(p.Health()),
			HealthMessage: p.HealthMessage(),
		}
		for _, d := range p.Dashboards() {
			descriptor.Dashboards = append(descriptor.Dashboards, DashboardRef{
				Name: d.Name,
				Path: DashboardPath(manifest.PluginID, d.Name),
			})
		}
		return DescribePluginResponse{Plugin: descriptor}
	}

	return DescribePluginResponse{}
}

// Service exposes the registry over gRPC.
func (r *RegistryService) Service() rpc.Service {
	return rpc.Service{
		Name: RegistryServiceName,
		Methods: []rpc.Method{
			{Name: "ListPlugins", Handler: func(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
				return encode(r.ListPlugins(ctx))
			}},
			{Name: "DescribePlugin", Handler: func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				var req DescribePluginRequest
				if err := rpc.Decode(in, &req); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				if req.PluginID == "" {
					return nil, status.Error(codes.InvalidArgument, "plugin_id is required")
				}
				resp := r.DescribePlugin(ctx, req)
				if resp.Plugin == nil {
					return nil, status.Errorf(codes.NotFound, "plugin %q not found", req.PluginID)
				}
				return encode(resp)
			}},
		},
	}
}

func (r *RegistryService) Register(server *grpc.Server) error {
	return rpc.Register(server, r.Service())
}

func encode(v any) (*structpb.Struct, error) {
	out, err := rpc.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// DashboardPath is the HTTP path a plugin dashboard is served under.
func DashboardPath(pluginID, name string) string {
	return "/dashboards/" + pluginID + "/" + name + ".json"
}

// FilterPlugins keeps the compiled plugins enabled in config, or all of them when
// includeAll is set.
func FilterPlugins(compiled []Plugin, enabled map[string]bool, includeAll bool) []Plugin {
	if includeAll {
		return compiled
	}
	out := make([]Plugin, 0, len(compiled))
	for _, p := range compiled {
		if enabled[p.ID()] {
			out = append(out, p)
		}
	}
	return out
}

// ValidateEnabledPlugins fails when config enables a plugin this build does not
// contain.
func ValidateEnabledPlugins(compiled []Plugin, enabled map[string]bool, includeAll bool) error {
	if includeAll {
		return nil
	}
	have := make(map[string]bool, len(compiled))
	for _, p := range compiled {
		have[p.ID()] = true
	}
	var missing []string
	for id, on := range enabled {
		if on && !have[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("plugins enabled in config but not compiled in: %v", missing)
	}
	return nil
}
