package core

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joshp123/solarcloud/internal/oauth"
	"github.com/joshp123/solarcloud/internal/rpc"
)

type stubPlugin struct {
	id            string
	name          string
	version       string
	services      []string
	dashboards    []Dashboard
	agents        string
	health        HealthStatus
	healthMessage string
}

func (s stubPlugin) ID() string { return s.id }

func (s stubPlugin) Manifest() Manifest {
	return Manifest{
		PluginID:    s.id,
		DisplayName: s.name,
		Version:     s.version,
		Services:    s.services,
	}
}

func (s stubPlugin) AgentsMD() string { return s.agents }

func (s stubPlugin) OAuthDeclaration() oauth.Declaration { return oauth.Declaration{} }

func (s stubPlugin) Dashboards() []Dashboard { return s.dashboards }

func (s stubPlugin) RegisterGRPC(*grpc.Server) {}

func (s stubPlugin) Collectors() []prometheus.Collector { return nil }

func (s stubPlugin) Health() HealthStatus { return s.health }

func (s stubPlugin) HealthMessage() string { return s.healthMessage }

func newStubPlugin(id string) stubPlugin {
	return stubPlugin{
		id:         id,
		name:       "Demo",
		version:    "0.1.0",
		services:   []string{"solarcloud.plugins.demo.v1.DemoService"},
		agents:     "demo agents",
		health:     HealthHealthy,
		dashboards: []Dashboard{{Name: "demo", JSON: []byte("{}")}},
	}
}

func TestRegistryListPlugins(t *testing.T) {
	plugin := newStubPlugin("demo")
	svc := NewRegistryService([]Plugin{plugin})

	resp := svc.ListPlugins(context.Background())
	if len(resp.Plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(resp.Plugins))
	}

	got := resp.Plugins[0]
	if got.PluginID != "demo" || got.DisplayName != "Demo" || got.Version != "0.1.0" {
		t.Fatalf("unexpected plugin summary: %+v", got)
	}
	if got.Status != string(HealthHealthy) {
		t.Fatalf("unexpected health status: %s", got.Status)
	}
}

func TestRegistryDescribePlugin(t *testing.T) {
	plugin := newStubPlugin("demo")
	svc := NewRegistryService([]Plugin{plugin})

	resp := svc.DescribePlugin(context.Background(), DescribePluginRequest{PluginID: "demo"})
	if resp.Plugin == nil {
		t.Fatalf("expected plugin descriptor")
	}
	if resp.Plugin.PluginID != "demo" {
		t.Fatalf("unexpected plugin id: %s", resp.Plugin.PluginID)
	}
	if len(resp.Plugin.Dashboards) != 1 {
		t.Fatalf("expected 1 dashboard, got %d", len(resp.Plugin.Dashboards))
	}
	if resp.Plugin.Dashboards[0].Path != "/dashboards/demo/demo.json" {
		t.Fatalf("unexpected dashboard path: %s", resp.Plugin.Dashboards[0].Path)
	}
}

func TestRegistryServiceHandlers(t *testing.T) {
	svc := NewRegistryService([]Plugin{newStubPlugin("demo")}).Service()
	handlers := make(map[string]rpc.Handler)
	for _, m := range svc.Methods {
		handlers[m.Name] = m.Handler
	}

	out, err := handlers["ListPlugins"](context.Background(), nil)
	if err != nil {
		t.Fatalf("ListPlugins error: %v", err)
	}
	var list ListPluginsResponse
	if err := rpc.Decode(out, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Plugins) != 1 || list.Plugins[0].PluginID != "demo" {
		t.Fatalf("unexpected list: %+v", list)
	}

	req, _ := rpc.Encode(DescribePluginRequest{PluginID: "missing"})
	if _, err := handlers["DescribePlugin"](context.Background(), req); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	if _, err := handlers["DescribePlugin"](context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestFilterPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo"), newStubPlugin("extra")}

	active := FilterPlugins(compiled, map[string]bool{"demo": true}, false)
	if len(active) != 1 || active[0].ID() != "demo" {
		t.Fatalf("unexpected active plugins: %v", active)
	}

	active = FilterPlugins(compiled, map[string]bool{}, true)
	if len(active) != 2 {
		t.Fatalf("expected all plugins, got %d", len(active))
	}
}

func TestValidateEnabledPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo")}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"demo": true}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"missing": true}, false); err == nil {
		t.Fatalf("expected error for missing plugin")
	}
}
