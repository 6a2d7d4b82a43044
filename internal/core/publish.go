package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// DashboardsMap indexes every plugin dashboard by the path the HTTP router serves it at.
func DashboardsMap(plugins []Plugin) map[string][]byte {
	result := make(map[string][]byte)
	for _, plugin := range plugins {
		for _, dash := range plugin.Dashboards() {
			result[DashboardPath(plugin.ID(), dash.Name)] = dash.JSON
		}
	}
	return result
}

// WriteDashboards provisions dashboards as dir/<plugin>/<name>.json for Grafana and
// returns the files it changed. Files that already hold the same JSON are left
// untouched so Grafana does not reload them on every restart.
func WriteDashboards(dir string, plugins []Plugin) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	var written []string
	for _, plugin := range plugins {
		for _, dash := range plugin.Dashboards() {
			path := filepath.Join(dir, plugin.ID(), dash.Name+".json")
			if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, dash.JSON) {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return written, fmt.Errorf("create dashboard dir: %w", err)
			}
			if err := os.WriteFile(path, dash.JSON, 0o644); err != nil {
				return written, fmt.Errorf("write dashboard %s: %w", path, err)
			}
			written = append(written, path)
		}
	}
	return written, nil
}

// MetricsRegistry registers the Go runtime and process collectors, the shared
// collectors, then every plugin's. A clash names the plugin that caused it.
func MetricsRegistry(plugins []Plugin, shared ...prometheus.Collector) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	runtime := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, collector := range append(runtime, shared...) {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register shared collector: %w", err)
		}
	}
	for _, plugin := range plugins {
		for _, collector := range plugin.Collectors() {
			if err := registry.Register(collector); err != nil {
				return nil, fmt.Errorf("register %s collector: %w", plugin.ID(), err)
			}
		}
	}
	return registry, nil
}
