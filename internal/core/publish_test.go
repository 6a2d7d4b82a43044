package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type collectingPlugin struct {
	stubPlugin
	collectors []prometheus.Collector
}

func (c collectingPlugin) Collectors() []prometheus.Collector { return c.collectors }

func TestDashboardsMap(t *testing.T) {
	dashboards := DashboardsMap([]Plugin{newStubPlugin("demo")})
	if string(dashboards["/dashboards/demo/demo.json"]) != "{}" {
		t.Fatalf("unexpected dashboards: %v", dashboards)
	}
}

func TestWriteDashboardsSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	plugins := []Plugin{newStubPlugin("demo")}

	written, err := WriteDashboards(dir, plugins)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	path := filepath.Join(dir, "demo", "demo.json")
	if len(written) != 1 || written[0] != path {
		t.Fatalf("unexpected written files: %v", written)
	}

	written, err = WriteDashboards(dir, plugins)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if len(written) != 0 {
		t.Fatalf("unchanged dashboard rewritten: %v", written)
	}

	if err := os.WriteFile(path, []byte(`{"old":true}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	written, err = WriteDashboards(dir, plugins)
	if err != nil || len(written) != 1 {
		t.Fatalf("changed dashboard not rewritten: %v %v", written, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{}" {
		t.Fatalf("unexpected dashboard content: %s", data)
	}
}

func TestWriteDashboardsWithoutDir(t *testing.T) {
	written, err := WriteDashboards("", []Plugin{newStubPlugin("demo")})
	if err != nil || written != nil {
		t.Fatalf("expected no-op, got %v %v", written, err)
	}
}

func TestMetricsRegistryNamesClashingPlugin(t *testing.T) {
	gauge := func() prometheus.Collector {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: "demo_value", Help: "demo"})
	}
	plugin := collectingPlugin{stubPlugin: newStubPlugin("demo"), collectors: []prometheus.Collector{gauge()}}

	registry, err := MetricsRegistry([]Plugin{plugin})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	if !names["demo_value"] || !names["go_goroutines"] {
		t.Fatalf("missing families: %v", names)
	}

	_, err = MetricsRegistry([]Plugin{plugin}, gauge())
	if err == nil || !strings.Contains(err.Error(), "register demo collector") {
		t.Fatalf("expected clash naming demo, got %v", err)
	}
}
