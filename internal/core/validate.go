package core

import (
	"errors"
	"fmt"
	"regexp"

	jsoniter "github.com/json-iterator/go"

	"github.com/joshp123/solarcloud/internal/rate"
)

var (
	pluginIDPattern      = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)
	dashboardNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// ValidatePlugins checks the plugin set before anything is served and reports every
// problem found, not only the first.
func ValidatePlugins(plugins []Plugin) error {
	var problems []error
	seen := make(map[string]bool)
	services := make(map[string]string)
	for _, plugin := range plugins {
		id := plugin.ID()
		if !pluginIDPattern.MatchString(id) {
			problems = append(problems, fmt.Errorf("plugin id %q does not match %s", id, pluginIDPattern))
			continue
		}
		if seen[id] {
			problems = append(problems, fmt.Errorf("duplicate plugin id: %s", id))
			continue
		}
		seen[id] = true

		manifest := plugin.Manifest()
		if manifest.PluginID != id {
			problems = append(problems, fmt.Errorf("plugin id mismatch: id=%q manifest=%q", id, manifest.PluginID))
		}
		if len(manifest.Services) == 0 {
			problems = append(problems, fmt.Errorf("plugin %s declares no gRPC services", id))
		}
		for _, service := range manifest.Services {
			if owner, taken := services[service]; taken {
				problems = append(problems, fmt.Errorf("plugin %s registers %s already owned by %s", id, service, owner))
				continue
			}
			services[service] = id
		}

		if provider := plugin.OAuthDeclaration().Provider; provider != "" && provider != id {
			problems = append(problems, fmt.Errorf("plugin %s declares oauth provider %q", id, provider))
		}
		if limited, ok := plugin.(rate.RateLimited); ok {
			if name := limited.RateLimits().Name(); name != id {
				problems = append(problems, fmt.Errorf("plugin %s meters requests as %q", id, name))
			}
		}
		problems = append(problems, validateDashboards(id, plugin.Dashboards())...)
	}
	return errors.Join(problems...)
}

func validateDashboards(id string, dashboards []Dashboard) []error {
	var problems []error
	names := make(map[string]bool, len(dashboards))
	for _, dash := range dashboards {
		switch {
		case !dashboardNamePattern.MatchString(dash.Name):
			problems = append(problems, fmt.Errorf("plugin %s dashboard name %q does not match %s", id, dash.Name, dashboardNamePattern))
		case names[dash.Name]:
			problems = append(problems, fmt.Errorf("plugin %s has two dashboards named %s", id, dash.Name))
		case !jsoniter.Valid(dash.JSON):
			problems = append(problems, fmt.Errorf("plugin %s dashboard %s is not valid JSON", id, dash.Name))
		}
		names[dash.Name] = true
	}
	return problems
}
