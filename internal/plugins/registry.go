package plugins

import (
	"go.uber.org/zap"

	"github.com/joshp123/solarcloud/internal/config"
	"github.com/joshp123/solarcloud/internal/core"
	"github.com/joshp123/solarcloud/internal/sink"
)

// Deps are the shared runtime pieces a plugin factory may wire in.
type Deps struct {
	Logger    *zap.SugaredLogger
	Publisher sink.Publisher
}

// Factory builds a plugin instance from the loaded config.
type Factory func(*config.Config, Deps) (core.Plugin, bool)

var compiled []Factory

// Register adds a compiled-in plugin factory to the registry.
func Register(factory Factory) {
	compiled = append(compiled, factory)
}

// Compiled returns the configured plugin instances for this build.
func Compiled(cfg *config.Config, deps Deps) []core.Plugin {
	if cfg == nil {
		return nil
	}
	out := make([]core.Plugin, 0, len(compiled))
	for _, factory := range compiled {
		plugin, ok := factory(cfg, deps)
		if !ok {
			continue
		}
		out = append(out, plugin)
	}
	return out
}
