//go:build !solarcloud_no_isolarcloud

package plugins

import (
	"github.com/joshp123/solarcloud/internal/config"
	"github.com/joshp123/solarcloud/internal/core"
	"github.com/joshp123/solarcloud/plugins/isolarcloud"
)

func init() {
	Register(func(cfg *config.Config, deps Deps) (core.Plugin, bool) {
		return isolarcloud.NewPlugin(cfg.ISolarCloud, cfg.OAuth, deps.Publisher, deps.Logger)
	})
}
