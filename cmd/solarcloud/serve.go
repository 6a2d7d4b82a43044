package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joshp123/solarcloud/internal/config"
	"github.com/joshp123/solarcloud/internal/core"
	"github.com/joshp123/solarcloud/internal/oauth"
	"github.com/joshp123/solarcloud/internal/plugins"
	"github.com/joshp123/solarcloud/internal/rate"
	"github.com/joshp123/solarcloud/internal/server"
	"github.com/joshp123/solarcloud/internal/sink"
)

func serveMain(args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("SOLARCLOUD_CONFIG", config.DefaultPath), "Path to config.yaml")
	includeAll := flags.Bool("all-plugins", false, "Serve every compiled plugin, configured or not")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config", err)
	}
	logger, err := newLogger(cfg.Core.LogLevel)
	if err != nil {
		fatal("logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, *includeAll, logger); err != nil {
		logger.Errorw("solarcloud stopped", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, includeAll bool, logger *zap.SugaredLogger) error {
	fanout, err := buildSinks(cfg.Sinks, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := fanout.Close(); err != nil {
			logger.Warnw("close sinks", "error", err)
		}
	}()

	compiled := plugins.Compiled(cfg, plugins.Deps{Logger: logger, Publisher: fanout})
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, includeAll); err != nil {
		return err
	}
	active := core.FilterPlugins(compiled, enabled, includeAll)
	if err := core.ValidatePlugins(active); err != nil {
		return err
	}
	written, err := core.WriteDashboards(cfg.Core.DashboardDir, active)
	if err != nil {
		logger.Warnw("write dashboards", "dir", cfg.Core.DashboardDir, "error", err)
	} else if len(written) > 0 {
		logger.Infow("dashboards provisioned", "dir", cfg.Core.DashboardDir, "files", written)
	}

	shared := append([]prometheus.Collector{}, oauth.MetricsCollectors()...)
	shared = append(shared, rate.MetricsCollectors()...)
	shared = append(shared, sink.MetricsCollectors()...)
	shared = append(shared, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "solarcloud_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))
	metricsRegistry, err := core.MetricsRegistry(active, shared...)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg.Core.GRPCAddr, cfg.Core.HTTPAddr, active, metricsRegistry, logger)
	if err != nil {
		return err
	}

	logger.Infow("solarcloud starting",
		"grpc_addr", srv.GRPCAddr().String(),
		"http_addr", srv.HTTPAddr().String(),
		"plugins", len(active),
		"sinks", fanout.Len(),
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(ctx) })
	for _, p := range active {
		runner, ok := p.(core.Runner)
		if !ok {
			continue
		}
		id := p.ID()
		group.Go(func() error {
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorw("plugin stopped", "plugin", id, "error", err)
				return err
			}
			return nil
		})
	}
	return group.Wait()
}

func buildSinks(cfg *config.SinksConfig, logger *zap.SugaredLogger) (*sink.Fanout, error) {
	var sinks []sink.Sink
	if cfg == nil {
		return sink.NewFanout(logger), nil
	}
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	if cfg.SQLite != nil {
		s, err := sink.NewSQLiteSink(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.MQTT != nil {
		s, err := sink.NewMQTTSink(cfg.MQTT)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Kafka != nil {
		s, err := sink.NewKafkaSink(cfg.Kafka)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sink.NewFanout(logger, sinks...), nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
