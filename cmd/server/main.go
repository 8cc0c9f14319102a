// Command server runs a duplex server hosting the demo shop.
//
// Configuration is read from a YAML or TOML file (see pkg/config) and
// DUPLEX_ environment variables. Sending SIGHUP reloads the interceptor
// settings without dropping connections.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/auth"
	"github.com/rhuss/duplex/pkg/auth/apikey"
	"github.com/rhuss/duplex/pkg/auth/jwt"
	"github.com/rhuss/duplex/pkg/auth/noop"
	"github.com/rhuss/duplex/pkg/config"
	"github.com/rhuss/duplex/pkg/debug"
	"github.com/rhuss/duplex/pkg/dispatch"
	"github.com/rhuss/duplex/pkg/mount"
	"github.com/rhuss/duplex/pkg/observability"
	"github.com/rhuss/duplex/pkg/router"
	"github.com/rhuss/duplex/pkg/shop"
	"github.com/rhuss/duplex/pkg/storage"
	"github.com/rhuss/duplex/pkg/storage/memory"
	"github.com/rhuss/duplex/pkg/storage/postgres"
	"github.com/rhuss/duplex/pkg/taskrunner"
	"github.com/rhuss/duplex/pkg/transport"
	transporthttp "github.com/rhuss/duplex/pkg/transport/http"
	"github.com/rhuss/duplex/pkg/transport/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := debug.Init(cfg.Debug.Categories, cfg.Debug.Level)
	debug.SetExposeErrors(cfg.Debug.ExposeErrors)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing.
	if cfg.Observability.Tracing.Enabled {
		shutdown, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
			ServiceName:  cfg.Observability.Tracing.ServiceName,
			Endpoint:     cfg.Observability.Tracing.Endpoint,
			SamplingRate: cfg.Observability.Tracing.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
		logger.Info("tracing enabled", "endpoint", cfg.Observability.Tracing.Endpoint)
	}

	// Storage.
	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("order storage ready", "type", cfg.Storage.Type)

	// Routes.
	rt := router.New(logger)
	modules := mount.NewRegistry(mount.WithLogger(logger))
	if err := modules.Register(shop.Demo(shop.WithStore(store))); err != nil {
		return err
	}
	if err := modules.Apply(rt); err != nil {
		return fmt.Errorf("mounting modules: %w", err)
	}

	// Dispatch.
	runner := taskrunner.New(cfg.Tasks.Workers, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := runner.Close(closeCtx); err != nil {
			logger.Warn("task runner did not drain", "error", err)
		}
	}()
	dispatcher := dispatch.New(rt,
		dispatch.WithStrictParams(cfg.Dispatch.StrictParams),
		dispatch.WithTaskRunner(runner),
		dispatch.WithLogger(logger),
	)

	// Interceptors.
	chain, err := newAuthChain(cfg.Auth)
	if err != nil {
		return err
	}
	catalog := transport.NewCatalog()
	if err := transport.RegisterBuiltins(catalog); err != nil {
		return err
	}
	if err := auth.Register(catalog, chain, tierConfigs(cfg.Auth.Tiers)); err != nil {
		return err
	}
	if err := observability.Register(catalog, nil); err != nil {
		return err
	}
	pipeline, err := transport.NewPipeline(catalog, dispatcher, cfg, logger)
	if err != nil {
		return fmt.Errorf("building interceptor pipeline: %w", err)
	}

	// Transports.
	var adapterOpts []transporthttp.Option
	adapterOpts = append(adapterOpts, transporthttp.WithRoutes(rt), transporthttp.WithLogger(logger))
	if cfg.Observability.Metrics.Enabled {
		adapterOpts = append(adapterOpts, transporthttp.WithMetricsHandler(promhttp.Handler()))
	}
	adapter := transporthttp.NewAdapter(pipeline, transporthttp.Config{
		Prefix:      cfg.Server.Prefix,
		MaxBodySize: cfg.Server.MaxBodySize,
		Validation: api.ValidationConfig{
			MaxPathLength: cfg.Server.MaxPathLength,
			MaxDepth:      cfg.Server.MaxDepth,
			MaxHeaders:    cfg.Server.MaxHeaders,
		},
		ExposeRoutes: cfg.Server.ExposeRoutes,
	}, adapterOpts...)

	srv := transporthttp.NewServer(adapter,
		transporthttp.WithAddr(cfg.Server.Addr),
		transporthttp.WithReadHeaderTimeout(cfg.Server.ReadHeaderTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithServerLogger(logger),
	)

	if cfg.WebSocket.Enabled {
		ws := websocket.NewHandler(pipeline, websocket.Config{
			ReadLimit:      cfg.WebSocket.ReadLimit,
			MaxInFlight:    int64(cfg.WebSocket.MaxInFlight),
			PingInterval:   cfg.WebSocket.PingInterval,
			PongWait:       cfg.WebSocket.PongWait,
			WriteWait:      cfg.WebSocket.WriteWait,
			CloseGrace:     cfg.WebSocket.CloseGrace,
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		}, websocket.WithLogger(logger))
		adapter.Mount(cfg.WebSocket.Path, ws)
		srv.RegisterOnShutdown(ws.Close)
		if err := observability.RegisterConnectionGauge(prometheus.DefaultRegisterer, ws.Connections); err != nil {
			return err
		}
	}

	logger.Info("duplex configured",
		"addr", cfg.Server.Addr,
		"namespaces", rt.Namespaces(),
		"auth", cfg.Auth.Type,
		"websocket", cfg.WebSocket.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return reloadOnHangup(gctx, configPath, pipeline, logger) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadOnHangup re-reads the configuration on SIGHUP and swaps the
// interceptor settings. Exchanges already in flight keep the chain they
// started with.
func reloadOnHangup(ctx context.Context, configPath string, p *transport.Pipeline, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			logger.Error("config reload failed", "error", err)
			continue
		}
		if err := p.Reconfigure(cfg.MiddlewareSettings(), cfg.ScopeSettings()); err != nil {
			logger.Error("interceptor reload failed", "error", err)
			continue
		}
		debug.SetExposeErrors(cfg.Debug.ExposeErrors)
		logger.Info("configuration reloaded", "scopes", p.Scopes())
	}
}

func newStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MigrateOnStart:  cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres storage: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

func newAuthChain(cfg config.AuthConfig) (*auth.AuthChain, error) {
	switch cfg.Type {
	case "", "none":
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{&noop.Authenticator{Roles: cfg.Roles}},
			DefaultDecision: auth.Yes,
		}, nil
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
					Roles:       k.Roles,
				},
			})
		}
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}, nil
	case "jwt":
		return &auth.AuthChain{
			Authenticators: []auth.Authenticator{jwt.New(jwt.Config{
				Issuer:       cfg.JWT.Issuer,
				Audience:     cfg.JWT.Audience,
				JWKSURL:      cfg.JWT.JWKSURL,
				SubjectClaim: cfg.JWT.SubjectClaim,
				TierClaim:    cfg.JWT.TierClaim,
				RolesClaim:   cfg.JWT.RolesClaim,
				ScopesClaim:  cfg.JWT.ScopesClaim,
				CacheTTL:     cfg.JWT.CacheTTL,
			})},
			DefaultDecision: auth.No,
		}, nil
	}
	return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
}

func tierConfigs(tiers map[string]config.Tier) map[string]auth.TierConfig {
	out := make(map[string]auth.TierConfig, len(tiers))
	for name, t := range tiers {
		out[name] = auth.TierConfig{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
	}
	return out
}
