package serve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/compozy/relay/engine/dispatcher"
	"github.com/compozy/relay/engine/infra/monitoring"
	"github.com/compozy/relay/engine/infra/server"
	"github.com/compozy/relay/engine/infra/server/ratelimit"
	"github.com/compozy/relay/engine/storage"
	"github.com/compozy/relay/engine/user"
	"github.com/compozy/relay/internal/sample"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
	"github.com/compozy/relay/pkg/tplengine"
	"github.com/redis/go-redis/v9"
)

const contextName = "relay"

// App holds the services started for one serve invocation.
type App struct {
	Server     *server.Server
	dispatcher *dispatcher.Dispatcher
	storage    storage.Storage
	monitoring *monitoring.Service
}

// Build wires storage, monitoring, the dispatcher and the HTTP server for
// cfg. Close releases what Build acquired.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	st, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}
	app := &App{storage: st}
	app.monitoring = monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.FromAppConfig(&cfg.Metrics))
	if app.monitoring.IsInitialized() {
		app.monitoring.SetAsGlobal()
		if err := ratelimit.InitMetrics(app.monitoring.Meter()); err != nil {
			log.Warn("Rate limit metrics unavailable", "error", err)
		}
	}
	d, err := newDispatcher(ctx, cfg, app.monitoring)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	opts := []server.Option{server.WithMonitoring(app.monitoring)}
	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewManager(ratelimit.FromAppConfig(&cfg.RateLimit), sharedRedis(st))
		if err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		opts = append(opts, server.WithRateLimiter(limiter))
	}
	app.dispatcher = d
	app.Server = server.NewServer(ctx, d, user.NewStore(st, cfg.Session.TTL), opts...)
	return app, nil
}

// ApplyConfig takes over the settings of a reloaded configuration that
// apply without a restart. Only core.available does today.
func (a *App) ApplyConfig(ctx context.Context, cfg *config.Config) {
	if a.dispatcher.Available() == cfg.Core.Available {
		return
	}
	a.dispatcher.SetAvailable(cfg.Core.Available)
	logger.FromContext(ctx).Info("Application availability changed", "available", cfg.Core.Available)
}

func newDispatcher(ctx context.Context, cfg *config.Config, mon *monitoring.Service) (*dispatcher.Dispatcher, error) {
	appFS, err := applicationFS(ctx, cfg.Core.AppDir)
	if err != nil {
		return nil, err
	}
	modules, err := sample.Modules(sample.DemoCatalog(), sample.DemoAccounts())
	if err != nil {
		return nil, fmt.Errorf("failed to register modules: %w", err)
	}
	d, err := dispatcher.New(contextName, cfg, modules,
		dispatcher.WithOutputTypes(tplengine.OutputTypes(appFS, cfg.Validation.CacheSize)...),
		dispatcher.WithValidatorFS(appFS),
		dispatcher.WithMetrics(mon.Dispatch()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	return d, nil
}

// applicationFS serves dir when it exists and the embedded sample
// application otherwise.
func applicationFS(ctx context.Context, dir string) (fs.FS, error) {
	log := logger.FromContext(ctx)
	if dir != "" {
		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			log.Info("Serving application directory", "dir", dir)
			return os.DirFS(dir), nil
		case err == nil:
			return nil, fmt.Errorf("application path %s is not a directory", dir)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("application directory %s: %w", dir, err)
		}
	}
	log.Info("Serving embedded sample application")
	return sample.FS(), nil
}

// sharedRedis returns the session connection so rate limit counters live
// next to the sessions. Memory sessions keep counters in memory too.
func sharedRedis(st storage.Storage) redis.UniversalClient {
	if r, ok := st.(*storage.Redis); ok {
		return r.Client()
	}
	return nil
}

// Run serves until ctx is canceled. The server shuts monitoring down on
// exit, storage is released here.
func (a *App) Run(ctx context.Context) error {
	defer a.closeStorage(ctx)
	return a.Server.Run(ctx)
}

// Close shuts storage and monitoring down without serving.
func (a *App) Close(ctx context.Context) {
	a.closeStorage(ctx)
	if a.monitoring != nil {
		if err := a.monitoring.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Error("Failed to shut down monitoring", "error", err)
		}
	}
}

func (a *App) closeStorage(ctx context.Context) {
	if a.storage == nil {
		return
	}
	if err := a.storage.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.FromContext(ctx).Error("Failed to shut down storage", "error", err)
	}
}
