package serve

import (
	"fmt"
	"strings"

	"github.com/compozy/relay/cli/helpers"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const productionEnvironment = "production"

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Serve the application over HTTP",
		RunE:    executeServeCommand,
	}
	flags := cmd.Flags()
	flags.String("host", "0.0.0.0", "Host to bind")
	flags.Int("port", 8080, "Port to listen on")
	flags.String("session-driver", "memory", "Session storage (memory, redis, sqlite, postgres)")
	flags.String("redis-url", "", "Redis connection URL for the redis session driver")
	flags.String("database-path", "", "SQLite file for the sqlite session driver")
	flags.String("database-dsn", "", "Connection string for the postgres session driver")
	flags.Bool("metrics", true, "Expose Prometheus metrics")
	flags.Bool("rate-limit", false, "Throttle requests per client")
	flags.Int("max-executions", 20, "Maximum controller executions per request")
	flags.String("default-output-type", "html", "Output type used when a request names none")
	flags.String("validation-mode", "relaxed", "Validation mode (relaxed, strict)")
	return cmd
}

func executeServeCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)
	cfg := config.FromContext(ctx)
	if cfg.Core.Environment == productionEnvironment {
		gin.SetMode(gin.ReleaseMode)
		logProductionWarnings(cmd, cfg)
	}
	if err := helpers.EnsurePortAvailable(ctx, cfg.Server.Host, cfg.Server.Port); err != nil {
		return err
	}
	app, err := Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	config.ManagerFromContext(ctx).OnChange(func(next *config.Config) {
		app.ApplyConfig(ctx, next)
	})
	log.Info("Starting relay server", "environment", cfg.Core.Environment, "session_driver", cfg.Session.Driver)
	return app.Run(ctx)
}

// logProductionWarnings warns about settings unfit for production.
func logProductionWarnings(cmd *cobra.Command, cfg *config.Config) {
	log := logger.FromContext(cmd.Context())
	if cfg.Session.Driver == "memory" {
		log.Warn("Sessions are kept in memory and lost on restart", "hint", "session.driver=redis or postgres")
	}
	if !cfg.RateLimit.Enabled {
		log.Warn("Rate limiting is disabled", "hint", "rate_limit.enabled=true")
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		if strings.Contains(origin, "localhost") {
			log.Warn("CORS allows localhost origins", "origin", origin)
			break
		}
	}
}
