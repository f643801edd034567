package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/compozy/relay/cli/cmd/config"
	"github.com/compozy/relay/cli/cmd/serve"
	"github.com/compozy/relay/cli/cmd/version"
	"github.com/compozy/relay/cli/helpers"
	pkgconfig "github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "relay.yaml"

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "relay",
		Short:             "Relay MVC application server",
		SilenceUsage:      true,
		PersistentPreRunE: setupCommand,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return pkgconfig.ManagerFromContext(cmd.Context()).Close(cmd.Context())
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.Bool("log-source", false, "Report the caller of each log entry")
	flags.String("environment", "development", "Environment (development, staging, production)")
	flags.String("app-dir", "app", "Directory holding validator definitions and templates")

	root.AddCommand(
		serve.NewServeCommand(),
		config.NewConfigCommand(),
		version.NewVersionCommand(),
	)
	return root
}

// setupCommand loads the configuration from defaults, the configuration
// file, the environment and the command line, then attaches the manager
// and a logger to the command context.
func setupCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sources, err := configSources(cmd)
	if err != nil {
		return err
	}
	manager := pkgconfig.NewManager(pkgconfig.NewService())
	cfg, err := manager.Load(ctx, sources...)
	if err != nil {
		return err
	}
	log, err := logger.Setup(cmd, cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = pkgconfig.ContextWithManager(ctx, manager)
	cmd.SetContext(ctx)
	log.Debug("Configuration loaded", "command", cmd.Name(), "environment", cfg.Core.Environment)
	return nil
}

func configSources(cmd *cobra.Command) ([]pkgconfig.Source, error) {
	sources := []pkgconfig.Source{pkgconfig.NewDefaultProvider()}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	switch _, statErr := os.Stat(path); {
	case statErr == nil:
		sources = append(sources, pkgconfig.NewYAMLProvider(path))
	case errors.Is(statErr, os.ErrNotExist) && !cmd.Flags().Changed("config"):
	default:
		return nil, fmt.Errorf("configuration file %s: %w", path, statErr)
	}
	sources = append(sources, pkgconfig.NewEnvProvider(), pkgconfig.NewCLIProvider(helpers.ExtractCLIFlags(cmd)))
	return sources, nil
}
