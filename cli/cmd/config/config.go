package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/compozy/relay/cli/helpers"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Pre-compiled regex for URL token redaction
var tokenRegex = regexp.MustCompile(`token=[^&\s]+`)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management and diagnostics",
	}
	cmd.AddCommand(
		NewConfigShowCommand(),
		NewConfigValidateCommand(),
	)
	return cmd
}

// NewConfigShowCommand creates the config show subcommand
func NewConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration values",
		Long: `Display the effective configuration values.
Supports JSON, YAML, and table output formats.`,
		RunE: executeConfigShowCommand,
	}
	cmd.Flags().StringP("format", "f", "", "Output format (json, yaml, table)")
	cmd.Flags().Bool("sources", false, "Show where each value comes from")
	return cmd
}

func executeConfigShowCommand(cobraCmd *cobra.Command, _ []string) error {
	ctx := cobraCmd.Context()
	logger.FromContext(ctx).Debug("executing config show command")
	format, err := cobraCmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format == "" {
		format = helpers.DefaultFormat()
	}
	showSources, err := cobraCmd.Flags().GetBool("sources")
	if err != nil {
		return fmt.Errorf("failed to get sources flag: %w", err)
	}
	cfg := config.FromContext(ctx)
	var sources map[string]config.SourceType
	if showSources {
		sources = collectSources(ctx, cfg)
	}
	return formatConfigOutput(cobraCmd.OutOrStdout(), cfg, sources, format, showSources)
}

// NewConfigValidateCommand creates the config validate subcommand
func NewConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long:  `Validate the effective configuration for required fields and allowed values.`,
		RunE:  executeConfigValidateCommand,
	}
}

func executeConfigValidateCommand(cobraCmd *cobra.Command, _ []string) error {
	ctx := cobraCmd.Context()
	logger.FromContext(ctx).Debug("executing config validate command")
	cfg := config.FromContext(ctx)
	service := config.ManagerFromContext(ctx).Service
	if err := service.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Fprintln(cobraCmd.OutOrStdout(), "✅ Configuration is valid")
	return nil
}

func collectSources(ctx context.Context, cfg *config.Config) map[string]config.SourceType {
	service := config.ManagerFromContext(ctx).Service
	flat := flattenConfig(cfg)
	sources := make(map[string]config.SourceType, len(flat))
	for key := range flat {
		sources[key] = service.GetSource(key)
	}
	return sources
}

// formatConfigOutput formats and outputs configuration based on requested format
func formatConfigOutput(
	w io.Writer,
	cfg *config.Config,
	sources map[string]config.SourceType,
	format string,
	showSources bool,
) error {
	switch format {
	case helpers.FormatJSON:
		return outputJSON(w, cfg, sources, showSources)
	case helpers.FormatYAML:
		return outputYAML(w, cfg, sources, showSources)
	case helpers.FormatTable:
		return outputTable(w, cfg, sources, showSources)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// outputJSON outputs configuration as JSON
func outputJSON(w io.Writer, cfg *config.Config, sources map[string]config.SourceType, showSources bool) error {
	output := make(map[string]any)
	output["config"] = flattenConfig(cfg)
	if showSources && len(sources) > 0 {
		output["sources"] = sources
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// outputYAML outputs configuration as YAML
func outputYAML(w io.Writer, cfg *config.Config, sources map[string]config.SourceType, showSources bool) error {
	output := make(map[string]any)
	output["config"] = flattenConfig(cfg)
	if showSources && len(sources) > 0 {
		output["sources"] = sources
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	return encoder.Encode(output)
}

// outputTable outputs configuration as a table
func outputTable(out io.Writer, cfg *config.Config, sources map[string]config.SourceType, showSources bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	flatMap := flattenConfig(cfg)
	keys := make([]string, 0, len(flatMap))
	for k := range flatMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if showSources {
		fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
		fmt.Fprintln(w, "---\t-----\t------")
	} else {
		fmt.Fprintln(w, "KEY\tVALUE")
		fmt.Fprintln(w, "---\t-----")
	}
	for _, key := range keys {
		value := flatMap[key]
		if showSources {
			source := sources[key]
			if source == "" {
				source = config.SourceDefault
			}
			fmt.Fprintf(w, "%s\t%v\t%s\n", key, value, source)
		} else {
			fmt.Fprintf(w, "%s\t%v\n", key, value)
		}
	}
	return w.Flush()
}

// flattenConfig converts nested config to flat key-value map
func flattenConfig(cfg *config.Config) map[string]string {
	result := make(map[string]string)
	flattenCoreConfig(cfg, result)
	flattenControllersConfig(cfg, result)
	flattenDispatcherConfig(cfg, result)
	flattenValidationConfig(cfg, result)
	flattenFiltersConfig(cfg, result)
	flattenServerConfig(cfg, result)
	flattenSessionConfig(cfg, result)
	flattenRedisConfig(cfg, result)
	flattenDatabaseConfig(cfg, result)
	flattenRateLimitConfig(cfg, result)
	result["metrics.enabled"] = strconv.FormatBool(cfg.Metrics.Enabled)
	result["metrics.path"] = cfg.Metrics.Path
	result["log.level"] = cfg.Log.Level
	result["log.json"] = strconv.FormatBool(cfg.Log.JSON)
	return result
}

func flattenCoreConfig(cfg *config.Config, result map[string]string) {
	result["core.available"] = strconv.FormatBool(cfg.Core.Available)
	result["core.use_security"] = strconv.FormatBool(cfg.Core.UseSecurity)
	result["core.environment"] = cfg.Core.Environment
	result["core.app_dir"] = cfg.Core.AppDir
}

func flattenControllersConfig(cfg *config.Config, result map[string]string) {
	c := cfg.Controllers
	result["controllers.default_module"] = c.DefaultModule
	result["controllers.default_controller"] = c.DefaultController
	result["controllers.error_404_module"] = c.Error404Module
	result["controllers.error_404_controller"] = c.Error404Controller
	result["controllers.module_disabled_module"] = c.ModuleDisabledModule
	result["controllers.module_disabled_controller"] = c.ModuleDisabledController
	result["controllers.secure_module"] = c.SecureModule
	result["controllers.secure_controller"] = c.SecureController
	result["controllers.login_module"] = c.LoginModule
	result["controllers.login_controller"] = c.LoginController
	result["controllers.unavailable_module"] = c.UnavailableModule
	result["controllers.unavailable_controller"] = c.UnavailableController
}

func flattenDispatcherConfig(cfg *config.Config, result map[string]string) {
	result["dispatcher.max_executions"] = strconv.Itoa(cfg.Dispatcher.MaxExecutions)
	result["dispatcher.default_output_type"] = cfg.Dispatcher.DefaultOutputType
	for verb, method := range cfg.Dispatcher.RequestMethods {
		result["dispatcher.request_methods."+strings.ToLower(verb)] = method
	}
}

func flattenValidationConfig(cfg *config.Config, result map[string]string) {
	result["validation.mode"] = cfg.Validation.Mode
	result["validation.cache_size"] = strconv.Itoa(cfg.Validation.CacheSize)
	for name, level := range cfg.Validation.Severities {
		result["validation.severities."+strings.ToLower(name)] = strconv.Itoa(level)
	}
}

func flattenFiltersConfig(cfg *config.Config, result map[string]string) {
	names := make([]string, 0, len(cfg.Filters))
	for _, f := range cfg.Filters {
		if !f.IsEnabled() {
			continue
		}
		name := f.Name
		if f.Module != "" {
			name = f.Module + "/" + name
		}
		names = append(names, name)
	}
	result["filters"] = strings.Join(names, ",")
}

func flattenServerConfig(cfg *config.Config, result map[string]string) {
	result["server.host"] = cfg.Server.Host
	result["server.port"] = strconv.Itoa(cfg.Server.Port)
	result["server.timeout"] = cfg.Server.Timeout.String()
	result["server.shutdown_timeout"] = cfg.Server.ShutdownTimeout.String()
	result["server.cors_enabled"] = strconv.FormatBool(cfg.Server.CORSEnabled)
	result["server.allowed_origins"] = strings.Join(cfg.Server.AllowedOrigins, ",")
}

func flattenSessionConfig(cfg *config.Config, result map[string]string) {
	result["session.driver"] = cfg.Session.Driver
	result["session.cookie_name"] = cfg.Session.CookieName
	result["session.ttl"] = cfg.Session.TTL.String()
	result["session.prefix"] = cfg.Session.Prefix
}

func flattenRedisConfig(cfg *config.Config, result map[string]string) {
	if cfg.Redis.URL != "" {
		result["redis.url"] = redactURL(cfg.Redis.URL)
	}
	result["redis.addr"] = cfg.Redis.Addr
	result["redis.password"] = redactSensitive(cfg.Redis.Password.Value())
	result["redis.db"] = strconv.Itoa(cfg.Redis.DB)
	result["redis.ping_timeout"] = cfg.Redis.PingTimeout.String()
}

func flattenDatabaseConfig(cfg *config.Config, result map[string]string) {
	db := cfg.Database
	result["database.path"] = db.Path
	if dsn := db.DSN.Value(); strings.Contains(dsn, "://") {
		result["database.dsn"] = redactURL(dsn)
	} else {
		result["database.dsn"] = redactSensitive(dsn)
	}
	result["database.max_open_conns"] = strconv.Itoa(db.MaxOpenConns)
	result["database.busy_timeout"] = db.BusyTimeout.String()
}

func flattenRateLimitConfig(cfg *config.Config, result map[string]string) {
	rl := cfg.RateLimit
	result["rate_limit.enabled"] = strconv.FormatBool(rl.Enabled)
	result["rate_limit.limit"] = strconv.FormatInt(rl.Limit, 10)
	result["rate_limit.period"] = rl.Period.String()
	result["rate_limit.prefix"] = rl.Prefix
	result["rate_limit.disable_headers"] = strconv.FormatBool(rl.DisableHeaders)
	excluded := slices.Clone(rl.ExcludedPaths)
	slices.Sort(excluded)
	result["rate_limit.excluded_paths"] = strings.Join(excluded, ",")
	for module, rule := range rl.Modules {
		result["rate_limit.modules."+module] = fmt.Sprintf("%d/%s", rule.Limit, rule.Period)
	}
}

// redactURL removes credentials from connection URLs
func redactURL(urlStr string) string {
	if strings.Contains(urlStr, "://") && strings.Contains(urlStr, "@") {
		protocolEnd := strings.Index(urlStr, "://") + 3
		atIndex := strings.LastIndex(urlStr, "@")
		if atIndex > protocolEnd {
			return urlStr[:protocolEnd] + "[REDACTED]@" + urlStr[atIndex+1:]
		}
	}
	if strings.Contains(urlStr, "token=") {
		return tokenRegex.ReplaceAllString(urlStr, "token=[REDACTED]")
	}
	return urlStr
}

func redactSensitive(value string) string {
	if value == "" {
		return ""
	}
	return "[REDACTED]"
}
