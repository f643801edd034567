package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config represents the complete configuration for a relay application.
type Config struct {
	Core        CoreConfig        `koanf:"core"        validate:"required"`
	Controllers ControllersConfig `koanf:"controllers" validate:"required"`
	Dispatcher  DispatcherConfig  `koanf:"dispatcher"  validate:"required"`
	Validation  ValidationConfig  `koanf:"validation"`
	Filters     []FilterConfig    `koanf:"filters"     validate:"dive"`
	Server      ServerConfig      `koanf:"server"      validate:"required"`
	Session     SessionConfig     `koanf:"session"`
	Redis       RedisConfig       `koanf:"redis"`
	Database    DatabaseConfig    `koanf:"database"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Log         LogConfig         `koanf:"log"`
}

// CoreConfig holds the application wide switches consulted on every dispatch.
type CoreConfig struct {
	Available   bool   `koanf:"available"    env:"CORE_AVAILABLE"`
	UseSecurity bool   `koanf:"use_security" env:"CORE_USE_SECURITY"`
	Environment string `koanf:"environment"  env:"CORE_ENVIRONMENT"  validate:"oneof=development staging production"`
	AppDir      string `koanf:"app_dir"      env:"CORE_APP_DIR"`
}

// ControllersConfig names the default and system controllers.
type ControllersConfig struct {
	DefaultModule            string `koanf:"default_module"             validate:"required,module_name"`
	DefaultController        string `koanf:"default_controller"         validate:"required,controller_name"`
	Error404Module           string `koanf:"error_404_module"           validate:"omitempty,module_name"`
	Error404Controller       string `koanf:"error_404_controller"       validate:"omitempty,controller_name"`
	ModuleDisabledModule     string `koanf:"module_disabled_module"     validate:"omitempty,module_name"`
	ModuleDisabledController string `koanf:"module_disabled_controller" validate:"omitempty,controller_name"`
	SecureModule             string `koanf:"secure_module"              validate:"omitempty,module_name"`
	SecureController         string `koanf:"secure_controller"          validate:"omitempty,controller_name"`
	LoginModule              string `koanf:"login_module"               validate:"omitempty,module_name"`
	LoginController          string `koanf:"login_controller"           validate:"omitempty,controller_name"`
	UnavailableModule        string `koanf:"unavailable_module"         validate:"omitempty,module_name"`
	UnavailableController    string `koanf:"unavailable_controller"     validate:"omitempty,controller_name"`
}

// DispatcherConfig tunes container creation and forwarding.
type DispatcherConfig struct {
	MaxExecutions     int               `koanf:"max_executions"      validate:"min=1" env:"DISPATCHER_MAX_EXECUTIONS"`
	DefaultOutputType string            `koanf:"default_output_type" validate:"required" env:"DISPATCHER_DEFAULT_OUTPUT_TYPE"`
	RequestMethods    map[string]string `koanf:"request_methods"`
}

// ValidationConfig configures the validation manager.
type ValidationConfig struct {
	Mode       string         `koanf:"mode"       validate:"oneof=relaxed strict" env:"VALIDATION_MODE"`
	Severities map[string]int `koanf:"severities"`
	CacheSize  int            `koanf:"cache_size" validate:"min=1"                env:"VALIDATION_CACHE_SIZE"`
}

// FilterConfig declares one controller filter loaded into every matching chain.
type FilterConfig struct {
	Name       string         `koanf:"name"       validate:"required"`
	Phase      string         `koanf:"phase"      validate:"omitempty,oneof=controller global"`
	Module     string         `koanf:"module"     validate:"omitempty,module_name"`
	Enabled    *bool          `koanf:"enabled"`
	Parameters map[string]any `koanf:"parameters"`
}

// IsEnabled treats a missing flag as enabled.
func (f FilterConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"             validate:"required"        env:"SERVER_HOST"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535" env:"SERVER_PORT"`
	Timeout         time.Duration `koanf:"timeout"                                     env:"SERVER_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"                            env:"SERVER_SHUTDOWN_TIMEOUT"`
	CORSEnabled     bool          `koanf:"cors_enabled"                                env:"SERVER_CORS_ENABLED"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// FullAddress returns host:port.
func (s ServerConfig) FullAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig controls the storage backing authenticated users.
type SessionConfig struct {
	Driver     string        `koanf:"driver"      validate:"oneof=memory redis sqlite postgres" env:"SESSION_DRIVER"`
	CookieName string        `koanf:"cookie_name" validate:"required"           env:"SESSION_COOKIE_NAME"`
	TTL        time.Duration `koanf:"ttl"                                       env:"SESSION_TTL"`
	Prefix     string        `koanf:"prefix"                                    env:"SESSION_PREFIX"`
}

// RedisConfig contains the connection settings for the redis session driver.
type RedisConfig struct {
	URL         string          `koanf:"url"          env:"REDIS_URL"`
	Addr        string          `koanf:"addr"         env:"REDIS_ADDR"`
	Password    SensitiveString `koanf:"password"     env:"REDIS_PASSWORD" sensitive:"true"`
	DB          int             `koanf:"db"           env:"REDIS_DB"`
	PingTimeout time.Duration   `koanf:"ping_timeout" env:"REDIS_PING_TIMEOUT"`
}

// DatabaseConfig contains the connection settings for the sqlite and
// postgres session drivers.
type DatabaseConfig struct {
	Path         string          `koanf:"path"           env:"DATABASE_PATH"`
	DSN          SensitiveString `koanf:"dsn"            env:"DATABASE_DSN"            sensitive:"true"`
	MaxOpenConns int             `koanf:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS" validate:"min=0"`
	BusyTimeout  time.Duration   `koanf:"busy_timeout"   env:"DATABASE_BUSY_TIMEOUT"`
}

// RateLimitConfig throttles requests per client IP. Module limits apply on
// top of the global limit.
type RateLimitConfig struct {
	Enabled        bool                     `koanf:"enabled"         env:"RATE_LIMIT_ENABLED"`
	Limit          int64                    `koanf:"limit"           env:"RATE_LIMIT_LIMIT"  validate:"min=0"`
	Period         time.Duration            `koanf:"period"          env:"RATE_LIMIT_PERIOD"`
	Modules        map[string]RateLimitRule `koanf:"modules"`
	Prefix         string                   `koanf:"prefix"          env:"RATE_LIMIT_PREFIX"`
	DisableHeaders bool                     `koanf:"disable_headers"`
	ExcludedPaths  []string                 `koanf:"excluded_paths"`
}

// RateLimitRule is one limit per period.
type RateLimitRule struct {
	Limit  int64         `koanf:"limit"  validate:"min=1"`
	Period time.Duration `koanf:"period"`
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" env:"METRICS_ENABLED"`
	Path    string `koanf:"path"    env:"METRICS_PATH"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error disabled" env:"LOG_LEVEL"`
	JSON  bool   `koanf:"json"                                                   env:"LOG_JSON"`
}

// SensitiveString hides its value when printed.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// MarshalJSON keeps secrets out of serialized configuration dumps.
func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Value returns the raw secret.
func (s SensitiveString) Value() string {
	return string(s)
}

// System forward types understood by SystemController.
const (
	SystemError404       = "error_404"
	SystemModuleDisabled = "module_disabled"
	SystemSecure         = "secure"
	SystemLogin          = "login"
	SystemUnavailable    = "unavailable"
)

// SystemController returns the module/controller pair configured as
// controllers.<kind>_module and controllers.<kind>_controller.
func (c *Config) SystemController(kind string) (string, string, bool) {
	ctl := c.Controllers
	switch kind {
	case SystemError404:
		return ctl.Error404Module, ctl.Error404Controller, true
	case SystemModuleDisabled:
		return ctl.ModuleDisabledModule, ctl.ModuleDisabledController, true
	case SystemSecure:
		return ctl.SecureModule, ctl.SecureController, true
	case SystemLogin:
		return ctl.LoginModule, ctl.LoginController, true
	case SystemUnavailable:
		return ctl.UnavailableModule, ctl.UnavailableController, true
	default:
		return "", "", false
	}
}

// RequestMethod maps an HTTP verb onto the request method name used for
// handler lookup. Unknown verbs fall back to the lower-cased verb.
func (c *Config) RequestMethod(httpMethod string) string {
	if m, ok := c.Dispatcher.RequestMethods[httpMethod]; ok && m != "" {
		return m
	}
	if m, ok := defaultRequestMethods[httpMethod]; ok {
		return m
	}
	return strings.ToLower(httpMethod)
}

var defaultRequestMethods = map[string]string{
	"GET":    "read",
	"HEAD":   "read",
	"POST":   "write",
	"PUT":    "create",
	"DELETE": "remove",
}

// Service defines the configuration management service interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type that provided a specific configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Watch monitors the source for changes.
	Watch(ctx context.Context, callback func()) error
	// Type returns the source type identifier.
	Type() SourceType
	// Close releases any resources held by the source.
	Close() error
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Default returns a Config with default values for development.
func Default() *Config {
	return &Config{
		Core: CoreConfig{
			Available:   true,
			UseSecurity: true,
			Environment: "development",
			AppDir:      "app",
		},
		Controllers: ControllersConfig{
			DefaultModule:            "Default",
			DefaultController:        "Index",
			Error404Module:           "Default",
			Error404Controller:       "Error404",
			ModuleDisabledModule:     "Default",
			ModuleDisabledController: "ModuleDisabled",
			SecureModule:             "Default",
			SecureController:         "Secure",
			LoginModule:              "Default",
			LoginController:          "Login",
			UnavailableModule:        "Default",
			UnavailableController:    "Unavailable",
		},
		Dispatcher: DispatcherConfig{
			MaxExecutions:     20,
			DefaultOutputType: "html",
			RequestMethods: map[string]string{
				"GET":    "read",
				"HEAD":   "read",
				"POST":   "write",
				"PUT":    "create",
				"DELETE": "remove",
			},
		},
		Validation: ValidationConfig{
			Mode:       "relaxed",
			Severities: map[string]int{},
			CacheSize:  128,
		},
		Filters: []FilterConfig{},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			Driver:     "memory",
			CookieName: "relay_session",
			TTL:        24 * time.Hour,
			Prefix:     "relay:session:",
		},
		Database: DatabaseConfig{
			Path:         "relay.db",
			MaxOpenConns: 4,
			BusyTimeout:  5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PingTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       false,
			Limit:         100,
			Period:        time.Minute,
			Modules:       map[string]RateLimitRule{},
			Prefix:        "relay:ratelimit:",
			ExcludedPaths: []string{"/metrics", "/health"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
