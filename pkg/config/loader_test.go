package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load(t *testing.T) {
	t.Run("Should load default configuration when no sources provided", func(t *testing.T) {
		cfg, err := NewService().Load(t.Context())
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 20, cfg.Dispatcher.MaxExecutions)
		assert.Equal(t, "Default", cfg.Controllers.DefaultModule)
	})

	t.Run("Should apply sources in precedence order", func(t *testing.T) {
		yamlSource := &mockSource{
			data: map[string]any{
				"server": map[string]any{
					"host": "yaml.example.com",
					"port": 9001,
				},
			},
			sourceType: SourceYAML,
		}
		cliSource := &mockSource{
			data: map[string]any{
				"server": map[string]any{
					"host": "cli.example.com",
				},
			},
			sourceType: SourceCLI,
		}
		svc := NewService()
		cfg, err := svc.Load(t.Context(), cliSource, yamlSource)
		require.NoError(t, err)
		assert.Equal(t, "cli.example.com", cfg.Server.Host)
		assert.Equal(t, 9001, cfg.Server.Port)
		assert.Equal(t, SourceCLI, svc.GetSource("server.host"))
		assert.Equal(t, SourceYAML, svc.GetSource("server.port"))
		assert.Equal(t, SourceDefault, svc.GetSource("server.timeout"))
	})

	t.Run("Should let environment variables override YAML but not CLI", func(t *testing.T) {
		t.Setenv("RELAY_SERVER_PORT", "7070")
		t.Setenv("RELAY_DISPATCHER_MAX_EXECUTIONS", "5")
		t.Setenv("RELAY_CORE_USE_SECURITY", "false")
		yamlSource := &mockSource{
			data:       map[string]any{"server": map[string]any{"port": 9001}},
			sourceType: SourceYAML,
		}
		cliSource := &mockSource{
			data:       map[string]any{"dispatcher": map[string]any{"max_executions": 3}},
			sourceType: SourceCLI,
		}
		svc := NewService()
		cfg, err := svc.Load(t.Context(), yamlSource, cliSource)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, 3, cfg.Dispatcher.MaxExecutions)
		assert.False(t, cfg.Core.UseSecurity)
		assert.Equal(t, SourceEnv, svc.GetSource("server.port"))
	})

	t.Run("Should validate configuration after loading", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"server": map[string]any{"port": 99999}},
			sourceType: SourceYAML,
		}
		cfg, err := NewService().Load(t.Context(), source)
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("Should surface source errors", func(t *testing.T) {
		source := &mockSource{loadErr: errors.New("boom"), sourceType: SourceYAML}
		_, err := NewService().Load(t.Context(), source)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("Should parse duration strings", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"session": map[string]any{"ttl": "90m"}},
			sourceType: SourceYAML,
		}
		cfg, err := NewService().Load(t.Context(), source)
		require.NoError(t, err)
		assert.Equal(t, 90*time.Minute, cfg.Session.TTL)
	})

	t.Run("Should load filters and controller names from a YAML file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "relay.yaml")
		content := `
core:
  use_security: false
controllers:
  default_module: Shop
  default_controller: Catalog
dispatcher:
  request_methods:
    PATCH: update
filters:
  - name: timing
    phase: controller
  - name: audit
    module: Shop
    enabled: false
    parameters:
      level: high
redis:
  password: s3cret
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		cfg, err := NewService().Load(t.Context(), NewYAMLProvider(path))
		require.NoError(t, err)
		assert.False(t, cfg.Core.UseSecurity)
		assert.Equal(t, "Shop", cfg.Controllers.DefaultModule)
		assert.Equal(t, "Catalog", cfg.Controllers.DefaultController)
		assert.Equal(t, "Login", cfg.Controllers.LoginController)
		assert.Equal(t, "update", cfg.RequestMethod("PATCH"))
		require.Len(t, cfg.Filters, 2)
		assert.Equal(t, "timing", cfg.Filters[0].Name)
		assert.True(t, cfg.Filters[0].IsEnabled())
		assert.Equal(t, "Shop", cfg.Filters[1].Module)
		assert.False(t, cfg.Filters[1].IsEnabled())
		assert.Equal(t, "high", cfg.Filters[1].Parameters["level"])
		assert.Equal(t, "s3cret", cfg.Redis.Password.Value())
	})
}

func TestManager(t *testing.T) {
	t.Run("Should notify callbacks only when configuration changes", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"server": map[string]any{"port": 9001}},
			sourceType: SourceYAML,
		}
		m := NewManager(nil)
		calls := 0
		m.OnChange(func(*Config) { calls++ })
		_, err := m.Load(t.Context(), source)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)

		require.NoError(t, m.Reload(t.Context()))
		assert.Equal(t, 1, calls)

		source.data = map[string]any{"server": map[string]any{"port": 9002}}
		require.NoError(t, m.Reload(t.Context()))
		assert.Equal(t, 2, calls)
		assert.Equal(t, 9002, m.Get().Server.Port)
		require.NoError(t, m.Close(t.Context()))
	})

	t.Run("Should keep the previous configuration when reload fails", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"server": map[string]any{"port": 9001}},
			sourceType: SourceYAML,
		}
		m := NewManager(nil)
		_, err := m.Load(t.Context(), source)
		require.NoError(t, err)
		source.data = map[string]any{"server": map[string]any{"port": -1}}
		require.Error(t, m.Reload(t.Context()))
		assert.Equal(t, 9001, m.Get().Server.Port)
		require.NoError(t, m.Close(t.Context()))
	})

	t.Run("Should be reachable through the context", func(t *testing.T) {
		m := NewManager(nil)
		_, err := m.Load(t.Context(), &mockSource{
			data:       map[string]any{"core": map[string]any{"environment": "staging"}},
			sourceType: SourceYAML,
		})
		require.NoError(t, err)
		ctx := ContextWithManager(t.Context(), m)
		assert.Same(t, m, ManagerFromContext(ctx))
		assert.Equal(t, "staging", FromContext(ctx).Core.Environment)
		require.NoError(t, m.Close(ctx))
	})

	t.Run("Should fall back to defaults without a manager in context", func(t *testing.T) {
		cfg := FromContext(context.Background())
		require.NotNil(t, cfg)
		assert.Equal(t, "Default", cfg.Controllers.DefaultModule)
	})
}

// mockSource is a test implementation of the Source interface
type mockSource struct {
	data       map[string]any
	sourceType SourceType
	loadErr    error
}

func (m *mockSource) Load() (map[string]any, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data, nil
}

func (m *mockSource) Watch(_ context.Context, _ func()) error {
	return nil
}

func (m *mockSource) Type() SourceType {
	return m.sourceType
}

func (m *mockSource) Close() error {
	return nil
}

func TestTransformEnvKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"SERVER_PORT", "server.port"},
		{"DISPATCHER_MAX_EXECUTIONS", "dispatcher.max_executions"},
		{"CORE", "core"},
		{"__CORE__APP_DIR_", "core.app_dir"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run("Should transform "+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, transformEnvKey(tt.input))
		})
	}
}
