package config

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIProvider(t *testing.T) {
	t.Run("Should map known flags onto configuration paths", func(t *testing.T) {
		data, err := NewCLIProvider(map[string]any{
			"port":      9000,
			"log-level": "debug",
			"unknown":   true,
		}).Load()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"server": map[string]any{"port": 9000},
			"log":    map[string]any{"level": "debug"},
		}, data)
	})

	t.Run("Should return empty data for nil flags", func(t *testing.T) {
		data, err := NewCLIProvider(nil).Load()
		require.NoError(t, err)
		assert.Empty(t, data)
	})
}

func TestSetNested(t *testing.T) {
	t.Run("Should report path conflicts", func(t *testing.T) {
		m := map[string]any{"server": "flat"}
		err := setNested(m, "server.port", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server")
	})
}

func TestYAMLProvider(t *testing.T) {
	t.Run("Should return empty data for a missing file", func(t *testing.T) {
		data, err := NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")).Load()
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("Should drop null values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  host: ~\n  port: 81\nlog: ~\n"), 0o600))
		data, err := NewYAMLProvider(path).Load()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"server": map[string]any{"port": 81}}, data)
	})

	t.Run("Should fail on malformed YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
		_, err := NewYAMLProvider(path).Load()
		assert.Error(t, err)
	})

	t.Run("Should invoke every callback registered through Watch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))
		provider := NewYAMLProvider(path)
		defer provider.Close()

		var wg sync.WaitGroup
		wg.Add(2)
		var count int32
		var first, second sync.Once
		require.NoError(t, provider.Watch(t.Context(), func() {
			first.Do(func() {
				atomic.AddInt32(&count, 1)
				wg.Done()
			})
		}))
		require.NoError(t, provider.Watch(t.Context(), func() {
			second.Do(func() {
				atomic.AddInt32(&count, 10)
				wg.Done()
			})
		}))
		go func() {
			<-time.After(20 * time.Millisecond)
			_ = os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600)
		}()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for callbacks")
		}
		assert.Equal(t, int32(11), atomic.LoadInt32(&count))
	})
}

func TestDefaultProvider(t *testing.T) {
	t.Run("Should expose defaults as a nested map", func(t *testing.T) {
		src := NewDefaultProvider()
		data, err := src.Load()
		require.NoError(t, err)
		assert.Equal(t, SourceDefault, src.Type())
		server, ok := data["server"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 8080, server["port"])
	})
}
