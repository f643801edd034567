package logger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(level LogLevel) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewLogger(&Config{Level: level, Output: buf, JSON: true}), buf
}

func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
		out = append(out, e)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug":    DebugLevel,
		" WARN ":   WarnLevel,
		"error":    ErrorLevel,
		"disabled": DisabledLevel,
		"info":     InfoLevel,
		"verbose":  InfoLevel,
		"":         InfoLevel,
	} {
		t.Run("Should parse "+in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestLogLevel_ToCharmlogLevel(t *testing.T) {
	t.Run("Should map every level", func(t *testing.T) {
		for level, want := range map[LogLevel]charmlog.Level{
			DebugLevel: charmlog.DebugLevel,
			InfoLevel:  charmlog.InfoLevel,
			WarnLevel:  charmlog.WarnLevel,
			ErrorLevel: charmlog.ErrorLevel,
			NoLevel:    charmlog.InfoLevel,
		} {
			assert.Equal(t, want, level.ToCharmlogLevel(), level.String())
		}
		disabled := DisabledLevel
		assert.Greater(t, disabled.ToCharmlogLevel(), charmlog.FatalLevel)
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("Should drop entries below the level", func(t *testing.T) {
		log, buf := jsonLogger(WarnLevel)
		log.Debug("hidden")
		log.Info("hidden")
		log.Warn("shown", "module", "Shop")
		log.Error("shown too")
		got := entries(t, buf)
		require.Len(t, got, 2)
		assert.Equal(t, "shown", got[0]["msg"])
		assert.Equal(t, "Shop", got[0]["module"])
		assert.Equal(t, "error", got[1]["level"])
	})

	t.Run("Should write nothing when disabled", func(t *testing.T) {
		log, buf := jsonLogger(DisabledLevel)
		log.Error("nobody hears this")
		assert.Zero(t, buf.Len())
	})

	t.Run("Should carry fields added with With", func(t *testing.T) {
		log, buf := jsonLogger(DebugLevel)
		scoped := log.With("component", "dispatcher", "context", "relay")
		scoped.Debug("Dispatch finished", "controller", "Index")
		log.Debug("unscoped")
		got := entries(t, buf)
		require.Len(t, got, 2)
		assert.Equal(t, "dispatcher", got[0]["component"])
		assert.Equal(t, "Index", got[0]["controller"])
		assert.NotContains(t, got[1], "component")
	})

	t.Run("Should fall back to defaults without config", func(t *testing.T) {
		assert.NotNil(t, NewLogger(nil))
		assert.NotNil(t, NewLogger(&Config{Level: InfoLevel}))
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should return the logger stored in the context", func(t *testing.T) {
		log, _ := jsonLogger(InfoLevel)
		assert.Same(t, log, FromContext(ContextWithLogger(t.Context(), log)))
	})

	t.Run("Should return the default logger otherwise", func(t *testing.T) {
		assert.Same(t, GetDefault(), FromContext(t.Context()))
		//nolint:staticcheck // a nil context is accepted
		assert.Same(t, GetDefault(), FromContext(nil))
		assert.Same(t, GetDefault(), FromContext(context.WithValue(t.Context(), LoggerCtxKey, "not a logger")))
	})
}

func TestSetDefault(t *testing.T) {
	t.Run("Should replace the default and ignore nil", func(t *testing.T) {
		prev := GetDefault()
		t.Cleanup(func() { SetDefault(prev) })
		log, buf := jsonLogger(InfoLevel)
		SetDefault(log)
		SetDefault(nil)
		Info("through the package helper", "key", "value")
		got := entries(t, buf)
		require.Len(t, got, 1)
		assert.Equal(t, "value", got[0]["key"])
	})
}

func TestIsTestEnvironment(t *testing.T) {
	t.Run("Should detect go test binaries", func(t *testing.T) {
		assert.True(t, IsTestEnvironment())
	})
}

func TestSetup(t *testing.T) {
	newCmd := func(args ...string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
		cmd := &cobra.Command{Use: "relay"}
		cmd.Flags().Bool("log-source", false, "")
		require.NoError(t, cmd.Flags().Parse(args))
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		cmd.SetOut(stdout)
		cmd.SetErr(stderr)
		return cmd, stdout, stderr
	}

	t.Run("Should log to the error stream at the configured level", func(t *testing.T) {
		prev := GetDefault()
		t.Cleanup(func() { SetDefault(prev) })
		cmd, stdout, stderr := newCmd()
		log, err := Setup(cmd, "warn", true)
		require.NoError(t, err)
		log.Info("hidden")
		log.Warn("Sessions are kept in memory")
		assert.Zero(t, stdout.Len())
		got := entries(t, stderr)
		require.Len(t, got, 1)
		assert.Equal(t, "Sessions are kept in memory", got[0]["msg"])
		assert.Same(t, log, GetDefault())
	})

	t.Run("Should report the caller with log-source", func(t *testing.T) {
		prev := GetDefault()
		t.Cleanup(func() { SetDefault(prev) })
		cmd, _, stderr := newCmd("--log-source")
		log, err := Setup(cmd, "info", true)
		require.NoError(t, err)
		log.Info("with caller")
		got := entries(t, stderr)
		require.Len(t, got, 1)
		assert.Contains(t, got[0]["caller"], ".go:")
	})

	t.Run("Should fail without the log-source flag", func(t *testing.T) {
		_, err := Setup(&cobra.Command{Use: "bare"}, "info", false)
		assert.ErrorContains(t, err, "log-source")
	})
}
