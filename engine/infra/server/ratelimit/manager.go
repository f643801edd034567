package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	globalScope     = "global"
	cleanUpInterval = 30 * time.Second
)

// Manager owns the limiters of the global and per-module rates over one
// shared store.
type Manager struct {
	config  *Config
	global  *limiter.Limiter
	modules map[string]*limiter.Limiter
}

// NewManager creates the limiters. A nil client keeps counters in memory.
func NewManager(cfg *Config, client redis.UniversalClient) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := newStore(cfg, client)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		config:  cfg,
		global:  limiter.New(store, cfg.GlobalRate.ToLimiterRate()),
		modules: make(map[string]*limiter.Limiter, len(cfg.ModuleRates)),
	}
	for module, rate := range cfg.ModuleRates {
		if rate.Disabled {
			continue
		}
		m.modules[module] = limiter.New(store, rate.ToLimiterRate())
	}
	return m, nil
}

func newStore(cfg *Config, client redis.UniversalClient) (limiter.Store, error) {
	opts := limiter.StoreOptions{
		Prefix:          cfg.Prefix,
		MaxRetry:        cfg.MaxRetry,
		CleanUpInterval: cleanUpInterval,
	}
	if client == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	return sredis.NewStoreWithOptions(client, opts)
}

func (m *Manager) excluded(path string) bool {
	for _, p := range m.config.ExcludedPaths {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// limiterFor returns the limiter of the requested module, falling back to
// the global one.
func (m *Manager) limiterFor(module string) (*limiter.Limiter, string) {
	if l, ok := m.modules[module]; ok {
		return l, module
	}
	if m.config.GlobalRate.Disabled {
		return nil, ""
	}
	return m.global, globalScope
}

// Middleware throttles requests per client IP.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.excluded(c.Request.URL.Path) {
			c.Next()
			return
		}
		l, scope := m.limiterFor(c.Param("module"))
		if l == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		res, err := l.Get(ctx, scope+":"+c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Error("Rate limiter unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}
		if !m.config.DisableHeaders {
			h := c.Writer.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))
		}
		if res.Reached {
			IncrementBlockedRequests(ctx, scope)
			problem := core.NormalizeProblem(&core.Problem{
				Status: http.StatusTooManyRequests,
				Detail: "rate limit exceeded",
				Extras: map[string]any{"code": "rate_limited"},
			})
			c.AbortWithStatusJSON(problem.Status, core.BuildProblemBody(problem))
			return
		}
		c.Next()
	}
}
