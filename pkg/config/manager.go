package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/compozy/relay/pkg/logger"
)

// Manager keeps the active configuration and replaces it when a watched
// source changes. Readers always see a complete configuration.
type Manager struct {
	Service Service

	current   atomic.Pointer[Config]
	mu        sync.Mutex
	sources   []Source
	stopWatch context.CancelFunc

	listenersMu sync.RWMutex
	listeners   []func(*Config)
	closeOnce   sync.Once
}

// NewManager creates a manager loading through service, the default
// service when nil.
func NewManager(service Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{Service: service}
}

// Load loads the configuration from sources, makes it current and starts
// watching the sources that support it.
func (m *Manager) Load(ctx context.Context, sources ...Source) (*Config, error) {
	cfg, err := m.Service.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	m.mu.Lock()
	m.sources = append([]Source(nil), sources...)
	if m.stopWatch != nil {
		m.stopWatch()
	}
	watchCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	m.stopWatch = stop
	m.mu.Unlock()

	m.apply(cfg)
	for _, src := range sources {
		m.watch(watchCtx, src)
	}
	return cfg, nil
}

// Get returns the current configuration, nil before Load.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Reload loads every source again. A configuration that fails to load or
// validate leaves the current one in place.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, err := m.Service.Load(ctx, m.sources...)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	m.apply(cfg)
	return nil
}

// OnChange registers fn to run with every configuration that differs from
// the previous one, including the first.
func (m *Manager) OnChange(fn func(*Config)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Close stops watching and closes the sources.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.stopWatch != nil {
			m.stopWatch()
		}
		for _, src := range m.sources {
			if src == nil {
				continue
			}
			if err := src.Close(); err != nil {
				logger.FromContext(ctx).Error("Failed to close configuration source", "source", src.Type(), "error", err)
			}
		}
	})
	return nil
}

func (m *Manager) watch(ctx context.Context, src Source) {
	if src == nil {
		return
	}
	log := logger.FromContext(ctx)
	err := src.Watch(ctx, func() {
		if err := m.Reload(ctx); err != nil {
			log.Error("Configuration reload rejected", "source", src.Type(), "error", err)
			return
		}
		log.Info("Configuration reloaded", "source", src.Type())
	})
	if err != nil {
		log.Debug("Source is not watched", "source", src.Type(), "error", err)
	}
}

func (m *Manager) apply(cfg *Config) {
	prev := m.current.Swap(cfg)
	if prev != nil && reflect.DeepEqual(prev, cfg) {
		return
	}
	m.listenersMu.RLock()
	listeners := append([]func(*Config){}, m.listeners...)
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}
