package validation

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
)

// Severity ranks the outcome of a validator run. Higher is worse.
type Severity int

const (
	NotProcessed Severity = -1
	Success      Severity = 0
	Info         Severity = 100
	Silent       Severity = 200
	Notice       Severity = 300
	Error        Severity = 400
	Critical     Severity = 500
)

var builtinSeverities = map[string]Severity{
	"not_processed": NotProcessed,
	"none":          Success,
	"success":       Success,
	"info":          Info,
	"silent":        Silent,
	"notice":        Notice,
	"error":         Error,
	"critical":      Critical,
}

func (s Severity) String() string {
	switch s {
	case NotProcessed:
		return "not_processed"
	case Success:
		return "success"
	case Info:
		return "info"
	case Silent:
		return "silent"
	case Notice:
		return "notice"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return strconv.Itoa(int(s))
	}
}

// Passed reports whether a manager result lets the controller execute.
// Info, silent and notice incidents are recorded but do not fail a run.
func (s Severity) Passed() bool {
	return s < Error
}

// Severities resolves severity names, including application defined ones.
type Severities struct {
	mu    sync.RWMutex
	names map[string]Severity
}

// NewSeverities creates a table of the built-in severities extended by
// custom, which maps extra names onto numeric ranks.
func NewSeverities(custom map[string]int) *Severities {
	s := &Severities{names: maps.Clone(builtinSeverities)}
	for name, rank := range custom {
		s.names[strings.ToLower(name)] = Severity(rank)
	}
	return s
}

// Parse resolves a severity name or a numeric rank.
func (s *Severities) Parse(name string) (Severity, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	s.mu.RLock()
	v, ok := s.names[key]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}
	if n, err := strconv.Atoi(key); err == nil {
		return Severity(n), nil
	}
	return Success, fmt.Errorf("%w: unknown severity %q", ErrInvalidParameter, name)
}
