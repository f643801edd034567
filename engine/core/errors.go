package core

import (
	"errors"
	"fmt"
)

// Signals returned by module lookups. The dispatcher turns them into system
// forwards instead of surfacing them to the client.
var (
	ErrModuleDisabled     = errors.New("module is disabled")
	ErrControllerNotFound = errors.New("controller not found")
	ErrViewNotFound       = errors.New("view not found")
)

var (
	ErrUnknownForwardType = errors.New("unknown system forward type")
	ErrRequestLocked      = errors.New("request data is locked")
	ErrInvalidLockKey     = errors.New("invalid request lock key")
	ErrTooManyExecutions  = errors.New("too many executions")
	ErrUnknownOutputType  = errors.New("unknown output type")
	ErrUnknownContext     = errors.New("unknown context")
)

// ConfigurationError reports an application misconfiguration that the
// dispatcher cannot recover from.
type ConfigurationError struct {
	Key     string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Key != "" {
		msg = fmt.Sprintf("%s (%s)", e.Message, e.Key)
	}
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", msg, e.Err)
	}
	return "configuration error: " + msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NameKind identifies which kind of name failed validation.
type NameKind string

const (
	NameModule     NameKind = "module"
	NameController NameKind = "controller"
	NameView       NameKind = "view"
)

// NameError reports a module, controller or view name rejected by the
// name patterns.
type NameError struct {
	Kind NameKind
	Name string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid %s name %q", e.Kind, e.Name)
}

// LookupError annotates a module lookup failure with the requested target.
type LookupError struct {
	Module string
	Name   string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Module, e.Name, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
