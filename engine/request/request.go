package request

import (
	"context"
	"fmt"
	"sync"

	"github.com/compozy/relay/engine/core"
	"github.com/google/uuid"
)

// Request is the global object of one HTTP request cycle. Its data is
// shared read-mostly by every container of a forward chain.
type Request struct {
	id     string
	method string
	data   *DataHolder
	attrs  *AttributeHolder

	mu       sync.Mutex
	lockKey  string
	guards   int
	locks    int
	releases int
}

// New creates a request for the given request method name.
func New(method string, data *DataHolder) *Request {
	if data == nil {
		data = NewDataHolder()
	}
	return &Request{
		id:     uuid.NewString(),
		method: method,
		data:   data,
		attrs:  NewAttributeHolder(),
	}
}

// ID returns the unique id of the request.
func (r *Request) ID() string {
	return r.id
}

// Method returns the request method name, e.g. "read" or "write".
func (r *Request) Method() string {
	return r.method
}

// Attributes returns the legacy attribute holder of the request.
func (r *Request) Attributes() *AttributeHolder {
	return r.attrs
}

// Data returns the global request data whether or not the request is
// locked. The dispatcher captures it once per exchange; handlers work on
// the request data of their container.
func (r *Request) Data() *DataHolder {
	return r.data
}

// RequestData returns the global request data. It fails while a controller
// handler holds the lock.
func (r *Request) RequestData() (*DataHolder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockKey != "" {
		return nil, core.ErrRequestLocked
	}
	return r.data, nil
}

// Lock locks the request and returns the key needed to unlock it.
func (r *Request) Lock() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockKey != "" {
		return "", core.ErrRequestLocked
	}
	r.lockKey = uuid.NewString()
	r.locks++
	return r.lockKey, nil
}

// Unlock releases the lock obtained with key.
func (r *Request) Unlock(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockKey == "" || r.lockKey != key {
		return core.ErrInvalidLockKey
	}
	r.lockKey = ""
	r.releases++
	return nil
}

// Locked reports whether the request is currently locked.
func (r *Request) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lockKey != ""
}

// LockStats returns how often the request was locked and released.
func (r *Request) LockStats() (locks, releases int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks, r.releases
}

// Guard runs fn with the request locked. The lock is released on every
// exit path, including a panic unwinding through fn. A Guard nested in a
// running Guard, as when a handler executes another container, runs fn
// under the lock already held.
func (r *Request) Guard(fn func() error) (err error) {
	r.mu.Lock()
	if r.guards > 0 {
		r.guards++
		r.mu.Unlock()
		defer func() {
			r.mu.Lock()
			r.guards--
			r.mu.Unlock()
		}()
		return fn()
	}
	r.mu.Unlock()
	key, err := r.Lock()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.guards = 1
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.guards = 0
		r.mu.Unlock()
		if uerr := r.Unlock(key); uerr != nil && err == nil {
			err = fmt.Errorf("failed to release request lock: %w", uerr)
		}
	}()
	return fn()
}

type ctxKey struct{}

// ContextWithRequest stores the request in ctx.
func ContextWithRequest(ctx context.Context, r *Request) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the request carried by ctx.
func FromContext(ctx context.Context) (*Request, bool) {
	r, ok := ctx.Value(ctxKey{}).(*Request)
	return r, ok && r != nil
}
