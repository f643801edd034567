package user

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/compozy/relay/engine/storage"
	"github.com/google/uuid"
)

// User is the security user of one session: an authenticated flag, the
// credentials granted to it and free form attributes.
type User struct {
	mu            sync.RWMutex
	id            string
	authenticated bool
	credentials   map[string]struct{}
	attributes    map[string]any
}

// New creates an anonymous user for session id.
func New(id string) *User {
	return &User{
		id:          id,
		credentials: make(map[string]struct{}),
		attributes:  make(map[string]any),
	}
}

// ID returns the session id.
func (u *User) ID() string {
	return u.id
}

// IsAuthenticated reports whether the user logged in.
func (u *User) IsAuthenticated() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.authenticated
}

// SetAuthenticated changes the authenticated flag. Logging out also drops
// every credential.
func (u *User) SetAuthenticated(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.authenticated = v
	if !v {
		clear(u.credentials)
	}
}

// AddCredential grants credentials.
func (u *User) AddCredential(creds ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, c := range creds {
		u.credentials[c] = struct{}{}
	}
}

// RemoveCredential revokes credentials.
func (u *User) RemoveCredential(creds ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, c := range creds {
		delete(u.credentials, c)
	}
}

// HasCredentials reports whether every credential is granted. An empty
// list is always satisfied.
func (u *User) HasCredentials(creds ...string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, c := range creds {
		if _, ok := u.credentials[c]; !ok {
			return false
		}
	}
	return true
}

// Credentials returns the sorted granted credentials.
func (u *User) Credentials() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return slices.Sorted(maps.Keys(u.credentials))
}

// Attribute returns a user attribute.
func (u *User) Attribute(name string) (any, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	v, ok := u.attributes[name]
	return v, ok
}

// SetAttribute stores a user attribute.
func (u *User) SetAttribute(name string, value any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.attributes[name] = value
}

type snapshot struct {
	Authenticated bool           `json:"authenticated"`
	Credentials   []string       `json:"credentials,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// Store loads and saves users in a storage keyed by session id.
type Store struct {
	storage storage.Storage
	ttl     time.Duration
}

// NewStore creates a store keeping users for ttl.
func NewStore(s storage.Storage, ttl time.Duration) *Store {
	return &Store{storage: s, ttl: ttl}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Load returns the user of session id, or an anonymous one when nothing
// is stored.
func (s *Store) Load(ctx context.Context, id string) (*User, error) {
	u := New(id)
	data, ok, err := s.storage.Read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", id, err)
	}
	if !ok {
		return u, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding user %s: %w", id, err)
	}
	u.authenticated = snap.Authenticated
	u.AddCredential(snap.Credentials...)
	maps.Copy(u.attributes, snap.Attributes)
	return u, nil
}

// Save persists u.
func (s *Store) Save(ctx context.Context, u *User) error {
	u.mu.RLock()
	snap := snapshot{
		Authenticated: u.authenticated,
		Credentials:   slices.Sorted(maps.Keys(u.credentials)),
		Attributes:    maps.Clone(u.attributes),
	}
	u.mu.RUnlock()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding user %s: %w", u.id, err)
	}
	return s.storage.Write(ctx, u.id, data, s.ttl)
}

// Delete removes the stored user of session id.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.storage.Remove(ctx, id)
}
