package identity

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxNameRunes is the display-name length cap applied after trimming.
const MaxNameRunes = 32

// Errors returned by registry operations.
var (
	ErrBadPassword      = errors.New("identity: bad password")
	ErrNotAuthenticated = errors.New("identity: connection not authenticated")
)

// Identity is a bound participant: a display name plus an opaque avatar
// reference the server passes through unvalidated.
type Identity struct {
	Name   string
	Avatar string
}

// binding ties a connection id to its identity.
type binding struct {
	identity Identity
	boundAt  time.Time
}

// Registry maps authenticated connections to identities. Passwords are
// checked against a single process-wide shared secret; an empty secret means
// the room is open and any password is accepted.
type Registry struct {
	mu       sync.RWMutex
	secret   string
	bindings map[string]*binding // connection id -> binding
}

// NewRegistry creates a registry guarding the room with the given shared
// secret.
func NewRegistry(secret string) *Registry {
	return &Registry{
		secret:   secret,
		bindings: make(map[string]*binding),
	}
}

// Authenticate validates the password and binds the sanitized display name to
// the connection. The comparison is constant-time. On failure the connection
// stays unauthenticated and may retry. Re-authenticating an already bound
// connection replaces its identity.
func (r *Registry) Authenticate(connID, claimedName, password, avatar string) (Identity, error) {
	if r.secret != "" {
		if subtle.ConstantTimeCompare([]byte(password), []byte(r.secret)) != 1 {
			return Identity{}, ErrBadPassword
		}
	}

	id := Identity{
		Name:   SanitizeName(claimedName),
		Avatar: avatar,
	}

	r.mu.Lock()
	r.bindings[connID] = &binding{identity: id, boundAt: time.Now()}
	r.mu.Unlock()
	return id, nil
}

// UpdateProfile renames the identity bound to connID and/or replaces its
// avatar. An empty username keeps the current name; an empty avatar keeps the
// current avatar. Only the one connection is rebound: other tabs of the same
// participant rename themselves independently.
func (r *Registry) UpdateProfile(connID, username, avatar string) (old, updated Identity, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[connID]
	if !ok {
		return Identity{}, Identity{}, ErrNotAuthenticated
	}

	old = b.identity
	if strings.TrimSpace(username) != "" {
		b.identity.Name = SanitizeName(username)
	}
	if avatar != "" {
		b.identity.Avatar = avatar
	}
	return old, b.identity, nil
}

// Remove unbinds the connection. It returns the identity it was bound to and
// whether the connection was authenticated at all.
func (r *Registry) Remove(connID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[connID]
	if !ok {
		return Identity{}, false
	}
	delete(r.bindings, connID)
	return b.identity, true
}

// Identity returns the identity bound to connID, if any.
func (r *Registry) Identity(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[connID]
	if !ok {
		return Identity{}, false
	}
	return b.identity, true
}

// Connections returns the ids of every connection bound to the given display
// name. Used for fan-out to all tabs of one participant.
func (r *Registry) Connections(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for connID, b := range r.bindings {
		if b.identity.Name == name {
			ids = append(ids, connID)
		}
	}
	return ids
}

// Count returns the number of open connections bound to name.
func (r *Registry) Count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, b := range r.bindings {
		if b.identity.Name == name {
			n++
		}
	}
	return n
}

// Counts returns the per-identity connection counts for every bound name.
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, b := range r.bindings {
		counts[b.identity.Name]++
	}
	return counts
}

// SanitizeName trims the claimed name and caps it at MaxNameRunes runes. An
// empty or invalid result falls back to a generated guest name.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || !utf8.ValidString(name) {
		return fmt.Sprintf("Guest-%04d", rand.IntN(10000))
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		runes := []rune(name)
		name = string(runes[:MaxNameRunes])
	}
	return name
}
