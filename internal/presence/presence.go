// Package presence derives the room's online list from the connection
// registry and tracks the set of currently-typing participants. Presence is
// recomputed on every registry change rather than stored independently.
package presence

import (
	"sort"
	"sync"

	"github.com/huddle/room-app/internal/identity"
	"github.com/huddle/room-app/internal/protocol"
)

// Aggregator produces presence snapshots and maintains typing state. Typing
// liveness has no server-side timeout: the client emits isTyping=false after
// its inactivity window, and the aggregator clears an identity's flag when
// its connection count drops to zero.
type Aggregator struct {
	reg *identity.Registry

	mu     sync.RWMutex
	typing map[string]bool // display name -> typing
}

// NewAggregator creates an aggregator reading from the given registry.
func NewAggregator(reg *identity.Registry) *Aggregator {
	return &Aggregator{
		reg:    reg,
		typing: make(map[string]bool),
	}
}

// Snapshot returns the online list: one entry per distinct identity with its
// open connection count, sorted by name for deterministic payloads. Total is
// the distinct-identity count, not the connection count.
func (a *Aggregator) Snapshot() protocol.PresenceUpdateMsg {
	counts := a.reg.Counts()

	entries := make([]protocol.PresenceEntry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, protocol.PresenceEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return protocol.PresenceUpdateMsg{
		Entries: entries,
		Total:   len(entries),
	}
}

// SetTyping records whether name is currently typing.
func (a *Aggregator) SetTyping(name string, isTyping bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if isTyping {
		a.typing[name] = true
	} else {
		delete(a.typing, name)
	}
}

// ClearTyping drops name from the typing set. Called when an identity's last
// connection closes so the indicator cannot stick, and on rename.
func (a *Aggregator) ClearTyping(name string) {
	a.mu.Lock()
	delete(a.typing, name)
	a.mu.Unlock()
}

// TypingUsers returns the sorted list of currently-typing display names.
func (a *Aggregator) TypingUsers() []string {
	a.mu.RLock()
	users := make([]string, 0, len(a.typing))
	for name := range a.typing {
		users = append(users, name)
	}
	a.mu.RUnlock()

	sort.Strings(users)
	return users
}
