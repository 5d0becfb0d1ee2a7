package presence

import (
	"testing"

	"github.com/huddle/room-app/internal/identity"
)

// ---------------------------------------------------------------------------
// Test: Snapshot counts distinct identities, not connections
// ---------------------------------------------------------------------------

func TestSnapshotDedupsIdentities(t *testing.T) {
	reg := identity.NewRegistry("")
	reg.Authenticate("c1", "Ana", "", "")
	reg.Authenticate("c2", "Ana", "", "")
	reg.Authenticate("c3", "Ben", "", "")

	snap := NewAggregator(reg).Snapshot()
	if snap.Total != 2 {
		t.Fatalf("expected total 2, got %d", snap.Total)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %v", snap.Entries)
	}

	// Entries are sorted by name.
	if snap.Entries[0].Name != "Ana" || snap.Entries[0].Count != 2 {
		t.Errorf("unexpected first entry: %+v", snap.Entries[0])
	}
	if snap.Entries[1].Name != "Ben" || snap.Entries[1].Count != 1 {
		t.Errorf("unexpected second entry: %+v", snap.Entries[1])
	}
}

func TestSnapshotEmptyRoom(t *testing.T) {
	snap := NewAggregator(identity.NewRegistry("")).Snapshot()
	if snap.Total != 0 || len(snap.Entries) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

// ---------------------------------------------------------------------------
// Test: Typing set — set, clear, deterministic order
// ---------------------------------------------------------------------------

func TestTypingSet(t *testing.T) {
	a := NewAggregator(identity.NewRegistry(""))

	a.SetTyping("Ben", true)
	a.SetTyping("Ana", true)

	if got := a.TypingUsers(); len(got) != 2 || got[0] != "Ana" || got[1] != "Ben" {
		t.Fatalf("unexpected typing set: %v", got)
	}

	a.SetTyping("Ana", false)
	if got := a.TypingUsers(); len(got) != 1 || got[0] != "Ben" {
		t.Fatalf("unexpected typing set after stop: %v", got)
	}

	// Clearing twice is harmless.
	a.ClearTyping("Ben")
	a.ClearTyping("Ben")
	if got := a.TypingUsers(); len(got) != 0 {
		t.Errorf("expected empty typing set, got %v", got)
	}
}
