package identity

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Password checking — guarded room vs open room
// ---------------------------------------------------------------------------

func TestAuthenticatePassword(t *testing.T) {
	r := NewRegistry("hunter2")

	if _, err := r.Authenticate("c1", "Ana", "wrong", ""); err != ErrBadPassword {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
	if _, ok := r.Identity("c1"); ok {
		t.Error("failed auth left a binding behind")
	}

	id, err := r.Authenticate("c1", "Ana", "hunter2", "a.png")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if id.Name != "Ana" || id.Avatar != "a.png" {
		t.Errorf("unexpected identity: %+v", id)
	}

	// An empty secret means the room is open.
	open := NewRegistry("")
	if _, err := open.Authenticate("c1", "Ben", "anything", ""); err != nil {
		t.Errorf("open room rejected join: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: Name sanitization — trim, cap, guest fallback
// ---------------------------------------------------------------------------

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("  Ana  "); got != "Ana" {
		t.Errorf("expected trimmed name, got %q", got)
	}

	long := strings.Repeat("x", MaxNameRunes+10)
	if got := SanitizeName(long); len([]rune(got)) != MaxNameRunes {
		t.Errorf("expected %d runes, got %d", MaxNameRunes, len([]rune(got)))
	}

	for _, bad := range []string{"", "   ", string([]byte{0xff, 0xfe})} {
		got := SanitizeName(bad)
		if !strings.HasPrefix(got, "Guest-") {
			t.Errorf("SanitizeName(%q): expected guest fallback, got %q", bad, got)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: One identity, several tabs
// ---------------------------------------------------------------------------

func TestMultiTabCounts(t *testing.T) {
	r := NewRegistry("")
	r.Authenticate("c1", "Ana", "", "")
	r.Authenticate("c2", "Ana", "", "")
	r.Authenticate("c3", "Ben", "", "")

	if got := r.Count("Ana"); got != 2 {
		t.Errorf("expected 2 connections for Ana, got %d", got)
	}

	conns := r.Connections("Ana")
	if len(conns) != 2 {
		t.Fatalf("expected 2 connection ids, got %v", conns)
	}

	counts := r.Counts()
	if counts["Ana"] != 2 || counts["Ben"] != 1 || len(counts) != 2 {
		t.Errorf("unexpected counts: %v", counts)
	}

	// Closing one tab leaves the identity bound on the other.
	if id, ok := r.Remove("c1"); !ok || id.Name != "Ana" {
		t.Fatalf("remove: %v %v", id, ok)
	}
	if got := r.Count("Ana"); got != 1 {
		t.Errorf("expected 1 connection after remove, got %d", got)
	}

	if _, ok := r.Remove("c1"); ok {
		t.Error("double remove reported a binding")
	}
}

// ---------------------------------------------------------------------------
// Test: Profile updates rebind a single connection
// ---------------------------------------------------------------------------

func TestUpdateProfile(t *testing.T) {
	r := NewRegistry("")
	r.Authenticate("c1", "Ana", "", "a.png")
	r.Authenticate("c2", "Ana", "", "a.png")

	old, updated, err := r.UpdateProfile("c1", "Anna", "b.png")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if old.Name != "Ana" || updated.Name != "Anna" || updated.Avatar != "b.png" {
		t.Errorf("unexpected rename: old=%+v updated=%+v", old, updated)
	}

	// The other tab kept the old identity.
	if id, _ := r.Identity("c2"); id.Name != "Ana" {
		t.Errorf("rename leaked to another connection: %+v", id)
	}

	// Empty fields keep current values.
	_, updated, err = r.UpdateProfile("c1", "  ", "")
	if err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if updated.Name != "Anna" || updated.Avatar != "b.png" {
		t.Errorf("no-op update changed identity: %+v", updated)
	}

	if _, _, err := r.UpdateProfile("ghost", "X", ""); err != ErrNotAuthenticated {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: Re-authentication replaces the binding
// ---------------------------------------------------------------------------

func TestReauthenticateRebinds(t *testing.T) {
	r := NewRegistry("")
	r.Authenticate("c1", "Ana", "", "")
	r.Authenticate("c1", "Ben", "", "")

	if id, _ := r.Identity("c1"); id.Name != "Ben" {
		t.Errorf("expected rebind to Ben, got %+v", id)
	}
	if got := r.Count("Ana"); got != 0 {
		t.Errorf("stale binding for Ana: %d", got)
	}
}
