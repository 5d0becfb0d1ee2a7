package call

import "testing"

// pairSession opens a call as Ana/c1 and completes the pairing as Ben/c2.
func pairSession(t *testing.T) *Coordinator {
	t.Helper()
	c := NewCoordinator()

	res, err := c.RequestJoin("Ana", "", "c1")
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if !res.Started || res.Paired != nil {
		t.Fatalf("unexpected first join result: %+v", res)
	}

	res, err = c.RequestJoin("Ben", "", "c2")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if res.Started || res.Paired == nil {
		t.Fatalf("unexpected second join result: %+v", res)
	}
	return c
}

// ---------------------------------------------------------------------------
// Test: First requester is the caller; second join pairs
// ---------------------------------------------------------------------------

func TestPairingRoles(t *testing.T) {
	c := NewCoordinator()
	c.RequestJoin("Ana", "a.png", "c1")
	res, _ := c.RequestJoin("Ben", "b.png", "c2")

	p := res.Paired
	if p.Caller.Name != "Ana" || p.Caller.ConnID != "c1" {
		t.Errorf("unexpected caller: %+v", p.Caller)
	}
	if p.Callee.Name != "Ben" || p.Callee.ConnID != "c2" {
		t.Errorf("unexpected callee: %+v", p.Callee)
	}
}

// ---------------------------------------------------------------------------
// Test: Self-join and busy rejections leave the session untouched
// ---------------------------------------------------------------------------

func TestJoinRejections(t *testing.T) {
	c := NewCoordinator()
	c.RequestJoin("Ana", "", "c1")

	// Same identity from another tab while requesting.
	if _, err := c.RequestJoin("Ana", "", "c9"); err != ErrSelfJoin {
		t.Fatalf("expected ErrSelfJoin, got %v", err)
	}

	c.RequestJoin("Ben", "", "c2")

	// A third identity finds the room busy.
	if _, err := c.RequestJoin("Cat", "", "c3"); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	// Participants re-joining after pairing are self-joins, not busy.
	if _, err := c.RequestJoin("Ben", "", "c9"); err != ErrSelfJoin {
		t.Fatalf("expected ErrSelfJoin for participant, got %v", err)
	}

	// The rejections did not disturb the pairing.
	if active, user := c.Status(); !active || user != "Ana" {
		t.Errorf("session disturbed: active=%v user=%q", active, user)
	}
}

// ---------------------------------------------------------------------------
// Test: Leave before pairing cancels; leave after pairing names the peer
// ---------------------------------------------------------------------------

func TestLeave(t *testing.T) {
	c := NewCoordinator()
	c.RequestJoin("Ana", "", "c1")

	res, err := c.Leave("c1")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if !res.Cancelled || res.PeerConnID != "" {
		t.Fatalf("expected cancellation, got %+v", res)
	}
	if active, _ := c.Status(); active {
		t.Fatal("session survived cancellation")
	}

	c = pairSession(t)
	res, err = c.Leave("c2")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if res.Cancelled || res.PeerConnID != "c1" {
		t.Fatalf("expected peer c1, got %+v", res)
	}

	// The session is gone; a fresh call can start.
	if _, err := c.Leave("c1"); err != ErrNotInCall {
		t.Errorf("expected ErrNotInCall after teardown, got %v", err)
	}
	if res, err := c.RequestJoin("Cat", "", "c3"); err != nil || !res.Started {
		t.Errorf("fresh join after teardown failed: %+v %v", res, err)
	}
}

// ---------------------------------------------------------------------------
// Test: Signal relay resolves the peer and tracks connectivity
// ---------------------------------------------------------------------------

func TestRelaySignal(t *testing.T) {
	c := pairSession(t)

	to, err := c.RelaySignal("c1")
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if to != "c2" {
		t.Errorf("expected relay to c2, got %q", to)
	}

	to, err = c.RelaySignal("c2")
	if err != nil {
		t.Fatalf("relay back: %v", err)
	}
	if to != "c1" {
		t.Errorf("expected relay to c1, got %q", to)
	}

	// Outsiders and lone requesters cannot relay.
	if _, err := c.RelaySignal("c9"); err != ErrNotInCall {
		t.Errorf("expected ErrNotInCall for outsider, got %v", err)
	}

	lone := NewCoordinator()
	lone.RequestJoin("Ana", "", "c1")
	if _, err := lone.RelaySignal("c1"); err != ErrNotInCall {
		t.Errorf("expected ErrNotInCall before pairing, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: Restart keeps roles and re-arms the handshake
// ---------------------------------------------------------------------------

func TestRestart(t *testing.T) {
	c := pairSession(t)
	c.RelaySignal("c1")
	c.RelaySignal("c2")

	p, err := c.Restart("c2")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if p.Caller.ConnID != "c1" || p.Callee.ConnID != "c2" {
		t.Errorf("restart changed roles: %+v", p)
	}

	// Relay still works after the restart.
	if to, err := c.RelaySignal("c1"); err != nil || to != "c2" {
		t.Errorf("relay after restart: to=%q err=%v", to, err)
	}

	if _, err := NewCoordinator().Restart("c1"); err != ErrNotInCall {
		t.Errorf("expected ErrNotInCall, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: Status and membership queries
// ---------------------------------------------------------------------------

func TestStatus(t *testing.T) {
	c := NewCoordinator()
	if active, user := c.Status(); active || user != "" {
		t.Errorf("expected idle status, got active=%v user=%q", active, user)
	}

	c.RequestJoin("Ana", "", "c1")
	if active, user := c.Status(); !active || user != "Ana" {
		t.Errorf("expected Ana's open call, got active=%v user=%q", active, user)
	}

	if !c.InCall("c1") || c.InCall("c2") {
		t.Error("unexpected InCall membership")
	}
}
