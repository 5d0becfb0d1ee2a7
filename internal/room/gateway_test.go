package room

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/huddle/room-app/internal/protocol"
	internalws "github.com/huddle/room-app/internal/ws"
)

// These tests drive the gateway's dispatch path directly, without a listener
// or the command loop goroutine: each test enqueues work synchronously via
// dispatch and observes the frames delivered to pipe-backed connections.

// roomClient is one fake participant: the server-side Connection registered
// with the gateway plus a reader draining the client end of the pipe.
type roomClient struct {
	conn *internalws.Connection
	pipe net.Conn

	mu     sync.Mutex
	frames []serverFrame
}

type serverFrame struct {
	Type string
	Raw  []byte
}

func newTestGateway(password string) *Gateway {
	return New(Config{
		ListenAddr:       ":0",
		Password:         password,
		HistoryLimit:     10,
		WorkerPoolSize:   4,
		MaxConnections:   16,
		SendQueueSize:    32,
		CommandQueueSize: 32,
		ReadTimeout:      time.Second,
		WriteTimeout:     time.Second,
	}, nil, nil)
}

var testFd int

// dialRoom registers a pipe-backed connection with the gateway's transport
// and starts collecting every frame the room sends to it.
func dialRoom(t *testing.T, g *Gateway) *roomClient {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	testFd++
	conn := internalws.NewConnection(fmt.Sprintf("conn-%d", testFd), serverSide, testFd, 32, time.Second)
	g.server.Connections().Add(conn)

	c := &roomClient{conn: conn, pipe: clientSide}
	go c.readLoop()
	t.Cleanup(func() { conn.Close() })
	return c
}

func (c *roomClient) readLoop() {
	for {
		data, op, err := wsutil.ReadServerData(c.pipe)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		c.mu.Lock()
		c.frames = append(c.frames, serverFrame{Type: env.Type, Raw: append([]byte(nil), data...)})
		c.mu.Unlock()
	}
}

// types returns the frame types received so far, in delivery order.
func (c *roomClient) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = f.Type
	}
	return out
}

func (c *roomClient) countType(msgType string) int {
	n := 0
	for _, tp := range c.types() {
		if tp == msgType {
			n++
		}
	}
	return n
}

// lastOfType returns the most recent frame of the given type, or nil.
func (c *roomClient) lastOfType(msgType string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Type == msgType {
			return c.frames[i].Raw
		}
	}
	return nil
}

// waitUntil polls for cond, failing the test after a deadline. Delivery is
// asynchronous (send queue, writer goroutine, pipe), so observations poll.
func (c *roomClient) waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; received %v", what, c.types())
}

func (c *roomClient) waitForType(t *testing.T, msgType string, n int) []byte {
	t.Helper()
	c.waitUntil(t, fmt.Sprintf("%d %s frame(s)", n, msgType), func() bool {
		return c.countType(msgType) >= n
	})
	return c.lastOfType(msgType)
}

func join(g *Gateway, c *roomClient, name string) {
	g.dispatch(command{
		conn:    c.conn,
		connID:  c.conn.ID,
		msgType: protocol.TypeJoin,
		msg:     protocol.JoinMsg{Username: name},
	})
}

// disconnect mimics the transport's removal order: the connection leaves the
// manager first, then the room worker processes the disconnect command.
func disconnect(g *Gateway, c *roomClient) {
	g.server.Connections().Remove(c.conn.ID)
	g.dispatch(command{connID: c.conn.ID, disconnect: true})
}

func systemNotices(c *roomClient, substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Type != protocol.TypeSystem {
			continue
		}
		var m protocol.SystemMsg
		if json.Unmarshal(f.Raw, &m) == nil && strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Test: Join handshake delivers auth_ok, history, call_status, presence
// ---------------------------------------------------------------------------

func TestJoinHandshakeOrder(t *testing.T) {
	g := newTestGateway("")
	a := dialRoom(t, g)
	join(g, a, "alice")

	raw := a.waitForType(t, protocol.TypePresenceUpdate, 1)

	got := a.types()
	want := []string{
		protocol.TypeAuthOK,
		protocol.TypeHistory,
		protocol.TypeCallStatus,
		protocol.TypePresenceUpdate,
	}
	if len(got) < len(want) {
		t.Fatalf("expected at least %d frames, got %v", len(want), got)
	}
	for i, tp := range want {
		if got[i] != tp {
			t.Fatalf("frame %d: expected %q, got %v", i, tp, got)
		}
	}

	var ok protocol.AuthOKMsg
	if err := json.Unmarshal(a.lastOfType(protocol.TypeAuthOK), &ok); err != nil {
		t.Fatalf("decode auth_ok: %v", err)
	}
	if ok.Username != "alice" {
		t.Errorf("expected username %q, got %q", "alice", ok.Username)
	}

	var pres protocol.PresenceUpdateMsg
	if err := json.Unmarshal(raw, &pres); err != nil {
		t.Fatalf("decode presence_update: %v", err)
	}
	if pres.Total != 1 || len(pres.Entries) != 1 || pres.Entries[0].Name != "alice" {
		t.Errorf("unexpected presence snapshot: %+v", pres)
	}
}

// ---------------------------------------------------------------------------
// Test: A second tab of the same identity does not re-announce the join
// ---------------------------------------------------------------------------

func TestSecondTabJoinNoticeSuppressed(t *testing.T) {
	g := newTestGateway("")

	a := dialRoom(t, g)
	join(g, a, "alice")
	a.waitForType(t, protocol.TypePresenceUpdate, 1)

	b1 := dialRoom(t, g)
	join(g, b1, "bob")
	a.waitForType(t, protocol.TypePresenceUpdate, 2)
	if n := systemNotices(a, "bob joined"); n != 1 {
		t.Fatalf("expected 1 join notice after first tab, got %d", n)
	}

	b2 := dialRoom(t, g)
	join(g, b2, "bob")
	raw := a.waitForType(t, protocol.TypePresenceUpdate, 3)
	if n := systemNotices(a, "bob joined"); n != 1 {
		t.Errorf("second tab re-announced the join: %d notices", n)
	}

	// The online list reflects both tabs under one identity.
	var pres protocol.PresenceUpdateMsg
	if err := json.Unmarshal(raw, &pres); err != nil {
		t.Fatalf("decode presence_update: %v", err)
	}
	if pres.Total != 2 {
		t.Errorf("expected 2 distinct identities, got %d", pres.Total)
	}
	for _, e := range pres.Entries {
		if e.Name == "bob" && e.Count != 2 {
			t.Errorf("expected 2 connections for bob, got %d", e.Count)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Closing one of several tabs neither retires the identity nor
// announces a leave
// ---------------------------------------------------------------------------

func TestDisconnectWithRemainingTab(t *testing.T) {
	g := newTestGateway("")

	a := dialRoom(t, g)
	join(g, a, "alice")
	b1 := dialRoom(t, g)
	join(g, b1, "bob")
	b2 := dialRoom(t, g)
	join(g, b2, "bob")
	a.waitForType(t, protocol.TypePresenceUpdate, 3)

	disconnect(g, b2)
	raw := a.waitForType(t, protocol.TypePresenceUpdate, 4)

	if n := systemNotices(a, "bob left"); n != 0 {
		t.Errorf("leave announced while a tab remains: %d notices", n)
	}

	var pres protocol.PresenceUpdateMsg
	if err := json.Unmarshal(raw, &pres); err != nil {
		t.Fatalf("decode presence_update: %v", err)
	}
	if pres.Total != 2 {
		t.Errorf("expected bob still online, got total %d", pres.Total)
	}
	for _, e := range pres.Entries {
		if e.Name == "bob" && e.Count != 1 {
			t.Errorf("expected 1 remaining connection for bob, got %d", e.Count)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: The last tab disconnecting retires the identity: leave notice,
// typing flag cleared, presence updated
// ---------------------------------------------------------------------------

func TestLastTabDisconnectRetiresIdentity(t *testing.T) {
	g := newTestGateway("")

	a := dialRoom(t, g)
	join(g, a, "alice")
	b := dialRoom(t, g)
	join(g, b, "bob")
	a.waitForType(t, protocol.TypePresenceUpdate, 2)

	g.dispatch(command{
		conn:    b.conn,
		connID:  b.conn.ID,
		msgType: protocol.TypeTyping,
		msg:     protocol.TypingMsg{IsTyping: true},
	})
	raw := a.waitForType(t, protocol.TypeTypingUpdate, 1)
	var typing protocol.TypingUpdateMsg
	if err := json.Unmarshal(raw, &typing); err != nil {
		t.Fatalf("decode typing_update: %v", err)
	}
	if len(typing.Users) != 1 || typing.Users[0] != "bob" {
		t.Fatalf("expected bob typing, got %v", typing.Users)
	}

	disconnect(g, b)

	a.waitUntil(t, "leave notice", func() bool { return systemNotices(a, "bob left the chat") == 1 })

	raw = a.waitForType(t, protocol.TypeTypingUpdate, 2)
	if err := json.Unmarshal(raw, &typing); err != nil {
		t.Fatalf("decode typing_update: %v", err)
	}
	if len(typing.Users) != 0 {
		t.Errorf("typing indicator stuck after last tab closed: %v", typing.Users)
	}

	raw = a.waitForType(t, protocol.TypePresenceUpdate, 3)
	var pres protocol.PresenceUpdateMsg
	if err := json.Unmarshal(raw, &pres); err != nil {
		t.Fatalf("decode presence_update: %v", err)
	}
	if pres.Total != 1 || pres.Entries[0].Name != "alice" {
		t.Errorf("expected only alice online, got %+v", pres)
	}
}

// ---------------------------------------------------------------------------
// Test: A disconnect during a call tears the session down for the peer
// ---------------------------------------------------------------------------

func TestDisconnectMidCallNotifiesPeer(t *testing.T) {
	g := newTestGateway("")

	a := dialRoom(t, g)
	join(g, a, "alice")
	b := dialRoom(t, g)
	join(g, b, "bob")
	a.waitForType(t, protocol.TypePresenceUpdate, 2)

	// bob opens the call, alice answers: bob is caller, alice callee.
	g.dispatch(command{conn: b.conn, connID: b.conn.ID, msgType: protocol.TypeCallJoin, msg: protocol.CallJoinMsg{}})
	a.waitForType(t, protocol.TypeCallStarted, 1)
	g.dispatch(command{conn: a.conn, connID: a.conn.ID, msgType: protocol.TypeCallJoin, msg: protocol.CallJoinMsg{}})

	raw := a.waitForType(t, protocol.TypeCallJoined, 1)
	var joined protocol.CallJoinedMsg
	if err := json.Unmarshal(raw, &joined); err != nil {
		t.Fatalf("decode call_joined: %v", err)
	}
	if joined.Role != "callee" || joined.PeerName != "bob" || joined.PeerID != b.conn.ID {
		t.Fatalf("unexpected pairing: %+v", joined)
	}

	disconnect(g, b)

	a.waitForType(t, protocol.TypeCallPeerLeft, 1)

	// call_status went out once at alice's join; the teardown sends another.
	raw = a.waitForType(t, protocol.TypeCallStatus, 2)
	var status protocol.CallStatusMsg
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("decode call_status: %v", err)
	}
	if status.Active {
		t.Error("call still flagged active after peer disconnect")
	}

	// The room state is released: a new call can open.
	if active, _ := g.calls.Status(); active {
		t.Error("coordinator still holds a session")
	}
}
