// Package call implements the voice/video call coordinator. It pairs two
// identities into a call session, relays opaque WebRTC signaling payloads
// between their connections, and tracks the session state machine:
//
//	Idle -> Requesting -> Paired -> Connected -> Ended
//
// The coordinator never parses signaling payloads and never touches the
// media path; media flows peer-to-peer.
package call

import (
	"errors"
	"sync"
	"time"
)

// State is the call session state.
type State string

const (
	StateRequesting State = "requesting"
	StatePaired     State = "paired"
	StateConnected  State = "connected"
	StateEnded      State = "ended"
)

// Roles assigned at pairing time. The identity whose join request arrived
// first is the caller.
const (
	RoleCaller = "caller"
	RoleCallee = "callee"
)

// Errors returned by coordinator operations. None of them carries state: a
// failed operation changes nothing and emits nothing.
var (
	ErrSelfJoin  = errors.New("call: identity already in the call")
	ErrBusy      = errors.New("call: a call is already in progress")
	ErrNotInCall = errors.New("call: connection is not in a call")
)

// Participant is one side of a call session, bound to the one specific
// connection that joined (an identity may have several connections; only the
// joining one carries the call).
type Participant struct {
	Name   string
	Avatar string
	ConnID string

	signaled bool // has relayed at least one signal
}

// Session is the room's call session. At most one exists at a time.
type Session struct {
	State     State
	Caller    Participant
	Callee    Participant // zero until paired
	StartedAt time.Time
}

// Pairing describes a completed (or restarted) pairing; the gateway turns it
// into the two individual call_joined handshakes.
type Pairing struct {
	Caller Participant
	Callee Participant
}

// JoinResult is the outcome of a successful RequestJoin.
type JoinResult struct {
	// Started is true when the requester opened a new call and is waiting
	// for a peer (broadcast call_started).
	Started bool
	// Paired is non-nil when this join completed the pairing.
	Paired *Pairing
}

// LeaveResult is the outcome of a successful Leave.
type LeaveResult struct {
	// Cancelled is true when a lone requester withdrew before pairing
	// (broadcast call_status inactive).
	Cancelled bool
	// PeerConnID is the remaining side to notify, when the session was
	// paired. Empty if Cancelled.
	PeerConnID string
}

// Coordinator owns the room's single call session. It is goroutine-safe; the
// gateway additionally serializes all calls through its command loop, which
// is what makes pairing races resolve first-writer-wins.
type Coordinator struct {
	mu   sync.Mutex
	sess *Session
}

// NewCoordinator creates a coordinator with no active session.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// RequestJoin opens a call or completes the pairing. The first requester
// transitions to Requesting; a second, distinct identity pairs with it and
// both transition to Paired. A second join from the same identity (any tab)
// is rejected as a no-op, as is any join while a pairing exists.
func (c *Coordinator) RequestJoin(name, avatar, connID string) (JoinResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		c.sess = &Session{
			State:     StateRequesting,
			Caller:    Participant{Name: name, Avatar: avatar, ConnID: connID},
			StartedAt: time.Now(),
		}
		return JoinResult{Started: true}, nil
	}

	switch c.sess.State {
	case StateRequesting:
		if c.sess.Caller.Name == name {
			return JoinResult{}, ErrSelfJoin
		}
		c.sess.Callee = Participant{Name: name, Avatar: avatar, ConnID: connID}
		c.sess.State = StatePaired
		return JoinResult{Paired: &Pairing{Caller: c.sess.Caller, Callee: c.sess.Callee}}, nil
	default:
		if c.sess.Caller.Name == name || c.sess.Callee.Name == name {
			return JoinResult{}, ErrSelfJoin
		}
		return JoinResult{}, ErrBusy
	}
}

// Leave removes the connection's side from the session and tears it down.
// Transport disconnects are routed here as well. The session transitions to
// Ended and is garbage-collected so a fresh RequestJoin can start over.
func (c *Coordinator) Leave(connID string) (LeaveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sess
	if sess == nil || !sess.has(connID) {
		return LeaveResult{}, ErrNotInCall
	}

	sess.State = StateEnded
	c.sess = nil

	if sess.Callee.ConnID == "" {
		return LeaveResult{Cancelled: true}, nil
	}
	return LeaveResult{PeerConnID: sess.peer(connID).ConnID}, nil
}

// RelaySignal resolves the connection the signaling payload should be
// forwarded to. It also advances Paired to Connected once both sides have
// relayed at least one signal — the closest observable proxy for a completed
// handshake on a media path the coordinator never sees.
func (c *Coordinator) RelaySignal(fromConnID string) (toConnID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sess
	if sess == nil || !sess.paired() || !sess.has(fromConnID) {
		return "", ErrNotInCall
	}

	if sess.Caller.ConnID == fromConnID {
		sess.Caller.signaled = true
	} else {
		sess.Callee.signaled = true
	}
	if sess.State == StatePaired && sess.Caller.signaled && sess.Callee.signaled {
		sess.State = StateConnected
	}

	return sess.peer(fromConnID).ConnID, nil
}

// Restart returns the existing pairing with roles unchanged so the gateway
// can re-emit the call_joined handshake. Used when client-side connectivity
// checks decide to renegotiate. Signal progress resets so the session drops
// back to Paired until both sides signal again.
func (c *Coordinator) Restart(connID string) (*Pairing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sess
	if sess == nil || !sess.paired() || !sess.has(connID) {
		return nil, ErrNotInCall
	}

	sess.Caller.signaled = false
	sess.Callee.signaled = false
	sess.State = StatePaired
	return &Pairing{Caller: sess.Caller, Callee: sess.Callee}, nil
}

// Status reports whether a call is open, and for whom. Sent to late joiners.
func (c *Coordinator) Status() (active bool, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return false, ""
	}
	return true, c.sess.Caller.Name
}

// InCall reports whether the connection is part of the current session.
func (c *Coordinator) InCall(connID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.has(connID)
}

func (s *Session) has(connID string) bool {
	return s.Caller.ConnID == connID || s.Callee.ConnID == connID
}

func (s *Session) paired() bool {
	return s.State == StatePaired || s.State == StateConnected
}

// peer returns the other side of a paired session.
func (s *Session) peer(connID string) Participant {
	if s.Caller.ConnID == connID {
		return s.Callee
	}
	return s.Caller
}
