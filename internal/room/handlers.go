package room

import (
	"log"

	"github.com/huddle/room-app/internal/call"
	"github.com/huddle/room-app/internal/history"
	"github.com/huddle/room-app/internal/identity"
	"github.com/huddle/room-app/internal/messaging"
	"github.com/huddle/room-app/internal/metrics"
	"github.com/huddle/room-app/internal/protocol"
	"github.com/huddle/room-app/internal/ws"
)

// historyMsg is the payload of the history snapshot sent on join.
type historyMsg struct {
	Messages []history.Payload `json:"messages"`
}

// callEvent is the shape mirrored to NATS for call lifecycle changes.
type callEvent struct {
	Event string `json:"event"`
	User  string `json:"user,omitempty"`
}

// -----------------------------------------------------------------------
// join — authentication gate
// -----------------------------------------------------------------------

func (g *Gateway) handleJoin(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.JoinMsg)
	if !ok {
		return
	}

	// A join on an already authenticated connection rebinds it; remember the
	// previous identity so presence and notices stay correct.
	prev, wasAuthed := g.reg.Identity(conn.ID)

	ident, err := g.reg.Authenticate(conn.ID, m.Username, m.Password, m.Avatar)
	if err != nil {
		log.Printf("[room] auth failed conn=%s: %v", conn.ID, err)
		g.send(conn, protocol.TypeAuthError, protocol.AuthErrorMsg{Message: "invalid password"})
		return
	}

	g.send(conn, protocol.TypeAuthOK, protocol.AuthOKMsg{
		Username: ident.Name,
		Avatar:   ident.Avatar,
	})
	g.send(conn, protocol.TypeHistory, historyMsg{Messages: g.hist.Snapshot()})

	active, user := g.calls.Status()
	g.send(conn, protocol.TypeCallStatus, protocol.CallStatusMsg{Active: active, User: user})

	if wasAuthed && prev.Name != ident.Name {
		g.retireIdentity(prev)
	}

	// Joined notice only for the identity's first connection: a second tab
	// opening is not a join.
	if !wasAuthed || prev.Name != ident.Name {
		if g.reg.Count(ident.Name) == 1 {
			g.broadcastExcept(ident.Name, protocol.TypeSystem, protocol.SystemMsg{
				Text: ident.Name + " joined the chat",
			})
		}
	}

	g.broadcastPresence()
	log.Printf("[room] joined conn=%s name=%q", conn.ID, ident.Name)
}

// retireIdentity cleans up after a display name loses its last connection.
func (g *Gateway) retireIdentity(ident identity.Identity) {
	if g.reg.Count(ident.Name) > 0 {
		return
	}
	g.pres.ClearTyping(ident.Name)
	g.broadcast(protocol.TypeTypingUpdate, protocol.TypingUpdateMsg{Users: g.pres.TypingUsers()})
	g.broadcast(protocol.TypeSystem, protocol.SystemMsg{Text: ident.Name + " left the chat"})
}

// -----------------------------------------------------------------------
// message — append to the room log
// -----------------------------------------------------------------------

func (g *Gateway) handleMessage(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	m, ok := msg.(protocol.ChatMsg)
	if !ok {
		return
	}

	if res := g.filter.Check(m.Text); res.Blocked {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		log.Printf("[room] message blocked conn=%s reason=%s term=%q", conn.ID, res.Reason, res.Term)
		g.sendError(conn, "message_blocked", "message blocked by the room filter")
		return
	}

	draft := history.Draft{
		Text:    m.Text,
		Kind:    m.Kind,
		ReplyTo: m.ReplyTo,
	}
	if m.File != nil {
		draft.File = &history.File{URL: m.File.URL, Mime: m.File.Mime, Kind: m.File.Kind}
	}

	stored, err := g.hist.Append(ident.Name, ident.Avatar, draft)
	if err != nil {
		// Malformed sends are simply not delivered.
		log.Printf("[room] message rejected conn=%s: %v", conn.ID, err)
		return
	}

	metrics.MessagesTotal.WithLabelValues("append").Inc()
	if data := g.broadcast(protocol.TypeMessage, stored.Payload()); data != nil {
		g.mirror.Publish(messaging.SubjectMessage, data)
	}
}

// -----------------------------------------------------------------------
// edit_message / delete_message / reaction — in-place log mutations
// -----------------------------------------------------------------------

func (g *Gateway) handleEditMessage(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	m, ok := msg.(protocol.EditMessageMsg)
	if !ok {
		return
	}

	if res := g.filter.Check(m.Text); res.Blocked {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		log.Printf("[room] edit blocked conn=%s reason=%s term=%q", conn.ID, res.Reason, res.Term)
		g.sendError(conn, "message_blocked", "message blocked by the room filter")
		return
	}

	edited, err := g.hist.Edit(m.MessageID, ident.Name, m.Text)
	if err != nil {
		log.Printf("[room] edit rejected conn=%s id=%d: %v", conn.ID, m.MessageID, err)
		return
	}

	metrics.MessagesTotal.WithLabelValues("edit").Inc()
	g.broadcast(protocol.TypeMessageEdit, protocol.MessageEditMsg{ID: edited.ID, Text: edited.Text})
}

func (g *Gateway) handleDeleteMessage(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	m, ok := msg.(protocol.DeleteMessageMsg)
	if !ok {
		return
	}

	if err := g.hist.Remove(m.MessageID, ident.Name); err != nil {
		log.Printf("[room] delete rejected conn=%s id=%d: %v", conn.ID, m.MessageID, err)
		return
	}

	metrics.MessagesTotal.WithLabelValues("delete").Inc()
	g.broadcast(protocol.TypeMessageDelete, protocol.MessageDeleteMsg{ID: m.MessageID})
}

func (g *Gateway) handleReaction(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	m, ok := msg.(protocol.ReactionMsg)
	if !ok || m.Emoji == "" {
		return
	}

	if _, err := g.hist.React(m.MessageID, ident.Name, m.Emoji, m.Add); err != nil {
		log.Printf("[room] reaction rejected conn=%s id=%d: %v", conn.ID, m.MessageID, err)
		return
	}

	metrics.MessagesTotal.WithLabelValues("react").Inc()
	g.broadcast(protocol.TypeReact, protocol.ReactMsg{
		MessageID: m.MessageID,
		Emoji:     m.Emoji,
		User:      ident.Name,
		Add:       m.Add,
	})
}

// -----------------------------------------------------------------------
// typing — relay typing state to everyone else
// -----------------------------------------------------------------------

func (g *Gateway) handleTyping(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	m, ok := msg.(protocol.TypingMsg)
	if !ok {
		return
	}

	g.pres.SetTyping(ident.Name, m.IsTyping)
	g.broadcastExcept(ident.Name, protocol.TypeTypingUpdate, protocol.TypingUpdateMsg{
		Users: g.pres.TypingUsers(),
	})
}

// -----------------------------------------------------------------------
// update_profile — live rename / avatar change
// -----------------------------------------------------------------------

func (g *Gateway) handleUpdateProfile(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	m, ok := msg.(protocol.UpdateProfileMsg)
	if !ok {
		return
	}

	old, updated, err := g.reg.UpdateProfile(conn.ID, m.Username, m.Avatar)
	if err != nil {
		log.Printf("[room] profile update rejected conn=%s: %v", conn.ID, err)
		return
	}

	if old.Name != updated.Name {
		// The old name may just have gone offline (single tab renamed).
		g.pres.ClearTyping(old.Name)
	}

	g.broadcast(protocol.TypeProfileUpdate, protocol.ProfileUpdateMsg{
		OldName: old.Name,
		NewName: updated.Name,
		Avatar:  updated.Avatar,
	})
	g.broadcastPresence()
	log.Printf("[room] profile update conn=%s %q -> %q", conn.ID, old.Name, updated.Name)
}

// -----------------------------------------------------------------------
// call_join / call_leave / call_restart — call session lifecycle
// -----------------------------------------------------------------------

func (g *Gateway) handleCallJoin(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	res, err := g.calls.RequestJoin(ident.Name, ident.Avatar, conn.ID)
	switch err {
	case nil:
	case call.ErrSelfJoin:
		return
	case call.ErrBusy:
		active, user := g.calls.Status()
		g.send(conn, protocol.TypeCallStatus, protocol.CallStatusMsg{Active: active, User: user})
		return
	default:
		return
	}

	if res.Started {
		metrics.CallActive.Set(1)
		g.broadcastExcept(ident.Name, protocol.TypeCallStarted, protocol.CallStartedMsg{User: ident.Name})
		g.mirrorCall("started", ident.Name)
		log.Printf("[room] call opened by %q conn=%s", ident.Name, conn.ID)
	}

	if res.Paired != nil {
		g.sendCallHandshake(res.Paired)
		g.mirrorCall("paired", ident.Name)
		log.Printf("[room] call paired %q<->%q", res.Paired.Caller.Name, res.Paired.Callee.Name)
	}
}

// sendCallHandshake emits the individual call_joined messages to both sides
// of a pairing. Used for the initial pairing and for restarts.
func (g *Gateway) sendCallHandshake(p *call.Pairing) {
	g.sendToID(p.Caller.ConnID, protocol.TypeCallJoined, protocol.CallJoinedMsg{
		Role:       call.RoleCaller,
		PeerID:     p.Callee.ConnID,
		PeerName:   p.Callee.Name,
		PeerAvatar: p.Callee.Avatar,
	})
	g.sendToID(p.Callee.ConnID, protocol.TypeCallJoined, protocol.CallJoinedMsg{
		Role:       call.RoleCallee,
		PeerID:     p.Caller.ConnID,
		PeerName:   p.Caller.Name,
		PeerAvatar: p.Caller.Avatar,
	})
}

func (g *Gateway) handleCallLeave(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	g.teardownCall(conn.ID, protocol.TypeCallPeerLeft)
}

func (g *Gateway) handleWebRTCHangup(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	g.teardownCall(conn.ID, protocol.TypeWebRTCHangup)
}

// teardownCall ends the session the connection is part of, notifying the
// remaining side with peerEvent and clearing the room-wide call banner.
func (g *Gateway) teardownCall(connID string, peerEvent string) {
	res, err := g.calls.Leave(connID)
	if err != nil {
		return
	}

	metrics.CallActive.Set(0)
	if res.PeerConnID != "" {
		switch peerEvent {
		case protocol.TypeWebRTCHangup:
			g.sendToID(res.PeerConnID, peerEvent, protocol.ServerHangupMsg{})
		default:
			g.sendToID(res.PeerConnID, peerEvent, protocol.CallPeerLeftMsg{})
		}
	}
	g.broadcast(protocol.TypeCallStatus, protocol.CallStatusMsg{Active: false})
	g.mirrorCall("ended", "")
	log.Printf("[room] call ended conn=%s", connID)
}

func (g *Gateway) handleCallRestart(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	p, err := g.calls.Restart(conn.ID)
	if err != nil {
		log.Printf("[room] call restart rejected conn=%s: %v", conn.ID, err)
		return
	}
	g.sendCallHandshake(p)
	log.Printf("[room] call restart %q<->%q", p.Caller.Name, p.Callee.Name)
}

// -----------------------------------------------------------------------
// webrtc_signal — opaque signaling relay
// -----------------------------------------------------------------------

func (g *Gateway) handleWebRTCSignal(conn *ws.Connection, ident identity.Identity, msg interface{}) {
	m, ok := msg.(protocol.WebRTCSignalMsg)
	if !ok || len(m.Signal) == 0 {
		return
	}

	to, err := g.calls.RelaySignal(conn.ID)
	if err != nil {
		log.Printf("[room] signal dropped conn=%s: %v", conn.ID, err)
		return
	}

	// The "to" field is advisory; routing trusts the pairing. A mismatch
	// means the client's view of the call is stale.
	if m.To != "" && m.To != to {
		log.Printf("[room] signal dropped conn=%s: stale target %s (paired with %s)", conn.ID, m.To, to)
		return
	}

	metrics.SignalsRelayedTotal.Inc()
	g.sendToID(to, protocol.TypeWebRTCSignal, protocol.ServerSignalMsg{
		Signal: m.Signal,
		From:   conn.ID,
	})
}

// -----------------------------------------------------------------------
// disconnect — transport close, read error, or heartbeat eviction
// -----------------------------------------------------------------------

func (g *Gateway) handleDisconnect(connID string) {
	// Tear down any call the connection carried; the peer sees it exactly
	// like an explicit leave.
	g.teardownCall(connID, protocol.TypeCallPeerLeft)

	ident, wasAuthed := g.reg.Remove(connID)
	if !wasAuthed {
		return
	}

	g.retireIdentity(ident)
	g.broadcastPresence()
	log.Printf("[room] disconnected conn=%s name=%q", connID, ident.Name)
}

// mirrorCall publishes a call lifecycle event to the NATS mirror.
func (g *Gateway) mirrorCall(event, user string) {
	data, err := protocol.NewServerMessage("call_"+event, callEvent{Event: event, User: user})
	if err != nil {
		return
	}
	g.mirror.Publish(messaging.SubjectCall, data)
}
