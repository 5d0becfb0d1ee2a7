// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoin          = "join"
	TypeMessage       = "message"
	TypeEditMessage   = "edit_message"
	TypeDeleteMessage = "delete_message"
	TypeReaction      = "reaction"
	TypeTyping        = "typing"
	TypeUpdateProfile = "update_profile"
	TypeCallJoin      = "call_join"
	TypeCallLeave     = "call_leave"
	TypeCallRestart   = "call_restart"
	TypeWebRTCSignal  = "webrtc_signal"
	TypeWebRTCHangup  = "webrtc_hangup"
	TypePing          = "ping"
)

// Server -> Client message types.
const (
	TypeAuthOK         = "auth_ok"
	TypeAuthError      = "auth_error"
	TypeHistory        = "history"
	TypeMessageEdit    = "message_edit"
	TypeMessageDelete  = "message_delete"
	TypeReact          = "react"
	TypeTypingUpdate   = "typing_update"
	TypePresenceUpdate = "presence_update"
	TypeSystem         = "system"
	TypeProfileUpdate  = "profile_update"
	TypeCallJoined     = "call_joined"
	TypeCallStarted    = "call_started"
	TypeCallStatus     = "call_status"
	TypeCallPeerLeft   = "call_peer_left"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinMsg is sent by the client to authenticate the connection with the room
// password and claim a display name. It may be re-sent after an auth_error.
type JoinMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

// FileRef describes an uploaded media attachment. The server treats url and
// mime as opaque; kind selects the client-side renderer.
type FileRef struct {
	URL  string `json:"url"`
	Mime string `json:"mime,omitempty"`
	Kind string `json:"kind"` // "image" or "video"
}

// ChatMsg is a chat message draft sent by the client.
type ChatMsg struct {
	Type    string   `json:"type"`
	Text    string   `json:"text,omitempty"`
	Kind    string   `json:"kind,omitempty"` // "text" (default), "file", "game-invite"
	File    *FileRef `json:"file,omitempty"`
	ReplyTo int64    `json:"replyTo,omitempty"` // id of the message being replied to
}

// EditMessageMsg is sent by the client to replace the text of one of its own
// messages.
type EditMessageMsg struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
	Text      string `json:"text"`
}

// DeleteMessageMsg is sent by the client to soft-delete one of its own
// messages.
type DeleteMessageMsg struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
}

// ReactionMsg toggles an emoji reaction on a message.
type ReactionMsg struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
	Emoji     string `json:"emoji"`
	Add       bool   `json:"add"`
}

// TypingMsg indicates whether the client is currently typing. The server
// relays this signal as-is; the inactivity timeout is the client's job.
type TypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

// UpdateProfileMsg is sent by the client to rename itself or change its
// avatar while connected.
type UpdateProfileMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// CallJoinMsg asks to start or join the room's voice/video call.
type CallJoinMsg struct {
	Type string `json:"type"`
}

// CallLeaveMsg leaves the current call.
type CallLeaveMsg struct {
	Type string `json:"type"`
}

// CallRestartMsg asks the server to re-emit the call_joined handshake for
// the existing pairing so both sides can renegotiate.
type CallRestartMsg struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"` // peer connection id, advisory
}

// WebRTCSignalMsg carries an opaque signaling payload (SDP or ICE candidate)
// for the paired peer. The server never parses Signal.
type WebRTCSignalMsg struct {
	Type   string          `json:"type"`
	Signal json.RawMessage `json:"signal"`
	To     string          `json:"to,omitempty"` // peer connection id, advisory
}

// WebRTCHangupMsg ends the media session with the paired peer.
type WebRTCHangupMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// AuthOKMsg confirms a successful join and echoes the sanitized identity.
type AuthOKMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// AuthErrorMsg reports a failed join. The connection stays open and may
// retry with another join message.
type AuthErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MessageEditMsg announces that a message's text was replaced.
type MessageEditMsg struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// MessageDeleteMsg announces that a message was deleted.
type MessageDeleteMsg struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// ReactMsg announces a reaction change on a message.
type ReactMsg struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
	Emoji     string `json:"emoji"`
	User      string `json:"user"`
	Add       bool   `json:"add"`
}

// TypingUpdateMsg carries the set of currently-typing display names. It is
// sent to everyone except the user whose state changed.
type TypingUpdateMsg struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// PresenceEntry is one distinct identity in the online list with its open
// connection count.
type PresenceEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PresenceUpdateMsg carries the full online list. Total counts distinct
// identities, not connections.
type PresenceUpdateMsg struct {
	Type    string          `json:"type"`
	Entries []PresenceEntry `json:"entries"`
	Total   int             `json:"total"`
}

// SystemMsg is a one-line room notice ("X joined the chat").
type SystemMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ProfileUpdateMsg announces a live rename or avatar change.
type ProfileUpdateMsg struct {
	Type    string `json:"type"`
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
	Avatar  string `json:"avatar,omitempty"`
}

// CallJoinedMsg is sent individually to each side of a freshly paired (or
// restarted) call. PeerID is the connection id that signaling payloads
// should be addressed to.
type CallJoinedMsg struct {
	Type       string `json:"type"`
	Role       string `json:"role"` // "caller" or "callee"
	PeerID     string `json:"peerId"`
	PeerName   string `json:"peerName"`
	PeerAvatar string `json:"peerAvatar,omitempty"`
}

// CallStartedMsg tells bystanders that a user opened a call and is waiting
// for a peer. It is a banner, not an invite.
type CallStartedMsg struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// CallStatusMsg tells a late joiner whether a call is currently open.
type CallStatusMsg struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
	User   string `json:"user,omitempty"`
}

// CallPeerLeftMsg tells the remaining side that its peer left the call.
type CallPeerLeftMsg struct {
	Type string `json:"type"`
}

// ServerSignalMsg relays an opaque signaling payload from the paired peer.
type ServerSignalMsg struct {
	Type   string          `json:"type"`
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
}

// ServerHangupMsg relays a hangup from the paired peer.
type ServerHangupMsg struct {
	Type string `json:"type"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retryAfter"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEditMessage:
		var m EditMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDeleteMessage:
		var m DeleteMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReaction:
		var m ReactionMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUpdateProfile:
		var m UpdateProfileMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCallJoin:
		var m CallJoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCallLeave:
		var m CallLeaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCallRestart:
		var m CallRestartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeWebRTCSignal:
		var m WebRTCSignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeWebRTCHangup:
		var m WebRTCHangupMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the Server*Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
