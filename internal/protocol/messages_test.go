package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid join message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Join(t *testing.T) {
	input := []byte(`{"type":"join","username":"Ana","password":"sesame","avatar":"a1.png"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoin {
		t.Fatalf("expected type %q, got %q", TypeJoin, msgType)
	}

	jm, ok := msg.(JoinMsg)
	if !ok {
		t.Fatalf("expected JoinMsg, got %T", msg)
	}
	if jm.Username != "Ana" {
		t.Errorf("expected username %q, got %q", "Ana", jm.Username)
	}
	if jm.Password != "sesame" {
		t.Errorf("expected password %q, got %q", "sesame", jm.Password)
	}
	if jm.Avatar != "a1.png" {
		t.Errorf("expected avatar %q, got %q", "a1.png", jm.Avatar)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a chat message with a reply reference and file
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMsg(t *testing.T) {
	input := []byte(`{"type":"message","text":"look","kind":"file","replyTo":7,` +
		`"file":{"url":"/up/x.png","mime":"image/png","kind":"image"}}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.ReplyTo != 7 {
		t.Errorf("expected replyTo 7, got %d", cm.ReplyTo)
	}
	if cm.File == nil || cm.File.URL != "/up/x.png" || cm.File.Kind != "image" {
		t.Errorf("unexpected file ref: %+v", cm.File)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a reaction toggle
// ---------------------------------------------------------------------------

func TestParseClientMessage_Reaction(t *testing.T) {
	input := []byte(`{"type":"reaction","messageId":42,"emoji":"❤️","add":true}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeReaction {
		t.Fatalf("expected type %q, got %q", TypeReaction, msgType)
	}

	rm, ok := msg.(ReactionMsg)
	if !ok {
		t.Fatalf("expected ReactionMsg, got %T", msg)
	}
	if rm.MessageID != 42 || rm.Emoji != "❤️" || !rm.Add {
		t.Errorf("unexpected reaction fields: %+v", rm)
	}
}

// ---------------------------------------------------------------------------
// Test: The opaque signal payload is preserved byte-for-byte
// ---------------------------------------------------------------------------

func TestParseClientMessage_SignalOpaque(t *testing.T) {
	input := []byte(`{"type":"webrtc_signal","to":"conn-9","signal":{"sdp":"v=0","type":"offer"}}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sm, ok := msg.(WebRTCSignalMsg)
	if !ok {
		t.Fatalf("expected WebRTCSignalMsg, got %T", msg)
	}
	if sm.To != "conn-9" {
		t.Errorf("expected to %q, got %q", "conn-9", sm.To)
	}

	var inner map[string]interface{}
	if err := json.Unmarshal(sm.Signal, &inner); err != nil {
		t.Fatalf("signal payload not valid JSON: %v", err)
	}
	if inner["type"] != "offer" {
		t.Errorf("expected inner type %q, got %v", "offer", inner["type"])
	}
}

// ---------------------------------------------------------------------------
// Test: Unknown and malformed messages are rejected
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"launch_missiles"}`))
	if err == nil {
		t.Fatal("expected error for unknown type, got nil")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"text":"hi"}`))
	if err == nil {
		t.Fatal("expected error for missing type, got nil")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":`))
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: NewServerMessage injects the type discriminator
// ---------------------------------------------------------------------------

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypePresenceUpdate, PresenceUpdateMsg{
		Entries: []PresenceEntry{{Name: "Ana", Count: 2}},
		Total:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypePresenceUpdate {
		t.Errorf("expected type %q, got %v", TypePresenceUpdate, m["type"])
	}
	if m["total"] != float64(1) {
		t.Errorf("expected total 1, got %v", m["total"])
	}
}

// ---------------------------------------------------------------------------
// Test: Server message field names stay camelCase on the wire
// ---------------------------------------------------------------------------

func TestNewServerMessage_RateLimitedFieldName(t *testing.T) {
	data, err := NewServerMessage(TypeRateLimited, RateLimitedMsg{RetryAfter: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["retryAfter"] != float64(10) {
		t.Errorf("expected retryAfter 10, got %v", m["retryAfter"])
	}
	if _, ok := m["retry_after"]; ok {
		t.Error("unexpected snake_case retry_after field on the wire")
	}
}

func TestNewServerMessage_OverridesPayloadType(t *testing.T) {
	data, err := NewServerMessage(TypePong, ErrorMsg{Type: "spoofed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypePong {
		t.Errorf("expected type %q, got %v", TypePong, m["type"])
	}
}
