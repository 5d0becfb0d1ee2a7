package history

import (
	"fmt"
	"strings"
	"testing"
)

func textDraft(text string) Draft {
	return Draft{Text: text}
}

// ---------------------------------------------------------------------------
// Test: Append assigns increasing ids and keeps arrival order
// ---------------------------------------------------------------------------

func TestAppendOrder(t *testing.T) {
	s := NewStore(10)

	for i := 1; i <= 3; i++ {
		if _, err := s.Append("Ana", "", textDraft(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(snap))
	}
	for i, p := range snap {
		if p.Text != fmt.Sprintf("msg-%d", i+1) {
			t.Errorf("index %d: expected %q, got %q", i, fmt.Sprintf("msg-%d", i+1), p.Text)
		}
		if i > 0 && snap[i].ID <= snap[i-1].ID {
			t.Errorf("ids not increasing: %d then %d", snap[i-1].ID, snap[i].ID)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: The log never exceeds its bound; oldest entries are evicted first
// ---------------------------------------------------------------------------

func TestBoundedEviction(t *testing.T) {
	const limit = 5
	s := NewStore(limit)

	for i := 1; i <= limit+3; i++ {
		if _, err := s.Append("Ana", "", textDraft(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if s.Len() > limit {
			t.Fatalf("log exceeded bound after %d appends: %d", i, s.Len())
		}
	}

	snap := s.Snapshot()
	if len(snap) != limit {
		t.Fatalf("expected %d messages, got %d", limit, len(snap))
	}
	// Messages 4..8 should survive.
	for i, p := range snap {
		expected := fmt.Sprintf("msg-%d", i+4)
		if p.Text != expected {
			t.Errorf("index %d: expected %q, got %q", i, expected, p.Text)
		}
	}

	// Evicted ids are no longer resolvable.
	if s.FindByID(snap[0].ID-1) != nil {
		t.Error("evicted message still resolvable")
	}
}

// ---------------------------------------------------------------------------
// Test: Eviction ignores deleted state
// ---------------------------------------------------------------------------

func TestEvictionIgnoresDeleted(t *testing.T) {
	s := NewStore(2)

	first, _ := s.Append("Ana", "", textDraft("one"))
	if err := s.Remove(first.ID, "Ana"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s.Append("Ana", "", textDraft("two"))
	s.Append("Ana", "", textDraft("three"))

	if s.FindByID(first.ID) != nil {
		t.Error("deleted-but-oldest message should have been evicted")
	}
}

// ---------------------------------------------------------------------------
// Test: Validation — empty text, truncation, file-only messages
// ---------------------------------------------------------------------------

func TestAppendValidation(t *testing.T) {
	s := NewStore(10)

	if _, err := s.Append("Ana", "", textDraft("   ")); err != ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage for blank text, got %v", err)
	}

	// A file-only message may have empty text.
	m, err := s.Append("Ana", "", Draft{File: &File{URL: "/up/x.png", Kind: "image"}})
	if err != nil {
		t.Fatalf("file-only append: %v", err)
	}
	if m.Text != "" {
		t.Errorf("expected empty text, got %q", m.Text)
	}

	// Overlong text is truncated, not rejected.
	long := strings.Repeat("x", MaxTextRunes+50)
	m, err = s.Append("Ana", "", textDraft(long))
	if err != nil {
		t.Fatalf("long append: %v", err)
	}
	if got := len([]rune(m.Text)); got != MaxTextRunes {
		t.Errorf("expected %d runes after truncation, got %d", MaxTextRunes, got)
	}

	if _, err := s.Append("Ana", "", Draft{Text: "hi", Kind: "poll"}); err != ErrBadKind {
		t.Errorf("expected ErrBadKind, got %v", err)
	}

	if _, err := s.Append("Ana", "", Draft{File: &File{URL: "/x", Kind: "audio"}}); err != ErrBadFile {
		t.Errorf("expected ErrBadFile, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: Reply references resolve against the current log or are dropped
// ---------------------------------------------------------------------------

func TestReplyReference(t *testing.T) {
	s := NewStore(10)

	target, _ := s.Append("Ana", "", textDraft("original"))

	reply, err := s.Append("Ben", "", Draft{Text: "nice", ReplyTo: target.ID})
	if err != nil {
		t.Fatalf("reply append: %v", err)
	}
	if reply.ReplyTo == nil {
		t.Fatal("expected reply reference, got nil")
	}
	if reply.ReplyTo.User != "Ana" || reply.ReplyTo.Text != "original" {
		t.Errorf("unexpected snippet: %+v", reply.ReplyTo)
	}

	// Unknown target: reference dropped silently, message still stored.
	orphan, err := s.Append("Ben", "", Draft{Text: "to nobody", ReplyTo: 9999})
	if err != nil {
		t.Fatalf("orphan append: %v", err)
	}
	if orphan.ReplyTo != nil {
		t.Errorf("expected dropped reply reference, got %+v", orphan.ReplyTo)
	}
}

// ---------------------------------------------------------------------------
// Test: Replying to a deleted message keeps the reference without a snippet
// ---------------------------------------------------------------------------

func TestReplyToDeletedMessage(t *testing.T) {
	s := NewStore(10)

	target, _ := s.Append("Ana", "", textDraft("soon gone"))
	if err := s.Remove(target.ID, "Ana"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	reply, err := s.Append("Ben", "", Draft{Text: "what did it say?", ReplyTo: target.ID})
	if err != nil {
		t.Fatalf("reply append: %v", err)
	}
	if reply.ReplyTo == nil {
		t.Fatal("expected reply reference to deleted-but-retained message, got nil")
	}
	if reply.ReplyTo.ID != target.ID || reply.ReplyTo.User != "Ana" {
		t.Errorf("unexpected reference: %+v", reply.ReplyTo)
	}
	if reply.ReplyTo.Text != "" {
		t.Errorf("deleted target leaked snippet %q", reply.ReplyTo.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: Edit and delete are author-only and never mutate on failure
// ---------------------------------------------------------------------------

func TestEditAuthorization(t *testing.T) {
	s := NewStore(10)
	m, _ := s.Append("Ana", "", textDraft("hello"))

	if _, err := s.Edit(m.ID, "Ben", "hacked"); err != ErrNotAuthor {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if got := s.FindByID(m.ID); got.Text != "hello" || got.Edited {
		t.Errorf("failed edit mutated the message: %+v", got)
	}

	edited, err := s.Edit(m.ID, "Ana", "hello again")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Text != "hello again" || !edited.Edited {
		t.Errorf("unexpected edit result: %+v", edited)
	}

	if _, err := s.Edit(9999, "Ana", "x"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAuthorization(t *testing.T) {
	s := NewStore(10)
	m, _ := s.Append("Ana", "", textDraft("secret"))

	if err := s.Remove(m.ID, "Ben"); err != ErrNotAuthor {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if err := s.Remove(m.ID, "Ana"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(m.ID, "Ana"); err != ErrDeleted {
		t.Errorf("expected ErrDeleted on double delete, got %v", err)
	}
	if _, err := s.Edit(m.ID, "Ana", "revive"); err != ErrDeleted {
		t.Errorf("expected ErrDeleted on edit after delete, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: A deleted message keeps its id but exposes no content
// ---------------------------------------------------------------------------

func TestDeleteRetainsRecord(t *testing.T) {
	s := NewStore(10)
	m, _ := s.Append("Ana", "", Draft{Text: "bye", File: &File{URL: "/up/x.png", Kind: "image"}})
	s.React(m.ID, "Ben", "👍", true)

	if err := s.Remove(m.ID, "Ana"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got := s.FindByID(m.ID)
	if got == nil {
		t.Fatal("deleted message no longer resolvable")
	}
	if got.User != "Ana" {
		t.Errorf("expected author retained, got %q", got.User)
	}

	p := got.Payload()
	if !p.Deleted {
		t.Error("payload missing deleted flag")
	}
	if p.Text != "" || p.File != nil || p.Reactions != nil || p.ReplyTo != nil {
		t.Errorf("deleted payload leaks content: %+v", p)
	}
}

// ---------------------------------------------------------------------------
// Test: Reactions are idempotent in both directions
// ---------------------------------------------------------------------------

func TestReactionIdempotence(t *testing.T) {
	s := NewStore(10)
	m, _ := s.Append("Ana", "", textDraft("hi"))

	for i := 0; i < 2; i++ {
		if _, err := s.React(m.ID, "Ben", "👍", true); err != nil {
			t.Fatalf("react add %d: %v", i, err)
		}
	}

	p := s.FindByID(m.ID).Payload()
	if len(p.Reactions["👍"]) != 1 || p.Reactions["👍"][0] != "Ben" {
		t.Errorf("expected single reaction by Ben, got %v", p.Reactions)
	}

	// Removing twice is also a no-op success.
	for i := 0; i < 2; i++ {
		if _, err := s.React(m.ID, "Ben", "👍", false); err != nil {
			t.Fatalf("react remove %d: %v", i, err)
		}
	}
	p = s.FindByID(m.ID).Payload()
	if len(p.Reactions) != 0 {
		t.Errorf("expected empty reactions, got %v", p.Reactions)
	}

	if _, err := s.React(9999, "Ben", "👍", true); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: Snapshot reflects the latest state, not append-time state
// ---------------------------------------------------------------------------

func TestSnapshotReflectsMutations(t *testing.T) {
	s := NewStore(10)
	a, _ := s.Append("Ana", "", textDraft("one"))
	b, _ := s.Append("Ben", "", textDraft("two"))

	s.Edit(a.ID, "Ana", "one (edited)")
	s.React(b.ID, "Ana", "❤️", true)

	snap := s.Snapshot()
	if snap[0].Text != "one (edited)" || !snap[0].Edited {
		t.Errorf("snapshot missed edit: %+v", snap[0])
	}
	if got := snap[1].Reactions["❤️"]; len(got) != 1 || got[0] != "Ana" {
		t.Errorf("snapshot missed reaction: %+v", snap[1].Reactions)
	}
}
