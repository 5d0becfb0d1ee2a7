package history

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxTextRunes is the character cap applied to message and edit text.
// Overlong text is truncated rather than rejected.
const MaxTextRunes = 500

// Validation errors. The gateway drops these silently per the room UX: a
// malformed send is simply not delivered.
var (
	ErrEmptyMessage = errors.New("history: message text is empty")
	ErrInvalidUTF8  = errors.New("history: message contains invalid UTF-8")
	ErrBadKind      = errors.New("history: unknown message kind")
	ErrBadFile      = errors.New("history: malformed file reference")
)

// sanitizeDraft normalizes and validates a draft before it enters the log.
func sanitizeDraft(draft Draft) (Draft, error) {
	if draft.Kind == "" {
		draft.Kind = KindText
	}
	switch draft.Kind {
	case KindText, KindFile, KindGameInvite:
	default:
		return draft, ErrBadKind
	}

	if draft.File != nil {
		if draft.File.URL == "" || (draft.File.Kind != "image" && draft.File.Kind != "video") {
			return draft, ErrBadFile
		}
	}

	text, err := sanitizeText(draft.Text)
	if err != nil {
		return draft, err
	}
	draft.Text = text

	// Text kinds need content unless a file rides along. Non-text kinds may
	// be empty (a game invite is all metadata).
	if draft.Kind == KindText && draft.Text == "" && draft.File == nil {
		return draft, ErrEmptyMessage
	}
	return draft, nil
}

// sanitizeText trims, checks UTF-8 validity, and caps the rune count.
func sanitizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if !utf8.ValidString(text) {
		return "", ErrInvalidUTF8
	}
	return truncateRunes(text, MaxTextRunes), nil
}

// truncateRunes caps s at n runes without splitting a multi-byte sequence.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
