package history

import (
	"errors"
	"sync"
	"time"
)

// DefaultLimit is the number of messages retained in the room log.
const DefaultLimit = 100

// replySnippetRunes caps the denormalized text carried by a reply reference.
const replySnippetRunes = 80

// Errors returned by store operations. The gateway maps these to its silent
// drop / notify policy; none of them is fatal.
var (
	ErrNotFound  = errors.New("history: message not found")
	ErrNotAuthor = errors.New("history: not the message author")
	ErrDeleted   = errors.New("history: message is deleted")
)

// Draft is the validated input for Append, built from a client chat message.
type Draft struct {
	Text    string
	Kind    string
	File    *File
	ReplyTo int64 // 0 = not a reply
}

// Store is the bounded in-memory message log. It is goroutine-safe; the
// gateway additionally serializes all mutations through its command loop.
type Store struct {
	mu     sync.RWMutex
	limit  int
	nextID int64
	log    []*Message

	// now is swappable in tests.
	now func() time.Time
}

// NewStore creates an empty log bounded to limit entries. A limit of zero or
// less falls back to DefaultLimit.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit:  limit,
		nextID: 1,
		log:    make([]*Message, 0, limit),
		now:    time.Now,
	}
}

// Append validates the draft, assigns the next id, and appends the message to
// the log, evicting the oldest entry if the bound is exceeded. A reply
// reference to an id no longer in the log is dropped silently; a reference to
// a deleted message keeps its id and author but carries no snippet. The
// returned message is the stored record; callers must not mutate it.
func (s *Store) Append(author, avatar string, draft Draft) (*Message, error) {
	draft, err := sanitizeDraft(draft)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &Message{
		ID:        s.nextID,
		User:      author,
		Avatar:    avatar,
		Text:      draft.Text,
		Kind:      draft.Kind,
		File:      draft.File,
		CreatedAt: s.now().Unix(),
	}
	s.nextID++

	if draft.ReplyTo != 0 {
		if target := s.findLocked(draft.ReplyTo); target != nil {
			ref := &ReplyRef{ID: target.ID, User: target.User}
			// A deleted target is still a real reference; only its snippet
			// is withheld, matching how the deleted message itself renders.
			if !target.Deleted {
				ref.Text = truncateRunes(target.Text, replySnippetRunes)
			}
			msg.ReplyTo = ref
		}
	}

	s.log = append(s.log, msg)
	if len(s.log) > s.limit {
		// FIFO eviction, independent of edit/delete state.
		s.log = s.log[1:]
	}
	return msg, nil
}

// Edit replaces the text of a message authored by author. The edited flag is
// set and the text is re-capped at the usual bound.
func (s *Store) Edit(id int64, author, text string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findLocked(id)
	if msg == nil {
		return nil, ErrNotFound
	}
	if msg.User != author {
		return nil, ErrNotAuthor
	}
	if msg.Deleted {
		return nil, ErrDeleted
	}

	text, err := sanitizeText(text)
	if err != nil {
		return nil, err
	}
	msg.Text = text
	msg.Edited = true
	return msg, nil
}

// Remove soft-deletes a message authored by author. The record stays in the
// log so its id remains resolvable, but content is withheld from payloads.
func (s *Store) Remove(id int64, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findLocked(id)
	if msg == nil {
		return ErrNotFound
	}
	if msg.User != author {
		return ErrNotAuthor
	}
	if msg.Deleted {
		return ErrDeleted
	}

	msg.Deleted = true
	msg.Text = ""
	msg.File = nil
	msg.ReplyTo = nil
	msg.Reactions = nil
	return nil
}

// React adds or removes user's reaction with the given emoji. The operation
// is idempotent in both directions so at-least-once client retries are safe.
func (s *Store) React(id int64, user, emoji string, add bool) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findLocked(id)
	if msg == nil {
		return nil, ErrNotFound
	}
	if msg.Deleted {
		return nil, ErrDeleted
	}

	if add {
		if msg.Reactions == nil {
			msg.Reactions = make(map[string]map[string]bool)
		}
		if msg.Reactions[emoji] == nil {
			msg.Reactions[emoji] = make(map[string]bool)
		}
		msg.Reactions[emoji][user] = true
	} else {
		if users, ok := msg.Reactions[emoji]; ok {
			delete(users, user)
			if len(users) == 0 {
				delete(msg.Reactions, emoji)
			}
		}
	}
	return msg, nil
}

// Snapshot returns the outbound form of every message, in arrival order,
// reflecting the current edit/delete/reaction state.
func (s *Store) Snapshot() []Payload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Payload, len(s.log))
	for i, msg := range s.log {
		out[i] = msg.Payload()
	}
	return out
}

// FindByID returns the message with the given id, or nil if it is unknown or
// has been evicted.
func (s *Store) FindByID(id int64) *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id)
}

// Len returns the current log length.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// findLocked scans backwards since lookups usually target recent messages.
// Caller must hold the lock.
func (s *Store) findLocked(id int64) *Message {
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].ID == id {
			return s.log[i]
		}
	}
	return nil
}
