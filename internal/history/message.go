// Package history implements the room's bounded, append-only message log.
// Messages are kept in arrival order and support in-place edit, soft delete,
// threaded reply references, and per-message reaction sets. The log is capped
// at a fixed number of entries; oldest entries are evicted first.
package history

import "sort"

// Message kinds.
const (
	KindText       = "text"
	KindFile       = "file"
	KindGameInvite = "game-invite"
)

// File describes a media attachment. The server never fetches or validates
// the URL; it is an opaque reference for the client.
type File struct {
	URL  string `json:"url"`
	Mime string `json:"mime,omitempty"`
	Kind string `json:"kind"` // "image" or "video"
}

// ReplyRef is a denormalized snippet of the message being replied to. It is
// captured at append time so the reply stays renderable after the target is
// edited or evicted.
type ReplyRef struct {
	ID   int64  `json:"id"`
	User string `json:"user"`
	Text string `json:"text"`
}

// Message is one entry in the room log. A deleted message keeps its id and
// author so in-flight reply and reaction references stay resolvable, but its
// content is withheld from outbound payloads.
type Message struct {
	ID        int64
	User      string
	Avatar    string
	Text      string
	Kind      string
	File      *File
	ReplyTo   *ReplyRef
	CreatedAt int64 // unix timestamp; display only, ordering is by arrival
	Edited    bool
	Deleted   bool
	Reactions map[string]map[string]bool // emoji -> set of reacting names
}

// Payload is the outbound JSON form of a Message. For deleted messages only
// id, author, kind, timestamp and the deleted flag are populated.
type Payload struct {
	ID        int64               `json:"id"`
	User      string              `json:"user"`
	Avatar    string              `json:"avatar,omitempty"`
	Text      string              `json:"text,omitempty"`
	Kind      string              `json:"kind"`
	File      *File               `json:"file,omitempty"`
	ReplyTo   *ReplyRef           `json:"replyTo,omitempty"`
	Ts        int64               `json:"ts"`
	Edited    bool                `json:"edited,omitempty"`
	Deleted   bool                `json:"deleted,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// Payload converts the message to its outbound form, honoring the soft-delete
// rule: a deleted message exposes no text, file, reply or reactions. Reaction
// member lists are sorted so payloads are deterministic.
func (m *Message) Payload() Payload {
	p := Payload{
		ID:   m.ID,
		User: m.User,
		Kind: m.Kind,
		Ts:   m.CreatedAt,
	}
	if m.Deleted {
		p.Deleted = true
		return p
	}

	p.Avatar = m.Avatar
	p.Text = m.Text
	p.File = m.File
	p.ReplyTo = m.ReplyTo
	p.Edited = m.Edited

	if len(m.Reactions) > 0 {
		p.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			names := make([]string, 0, len(users))
			for name := range users {
				names = append(names, name)
			}
			sort.Strings(names)
			p.Reactions[emoji] = names
		}
	}
	return p
}
