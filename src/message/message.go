package message

import (
	"cmp"
	"slices"
)

// RootParent is the parent id carried by the first message of a thread when
// it does not point at itself.
const RootParent uint64 = 0

// Message is a single entry on a channel.
//
// Fields are unexported so a Message cannot change after New returns it;
// values are comparable with == and safe to copy.
type Message struct {
	id     uint64
	parent uint64
	user   string
	text   string
	time   string
}

// New builds a Message. time is stored as given, no format is imposed.
func New(id, parent uint64, user, text, time string) Message {
	return Message{
		id:     id,
		parent: parent,
		user:   user,
		text:   text,
		time:   time,
	}
}

// ID returns the per-channel sequence number (lseq).
func (m Message) ID() uint64 { return m.id }

// Parent returns the id of the message this one follows or replies to.
func (m Message) Parent() uint64 { return m.parent }

func (m Message) User() string { return m.user }
func (m Message) Text() string { return m.text }
func (m Message) Time() string { return m.time }

// IsRoot reports whether m starts a thread.
func (m Message) IsRoot() bool {
	return m.parent == m.id || m.parent == RootParent
}

// SortByID returns a copy of msgs ordered by message id. Ties keep the
// order they arrived in.
func SortByID(msgs []Message) []Message {
	out := slices.Clone(msgs)
	slices.SortStableFunc(out, func(a, b Message) int {
		return cmp.Compare(a.id, b.id)
	})
	return out
}
