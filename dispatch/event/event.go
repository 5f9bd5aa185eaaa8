package event

import (
	"fmt"
	"slices"
)

// Kind of platform activity which can trigger rules.
type Kind string

const (
	KindMessage Kind = "message"
	KindReact   Kind = "react"
	KindUnreact Kind = "unreact"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMessage, KindReact, KindUnreact:
		return true
	}
	return false
}

// Bitmask of platform permissions held by a member in a channel. Bit values follow the discord API.
type Permissions int64

const (
	PermissionAdministrator  Permissions = 1 << 3
	PermissionManageChannels Permissions = 1 << 4
	PermissionAddReactions   Permissions = 1 << 6
	PermissionSendMessages   Permissions = 1 << 11
	PermissionManageMessages Permissions = 1 << 13
)

// Checks that every bit of `required` is held. Administrators hold everything.
func (p Permissions) Has(required Permissions) bool {
	if p&PermissionAdministrator != 0 {
		return true
	}
	return p&required == required
}

type User struct {
	ID       string
	Username string
	Bot      bool
}

// Immutable snapshot of a message, as delivered by the transport.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	// Human-readable channel name; only used for logging
	ChannelName string
	Content     string
	Author      User
	// IDs of users addressed by this message
	Mentions []string
}

// Whether the given user is among the message's addressed mentions.
func (m *Message) Addresses(userID string) bool {
	if userID == "" {
		return false
	}
	return slices.Contains(m.Mentions, userID)
}

// A reaction symbol. Custom server emoji have a non-empty ID; generic (unicode) ones only a Name.
type Reaction struct {
	Name string
	ID   string
}

// Represents a single inbound activity: a new message, or a reaction being added to or removed from a message.
type Event struct {
	Kind Kind
	// The acting user: author for messages, reacting user for reactions
	User User
	// Permissions of the acting member in the message's channel
	Permissions Permissions
	Message     Message
	// Only set for react and unreact events
	Reaction *Reaction
}

func (e *Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unexpected event kind: %q", e.Kind)
	}
	if e.Reaction == nil && e.Kind != KindMessage {
		return fmt.Errorf("expected %s event to carry a reaction", e.Kind)
	}
	return nil
}
