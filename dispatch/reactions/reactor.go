package reactions

import (
	"context"
	"fmt"
)

// A custom emoji available on a server.
type Emoji struct {
	ID   string
	Name string
}

// API form of the emoji, as accepted by the reaction endpoint.
func (e Emoji) APIName() string {
	if e.ID == "" {
		return e.Name
	}
	return e.Name + ":" + e.ID
}

// Inline form for message text.
func (e Emoji) MessageFormat() string {
	if e.ID == "" {
		return e.Name
	}
	return fmt.Sprintf("<:%s:%s>", e.Name, e.ID)
}

// Transport operations needed to place reactions.
type Reactor interface {
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	GuildEmojis(ctx context.Context, guildID string) ([]Emoji, error)
}

// Failure to resolve or send a single symbol.
type SendError struct {
	Symbol string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to react with %q: %v", e.Symbol, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
