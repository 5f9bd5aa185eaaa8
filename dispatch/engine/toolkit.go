package engine

import (
	"context"
	"math/rand/v2"

	"github.com/emberbot/ember/dispatch/event"
)

// Helpers shared by all units, passed explicitly to each unit's load function and available to handlers through RuleContext.
type Toolkit interface {
	// Posts a text message in the same channel as msg
	Send(ctx context.Context, msg event.Message, text string) error
	// Adds reactions to msg in the given order. Returns immediately; sends happen in the background.
	React(ctx context.Context, msg event.Message, symbols ...string)
	// Posts a custom server emoji, by name, as a message in the same channel as msg
	SendEmoji(ctx context.Context, msg event.Message, name string) error
	PickRandom(options []string) string
	BotName() string
}

// Uniformly random element of options, or the zero value if there are none.
func PickRandom[T any](options []T) T {
	var zero T
	if len(options) == 0 {
		return zero
	}
	return options[rand.IntN(len(options))]
}
