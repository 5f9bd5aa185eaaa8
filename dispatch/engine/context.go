package engine

import (
	"context"
	"log/slog"

	"github.com/emberbot/ember/dispatch/event"
)

// Passed to rule handlers and cooldown callbacks for a single event.
type RuleContext struct {
	// Actual golang "context.Context", if needed for timeouts etc
	Ctx context.Context
	// slog logger handle, with event and rule fields pre-populated
	Logger *slog.Logger

	Rule    *Rule
	Kind    event.Kind
	User    event.User
	Message event.Message
	// Nil for message events
	Reaction *event.Reaction
	Kit      Toolkit
}

func (eng *Engine) newRuleContext(ctx context.Context, logger *slog.Logger, r *Rule, evt *event.Event) *RuleContext {
	return &RuleContext{
		Ctx:      ctx,
		Logger:   logger.With("rule", r.Name),
		Rule:     r,
		Kind:     evt.Kind,
		User:     evt.User,
		Message:  evt.Message,
		Reaction: evt.Reaction,
		Kit:      eng.Kit,
	}
}

// Replies in the message's channel.
func (c *RuleContext) Send(text string) error {
	return c.Kit.Send(c.Ctx, c.Message, text)
}

// Reacts to the message with each symbol, in order.
func (c *RuleContext) React(symbols ...string) {
	c.Kit.React(c.Ctx, c.Message, symbols...)
}

func (c *RuleContext) SendEmoji(name string) error {
	return c.Kit.SendEmoji(c.Ctx, c.Message, name)
}

func (c *RuleContext) PickRandom(options ...string) string {
	return c.Kit.PickRandom(options)
}

func (c *RuleContext) BotName() string {
	return c.Kit.BotName()
}
