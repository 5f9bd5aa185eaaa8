package consumer

import (
	"context"
	"fmt"

	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/event"
	"github.com/emberbot/ember/dispatch/reactions"

	"github.com/bwmarrin/discordgo"
)

// Discord implementation of the handler toolkit, and the transport for reaction sequencing.
//
// Sequencer must be set before React is called; it is usually built with the kit itself as its Reactor.
type DiscordKit struct {
	Session   *discordgo.Session
	Sequencer *reactions.Sequencer
	Name      string
}

var _ engine.Toolkit = (*DiscordKit)(nil)
var _ reactions.Reactor = (*DiscordKit)(nil)

func (k *DiscordKit) Send(ctx context.Context, msg event.Message, text string) error {
	_, err := k.Session.ChannelMessageSend(msg.ChannelID, text, discordgo.WithContext(ctx))
	return err
}

func (k *DiscordKit) React(ctx context.Context, msg event.Message, symbols ...string) {
	k.Sequencer.React(ctx, msg, symbols...)
}

func (k *DiscordKit) SendEmoji(ctx context.Context, msg event.Message, name string) error {
	e, err := k.Sequencer.Resolver.Lookup(ctx, msg.GuildID, name)
	if err != nil {
		return fmt.Errorf("looking up emoji %q: %w", name, err)
	}
	if e == nil {
		return fmt.Errorf("no custom emoji named %q in guild %s", name, msg.GuildID)
	}
	return k.Send(ctx, msg, e.MessageFormat())
}

func (k *DiscordKit) PickRandom(options []string) string {
	return engine.PickRandom(options)
}

func (k *DiscordKit) BotName() string {
	return k.Name
}

func (k *DiscordKit) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return k.Session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

func (k *DiscordKit) GuildEmojis(ctx context.Context, guildID string) ([]reactions.Emoji, error) {
	list, err := k.Session.GuildEmojis(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return emojisFromDiscord(list), nil
}

func emojisFromDiscord(list []*discordgo.Emoji) []reactions.Emoji {
	out := make([]reactions.Emoji, 0, len(list))
	for _, e := range list {
		if e == nil || e.ID == "" {
			continue
		}
		out = append(out, reactions.Emoji{ID: e.ID, Name: e.Name})
	}
	return out
}
