package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/event"
	"github.com/emberbot/ember/dispatch/kvstore"
	"github.com/emberbot/ember/dispatch/reactions"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ember/consumer")

// Gateway intents needed to see message content and reactions in guild channels.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildEmojis |
	discordgo.IntentsMessageContent

// Connects a discord gateway session to the rules engine.
type DiscordConsumer struct {
	Session   *discordgo.Session
	Engine    *engine.Engine
	Sequencer *reactions.Sequencer
	// Used to record the bot name on first connect (optional)
	KV     kvstore.KVStore
	Logger *slog.Logger
}

// Opens the gateway connection and dispatches events until the context is cancelled.
func (dc *DiscordConsumer) Run(ctx context.Context) error {
	if dc.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	if dc.Logger == nil {
		dc.Logger = slog.Default()
	}

	dc.Session.Identify.Intents = Intents
	handlers := []func(){
		dc.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
			dc.onReady(ctx, r)
		}),
		dc.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			dc.onMessageCreate(ctx, m)
		}),
		dc.Session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
			dc.onReaction(ctx, event.KindReact, r.MessageReaction)
		}),
		dc.Session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
			dc.onReaction(ctx, event.KindUnreact, r.MessageReaction)
		}),
		dc.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageDelete) {
			dc.onMessageDelete(m)
		}),
		dc.Session.AddHandler(func(s *discordgo.Session, u *discordgo.GuildEmojisUpdate) {
			if dc.Sequencer != nil {
				dc.Sequencer.Resolver.Purge(u.GuildID)
			}
		}),
	}
	defer func() {
		for _, remove := range handlers {
			remove()
		}
	}()

	dc.Logger.Info("opening discord gateway session")
	if err := dc.Session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}

	<-ctx.Done()
	dc.Logger.Info("closing discord gateway session")
	if dc.Sequencer != nil {
		dc.Sequencer.Wait()
	}
	if err := dc.Session.Close(); err != nil {
		return fmt.Errorf("closing discord session: %w", err)
	}
	return nil
}

func (dc *DiscordConsumer) onReady(ctx context.Context, r *discordgo.Ready) {
	if r.User == nil {
		dc.Logger.Warn("ready event without bot user")
		return
	}
	bot := userFromDiscord(r.User)
	dc.Engine.SetBotUser(bot)
	dc.Logger.Info("connected to discord gateway", "botID", bot.ID, "username", bot.Username, "guilds", len(r.Guilds))

	if dc.KV == nil {
		return
	}
	name, err := dc.KV.Get(ctx, engine.ConfigBotName)
	if err != nil {
		dc.Logger.Warn("could not read stored bot name", "err", err)
		return
	}
	if name != "" {
		return
	}
	if err := dc.KV.Set(ctx, engine.ConfigBotName, bot.Username); err != nil {
		dc.Logger.Warn("could not store bot name", "err", err)
	}
}

func (dc *DiscordConsumer) onMessageCreate(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	ctx, span := tracer.Start(ctx, "MessageCreate")
	defer span.End()
	span.SetAttributes(
		attribute.String("channel", m.ChannelID),
		attribute.String("message", m.ID),
	)

	evt := event.Event{
		Kind:        event.KindMessage,
		User:        userFromDiscord(m.Author),
		Permissions: dc.permissions(m.Author.ID, m.ChannelID),
		Message:     messageFromDiscord(m.Message, dc.channelName(m.ChannelID)),
	}
	dc.process(ctx, span, evt)
}

func (dc *DiscordConsumer) onReaction(ctx context.Context, kind event.Kind, r *discordgo.MessageReaction) {
	if r == nil {
		return
	}
	ctx, span := tracer.Start(ctx, "MessageReaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("channel", r.ChannelID),
		attribute.String("message", r.MessageID),
	)

	// reaction payloads only carry IDs, so fetch the full message for filters and mentions
	msg, err := dc.Session.ChannelMessage(r.ChannelID, r.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		dc.Logger.Warn("failed to fetch reacted message", "channel", r.ChannelID, "message", r.MessageID, "err", err)
		return
	}
	if msg.GuildID == "" {
		msg.GuildID = r.GuildID
	}
	user, err := dc.user(ctx, r.GuildID, r.UserID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		dc.Logger.Warn("failed to fetch reacting user", "user", r.UserID, "err", err)
		return
	}

	evt := event.Event{
		Kind:        kind,
		User:        user,
		Permissions: dc.permissions(r.UserID, r.ChannelID),
		Message:     messageFromDiscord(msg, dc.channelName(r.ChannelID)),
		Reaction:    reactionFromDiscord(r.Emoji),
	}
	dc.process(ctx, span, evt)
}

func (dc *DiscordConsumer) onMessageDelete(m *discordgo.MessageDelete) {
	if m.Message == nil || dc.Sequencer == nil {
		return
	}
	if dc.Sequencer.Cancel(m.ID) {
		dc.Logger.Debug("cancelled reactions for deleted message", "message", m.ID)
	}
}

func (dc *DiscordConsumer) process(ctx context.Context, span trace.Span, evt event.Event) {
	if err := dc.Engine.ProcessEvent(ctx, evt); err != nil {
		span.SetStatus(codes.Error, err.Error())
		dc.Logger.Error("failed to process event", "kind", evt.Kind, "message", evt.Message.ID, "err", err)
	}
}

// Permission bits of the member in the channel. Failures are logged and yield no permissions.
func (dc *DiscordConsumer) permissions(userID, channelID string) event.Permissions {
	perms, err := dc.Session.UserChannelPermissions(userID, channelID)
	if err != nil {
		dc.Logger.Debug("could not resolve member permissions", "user", userID, "channel", channelID, "err", err)
		return 0
	}
	return event.Permissions(perms)
}

func (dc *DiscordConsumer) channelName(channelID string) string {
	if dc.Session.State == nil {
		return ""
	}
	ch, err := dc.Session.State.Channel(channelID)
	if err != nil {
		return ""
	}
	return ch.Name
}

func (dc *DiscordConsumer) user(ctx context.Context, guildID, userID string) (event.User, error) {
	if dc.Session.State != nil && guildID != "" {
		if mem, err := dc.Session.State.Member(guildID, userID); err == nil && mem.User != nil {
			return userFromDiscord(mem.User), nil
		}
	}
	u, err := dc.Session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return event.User{}, err
	}
	return userFromDiscord(u), nil
}

func userFromDiscord(u *discordgo.User) event.User {
	if u == nil {
		return event.User{}
	}
	return event.User{
		ID:       u.ID,
		Username: u.Username,
		Bot:      u.Bot,
	}
}

func messageFromDiscord(m *discordgo.Message, channelName string) event.Message {
	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		if u != nil {
			mentions = append(mentions, u.ID)
		}
	}
	return event.Message{
		ID:          m.ID,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		ChannelName: channelName,
		Content:     m.Content,
		Author:      userFromDiscord(m.Author),
		Mentions:    mentions,
	}
}

func reactionFromDiscord(e discordgo.Emoji) *event.Reaction {
	return &event.Reaction{
		Name: e.Name,
		ID:   e.ID,
	}
}
