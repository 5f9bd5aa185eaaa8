package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emberbot/ember/dispatch/event"
	"github.com/emberbot/ember/dispatch/kvstore"
)

// Toolkit which records calls instead of talking to a transport. Intended for tests.
type MockToolkit struct {
	mu        sync.Mutex
	Name      string
	Sent      []string
	Reactions [][]string
	Emojis    []string
}

var _ Toolkit = (*MockToolkit)(nil)

func (k *MockToolkit) Send(ctx context.Context, msg event.Message, text string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Sent = append(k.Sent, text)
	return nil
}

func (k *MockToolkit) React(ctx context.Context, msg event.Message, symbols ...string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Reactions = append(k.Reactions, symbols)
}

func (k *MockToolkit) SendEmoji(ctx context.Context, msg event.Message, name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Emojis = append(k.Emojis, name)
	return nil
}

// Always the first option, so tests are deterministic
func (k *MockToolkit) PickRandom(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[0]
}

func (k *MockToolkit) BotName() string {
	return k.Name
}

func (k *MockToolkit) SentMessages() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string{}, k.Sent...)
}

func (k *MockToolkit) ReactionCalls() [][]string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([][]string{}, k.Reactions...)
}

const TestBotID = "bot-1"

// Engine with in-memory storage, a MockToolkit, a fixed clock, and the bot identity already set.
func EngineTestFixture() (*Engine, *MockToolkit) {
	kit := &MockToolkit{Name: "testbot"}
	cfg := DefaultConfig()
	cfg.LogIncomingEvents = false
	eng := NewEngine(slog.Default(), kvstore.NewMemKVStore(), kit, cfg)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng.Cooldowns.Now = func() time.Time { return now }
	eng.SetBotUser(event.User{ID: TestBotID, Username: "testbot", Bot: true})
	return eng, kit
}

// Message event from an ordinary member in channel "c1".
func MessageEventFixture(content string, mentions ...string) event.Event {
	return event.Event{
		Kind:        event.KindMessage,
		User:        event.User{ID: "u1", Username: "alice"},
		Permissions: event.PermissionSendMessages | event.PermissionAddReactions,
		Message: event.Message{
			ID:          "m1",
			GuildID:     "g1",
			ChannelID:   "c1",
			ChannelName: "general",
			Content:     content,
			Author:      event.User{ID: "u1", Username: "alice"},
			Mentions:    mentions,
		},
	}
}

// Reaction event (react or unreact) by an ordinary member on a message in channel "c1".
func ReactionEventFixture(kind event.Kind, name string, content string, mentions ...string) event.Event {
	evt := MessageEventFixture(content, mentions...)
	evt.Kind = kind
	evt.User = event.User{ID: "u2", Username: "bob"}
	evt.Reaction = &event.Reaction{Name: name}
	return evt
}
