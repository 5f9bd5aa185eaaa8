package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emberbot/ember/dispatch/cooldown"
	"github.com/emberbot/ember/dispatch/event"
	"github.com/emberbot/ember/dispatch/kvstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settable clock for cooldown tests
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func withClock(eng *Engine, t time.Time) *testClock {
	clk := &testClock{now: t}
	eng.Cooldowns.Now = clk.Now
	return clk
}

// records rule names in the order handlers were invoked
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) handler(name string, ret error) HandlerFunc {
	return func(c *RuleContext) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.calls = append(l.calls, name)
		return ret
	}
}

func (l *callLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.calls...)
}

func TestEngineFirstMatchWins(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	log := &callLog{}

	assert.True(eng.Register(ctx, NewFilterRule("a", event.KindMessage, "hello", log.handler("a", nil))))
	assert.True(eng.Register(ctx, NewFilterRule("b", event.KindMessage, "hello", log.handler("b", nil))))

	matched, err := eng.Match(ctx, MessageEventFixture("hello there"))
	assert.NoError(err)
	if assert.NotNil(matched) {
		assert.Equal("a", matched.Name)
	}
	assert.Equal([]string{"a"}, log.Calls())
}

func TestEngineContinue(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	clk := withClock(eng, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	log := &callLog{}

	r1 := NewRule("first", event.KindMessage, RuleOptions{Filter: "hi", Cooldown: time.Minute}, log.handler("first", ErrContinue))
	assert.True(eng.Register(ctx, r1))
	assert.True(eng.Register(ctx, NewFilterRule("second", event.KindMessage, "hi", log.handler("second", nil))))

	before, ok, err := eng.Cooldowns.Get(ctx, "first")
	require.NoError(t, err)
	require.True(t, ok)

	clk.Set(clk.Now().Add(10 * time.Minute))
	matched, err := eng.Match(ctx, MessageEventFixture("hi"))
	assert.NoError(err)
	if assert.NotNil(matched) {
		assert.Equal("second", matched.Name)
	}
	assert.Equal([]string{"first", "second"}, log.Calls())

	// continuing does not count as firing
	after, ok, err := eng.Cooldowns.Get(ctx, "first")
	assert.NoError(err)
	assert.True(ok)
	assert.True(before.Equal(after))

	// wrapped sentinel is honored too
	eng2, _ := EngineTestFixture()
	log2 := &callLog{}
	wrapped := func(c *RuleContext) error { return errors.Join(errors.New("not mine"), ErrContinue) }
	assert.True(eng2.Register(ctx, NewFilterRule("w", event.KindMessage, "", wrapped)))
	assert.True(eng2.Register(ctx, NewFilterRule("x", event.KindMessage, "", log2.handler("x", nil))))
	matched, err = eng2.Match(ctx, MessageEventFixture("anything"))
	assert.NoError(err)
	if assert.NotNil(matched) {
		assert.Equal("x", matched.Name)
	}
}

func TestEnginePassiveRule(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, kit := EngineTestFixture()
	log := &callLog{}

	assert.True(eng.Register(ctx, NewRule("observer", event.KindMessage, RuleOptions{Passive: true}, log.handler("observer", nil))))
	assert.True(eng.Register(ctx, NewFilterRule("ping", event.KindMessage, "^ping$", log.handler("ping", nil))))

	matched, err := eng.Match(ctx, MessageEventFixture("ping"))
	assert.NoError(err)
	if assert.NotNil(matched) {
		assert.Equal("ping", matched.Name)
	}
	assert.Equal([]string{"observer", "ping"}, log.Calls())

	// a passive match alone does not count as handling, so an addressed message still gets the fallback
	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("something else", TestBotID)))
	assert.Equal([]string{"observer", "ping", "observer"}, log.Calls())
	assert.Equal([][]string{{"hmm"}}, kit.ReactionCalls())
}

func TestEngineCooldownWindow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := withClock(eng, t0.Add(-time.Hour))
	log := &callLog{}
	cooledDown := 0

	r := NewRule("limited", event.KindMessage, RuleOptions{
		Filter:     "go",
		Cooldown:   5 * time.Minute,
		OnCooldown: func(c *RuleContext) { cooledDown++ },
	}, log.handler("limited", nil))
	assert.True(eng.Register(ctx, r))

	clk.Set(t0)
	matched, err := eng.Match(ctx, MessageEventFixture("go"))
	assert.NoError(err)
	assert.NotNil(matched)
	last, ok, err := eng.Cooldowns.Get(ctx, "limited")
	assert.NoError(err)
	assert.True(ok)
	assert.True(t0.Equal(last))

	clk.Set(t0.Add(4 * time.Minute))
	matched, err = eng.Match(ctx, MessageEventFixture("go"))
	assert.NoError(err)
	assert.Nil(matched)
	assert.Equal(1, cooledDown)

	clk.Set(t0.Add(6 * time.Minute))
	matched, err = eng.Match(ctx, MessageEventFixture("go"))
	assert.NoError(err)
	assert.NotNil(matched)
	assert.Equal([]string{"limited", "limited"}, log.Calls())
	assert.Equal(1, cooledDown)
}

func TestEngineCooldownFallsThrough(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	log := &callLog{}

	// registered "now", so immediately on cooldown
	assert.True(eng.Register(ctx, NewRule("limited", event.KindMessage, RuleOptions{Cooldown: time.Minute}, log.handler("limited", nil))))
	assert.True(eng.Register(ctx, NewFilterRule("later", event.KindMessage, "", log.handler("later", nil))))

	matched, err := eng.Match(ctx, MessageEventFixture("x"))
	assert.NoError(err)
	if assert.NotNil(matched) {
		assert.Equal("later", matched.Name)
	}
	assert.Equal([]string{"later"}, log.Calls())
}

func TestEngineHelloEndToEnd(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, kit := EngineTestFixture()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := withClock(eng, t0.Add(-11*time.Minute))
	onCooldown := 0

	r := NewRule("hello", event.KindMessage, RuleOptions{
		Filter:     `/\bhello\b/i`,
		Cooldown:   10 * time.Minute,
		OnCooldown: func(c *RuleContext) { onCooldown++ },
	}, func(c *RuleContext) error {
		return c.Send("hello " + c.User.Username)
	})
	assert.True(eng.Register(ctx, r))

	clk.Set(t0)
	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("Hello everyone")))
	assert.Equal([]string{"hello alice"}, kit.SentMessages())
	assert.Equal(0, onCooldown)

	clk.Set(t0.Add(time.Minute))
	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("hello again")))
	assert.Equal([]string{"hello alice"}, kit.SentMessages())
	assert.Equal(1, onCooldown)
	assert.Empty(kit.ReactionCalls())
}

func TestEngineFallbackReaction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, kit := EngineTestFixture()

	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("hey", TestBotID)))
	assert.Equal([][]string{{"hmm"}}, kit.ReactionCalls())

	// not addressed
	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("hey", "someone-else")))
	assert.Len(kit.ReactionCalls(), 1)

	// reactions never get the fallback
	assert.NoError(eng.ProcessEvent(ctx, ReactionEventFixture(event.KindReact, "👍", "hey", TestBotID)))
	assert.NoError(eng.ProcessEvent(ctx, ReactionEventFixture(event.KindUnreact, "👍", "hey", TestBotID)))
	assert.Len(kit.ReactionCalls(), 1)

	// handled messages do not get it either
	assert.True(eng.Register(ctx, NewFilterRule("any", event.KindMessage, "", func(c *RuleContext) error { return nil })))
	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("hey", TestBotID)))
	assert.Len(kit.ReactionCalls(), 1)
}

func TestEngineConfiguredFallback(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, kit := EngineTestFixture()
	eng.Config.FallbackReaction = "🤔"

	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("hey", TestBotID)))
	assert.Equal([][]string{{"🤔"}}, kit.ReactionCalls())
}

func TestEngineHandlerError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, kit := EngineTestFixture()
	log := &callLog{}

	boom := errors.New("boom")
	assert.True(eng.Register(ctx, NewFilterRule("broken", event.KindMessage, "", log.handler("broken", boom))))
	assert.True(eng.Register(ctx, NewFilterRule("after", event.KindMessage, "", log.handler("after", nil))))

	_, err := eng.Match(ctx, MessageEventFixture("x"))
	var herr *HandlerError
	if assert.ErrorAs(err, &herr) {
		assert.Equal("broken", herr.Rule)
	}
	assert.ErrorIs(err, boom)
	assert.Equal([]string{"broken"}, log.Calls())

	// processing swallows the error, and no fallback follows a failure
	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("x", TestBotID)))
	assert.Empty(kit.ReactionCalls())
}

func TestEngineHandlerPanic(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	assert.True(eng.Register(ctx, NewFilterRule("panics", event.KindMessage, "", func(c *RuleContext) error {
		panic("oh no")
	})))

	_, err := eng.Match(ctx, MessageEventFixture("x"))
	var herr *HandlerError
	if assert.ErrorAs(err, &herr) {
		assert.Equal("panics", herr.Rule)
		assert.NotEmpty(herr.Stack)
	}
	assert.NotPanics(func() {
		assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("x")))
	})
}

func TestEngineIgnoresBots(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, kit := EngineTestFixture()
	log := &callLog{}
	assert.True(eng.Register(ctx, NewFilterRule("any", event.KindMessage, "", log.handler("any", nil))))

	evt := MessageEventFixture("hello", TestBotID)
	evt.User.Bot = true
	evt.Message.Author.Bot = true
	assert.NoError(eng.ProcessEvent(ctx, evt))
	matched, err := eng.Match(ctx, evt)
	assert.NoError(err)
	assert.Nil(matched)
	assert.Empty(log.Calls())
	assert.Empty(kit.ReactionCalls())
}

func TestEngineInvalidEvent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	evt := MessageEventFixture("x")
	evt.Kind = "typing"
	assert.Error(eng.ProcessEvent(ctx, evt))

	evt = MessageEventFixture("x")
	evt.Kind = event.KindReact
	assert.Error(eng.ProcessEvent(ctx, evt))
}

func TestEnginePredicates(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		opts  RuleOptions
		kind  event.Kind
		evt   func() event.Event
		match bool
	}{
		{
			name:  "kind mismatch",
			opts:  RuleOptions{},
			kind:  event.KindReact,
			evt:   func() event.Event { return MessageEventFixture("x") },
			match: false,
		},
		{
			name:  "channel listed",
			opts:  RuleOptions{Channels: []string{"c1"}},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("x") },
			match: true,
		},
		{
			name:  "channel not listed",
			opts:  RuleOptions{Channels: []string{"c2"}},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("x") },
			match: false,
		},
		{
			name:  "any channel",
			opts:  RuleOptions{Channels: []string{"c2", AnyChannel}},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("x") },
			match: true,
		},
		{
			name:  "missing permission",
			opts:  RuleOptions{Permissions: event.PermissionManageMessages},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("x") },
			match: false,
		},
		{
			name: "administrator",
			opts: RuleOptions{Permissions: event.PermissionManageMessages},
			kind: event.KindMessage,
			evt: func() event.Event {
				evt := MessageEventFixture("x")
				evt.Permissions = event.PermissionAdministrator
				return evt
			},
			match: true,
		},
		{
			name:  "mention required but absent",
			opts:  RuleOptions{RequireMention: true},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("x", "someone") },
			match: false,
		},
		{
			name:  "mention required and present",
			opts:  RuleOptions{RequireMention: true},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("x", "someone", TestBotID) },
			match: true,
		},
		{
			name:  "filter miss",
			opts:  RuleOptions{Filter: "^ping$"},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("ping pong") },
			match: false,
		},
		{
			name:  "empty content with no filter",
			opts:  RuleOptions{},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("") },
			match: true,
		},
		{
			name:  "condition true",
			opts:  RuleOptions{Condition: `user.username == "alice" && message.channel == "c1"`},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("x") },
			match: true,
		},
		{
			name:  "condition false",
			opts:  RuleOptions{Condition: `size(message.mentions) > 0`},
			kind:  event.KindMessage,
			evt:   func() event.Event { return MessageEventFixture("x") },
			match: false,
		},
		{
			name:  "reaction condition",
			opts:  RuleOptions{Condition: `reaction.name == "👍"`},
			kind:  event.KindReact,
			evt:   func() event.Event { return ReactionEventFixture(event.KindReact, "👍", "x") },
			match: true,
		},
		{
			name:  "unreact uses the message filter",
			opts:  RuleOptions{Filter: "vote"},
			kind:  event.KindUnreact,
			evt:   func() event.Event { return ReactionEventFixture(event.KindUnreact, "👎", "vote: pizza") },
			match: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng, _ := EngineTestFixture()
			log := &callLog{}
			require.True(t, eng.Register(ctx, NewRule("r", tc.kind, tc.opts, log.handler("r", nil))))
			matched, err := eng.Match(ctx, tc.evt())
			assert.NoError(t, err)
			assert.Equal(t, tc.match, matched != nil)
			assert.Equal(t, tc.match, len(log.Calls()) == 1)
		})
	}
}

func TestEngineConditionRuntimeError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	log := &callLog{}

	// message events have an empty reaction map, so field selection fails at runtime
	assert.True(eng.Register(ctx, NewRule("bad", event.KindMessage, RuleOptions{Condition: `reaction.name == "x"`}, log.handler("bad", nil))))
	assert.True(eng.Register(ctx, NewFilterRule("good", event.KindMessage, "", log.handler("good", nil))))

	matched, err := eng.Match(ctx, MessageEventFixture("x"))
	assert.NoError(err)
	if assert.NotNil(matched) {
		assert.Equal("good", matched.Name)
	}
	assert.Equal([]string{"good"}, log.Calls())
}

// kv store which fails every operation
type brokenKV struct{}

func (brokenKV) Get(ctx context.Context, path string) (string, error) {
	return "", kvstore.ErrStoreUnavailable
}

func (brokenKV) Set(ctx context.Context, path, val string) error {
	return kvstore.ErrStoreUnavailable
}

func TestEngineCooldownFailsOpen(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	eng.Cooldowns = cooldown.NewStore(brokenKV{})
	log := &callLog{}

	assert.True(eng.Register(ctx, NewRule("limited", event.KindMessage, RuleOptions{Cooldown: time.Hour}, log.handler("limited", nil))))
	for range 3 {
		matched, err := eng.Match(ctx, MessageEventFixture("x"))
		assert.NoError(err)
		assert.NotNil(matched)
	}
	assert.Len(log.Calls(), 3)
}

func TestEngineCorruptCooldownRecord(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	log := &callLog{}

	assert.NoError(eng.Cooldowns.KV.Set(ctx, cooldown.Key("limited"), "not a timestamp"))
	assert.True(eng.Register(ctx, NewRule("limited", event.KindMessage, RuleOptions{Cooldown: time.Hour}, log.handler("limited", nil))))

	matched, err := eng.Match(ctx, MessageEventFixture("x"))
	assert.NoError(err)
	assert.NotNil(matched)
	// the firing repairs the record
	_, ok, err := eng.Cooldowns.Get(ctx, "limited")
	assert.NoError(err)
	assert.True(ok)
}

func TestEngineConcurrentCooldown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := withClock(eng, t0.Add(-time.Hour))
	log := &callLog{}

	assert.True(eng.Register(ctx, NewRule("limited", event.KindMessage, RuleOptions{Cooldown: time.Minute}, log.handler("limited", nil))))
	clk.Set(t0)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("x")))
		}()
	}
	wg.Wait()
	assert.Len(log.Calls(), 1)
}

func TestEngineSlowHandlerDoesNotBlockCooldown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := withClock(eng, t0.Add(-time.Hour))

	started := make(chan struct{})
	unblock := make(chan struct{})
	cooledDown := make(chan struct{}, 1)
	slow := func(c *RuleContext) error {
		close(started)
		<-unblock
		return nil
	}
	assert.True(eng.Register(ctx, NewRule("slow", event.KindMessage, RuleOptions{
		Cooldown:   time.Minute,
		OnCooldown: func(c *RuleContext) { cooledDown <- struct{}{} },
	}, slow)))
	clk.Set(t0)

	done := make(chan error, 1)
	go func() {
		_, err := eng.Match(ctx, MessageEventFixture("x"))
		done <- err
	}()
	<-started

	// a second event is turned away while the first handler is still running
	matched, err := eng.Match(ctx, MessageEventFixture("x"))
	assert.NoError(err)
	assert.Nil(matched)
	select {
	case <-cooledDown:
	case <-time.After(5 * time.Second):
		t.Fatal("cooldown callback was not called")
	}

	close(unblock)
	assert.NoError(<-done)
	last, ok, err := eng.Cooldowns.Get(ctx, "slow")
	assert.NoError(err)
	assert.True(ok)
	assert.True(t0.Equal(last))
}

func TestEngineHandlerErrorKeepsCooldown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := withClock(eng, t0)
	log := &callLog{}

	boom := errors.New("boom")
	assert.True(eng.Register(ctx, NewRule("flaky", event.KindMessage, RuleOptions{Cooldown: time.Minute}, log.handler("flaky", boom))))

	clk.Set(t0.Add(time.Hour))
	_, err := eng.Match(ctx, MessageEventFixture("x"))
	assert.ErrorIs(err, boom)

	// the failed run did not count as firing
	last, ok, err := eng.Cooldowns.Get(ctx, "flaky")
	assert.NoError(err)
	assert.True(ok)
	assert.True(t0.Equal(last))

	// so the very next event may try again
	_, err = eng.Match(ctx, MessageEventFixture("x"))
	assert.ErrorIs(err, boom)
	assert.Equal([]string{"flaky", "flaky"}, log.Calls())
}

func TestEngineRestoreKeepsNewerRecord(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := withClock(eng, t0)

	r := NewRule("limited", event.KindMessage, RuleOptions{Cooldown: time.Minute}, func(c *RuleContext) error { return ErrContinue })
	assert.True(eng.Register(ctx, r))

	clk.Set(t0.Add(time.Hour))
	claim, ok := eng.claimCooldown(ctx, eng.Logger, r)
	assert.True(ok)
	assert.True(t0.Equal(claim.prev))

	// someone else stamped the rule after the claim
	newer := t0.Add(2 * time.Hour)
	assert.NoError(eng.Cooldowns.Set(ctx, "limited", newer))
	eng.restoreCooldown(ctx, eng.Logger, r, claim)

	last, _, err := eng.Cooldowns.Get(ctx, "limited")
	assert.NoError(err)
	assert.True(newer.Equal(last))
}

type recordingNotifier struct {
	mu      sync.Mutex
	sources []string
	done    chan struct{}
}

func (n *recordingNotifier) NotifyError(ctx context.Context, source string, err error) error {
	n.mu.Lock()
	n.sources = append(n.sources, source)
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

func TestEngineNotifiesHandlerErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	n := &recordingNotifier{done: make(chan struct{}, 1)}
	eng.Notifier = n

	r := NewFilterRule("broken", event.KindMessage, "", func(c *RuleContext) error { return errors.New("boom") })
	r.Unit = "greetings"
	assert.True(eng.Register(ctx, r))
	assert.NoError(eng.ProcessEvent(ctx, MessageEventFixture("x")))

	select {
	case <-n.done:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier was not called")
	}
	assert.Equal([]string{"greetings"}, n.sources)
}
