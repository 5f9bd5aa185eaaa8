package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/emberbot/ember/dispatch/cooldown"
	"github.com/emberbot/ember/dispatch/event"
	"github.com/emberbot/ember/dispatch/kvstore"
)

// runtime for matching events to rules, enforcing cooldowns, and invoking handlers.
//
// Logger, Rules, Cooldowns and Kit must all be non-nil; NewEngine sets them up.
type Engine struct {
	Logger    *slog.Logger
	Rules     *RuleSet
	Cooldowns *cooldown.Store
	Kit       Toolkit
	Config    Config
	// used to alert operators of handler and load failures (optional)
	Notifier Notifier

	botUser atomic.Pointer[event.User]
}

func NewEngine(logger *slog.Logger, kv kvstore.KVStore, kit Toolkit, config Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Logger:    logger,
		Rules:     NewRuleSet(),
		Cooldowns: cooldown.NewStore(kv),
		Kit:       kit,
		Config:    config,
	}
}

// Records the bot's own identity, used for mention checks. Until this is called, no message counts as mentioning the bot.
func (eng *Engine) SetBotUser(u event.User) {
	eng.botUser.Store(&u)
}

func (eng *Engine) BotUser() (event.User, bool) {
	u := eng.botUser.Load()
	if u == nil {
		return event.User{}, false
	}
	return *u, true
}

func (eng *Engine) botID() string {
	u, ok := eng.BotUser()
	if !ok {
		return ""
	}
	return u.ID
}

// Adds a rule to the end of the scan order. Invalid rules are logged and skipped; returns whether the rule was added.
//
// Rules with a cooldown get a cooldown record initialized to the current time, if none exists yet.
func (eng *Engine) Register(ctx context.Context, r *Rule) bool {
	if err := eng.Rules.Register(r); err != nil {
		registrationRejectCount.Inc()
		var regErr *RegistrationError
		if errors.As(err, &regErr) {
			eng.Logger.Warn("rule rejected", "rule", regErr.Rule, "unit", regErr.Unit, "err", regErr.Err)
		} else {
			eng.Logger.Warn("rule rejected", "err", err)
		}
		return false
	}
	if r.HasCooldown() {
		if err := eng.Cooldowns.Init(ctx, r.Name); err != nil {
			storeErrorCount.WithLabelValues("init").Inc()
			eng.Logger.Error("failed to initialize cooldown record", "rule", r.Name, "err", err)
		}
	}
	eng.Logger.Debug("rule registered", "rule", r.Name, "unit", r.Unit, "kind", r.Kind)
	return true
}

// Handles a single inbound event: drops bot-authored events, matches and runs rules, and sends the fallback reaction when the bot was addressed but nothing handled the message.
//
// Handler failures are logged (and sent to the Notifier) rather than returned; an error is only returned for malformed events.
func (eng *Engine) ProcessEvent(ctx context.Context, evt event.Event) error {
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("event dispatch exception", "err", r, "kind", evt.Kind, "message", evt.Message.ID)
		}
	}()

	if err := evt.Validate(); err != nil {
		eventIgnoredCount.WithLabelValues("invalid").Inc()
		return err
	}
	if evt.User.Bot {
		eventIgnoredCount.WithLabelValues("bot").Inc()
		return nil
	}

	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(string(evt.Kind)).Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues(string(evt.Kind)).Inc()

	logger := eng.Logger.With("kind", evt.Kind, "channel", evt.Message.ChannelID, "user", evt.User.ID, "message", evt.Message.ID)
	if eng.Config.LogIncomingEvents {
		text := evt.Message.Content
		if evt.Reaction != nil {
			text = evt.Reaction.Name
		}
		logger.Info("incoming event", "channelName", evt.Message.ChannelName, "username", evt.User.Username, "text", text)
	}

	matched, err := eng.match(ctx, logger, &evt)
	if err != nil {
		eng.reportHandlerError(ctx, logger, err)
		return nil
	}
	if matched != nil {
		logger.Debug("event handled", "rule", matched.Name)
		return nil
	}
	if evt.Kind == event.KindMessage && evt.Message.Addresses(eng.botID()) {
		fallbackReactionCount.Inc()
		logger.Debug("mentioned but no rule matched, sending fallback reaction")
		eng.Kit.React(ctx, evt.Message, eng.Config.FallbackReaction)
	}
	return nil
}

// Scans rules in registration order and runs the first qualifying one, following the continue/passive contract. Returns the rule which stopped the scan, or nil if none did.
//
// Bot-authored events never match. A failing handler aborts the scan and its *HandlerError is returned.
func (eng *Engine) Match(ctx context.Context, evt event.Event) (*Rule, error) {
	if evt.User.Bot {
		return nil, nil
	}
	return eng.match(ctx, eng.Logger, &evt)
}

func (eng *Engine) match(ctx context.Context, logger *slog.Logger, evt *event.Event) (*Rule, error) {
	botID := eng.botID()
	for _, r := range eng.Rules.All() {
		ok, err := r.matches(evt, botID)
		if err != nil {
			logger.Warn("rule predicate failed", "rule", r.Name, "err", err)
			continue
		}
		if !ok {
			continue
		}
		fired, err := eng.fire(ctx, logger, r, evt)
		if err != nil {
			return nil, err
		}
		if !fired {
			continue
		}
		if r.StopOnMatch() {
			return r, nil
		}
	}
	return nil, nil
}

// Runs a structurally matching rule, subject to its cooldown. Returns true if the rule counts as having matched.
func (eng *Engine) fire(ctx context.Context, logger *slog.Logger, r *Rule, evt *event.Event) (fired bool, err error) {
	rc := eng.newRuleContext(ctx, logger, r, evt)

	if r.HasCooldown() {
		claim, ok := eng.claimCooldown(ctx, logger, r)
		if !ok {
			ruleCooldownCount.WithLabelValues(r.Name).Inc()
			logger.Debug("rule on cooldown", "rule", r.Name)
			if r.Options.OnCooldown != nil {
				if err := callCooldown(rc); err != nil {
					eng.reportHandlerError(ctx, logger, err)
				}
			}
			return false, nil
		}
		// a handler that declines or fails did not fire, so the stamp is undone
		defer func() {
			if !fired {
				eng.restoreCooldown(ctx, logger, r, claim)
			}
		}()
	}

	err = callHandler(rc)
	if errors.Is(err, ErrContinue) {
		return false, nil
	}
	if err != nil {
		handlerErrorCount.WithLabelValues(r.Name).Inc()
		return false, err
	}
	ruleMatchCount.WithLabelValues(r.Name).Inc()
	return true, nil
}

type cooldownClaim struct {
	prev    time.Time
	stamped time.Time
}

// Checks the rule's cooldown and, if it has elapsed, stamps the rule as fired now. The lock only covers the check and the stamp, so a slow handler does not hold up other events for the same rule.
func (eng *Engine) claimCooldown(ctx context.Context, logger *slog.Logger, r *Rule) (cooldownClaim, bool) {
	r.cooldownMu.Lock()
	defer r.cooldownMu.Unlock()

	now := eng.Cooldowns.Now()
	last, found, err := eng.Cooldowns.Get(ctx, r.Name)
	if err != nil {
		// fail open
		storeErrorCount.WithLabelValues("get").Inc()
		logger.Warn("cooldown record unreadable, treating rule as not on cooldown", "rule", r.Name, "err", err)
		found = false
	}
	if found && now.Sub(last) < r.Options.Cooldown {
		return cooldownClaim{}, false
	}
	if err := eng.Cooldowns.Set(ctx, r.Name, now); err != nil {
		storeErrorCount.WithLabelValues("set").Inc()
		logger.Error("failed to record rule firing", "rule", r.Name, "err", err)
	}
	// a missing record is restored as the zero time, which is never on cooldown
	return cooldownClaim{prev: last, stamped: now}, true
}

// Puts back the record a claim replaced, unless something newer has been written since.
func (eng *Engine) restoreCooldown(ctx context.Context, logger *slog.Logger, r *Rule, claim cooldownClaim) {
	r.cooldownMu.Lock()
	defer r.cooldownMu.Unlock()

	cur, found, err := eng.Cooldowns.Get(ctx, r.Name)
	if err != nil || !found || !cur.Equal(claim.stamped) {
		return
	}
	if err := eng.Cooldowns.Set(ctx, r.Name, claim.prev); err != nil {
		storeErrorCount.WithLabelValues("set").Inc()
		logger.Error("failed to restore cooldown record", "rule", r.Name, "err", err)
	}
}

func callHandler(rc *RuleContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &HandlerError{Rule: rc.Rule.Name, Unit: rc.Rule.Unit, Err: fmt.Errorf("panic: %v", rec), Stack: debug.Stack()}
		}
	}()
	err = rc.Rule.Handler(rc)
	if err != nil && !errors.Is(err, ErrContinue) {
		return &HandlerError{Rule: rc.Rule.Name, Unit: rc.Rule.Unit, Err: err}
	}
	return err
}

func callCooldown(rc *RuleContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &HandlerError{Rule: rc.Rule.Name, Unit: rc.Rule.Unit, Err: fmt.Errorf("cooldown callback panic: %v", rec), Stack: debug.Stack()}
		}
	}()
	rc.Rule.Options.OnCooldown(rc)
	return nil
}

func (eng *Engine) reportHandlerError(ctx context.Context, logger *slog.Logger, err error) {
	var herr *HandlerError
	if !errors.As(err, &herr) {
		logger.Error("rule execution failed", "err", err)
		return
	}
	args := []any{"rule", herr.Rule, "unit", herr.Unit, "err", herr.Err}
	if eng.Config.Debug && herr.Stack != nil {
		args = append(args, "stack", string(herr.Stack))
	}
	logger.Error("rule handler failed", args...)

	source := herr.Unit
	if source == "" {
		source = herr.Rule
	}
	eng.notify(ctx, source, herr)
}

// fire-and-forget alert to the notifier, if one is configured
func (eng *Engine) notify(ctx context.Context, source string, err error) {
	if eng.Notifier == nil {
		return
	}
	go func() {
		if nerr := eng.Notifier.NotifyError(context.WithoutCancel(ctx), source, err); nerr != nil {
			eng.Logger.Warn("failed to send error notification", "source", source, "err", nerr)
		}
	}()
}
