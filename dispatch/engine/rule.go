package engine

import (
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/emberbot/ember/dispatch/event"

	"github.com/google/cel-go/cel"
)

// Channel scope sentinel matching every channel.
const AnyChannel = "*"

// Invoked when a rule qualifies. Return ErrContinue to keep scanning later rules.
type HandlerFunc = func(c *RuleContext) error

// Invoked instead of the handler when a rule qualifies but is still within its cooldown window.
type CooldownFunc = func(c *RuleContext)

// Optional settings for a rule. The zero value matches any content in any channel, for any member, and stops scanning on match.
type RuleOptions struct {
	// Regular expression tested against message content. Either a Go regexp or a slash literal such as `/hello/i`. Empty matches anything.
	Filter string
	// Pre-compiled alternative to Filter; takes precedence if set
	Regexp *regexp.Regexp
	// Channel IDs the rule applies in. Empty, or containing AnyChannel, means every channel.
	Channels []string
	// Only qualify when the bot itself is mentioned in the message
	RequireMention bool
	// Permissions the acting member must hold
	Permissions event.Permissions
	// Passive rules keep scanning after they match, so later rules can also handle the event
	Passive bool
	// Minimum time between successive firings. Zero disables the cooldown.
	Cooldown   time.Duration
	OnCooldown CooldownFunc
	// Optional CEL boolean expression over `message`, `user` and `reaction`
	Condition string
}

// A registered matching predicate plus handler. Immutable once registered.
type Rule struct {
	Name    string
	Kind    event.Kind
	Handler HandlerFunc
	Options RuleOptions
	// Name of the unit which registered this rule, if any
	Unit string

	filter    *regexp.Regexp
	condition cel.Program
	// serializes the cooldown check, handler call and cooldown update for rate-limited rules
	cooldownMu sync.Mutex
}

func NewRule(name string, kind event.Kind, opts RuleOptions, handler HandlerFunc) *Rule {
	return &Rule{
		Name:    name,
		Kind:    kind,
		Handler: handler,
		Options: opts,
	}
}

// Shorthand for a rule configured only with a content filter.
func NewFilterRule(name string, kind event.Kind, filter string, handler HandlerFunc) *Rule {
	return NewRule(name, kind, RuleOptions{Filter: filter}, handler)
}

// Whether a match halts the scan. Inverse of RuleOptions.Passive.
func (r *Rule) StopOnMatch() bool {
	return !r.Options.Passive
}

func (r *Rule) HasCooldown() bool {
	return r.Options.Cooldown > 0
}

// Checks mandatory fields and compiles the filter and condition.
func (r *Rule) compile() error {
	if r.Name == "" {
		return ErrMissingName
	}
	if !r.Kind.Valid() {
		return ErrMissingKind
	}
	if r.Handler == nil {
		return ErrMissingHandler
	}
	if r.Options.Regexp != nil {
		r.filter = r.Options.Regexp
	} else {
		re, err := ParseFilter(r.Options.Filter)
		if err != nil {
			return err
		}
		r.filter = re
	}
	if r.Options.Condition != "" {
		prg, err := compileCondition(r.Options.Condition)
		if err != nil {
			return err
		}
		r.condition = prg
	}
	if r.Options.Cooldown < 0 {
		return fmt.Errorf("negative cooldown: %s", r.Options.Cooldown)
	}
	return nil
}

func (r *Rule) inChannel(channelID string) bool {
	if len(r.Options.Channels) == 0 {
		return true
	}
	return slices.Contains(r.Options.Channels, AnyChannel) || slices.Contains(r.Options.Channels, channelID)
}

// Evaluates every predicate other than the cooldown. `botID` is the bot's own user ID, used for mention checks.
//
// Filters are stateless, so each event gets an independent evaluation.
func (r *Rule) matches(evt *event.Event, botID string) (bool, error) {
	if r.Kind != evt.Kind {
		return false, nil
	}
	if !r.inChannel(evt.Message.ChannelID) {
		return false, nil
	}
	if r.Options.Permissions != 0 && !evt.Permissions.Has(r.Options.Permissions) {
		return false, nil
	}
	if r.Options.RequireMention && !evt.Message.Addresses(botID) {
		return false, nil
	}
	if r.filter != nil && !r.filter.MatchString(evt.Message.Content) {
		return false, nil
	}
	if r.condition != nil {
		ok, err := evalCondition(r.condition, evt)
		if err != nil {
			return false, fmt.Errorf("evaluating condition for rule %q: %w", r.Name, err)
		}
		return ok, nil
	}
	return true, nil
}
