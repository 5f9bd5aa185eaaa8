package engine

import (
	"errors"
	"fmt"
)

// Returned by a rule handler to keep scanning later rules, as if this rule had not matched. The rule's cooldown is not updated.
var ErrContinue = errors.New("continue scanning rules")

var (
	ErrNilRule        = errors.New("nil rule")
	ErrMissingName    = errors.New("rule is missing a name")
	ErrMissingKind    = errors.New("rule is missing a valid event kind")
	ErrMissingHandler = errors.New("rule is missing a handler")
	ErrDuplicateName  = errors.New("rule name already registered")
	ErrBadFilter      = errors.New("invalid content filter")
	// Stateful (global or sticky) matching modes give different results for repeated evaluations, so they are refused outright.
	ErrStatefulFilter = errors.New("content filter uses a stateful matching mode")
	ErrBadCondition   = errors.New("invalid rule condition")
)

// A candidate rule which could not be registered.
type RegistrationError struct {
	Rule string
	Unit string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("rule %q rejected: %v", e.Rule, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// A unit whose load function failed or panicked. Other units are still loaded.
type LoadError struct {
	Unit  string
	Err   error
	Stack []byte
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("unit %q failed to load: %v", e.Unit, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// An error returned by, or a panic recovered from, a rule handler or cooldown callback.
type HandlerError struct {
	Rule string
	Unit string
	Err  error
	// Only captured for panics
	Stack []byte
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("rule %q (unit %q): %v", e.Rule, e.Unit, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
