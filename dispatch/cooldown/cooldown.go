// Tracks when each rule last fired, persisted through a kvstore under `lastTriggered.<rule>`.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/emberbot/ember/dispatch/kvstore"
)

const keyPrefix = "lastTriggered."

type Store struct {
	KV kvstore.KVStore
	// Clock source; tests substitute a fixed time
	Now func() time.Time
}

func NewStore(kv kvstore.KVStore) *Store {
	return &Store{
		KV:  kv,
		Now: time.Now,
	}
}

func Key(rule string) string {
	return keyPrefix + rule
}

// Returns the last-fired time for the rule. `ok` is false if no record exists.
func (s *Store) Get(ctx context.Context, rule string) (t time.Time, ok bool, err error) {
	raw, err := s.KV.Get(ctx, Key(rule))
	if err != nil {
		return time.Time{}, false, err
	}
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: corrupt cooldown record for %q: %w", kvstore.ErrStoreUnavailable, rule, err)
	}
	return t, true, nil
}

func (s *Store) Set(ctx context.Context, rule string, t time.Time) error {
	return s.KV.Set(ctx, Key(rule), t.UTC().Format(time.RFC3339Nano))
}

// Marks the rule as fired now.
func (s *Store) Touch(ctx context.Context, rule string) error {
	return s.Set(ctx, rule, s.Now())
}

// Creates a record set to the current time if none exists yet, so a newly registered rule does not look infinitely overdue.
func (s *Store) Init(ctx context.Context, rule string) error {
	_, ok, err := s.Get(ctx, rule)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.Touch(ctx, rule)
}

// Whether the rule fired less than `window` ago. A missing record is never active.
func (s *Store) Active(ctx context.Context, rule string, window time.Duration) (bool, error) {
	last, ok, err := s.Get(ctx, rule)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return s.Now().Sub(last) < window, nil
}
