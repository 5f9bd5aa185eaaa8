package engine

import (
	"sync"
)

// Ordered, append-only registry of rules. Registration order is scan order, and so rule priority.
type RuleSet struct {
	mu    sync.RWMutex
	rules []*Rule
	names map[string]bool
}

func NewRuleSet() *RuleSet {
	return &RuleSet{
		names: make(map[string]bool),
	}
}

// Validates and appends a rule. On failure nothing is added and a *RegistrationError is returned.
func (rs *RuleSet) Register(r *Rule) error {
	if r == nil {
		return &RegistrationError{Err: ErrNilRule}
	}
	if err := r.compile(); err != nil {
		return &RegistrationError{Rule: r.Name, Unit: r.Unit, Err: err}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.names == nil {
		rs.names = make(map[string]bool)
	}
	if rs.names[r.Name] {
		return &RegistrationError{Rule: r.Name, Unit: r.Unit, Err: ErrDuplicateName}
	}
	rs.names[r.Name] = true
	rs.rules = append(rs.rules, r)
	return nil
}

// Snapshot of all rules, in registration order.
func (rs *RuleSet) All() []*Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]*Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

func (rs *RuleSet) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rules)
}
