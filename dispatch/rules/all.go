package rules

import (
	"github.com/emberbot/ember/dispatch/engine"
)

// Stock units, in load order. The passive observer comes first so it sees every message.
func DefaultUnits() []engine.Unit {
	return []engine.Unit{
		ObserverUnit,
		HelpUnit,
		PingUnit,
		HelloUnit,
		VoteUnit,
	}
}
