package rules

import (
	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/event"
)

var VoteUnit = engine.Unit{
	Name: "vote",
	Load: func(reg *engine.Registrar, kit engine.Toolkit) error {
		reg.Rule("vote", event.KindMessage, engine.RuleOptions{Filter: `/^vote:/i`}, func(c *engine.RuleContext) error {
			c.React("👍", "👎")
			return nil
		})
		return nil
	},
}
