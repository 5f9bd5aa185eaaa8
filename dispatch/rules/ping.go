package rules

import (
	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/event"
)

var PingUnit = engine.Unit{
	Name: "ping",
	Load: func(reg *engine.Registrar, kit engine.Toolkit) error {
		reg.Rule("ping", event.KindMessage, engine.RuleOptions{Filter: `/^!?ping$/i`}, func(c *engine.RuleContext) error {
			return c.Send("pong")
		})
		return nil
	},
}
