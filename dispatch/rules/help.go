package rules

import (
	"fmt"
	"strings"

	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/event"
)

var HelpUnit = engine.Unit{
	Name: "help",
	Load: func(reg *engine.Registrar, kit engine.Toolkit) error {
		reg.Rule("help", event.KindMessage, engine.RuleOptions{
			Filter:         `/\bhelp\b/i`,
			RequireMention: true,
		}, func(c *engine.RuleContext) error {
			return c.Send(fmt.Sprintf("%s knows these rules: %s", c.BotName(), strings.Join(reg.RuleNames(), ", ")))
		})
		return nil
	},
}
