package rules

import (
	"fmt"
	"time"

	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/event"
)

const HelloCooldown = 10 * time.Minute

var greetings = []string{"Hello", "Hi", "Hey there", "Howdy"}

// Greets people who say hello, at most once per cooldown window. Greetings during the window get a clock reaction instead.
var HelloUnit = engine.Unit{
	Name: "hello",
	Load: func(reg *engine.Registrar, kit engine.Toolkit) error {
		reg.Rule("hello", event.KindMessage, engine.RuleOptions{
			Filter:   `/^(hello|hi|hey)\b/i`,
			Cooldown: HelloCooldown,
			OnCooldown: func(c *engine.RuleContext) {
				c.React("⏰")
			},
		}, func(c *engine.RuleContext) error {
			return c.Send(fmt.Sprintf("%s, %s!", c.PickRandom(greetings...), c.User.Username))
		})
		return nil
	},
}
