package rules

import (
	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var observedMessages = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ember_observed_messages",
	Help: "Number of non-bot messages seen by the observer rule",
})

// Passive rule which counts every message and lets later rules handle it.
var ObserverUnit = engine.Unit{
	Name: "observer",
	Load: func(reg *engine.Registrar, kit engine.Toolkit) error {
		reg.Rule("observer", event.KindMessage, engine.RuleOptions{Passive: true}, func(c *engine.RuleContext) error {
			observedMessages.Inc()
			c.Logger.Debug("observed message", "channel", c.Message.ChannelID, "length", len(c.Message.Content))
			return nil
		})
		return nil
	},
}
