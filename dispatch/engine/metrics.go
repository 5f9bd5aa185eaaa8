package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "ember_event_duration_sec",
	Help: "Total duration of event dispatch, including synchronous handler time",
}, []string{"kind"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ember_event_processed",
	Help: "Number of events dispatched",
}, []string{"kind"})

var eventIgnoredCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ember_event_ignored",
	Help: "Number of events dropped before matching",
}, []string{"reason"})

var ruleMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ember_rule_matches",
	Help: "Number of rule handler executions which counted as a match",
}, []string{"rule"})

var ruleCooldownCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ember_rule_cooldown_rejections",
	Help: "Number of qualifying rules rejected because of their cooldown",
}, []string{"rule"})

var handlerErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ember_handler_errors",
	Help: "Number of rule handlers which returned an error or panicked",
}, []string{"rule"})

var fallbackReactionCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ember_fallback_reactions",
	Help: "Number of times the bot was mentioned but no rule handled the message",
})

var registrationRejectCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ember_rule_registration_rejects",
	Help: "Number of rules refused at registration",
})

var unitLoadErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ember_unit_load_errors",
	Help: "Number of units which failed to load",
})

var storeErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ember_cooldown_store_errors",
	Help: "Number of cooldown store reads or writes which failed",
}, []string{"op"})
