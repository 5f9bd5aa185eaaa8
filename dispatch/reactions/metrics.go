package reactions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reactionSendCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ember_reaction_sends",
	Help: "Number of reaction send attempts, by outcome",
}, []string{"status"})

var reactionSequencesCancelled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ember_reaction_sequences_cancelled",
	Help: "Number of reaction sequences cancelled before completion",
})
