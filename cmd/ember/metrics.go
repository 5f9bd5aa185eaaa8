package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var botInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "ember_build_info",
	Help: "Build version of the running bot; always 1",
}, []string{"version"})

var rulesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ember_rules_loaded",
	Help: "Number of rules registered at startup",
})
