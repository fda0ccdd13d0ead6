package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// result: ok | validation | state_conflict | version_conflict | not_found | error
var TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "claimbox_transitions_total",
	Help: "Claim lifecycle transitions by operation and outcome.",
}, []string{"operation", "result"})

var StaleRemindersTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "claimbox_stale_reminders_total",
	Help: "Stale-return reminder messages published by the worker.",
})
