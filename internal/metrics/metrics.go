package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts coordinator runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_runs_total",
			Help: "Campaign processing runs by outcome",
		},
		[]string{"status"}, // ok, fatal, skipped
	)

	// RunDuration tracks how long a full run takes.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_run_duration_seconds",
			Help:    "Duration of a full campaign processing run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// MessagesTotal counts outbound messages by channel and outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_total",
			Help: "Outbound campaign messages by channel and outcome",
		},
		[]string{"channel", "status"}, // sent, failed
	)
)
