package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	MessagesSent     prometheus.Counter
	TypingCleanups   *prometheus.CounterVec
	ScheduleFailures prometheus.Counter
	Heartbeats       prometheus.Counter
	WSConnections    prometheus.Gauge
	WSPushes         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conversation",
			Name:      "messages_sent_total",
			Help:      "Messages appended to conversations.",
		}),
		TypingCleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conversation",
			Name:      "typing_cleanups_total",
			Help:      "Deferred typing cleanups by outcome.",
		}, []string{"result"}),
		ScheduleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conversation",
			Name:      "schedule_failures_total",
			Help:      "Deferred jobs that could not be scheduled.",
		}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conversation",
			Name:      "presence_heartbeats_total",
			Help:      "Presence heartbeats recorded.",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "conversation",
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
		WSPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conversation",
			Name:      "ws_pushes_total",
			Help:      "Subscription results pushed to websocket clients.",
		}, []string{"query"}),
	}
	reg.MustRegister(m.MessagesSent, m.TypingCleanups, m.ScheduleFailures, m.Heartbeats, m.WSConnections, m.WSPushes)
	return m
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
