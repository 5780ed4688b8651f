// Package metrics exposes Prometheus instrumentation for the chat gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Send outcomes recorded in MessagesTotal
const (
	OutcomeSent        = "sent"
	OutcomePending     = "rejected_pending"
	OutcomeBlocked     = "rejected_blocked"
	OutcomeRateLimited = "rate_limited"
	OutcomeDenied      = "denied"
	OutcomeFailed      = "failed"
)

var (
	// ConnectionsActive tracks open realtime connections on this instance.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleetchat_connections_active",
		Help: "Current number of open realtime connections",
	})

	// EventsTotal counts inbound realtime events by name.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetchat_events_total",
		Help: "Inbound realtime events",
	}, []string{"event"})

	// MessagesTotal counts send attempts by outcome and transport.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetchat_messages_total",
		Help: "Message send attempts",
	}, []string{"outcome", "transport"})

	// DroppedFrames counts outbound frames dropped because a client's buffer was full.
	DroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetchat_dropped_frames_total",
		Help: "Outbound frames dropped for slow clients",
	})

	// ModerationActions counts admin gate transitions.
	ModerationActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetchat_moderation_actions_total",
		Help: "Admin moderation actions",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		EventsTotal,
		MessagesTotal,
		DroppedFrames,
		ModerationActions,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
