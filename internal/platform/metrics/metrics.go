package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	WSSessions       prometheus.Gauge
	WSIdentities     prometheus.Gauge
	AlertsDispatched prometheus.Counter

	NotificationsCreated       prometheus.Counter
	NotificationCreateFailures prometheus.Counter

	LivePushAttempts  prometheus.Counter
	LivePushDelivered prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		WSSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_ws_sessions",
			Help: "Current number of live WebSocket sessions",
		}),
		WSIdentities: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_ws_identities_online",
			Help: "Current number of distinct identities with at least one session",
		}),
		AlertsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_alerts_dispatched_total",
			Help: "Total number of alert events run through fanout",
		}),
		NotificationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_notifications_created_total",
			Help: "Total number of notification records created",
		}),
		NotificationCreateFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_notification_create_failures_total",
			Help: "Total number of per-recipient notification writes that failed",
		}),
		LivePushAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_live_push_attempts_total",
			Help: "Total number of best-effort WebSocket pushes attempted",
		}),
		LivePushDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_live_push_delivered_total",
			Help: "Total number of best-effort WebSocket pushes that reached a session",
		}),
	}
}
