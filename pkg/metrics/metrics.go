package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts billing webhook events by type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finmodel",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Billing webhook events by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "finmodel",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Billing webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	EntitlementDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finmodel",
		Subsystem: "entitlement",
		Name:      "denials_total",
		Help:      "Entitlement denials by reason code.",
	}, []string{"reason"})

	SeatAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finmodel",
		Subsystem: "entitlement",
		Name:      "seat_adjustments_total",
		Help:      "Seat counter changes by direction.",
	}, []string{"direction"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finmodel",
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Notifications dispatched by template and outcome.",
	}, []string{"template", "outcome"})
)
