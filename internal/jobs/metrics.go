package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_reconcile_ticks_total",
		Help: "Completed reconciliation ticks.",
	})
	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_reconcile_duration_seconds",
		Help:    "Wall time of one reconciliation tick across all guilds.",
		Buckets: prometheus.DefBuckets,
	})
	punishmentsReverted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_punishments_reverted_total",
		Help: "Expired punishments reverted, by kind.",
	}, []string{"kind"})
	eventNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_event_notifications_total",
		Help: "Early scheduled-event notifications emitted.",
	})
	eventsAutoStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_events_auto_started_total",
		Help: "Scheduled events started automatically at their start time.",
	})
	remindersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_reminders_fired_total",
		Help: "Member reminders delivered.",
	})
	externalCallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_external_call_failures_total",
		Help: "Fire-and-forget platform calls that reported an error.",
	}, []string{"call"})
)
