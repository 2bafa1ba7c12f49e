package models

import "time"

// EventStatus represents the last-known lifecycle status of a scheduled event
type EventStatus string

const (
	EventStatusScheduled EventStatus = "scheduled"
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusUnknown   EventStatus = "unknown"
)

// Terminal reports whether the status ends tracking for an event. Terminal
// records are evicted from the event table once the transition has been
// reconciled.
func (s EventStatus) Terminal() bool {
	return s == EventStatusCompleted || s == EventStatusCancelled
}

// ScheduledEventRecord tracks one platform scheduled event for a guild.
type ScheduledEventRecord struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	Status EventStatus `yaml:"status" json:"status"`

	ScheduledStart time.Time  `yaml:"scheduledStart" json:"scheduledStart"`
	ActualStart    *time.Time `yaml:"actualStart,omitempty" json:"actualStart,omitempty"`

	// NotifiedEarly is monotonic: once true it is never reset for the same
	// event ID, so the early notification fires at most once regardless of
	// tick cadence or jitter.
	NotifiedEarly bool `yaml:"notifiedEarly" json:"notifiedEarly"`

	// AutoStart marks the event as eligible to be started automatically by
	// the reconciler once its scheduled start time arrives.
	AutoStart bool `yaml:"autoStart,omitempty" json:"autoStart,omitempty"`
}
