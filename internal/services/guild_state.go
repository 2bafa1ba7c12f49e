package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"warden/internal/models"
	"warden/internal/options"
)

// GuildState is the in-memory aggregate for one guild: its settings document,
// scheduled-event table and member table. It is the unit of locking: map
// mutation is serialized by the state's own mutex, while individual record
// fields are last-write-wins. A punishment-expiry clear racing a fresh
// punishment-set behaves as a fresh punishment, which is acceptable because
// both operations are idempotent.
type GuildState struct {
	guildID string

	mu       sync.RWMutex
	settings map[string]any
	events   map[string]*models.ScheduledEventRecord
	members  map[string]*models.MemberRecord
}

// NewGuildState builds a state around already-loaded tables.
func NewGuildState(guildID string, settings map[string]any, events map[string]*models.ScheduledEventRecord, members map[string]*models.MemberRecord) *GuildState {
	if settings == nil {
		settings = map[string]any{}
	}
	if events == nil {
		events = map[string]*models.ScheduledEventRecord{}
	}
	if members == nil {
		members = map[string]*models.MemberRecord{}
	}
	return &GuildState{
		guildID:  guildID,
		settings: settings,
		events:   events,
		members:  members,
	}
}

// ID returns the guild identity this state belongs to.
func (g *GuildState) ID() string {
	return g.guildID
}

// --- Settings access (option accessor layer) ---

// SetOption validates and writes one setting. Returns
// *options.InvalidValueError on bad input.
func (g *GuildState) SetOption(key, input string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return options.Set(g.settings, key, input)
}

// ResetOption removes a setting so reads fall back to the default.
func (g *GuildState) ResetOption(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	options.Reset(g.settings, key)
}

// DisplayOption renders a setting for humans.
func (g *GuildState) DisplayOption(key string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return options.Display(g.settings, key)
}

// OptionString returns a string-typed setting.
func (g *GuildState) OptionString(key string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return options.GetString(g.settings, key)
}

// OptionBool returns a bool-typed setting.
func (g *GuildState) OptionBool(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return options.GetBool(g.settings, key)
}

// OptionInt returns an int-typed setting.
func (g *GuildState) OptionInt(key string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return options.GetInt(g.settings, key)
}

// OptionDuration returns a duration-typed setting.
func (g *GuildState) OptionDuration(key string) time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return options.GetDuration(g.settings, key)
}

// --- Member table ---

// Member returns the record for memberID, creating it on first reference.
func (g *GuildState) Member(memberID string) *models.MemberRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.members[memberID]
	if !ok {
		rec = &models.MemberRecord{ID: memberID, InGuild: true}
		g.members[memberID] = rec
	}
	return rec
}

// MemberCount returns the number of tracked member records.
func (g *GuildState) MemberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// MarkJoined flags a member as present and refreshes their roles.
func (g *GuildState) MarkJoined(memberID string, roleIDs []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.members[memberID]
	if !ok {
		rec = &models.MemberRecord{ID: memberID}
		g.members[memberID] = rec
	}
	rec.InGuild = true
	rec.LeftAt = nil
	rec.RoleIDs = roleIDs
}

// MarkLeft flags a member as departed at the given time. The record is kept
// for history and pruned by the retention policy on a later load.
func (g *GuildState) MarkLeft(memberID string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.members[memberID]
	if !ok {
		rec = &models.MemberRecord{ID: memberID}
		g.members[memberID] = rec
	}
	rec.InGuild = false
	at = at.UTC()
	rec.LeftAt = &at
}

// SetBanExpiry sets (or clears, with nil) a member's ban expiry.
func (g *GuildState) SetBanExpiry(memberID string, expiry *time.Time) {
	rec := g.Member(memberID)
	g.mu.Lock()
	rec.BanExpiry = expiry
	g.mu.Unlock()
}

// SetMuteExpiry sets (or clears, with nil) a member's mute expiry.
func (g *GuildState) SetMuteExpiry(memberID string, expiry *time.Time) {
	rec := g.Member(memberID)
	g.mu.Lock()
	rec.MuteExpiry = expiry
	g.mu.Unlock()
}

// AddWarn appends a warn to a member's history and returns the new count.
func (g *GuildState) AddWarn(memberID, issuerID, reason string, at time.Time) int {
	rec := g.Member(memberID)
	g.mu.Lock()
	defer g.mu.Unlock()
	rec.Warns = append(rec.Warns, models.Warn{IssuerID: issuerID, IssuedAt: at.UTC(), Reason: reason})
	return len(rec.Warns)
}

// AddReminder queues a reminder for a member, enforcing the per-member limit.
func (g *GuildState) AddReminder(memberID, channelID, text string, fireAt time.Time) (string, bool) {
	limit := g.OptionInt("reminder_limit")
	rec := g.Member(memberID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit > 0 && len(rec.Reminders) >= limit {
		return "", false
	}
	id := uuid.NewString()
	rec.Reminders = append(rec.Reminders, models.Reminder{
		ID:        id,
		FireAt:    fireAt.UTC(),
		ChannelID: channelID,
		Text:      text,
	})
	return id, true
}

// --- Scheduled-event table ---

// TrackEvent inserts or refreshes an event record. The monotonic
// NotifiedEarly flag of an existing record is never reset.
func (g *GuildState) TrackEvent(rec models.ScheduledEventRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.events[rec.ID]; ok {
		rec.NotifiedEarly = rec.NotifiedEarly || existing.NotifiedEarly
		if rec.ActualStart == nil {
			rec.ActualStart = existing.ActualStart
		}
	}
	g.events[rec.ID] = &rec
}

// UpdateEventStatus records an externally-reported lifecycle status for a
// tracked event. Unknown events are ignored; eviction of terminal records is
// the reconciler's job so the terminal side effect is applied exactly once.
func (g *GuildState) UpdateEventStatus(eventID string, status models.EventStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.events[eventID]; ok {
		rec.Status = status
	}
}

// Event returns a copy of one event record.
func (g *GuildState) Event(eventID string) (models.ScheduledEventRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if rec, ok := g.events[eventID]; ok {
		return *rec, true
	}
	return models.ScheduledEventRecord{}, false
}

// EventCount returns the number of tracked events.
func (g *GuildState) EventCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.events)
}

// --- Reconciliation harvest ---
//
// The reconciler calls these once per tick. Each method mutates local state
// under the guild lock and returns the external actions to perform, so the
// local clear always happens before the external call's outcome is known.
// That ordering is deliberate: a repeat tick must never re-issue an action,
// even if the platform call fails.

// RevertKind distinguishes the two punishment reversals.
type RevertKind string

const (
	RevertBan  RevertKind = "ban"
	RevertMute RevertKind = "mute"
)

// PunishmentRevert is an un-ban/un-mute the platform still has to perform.
type PunishmentRevert struct {
	MemberID string
	Kind     RevertKind
}

// ExpirePunishments clears every ban/mute expiry at or before now and
// returns the reversals to issue.
func (g *GuildState) ExpirePunishments(now time.Time) []PunishmentRevert {
	now = now.UTC()
	g.mu.Lock()
	defer g.mu.Unlock()

	var reverts []PunishmentRevert
	for _, rec := range g.members {
		if rec.BanExpiry != nil && !rec.BanExpiry.After(now) {
			rec.BanExpiry = nil
			reverts = append(reverts, PunishmentRevert{MemberID: rec.ID, Kind: RevertBan})
		}
		if rec.MuteExpiry != nil && !rec.MuteExpiry.After(now) {
			rec.MuteExpiry = nil
			reverts = append(reverts, PunishmentRevert{MemberID: rec.ID, Kind: RevertMute})
		}
	}
	return reverts
}

// DueReminder is a reminder whose fire-at time has passed.
type DueReminder struct {
	MemberID string
	Reminder models.Reminder
}

// PopDueReminders removes and returns every reminder due at or before now.
func (g *GuildState) PopDueReminders(now time.Time) []DueReminder {
	now = now.UTC()
	g.mu.Lock()
	defer g.mu.Unlock()

	var due []DueReminder
	for _, rec := range g.members {
		if len(rec.Reminders) == 0 {
			continue
		}
		kept := rec.Reminders[:0]
		for _, r := range rec.Reminders {
			if r.FireAt.After(now) {
				kept = append(kept, r)
			} else {
				due = append(due, DueReminder{MemberID: rec.ID, Reminder: r})
			}
		}
		rec.Reminders = kept
	}
	return due
}

// DueEventNotifications flips the monotonic sent-flag on every scheduled
// event whose early-notification window has opened and returns copies of the
// affected records. The flag flip before the platform call guarantees
// at-most-once emission per event ID.
func (g *GuildState) DueEventNotifications(now time.Time, earlyOffset time.Duration) []models.ScheduledEventRecord {
	now = now.UTC()
	g.mu.Lock()
	defer g.mu.Unlock()

	var due []models.ScheduledEventRecord
	for _, rec := range g.events {
		if rec.Status != models.EventStatusScheduled || rec.NotifiedEarly {
			continue
		}
		if rec.ScheduledStart.Add(-earlyOffset).After(now) {
			continue
		}
		rec.NotifiedEarly = true
		due = append(due, *rec)
	}
	return due
}

// DueAutoStarts flips auto-start-eligible events to active once their
// scheduled start arrives and returns copies for the platform start call.
// The local transition happens before the call is issued, so a repeat tick
// never starts the same event twice.
func (g *GuildState) DueAutoStarts(now time.Time) []models.ScheduledEventRecord {
	now = now.UTC()
	g.mu.Lock()
	defer g.mu.Unlock()

	var due []models.ScheduledEventRecord
	for _, rec := range g.events {
		if !rec.AutoStart || rec.Status != models.EventStatusScheduled {
			continue
		}
		if rec.ScheduledStart.After(now) {
			continue
		}
		rec.Status = models.EventStatusActive
		due = append(due, *rec)
	}
	return due
}

// SyncEventLifecycle applies reported status transitions: an active event
// without an actual start gets one stamped, and terminal events are evicted
// after that side effect. It returns copies of the evicted records.
func (g *GuildState) SyncEventLifecycle(now time.Time) []models.ScheduledEventRecord {
	now = now.UTC()
	g.mu.Lock()
	defer g.mu.Unlock()

	var evicted []models.ScheduledEventRecord
	for id, rec := range g.events {
		if rec.Status == models.EventStatusActive && rec.ActualStart == nil {
			at := now
			rec.ActualStart = &at
		}
		if rec.Status.Terminal() {
			evicted = append(evicted, *rec)
			delete(g.events, id)
		}
	}
	return evicted
}

// --- Flush support ---

// Snapshot returns copies of the three tables for persistence. Copies own
// their slices too, so serializing a snapshot outside the lock never races a
// tick rewriting a live record. A flush racing a tick may still capture or
// miss that tick's effects; that is the documented best-effort durability
// bound.
func (g *GuildState) Snapshot() (map[string]any, map[string]*models.ScheduledEventRecord, map[string]*models.MemberRecord) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	settings := make(map[string]any, len(g.settings))
	for k, v := range g.settings {
		settings[k] = v
	}
	events := make(map[string]*models.ScheduledEventRecord, len(g.events))
	for k, v := range g.events {
		cp := *v
		events[k] = &cp
	}
	members := make(map[string]*models.MemberRecord, len(g.members))
	for k, v := range g.members {
		cp := *v
		cp.RoleIDs = append([]string(nil), v.RoleIDs...)
		cp.Reminders = append([]models.Reminder(nil), v.Reminders...)
		cp.Warns = append([]models.Warn(nil), v.Warns...)
		members[k] = &cp
	}
	return settings, events, members
}
