package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"warden/internal/models"
	"warden/internal/platform"
	"warden/internal/services"
)

// Reconciler performs one periodic scan over every loaded guild: expired
// punishments are reverted, due reminders delivered, early event
// notifications emitted and event lifecycle transitions applied.
//
// Local state is always cleared or flagged before the matching platform call
// is issued, and the call itself is fire-and-forget: its failure is logged
// and counted but never retried within the tick. A failed revoke can
// therefore leave the platform-side punishment in place while local
// bookkeeping says it is cleared; that gap is a known trade-off for the
// guarantee that no reversal is ever issued twice.
type Reconciler struct {
	store  *services.GuildStore
	client platform.Client

	// now is swappable for tests.
	now func() time.Time
}

// NewReconciler builds a reconciler over the given store and platform client.
func NewReconciler(store *services.GuildStore, client platform.Client) *Reconciler {
	return &Reconciler{store: store, client: client, now: time.Now}
}

// Run executes one tick. Guilds loaded after the snapshot are picked up on
// the next tick; per-guild work runs in parallel, a slow guild never delays
// the others.
func (r *Reconciler) Run(ctx context.Context) error {
	start := time.Now()
	ids := r.store.LoadedIDs()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(guildID string) {
			defer wg.Done()
			r.reconcileGuild(ctx, guildID)
		}(id)
	}
	wg.Wait()

	reconcileTicks.Inc()
	reconcileDuration.Observe(time.Since(start).Seconds())
	return nil
}

// reconcileGuild runs the sequential per-guild logic for one tick.
func (r *Reconciler) reconcileGuild(ctx context.Context, guildID string) {
	state, ok := r.store.Get(guildID)
	if !ok {
		// Unloaded between snapshot and visit.
		return
	}
	now := r.now().UTC()

	for _, revert := range state.ExpirePunishments(now) {
		r.dispatchRevert(ctx, guildID, revert)
	}

	for _, due := range state.PopDueReminders(now) {
		r.dispatchReminder(ctx, guildID, due)
	}

	offset := state.OptionDuration("event_early_offset")
	channel := state.OptionString("event_channel")
	for _, ev := range state.DueEventNotifications(now, offset) {
		r.dispatchEventNotification(ctx, guildID, channel, ev)
	}

	for _, ev := range state.DueAutoStarts(now) {
		r.dispatchAutoStart(ctx, guildID, ev)
	}

	for _, ev := range state.SyncEventLifecycle(now) {
		log.Printf("🗑️  [RECONCILE] Event %q (%s) in guild %s reached %s, evicted", ev.Name, ev.ID, guildID, ev.Status)
	}
}

// dispatchRevert issues an un-ban/un-mute without awaiting the outcome. The
// expiry field is already cleared, so nothing is re-issued either way.
func (r *Reconciler) dispatchRevert(ctx context.Context, guildID string, revert services.PunishmentRevert) {
	punishmentsReverted.WithLabelValues(string(revert.Kind)).Inc()
	go func() {
		var err error
		switch revert.Kind {
		case services.RevertBan:
			err = r.client.RevokeBan(ctx, guildID, revert.MemberID, "punishment expired")
		case services.RevertMute:
			err = r.client.RevokeMute(ctx, guildID, revert.MemberID, "punishment expired")
		}
		if err != nil {
			externalCallFailures.WithLabelValues("revoke_" + string(revert.Kind)).Inc()
			log.Printf("⚠️  [RECONCILE] Failed to revoke %s for member %s in guild %s: %v", revert.Kind, revert.MemberID, guildID, err)
		}
	}()
}

func (r *Reconciler) dispatchReminder(ctx context.Context, guildID string, due services.DueReminder) {
	remindersFired.Inc()
	go func() {
		text := fmt.Sprintf("<@%s> ⏰ %s", due.MemberID, due.Reminder.Text)
		if err := r.client.SendMessage(ctx, due.Reminder.ChannelID, text); err != nil {
			externalCallFailures.WithLabelValues("reminder").Inc()
			log.Printf("⚠️  [RECONCILE] Failed to deliver reminder %s in guild %s: %v", due.Reminder.ID, guildID, err)
		}
	}()
}

// dispatchAutoStart asks the platform to start an auto-start event. The
// local record is already active, so the start is never re-issued.
func (r *Reconciler) dispatchAutoStart(ctx context.Context, guildID string, ev models.ScheduledEventRecord) {
	eventsAutoStarted.Inc()
	go func() {
		if err := r.client.StartEvent(ctx, guildID, ev.ID); err != nil {
			externalCallFailures.WithLabelValues("start_event").Inc()
			log.Printf("⚠️  [RECONCILE] Failed to auto-start event %s in guild %s: %v", ev.ID, guildID, err)
		}
	}()
}

func (r *Reconciler) dispatchEventNotification(ctx context.Context, guildID, channel string, ev models.ScheduledEventRecord) {
	if channel == "" {
		// Sent-flag is already set; a guild without an event channel simply
		// opts out of the notification, it is not retried later.
		log.Printf("ℹ️  [RECONCILE] No event channel configured in guild %s, skipping notification for %q", guildID, ev.Name)
		return
	}
	eventNotifications.Inc()
	go func() {
		text := fmt.Sprintf("📅 %q starts at %s", ev.Name, ev.ScheduledStart.Format(time.RFC1123))
		if err := r.client.NotifyEvent(ctx, guildID, channel, text); err != nil {
			externalCallFailures.WithLabelValues("notify_event").Inc()
			log.Printf("⚠️  [RECONCILE] Failed to notify event %s in guild %s: %v", ev.ID, guildID, err)
		}
	}()
}
