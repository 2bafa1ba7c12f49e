package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"warden/internal/models"
	"warden/internal/platform"
	"warden/internal/services"
	"warden/internal/storage"
)

// recordingClient is an in-memory platform.Client counting calls.
type recordingClient struct {
	mu            sync.Mutex
	revokedBans   []string
	revokedMutes  []string
	notifications []string
	messages      []string
	started       []string
	revokeErr     error
}

func (c *recordingClient) GuildMember(ctx context.Context, guildID, userID string) (*platform.MemberInfo, error) {
	return nil, platform.ErrNotFound
}

func (c *recordingClient) ListMembers(ctx context.Context, guildID string) ([]platform.MemberInfo, error) {
	return nil, nil
}

func (c *recordingClient) ListScheduledEvents(ctx context.Context, guildID string) ([]models.ScheduledEventRecord, error) {
	return nil, nil
}

func (c *recordingClient) StartEvent(ctx context.Context, guildID, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, guildID+":"+eventID)
	return nil
}

func (c *recordingClient) RevokeBan(ctx context.Context, guildID, userID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revokedBans = append(c.revokedBans, guildID+":"+userID)
	return c.revokeErr
}

func (c *recordingClient) RevokeMute(ctx context.Context, guildID, userID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revokedMutes = append(c.revokedMutes, guildID+":"+userID)
	return c.revokeErr
}

func (c *recordingClient) NotifyEvent(ctx context.Context, guildID, channelID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, guildID+":"+channelID)
	return nil
}

func (c *recordingClient) SendMessage(ctx context.Context, channelID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, channelID+":"+text)
	return nil
}

func (c *recordingClient) counts() (bans, mutes, notifies, msgs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.revokedBans), len(c.revokedMutes), len(c.notifications), len(c.messages)
}

func (c *recordingClient) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.started)
}

func newTestReconciler(t *testing.T) (*Reconciler, *services.GuildStore, *recordingClient) {
	t.Helper()
	codec, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	client := &recordingClient{}
	store := services.NewGuildStore(codec, client, 0)
	return NewReconciler(store, client), store, client
}

// waitFor polls until cond holds or the deadline passes. The reconciler's
// external calls are fire-and-forget goroutines, so tests wait on effects.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestPunishmentExpiryIsIdempotent(t *testing.T) {
	r, store, client := newTestReconciler(t)
	state, err := store.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	expired := time.Now().UTC().Add(-time.Second)
	state.SetBanExpiry("u1", &expired)
	state.SetMuteExpiry("u2", &expired)
	future := time.Now().UTC().Add(time.Hour)
	state.SetBanExpiry("u3", &future)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	waitFor(t, func() bool {
		bans, mutes, _, _ := client.counts()
		return bans == 1 && mutes == 1
	})

	if state.Member("u1").BanExpiry != nil {
		t.Error("u1 ban expiry not cleared")
	}
	if state.Member("u2").MuteExpiry != nil {
		t.Error("u2 mute expiry not cleared")
	}
	if state.Member("u3").BanExpiry == nil {
		t.Error("u3 future ban expiry cleared too early")
	}

	// A second tick must issue no further reversals.
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	bans, mutes, _, _ := client.counts()
	if bans != 1 || mutes != 1 {
		t.Errorf("after second tick: bans=%d mutes=%d, want 1 and 1", bans, mutes)
	}
}

func TestExpiryClearedEvenWhenRevokeFails(t *testing.T) {
	r, store, client := newTestReconciler(t)
	client.revokeErr = context.DeadlineExceeded

	state, err := store.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	expired := time.Now().UTC().Add(-time.Second)
	state.SetBanExpiry("u1", &expired)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	waitFor(t, func() bool {
		bans, _, _, _ := client.counts()
		return bans == 1
	})

	// The failed platform call must not resurrect the expiry.
	if state.Member("u1").BanExpiry != nil {
		t.Error("ban expiry not cleared after failed revoke")
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if bans, _, _, _ := client.counts(); bans != 1 {
		t.Errorf("failed revoke was re-issued: %d calls", bans)
	}
}

func TestEarlyNotificationExactlyOnce(t *testing.T) {
	r, store, client := newTestReconciler(t)
	state, err := store.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if err := state.SetOption("event_channel", "424242"); err != nil {
		t.Fatalf("SetOption failed: %v", err)
	}

	// Starts in 5 minutes; default early offset is 10m, so the window is
	// already open.
	state.TrackEvent(models.ScheduledEventRecord{
		ID:             "e1",
		Name:           "raid night",
		Status:         models.EventStatusScheduled,
		ScheduledStart: time.Now().UTC().Add(5 * time.Minute),
	})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	waitFor(t, func() bool {
		_, _, notifies, _ := client.counts()
		return notifies == 1
	})

	rec, ok := state.Event("e1")
	if !ok {
		t.Fatal("event evicted prematurely")
	}
	if !rec.NotifiedEarly {
		t.Error("sent-flag not set")
	}

	// Window still satisfied on later ticks; no further emissions.
	for i := 0; i < 3; i++ {
		if err := r.Run(context.Background()); err != nil {
			t.Fatalf("tick failed: %v", err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if _, _, notifies, _ := client.counts(); notifies != 1 {
		t.Errorf("notifications = %d, want exactly 1", notifies)
	}
}

func TestNotificationSkippedWithoutChannel(t *testing.T) {
	r, store, client := newTestReconciler(t)
	state, err := store.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	state.TrackEvent(models.ScheduledEventRecord{
		ID:             "e1",
		Name:           "movie night",
		Status:         models.EventStatusScheduled,
		ScheduledStart: time.Now().UTC(),
	})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, _, notifies, _ := client.counts(); notifies != 0 {
		t.Errorf("notifications = %d, want 0 without a configured channel", notifies)
	}
	if rec, _ := state.Event("e1"); !rec.NotifiedEarly {
		t.Error("sent-flag must still be set so the notification is never retried")
	}
}

func TestLifecycleSyncAndEviction(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	state, err := store.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	state.TrackEvent(models.ScheduledEventRecord{
		ID:             "e1",
		Name:           "tourney",
		Status:         models.EventStatusScheduled,
		ScheduledStart: time.Now().UTC().Add(time.Hour),
		NotifiedEarly:  true,
	})

	// scheduled → scheduled is a no-op.
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if _, ok := state.Event("e1"); !ok {
		t.Fatal("scheduled event evicted on no-op tick")
	}

	// scheduled → active stamps the actual start and keeps the record.
	state.UpdateEventStatus("e1", models.EventStatusActive)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	rec, ok := state.Event("e1")
	if !ok {
		t.Fatal("active event evicted")
	}
	if rec.ActualStart == nil {
		t.Error("actual start not recorded on activation")
	}

	// active → completed evicts after the terminal transition.
	state.UpdateEventStatus("e1", models.EventStatusCompleted)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if _, ok := state.Event("e1"); ok {
		t.Error("completed event not evicted")
	}

	// Cancellation is terminal too.
	state.TrackEvent(models.ScheduledEventRecord{
		ID:             "e2",
		Status:         models.EventStatusCancelled,
		ScheduledStart: time.Now().UTC().Add(time.Hour),
	})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if _, ok := state.Event("e2"); ok {
		t.Error("cancelled event not evicted")
	}
}

func TestAutoStartFiresOnce(t *testing.T) {
	r, store, client := newTestReconciler(t)
	state, err := store.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	state.TrackEvent(models.ScheduledEventRecord{
		ID:             "e1",
		Name:           "standup",
		Status:         models.EventStatusScheduled,
		ScheduledStart: time.Now().UTC().Add(-time.Minute),
		NotifiedEarly:  true,
		AutoStart:      true,
	})
	// Same window, not flagged for auto-start.
	state.TrackEvent(models.ScheduledEventRecord{
		ID:             "e2",
		Name:           "retro",
		Status:         models.EventStatusScheduled,
		ScheduledStart: time.Now().UTC().Add(-time.Minute),
		NotifiedEarly:  true,
	})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	waitFor(t, func() bool { return client.startCount() == 1 })

	rec, ok := state.Event("e1")
	if !ok {
		t.Fatal("auto-started event evicted")
	}
	if rec.Status != models.EventStatusActive {
		t.Errorf("e1 status = %s, want active", rec.Status)
	}
	if rec.ActualStart == nil {
		t.Error("actual start not stamped on auto-start")
	}
	if rec2, _ := state.Event("e2"); rec2.Status != models.EventStatusScheduled {
		t.Errorf("e2 status = %s, want scheduled (no auto-start flag)", rec2.Status)
	}

	// The local record is active now, so no tick re-issues the start.
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := client.startCount(); got != 1 {
		t.Errorf("start calls = %d, want exactly 1", got)
	}
}

func TestAutoStartWaitsForStartTime(t *testing.T) {
	r, store, client := newTestReconciler(t)
	state, err := store.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	state.TrackEvent(models.ScheduledEventRecord{
		ID:             "e1",
		Status:         models.EventStatusScheduled,
		ScheduledStart: time.Now().UTC().Add(time.Hour),
		NotifiedEarly:  true,
		AutoStart:      true,
	})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := client.startCount(); got != 0 {
		t.Errorf("start calls = %d, want 0 before the start time", got)
	}
}

func TestRemindersFireOnce(t *testing.T) {
	r, store, client := newTestReconciler(t)
	state, err := store.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if _, ok := state.AddReminder("u1", "c1", "stretch", time.Now().UTC().Add(-time.Second)); !ok {
		t.Fatal("AddReminder rejected")
	}
	if _, ok := state.AddReminder("u1", "c1", "later", time.Now().UTC().Add(time.Hour)); !ok {
		t.Fatal("AddReminder rejected")
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	waitFor(t, func() bool {
		_, _, _, msgs := client.counts()
		return msgs == 1
	})

	if got := len(state.Member("u1").Reminders); got != 1 {
		t.Errorf("pending reminders = %d, want 1 (future one retained)", got)
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, _, _, msgs := client.counts(); msgs != 1 {
		t.Errorf("messages = %d, want exactly 1", msgs)
	}
}
