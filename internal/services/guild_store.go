package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"warden/internal/models"
	"warden/internal/options"
	"warden/internal/platform"
	"warden/internal/storage"
)

// DefaultRetention is how long departed members' records are kept before the
// load-time prune drops them.
const DefaultRetention = 30 * 24 * time.Hour

// GuildStore owns the mapping from guild identity to GuildState. First
// access per guild performs load-or-initialize exactly once, even under
// concurrent access; different guilds never contend with each other.
type GuildStore struct {
	storage   *storage.Store
	platform  platform.Client
	retention time.Duration

	guilds sync.Map // map[string]*guildEntry
}

// guildEntry serializes first-load per guild key. Losing racers block on the
// entry mutex and use the winner's result.
type guildEntry struct {
	mu    sync.Mutex
	done  bool
	state *GuildState
	err   error
}

// NewGuildStore creates a store backed by the given codec and platform
// client. A zero retention selects DefaultRetention.
func NewGuildStore(store *storage.Store, client platform.Client, retention time.Duration) *GuildStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &GuildStore{
		storage:   store,
		platform:  client,
		retention: retention,
	}
}

// GetOrCreate returns the cached state for guildID, loading or initializing
// it on first access. Storage errors are fatal to the call and the entry is
// discarded so callers may retry.
func (s *GuildStore) GetOrCreate(ctx context.Context, guildID string) (*GuildState, error) {
	v, _ := s.guilds.LoadOrStore(guildID, &guildEntry{})
	entry := v.(*guildEntry)

	entry.mu.Lock()
	if !entry.done {
		entry.state, entry.err = s.load(ctx, guildID)
		entry.done = true
	}
	state, err := entry.state, entry.err
	entry.mu.Unlock()

	if err != nil {
		// Drop the failed entry so a later call performs a fresh load.
		s.guilds.CompareAndDelete(guildID, entry)
		return nil, err
	}
	return state, nil
}

// Unload removes a guild's state from the cache, reporting whether an entry
// was present. The persisted record is left untouched.
func (s *GuildStore) Unload(guildID string) bool {
	_, present := s.guilds.LoadAndDelete(guildID)
	return present
}

// LoadedIDs returns a snapshot of guild identities currently resident in
// memory. It never blocks on or triggers a load; entries still loading are
// skipped.
func (s *GuildStore) LoadedIDs() []string {
	var ids []string
	s.guilds.Range(func(key, v any) bool {
		entry := v.(*guildEntry)
		if entry.mu.TryLock() {
			if entry.done && entry.err == nil {
				ids = append(ids, key.(string))
			}
			entry.mu.Unlock()
		}
		return true
	})
	return ids
}

// Get returns an already-loaded state without triggering a load.
func (s *GuildStore) Get(guildID string) (*GuildState, bool) {
	v, ok := s.guilds.Load(guildID)
	if !ok {
		return nil, false
	}
	entry := v.(*guildEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.done || entry.err != nil {
		return nil, false
	}
	return entry.state, true
}

// FlushAll persists every currently loaded guild. Writes run concurrently;
// one guild's failure never prevents the others from being attempted. The
// call returns once all writes have finished, with failures individually
// logged and summarized in the returned error.
func (s *GuildStore) FlushAll(ctx context.Context) error {
	type flushTarget struct {
		guildID string
		state   *GuildState
	}

	var targets []flushTarget
	for _, id := range s.LoadedIDs() {
		if state, ok := s.Get(id); ok {
			targets = append(targets, flushTarget{guildID: id, state: state})
		}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, t := range targets {
		wg.Add(1)
		go func(t flushTarget) {
			defer wg.Done()
			if err := s.Flush(t.guildID); err != nil {
				log.Printf("❌ [STORE] Flush failed for guild %s: %v", t.guildID, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("flush failed for %d of %d guilds", failed, len(targets))
	}
	log.Printf("💾 [STORE] Flushed %d guilds", len(targets))
	return nil
}

// Flush persists one loaded guild's three tables.
func (s *GuildStore) Flush(guildID string) error {
	state, ok := s.Get(guildID)
	if !ok {
		return fmt.Errorf("guild %s is not loaded", guildID)
	}
	settings, events, members := state.Snapshot()
	return s.storage.SaveGuild(guildID, settings, events, members)
}

// load performs load-or-initialize for one guild: read the persisted
// records (missing records mean defaults), normalize the settings document
// against the declared option set, reconcile the member table against the
// platform's view, and apply the retention prune to departed members.
func (s *GuildStore) load(ctx context.Context, guildID string) (*GuildState, error) {
	doc, err := s.storage.LoadSettings(guildID)
	if err != nil {
		return nil, err
	}
	doc = options.Normalize(doc)

	events, err := s.storage.LoadEvents(guildID)
	if err != nil {
		return nil, err
	}

	members, err := s.storage.LoadMembers(guildID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	// Membership reconciliation is best-effort: a gateway hiccup must not
	// make the guild unloadable, so a platform failure only skips this step.
	present, err := s.platform.ListMembers(ctx, guildID)
	if err != nil {
		log.Printf("⚠️  [STORE] Member reconciliation skipped for guild %s: %v", guildID, err)
	} else {
		presentIDs := make(map[string]bool, len(present))
		for _, info := range present {
			presentIDs[info.ID] = true
			rec, ok := members[info.ID]
			if !ok {
				rec = &models.MemberRecord{ID: info.ID}
				members[info.ID] = rec
			}
			rec.InGuild = true
			rec.LeftAt = nil
			rec.RoleIDs = info.RoleIDs
		}
		for _, rec := range members {
			if !presentIDs[rec.ID] && rec.InGuild {
				rec.InGuild = false
				at := now
				rec.LeftAt = &at
			}
		}
	}

	// Retention prune: departed members whose last departure or ban expiry
	// is past the retention window are dropped, in memory and on disk. This
	// runs once per load, not continuously.
	cutoff := now.Add(-s.retention)
	for id, rec := range members {
		if rec.InGuild {
			continue
		}
		last := rec.LeftAt
		if rec.BanExpiry != nil && (last == nil || rec.BanExpiry.After(*last)) {
			last = rec.BanExpiry
		}
		if last == nil || last.After(cutoff) {
			continue
		}
		delete(members, id)
		if err := s.storage.DeleteMember(guildID, id); err != nil {
			log.Printf("⚠️  [STORE] Failed to prune member %s in guild %s: %v", id, guildID, err)
		}
	}

	// Persist the normalized settings so the on-disk record matches the
	// declared option set going forward.
	if err := s.storage.SaveSettings(guildID, doc); err != nil {
		return nil, err
	}

	log.Printf("📂 [STORE] Loaded guild %s (%d members, %d events)", guildID, len(members), len(events))
	return NewGuildState(guildID, doc, events, members), nil
}
