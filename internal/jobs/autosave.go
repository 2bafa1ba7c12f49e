package jobs

import (
	"context"
	"log"

	"warden/internal/services"
)

// Autosave periodically flushes every loaded guild so a crash loses at most
// one save window. The orderly-shutdown flush is separate and always runs.
type Autosave struct {
	store *services.GuildStore
}

// NewAutosave builds the autosave job.
func NewAutosave(store *services.GuildStore) *Autosave {
	return &Autosave{store: store}
}

// Run flushes all loaded guilds.
func (a *Autosave) Run(ctx context.Context) error {
	log.Println("💾 [AUTOSAVE] Flushing loaded guilds...")
	return a.store.FlushAll(ctx)
}
