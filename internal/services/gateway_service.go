package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"warden/internal/models"
	"warden/internal/platform"
)

// gatewayTimeout bounds the work one gateway event may trigger, including a
// possible first load of the guild.
const gatewayTimeout = 30 * time.Second

// GatewayService wires discord gateway events into the guild store: guild
// lifecycle, membership changes, bans and scheduled events. It is the
// "responder" side of the design; the reconciler is the other writer.
type GatewayService struct {
	session *discordgo.Session
	store   *GuildStore
	client  platform.Client
}

// NewGatewayService creates the responder service around an open session.
func NewGatewayService(session *discordgo.Session, store *GuildStore, client platform.Client) *GatewayService {
	return &GatewayService{session: session, store: store, client: client}
}

// Register attaches all gateway handlers to the session.
func (g *GatewayService) Register() {
	g.session.AddHandler(g.onGuildCreate)
	g.session.AddHandler(g.onGuildDelete)
	g.session.AddHandler(g.onMemberAdd)
	g.session.AddHandler(g.onMemberUpdate)
	g.session.AddHandler(g.onMemberRemove)
	g.session.AddHandler(g.onBanRemove)
	g.session.AddHandler(g.onEventCreate)
	g.session.AddHandler(g.onEventUpdate)
	g.session.AddHandler(g.onEventDelete)
	log.Println("📡 [GATEWAY] Event handlers registered")
}

func (g *GatewayService) onGuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
	defer cancel()

	state, err := g.store.GetOrCreate(ctx, e.ID)
	if err != nil {
		log.Printf("❌ [GATEWAY] Failed to load guild %s: %v", e.ID, err)
		return
	}

	// Seed the event table so reconciliation covers events created while the
	// bot was offline. Best-effort: responders fill in the rest.
	events, err := g.client.ListScheduledEvents(ctx, e.ID)
	if err != nil {
		log.Printf("⚠️  [GATEWAY] Failed to list scheduled events for guild %s: %v", e.ID, err)
		return
	}
	for _, rec := range events {
		state.TrackEvent(rec)
	}
}

func (g *GatewayService) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	// An unavailable guild is an outage, not a removal; keep its state.
	if e.Unavailable {
		return
	}
	if g.store.Unload(e.ID) {
		log.Printf("👋 [GATEWAY] Removed from guild %s, state unloaded", e.ID)
	}
}

func (g *GatewayService) onMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
	defer cancel()

	state, err := g.store.GetOrCreate(ctx, e.GuildID)
	if err != nil {
		log.Printf("❌ [GATEWAY] Failed to load guild %s: %v", e.GuildID, err)
		return
	}
	state.MarkJoined(e.User.ID, e.Roles)

	welcome := state.OptionString("welcome_message")
	channel := state.OptionString("welcome_channel")
	if welcome == "" || channel == "" {
		return
	}
	text := strings.ReplaceAll(welcome, "{user}", e.User.Mention())
	if err := g.client.SendMessage(ctx, channel, text); err != nil {
		log.Printf("⚠️  [GATEWAY] Failed to send welcome message in guild %s: %v", e.GuildID, err)
	}
}

func (g *GatewayService) onMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if state, ok := g.store.Get(e.GuildID); ok {
		state.MarkJoined(e.User.ID, e.Roles)
	}
}

func (g *GatewayService) onMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if state, ok := g.store.Get(e.GuildID); ok {
		state.MarkLeft(e.User.ID, time.Now())
	}
}

func (g *GatewayService) onBanRemove(_ *discordgo.Session, e *discordgo.GuildBanRemove) {
	// A manual unban clears any pending expiry so the reconciler does not
	// issue a second, redundant revoke.
	if state, ok := g.store.Get(e.GuildID); ok {
		state.SetBanExpiry(e.User.ID, nil)
	}
}

func (g *GatewayService) onEventCreate(_ *discordgo.Session, e *discordgo.GuildScheduledEventCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
	defer cancel()

	state, err := g.store.GetOrCreate(ctx, e.GuildID)
	if err != nil {
		log.Printf("❌ [GATEWAY] Failed to load guild %s: %v", e.GuildID, err)
		return
	}
	rec := platform.EventRecordFrom(e.GuildScheduledEvent)
	rec.AutoStart = state.OptionBool("auto_start_events")
	state.TrackEvent(rec)
	log.Printf("📅 [GATEWAY] Tracking event %q (%s) in guild %s", rec.Name, rec.ID, e.GuildID)
}

func (g *GatewayService) onEventUpdate(_ *discordgo.Session, e *discordgo.GuildScheduledEventUpdate) {
	state, ok := g.store.Get(e.GuildID)
	if !ok {
		return
	}
	if _, tracked := state.Event(e.ID); !tracked {
		state.TrackEvent(platform.EventRecordFrom(e.GuildScheduledEvent))
		return
	}
	state.UpdateEventStatus(e.ID, platform.EventStatusFrom(e.Status))
}

func (g *GatewayService) onEventDelete(_ *discordgo.Session, e *discordgo.GuildScheduledEventDelete) {
	// Deletion is a cancellation; the reconciler evicts the record after
	// applying the terminal transition.
	if state, ok := g.store.Get(e.GuildID); ok {
		state.UpdateEventStatus(e.ID, models.EventStatusCancelled)
	}
}
