package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/patrickmn/go-cache"

	"warden/internal/models"
)

const membersPageSize = 1000

// GatewayIntents are the gateway subscriptions Warden needs: guild
// lifecycle, membership, moderation (bans) and scheduled events.
const GatewayIntents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildModeration |
	discordgo.IntentGuildScheduledEvents

// DiscordClient adapts a discordgo session to the Client interface. REST
// calls go through the two-tier rate limiter; member lookups made during
// guild load are cached briefly so a burst of loads does not hammer the API.
type DiscordClient struct {
	session     *discordgo.Session
	limiter     *RateLimiter
	memberCache *cache.Cache
}

// NewDiscordClient wraps an open discordgo session.
func NewDiscordClient(session *discordgo.Session, limiter *RateLimiter) *DiscordClient {
	return &DiscordClient{
		session:     session,
		limiter:     limiter,
		memberCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// GuildMember returns one member, consulting the short-lived cache first.
func (c *DiscordClient) GuildMember(ctx context.Context, guildID, userID string) (*MemberInfo, error) {
	key := guildID + ":" + userID
	if v, found := c.memberCache.Get(key); found {
		info := v.(MemberInfo)
		return &info, nil
	}

	if err := c.limiter.Wait(ctx, guildID); err != nil {
		return nil, err
	}

	member, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch member %s in guild %s: %w", userID, guildID, err)
	}

	info := MemberInfo{ID: member.User.ID, RoleIDs: member.Roles}
	c.memberCache.Set(key, info, cache.DefaultExpiration)
	return &info, nil
}

// ListMembers pages through the full member list of a guild.
func (c *DiscordClient) ListMembers(ctx context.Context, guildID string) ([]MemberInfo, error) {
	var out []MemberInfo
	after := ""
	for {
		if err := c.limiter.Wait(ctx, guildID); err != nil {
			return nil, err
		}
		page, err := c.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list members of guild %s: %w", guildID, err)
		}
		for _, m := range page {
			info := MemberInfo{ID: m.User.ID, RoleIDs: m.Roles}
			out = append(out, info)
			c.memberCache.Set(guildID+":"+m.User.ID, info, cache.DefaultExpiration)
		}
		if len(page) < membersPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// ListScheduledEvents returns the guild's scheduled events.
func (c *DiscordClient) ListScheduledEvents(ctx context.Context, guildID string) ([]models.ScheduledEventRecord, error) {
	if err := c.limiter.Wait(ctx, guildID); err != nil {
		return nil, err
	}
	events, err := c.session.GuildScheduledEvents(guildID, false, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled events of guild %s: %w", guildID, err)
	}
	out := make([]models.ScheduledEventRecord, 0, len(events))
	for _, ev := range events {
		out = append(out, EventRecordFrom(ev))
	}
	return out, nil
}

// StartEvent transitions a scheduled event to active.
func (c *DiscordClient) StartEvent(ctx context.Context, guildID, eventID string) error {
	if err := c.limiter.Wait(ctx, guildID); err != nil {
		return err
	}
	params := &discordgo.GuildScheduledEventParams{
		Status: discordgo.GuildScheduledEventStatusActive,
	}
	if _, err := c.session.GuildScheduledEventEdit(guildID, eventID, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to start event %s in guild %s: %w", eventID, guildID, err)
	}
	return nil
}

// RevokeBan lifts a guild ban.
func (c *DiscordClient) RevokeBan(ctx context.Context, guildID, userID, reason string) error {
	if err := c.limiter.Wait(ctx, guildID); err != nil {
		return err
	}
	err := c.session.GuildBanDelete(guildID, userID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to revoke ban for %s in guild %s: %w", userID, guildID, err)
	}
	return nil
}

// RevokeMute clears a member's communication timeout.
func (c *DiscordClient) RevokeMute(ctx context.Context, guildID, userID, reason string) error {
	if err := c.limiter.Wait(ctx, guildID); err != nil {
		return err
	}
	err := c.session.GuildMemberTimeout(guildID, userID, nil, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to revoke mute for %s in guild %s: %w", userID, guildID, err)
	}
	return nil
}

// NotifyEvent posts an event notification to the configured channel.
func (c *DiscordClient) NotifyEvent(ctx context.Context, guildID, channelID, text string) error {
	if err := c.limiter.Wait(ctx, guildID); err != nil {
		return err
	}
	if _, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send event notification to channel %s: %w", channelID, err)
	}
	return nil
}

// SendMessage posts plain text to a channel.
func (c *DiscordClient) SendMessage(ctx context.Context, channelID, text string) error {
	if err := c.limiter.Wait(ctx, ""); err != nil {
		return err
	}
	if _, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	return nil
}

// EventRecordFrom maps a platform scheduled event to the local record shape.
func EventRecordFrom(ev *discordgo.GuildScheduledEvent) models.ScheduledEventRecord {
	return models.ScheduledEventRecord{
		ID:             ev.ID,
		Name:           ev.Name,
		Status:         EventStatusFrom(ev.Status),
		ScheduledStart: ev.ScheduledStartTime.UTC(),
	}
}

// EventStatusFrom maps the platform status enum to the local one.
func EventStatusFrom(status discordgo.GuildScheduledEventStatus) models.EventStatus {
	switch status {
	case discordgo.GuildScheduledEventStatusScheduled:
		return models.EventStatusScheduled
	case discordgo.GuildScheduledEventStatusActive:
		return models.EventStatusActive
	case discordgo.GuildScheduledEventStatusCompleted:
		return models.EventStatusCompleted
	case discordgo.GuildScheduledEventStatusCanceled:
		return models.EventStatusCancelled
	default:
		return models.EventStatusUnknown
	}
}

// isNotFound reports whether a discordgo REST error means the entity is gone.
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
