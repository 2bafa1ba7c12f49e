// Package platform is the boundary to the chat platform. The rest of the
// codebase talks to the Client interface; the discordgo adapter lives behind
// it so state and reconciliation logic stay testable without a gateway.
package platform

import (
	"context"
	"errors"

	"warden/internal/models"
)

// ErrNotFound is returned when the platform does not know the requested
// entity (member left, guild gone).
var ErrNotFound = errors.New("platform: not found")

// MemberInfo is the slice of platform member data the store cares about.
type MemberInfo struct {
	ID      string
	RoleIDs []string
}

// Client is the platform surface consumed by the guild store and the
// reconciler. Every call is fallible and context-aware; implementations
// must not panic across this boundary.
type Client interface {
	// GuildMember returns one member, or ErrNotFound if the platform does
	// not report them as present.
	GuildMember(ctx context.Context, guildID, userID string) (*MemberInfo, error)

	// ListMembers returns all members the platform currently reports for
	// the guild. Used during load-or-initialize.
	ListMembers(ctx context.Context, guildID string) ([]MemberInfo, error)

	// ListScheduledEvents returns the guild's scheduled events, mapped to
	// the local record shape. Used to seed the event table when a guild
	// becomes available.
	ListScheduledEvents(ctx context.Context, guildID string) ([]models.ScheduledEventRecord, error)

	// StartEvent asks the platform to start a scheduled event now. Invoked
	// by the reconciler for auto-start events.
	StartEvent(ctx context.Context, guildID, eventID string) error

	// RevokeBan lifts a ban. Invoked by the reconciler on expiry.
	RevokeBan(ctx context.Context, guildID, userID, reason string) error

	// RevokeMute lifts a mute. Invoked by the reconciler on expiry.
	RevokeMute(ctx context.Context, guildID, userID, reason string) error

	// NotifyEvent posts an event notification to the guild's configured
	// event channel.
	NotifyEvent(ctx context.Context, guildID, channelID, text string) error

	// SendMessage posts plain text to a channel. Used for reminders.
	SendMessage(ctx context.Context, channelID, text string) error
}
