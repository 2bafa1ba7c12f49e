package models

import "time"

// MemberRecord holds everything Warden remembers about a guild member.
// Records are created on first reference (join, moderation action, or
// reconciliation) and survive the member leaving so ban/mute/warn history
// is retained. Expiry timestamps are always compared against UTC wall-clock
// time; a nil expiry means "not currently punished this way".
type MemberRecord struct {
	ID string `yaml:"id" json:"id"`

	// Time-bound punishments. Cleared by the reconciler once expired.
	BanExpiry  *time.Time `yaml:"banExpiry,omitempty" json:"banExpiry,omitempty"`
	MuteExpiry *time.Time `yaml:"muteExpiry,omitempty" json:"muteExpiry,omitempty"`

	Kicked bool `yaml:"kicked,omitempty" json:"kicked,omitempty"`

	// Last-known role IDs, refreshed by the gateway responders.
	RoleIDs []string `yaml:"roleIds,omitempty" json:"roleIds,omitempty"`

	// Membership tracking. LeftAt drives the 30-day retention prune applied
	// on guild load.
	InGuild bool       `yaml:"inGuild" json:"inGuild"`
	LeftAt  *time.Time `yaml:"leftAt,omitempty" json:"leftAt,omitempty"`

	Reminders []Reminder `yaml:"reminders,omitempty" json:"reminders,omitempty"`
	Warns     []Warn     `yaml:"warns,omitempty" json:"warns,omitempty"`
}

// Reminder is a one-shot message delivered to a channel at FireAt.
type Reminder struct {
	ID        string    `yaml:"id" json:"id"`
	FireAt    time.Time `yaml:"fireAt" json:"fireAt"`
	ChannelID string    `yaml:"channelId" json:"channelId"`
	Text      string    `yaml:"text" json:"text"`
}

// Warn is a moderation note issued against a member.
type Warn struct {
	IssuerID string    `yaml:"issuerId" json:"issuerId"`
	IssuedAt time.Time `yaml:"issuedAt" json:"issuedAt"`
	Reason   string    `yaml:"reason" json:"reason"`
}

// Punished reports whether the member has any active time-bound punishment
// relative to now.
func (m *MemberRecord) Punished(now time.Time) bool {
	if m.BanExpiry != nil && m.BanExpiry.After(now) {
		return true
	}
	if m.MuteExpiry != nil && m.MuteExpiry.After(now) {
		return true
	}
	return false
}
