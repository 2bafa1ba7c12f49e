package platform

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"warden/internal/models"
)

func TestGatewayIntentsCoverTrackedConcerns(t *testing.T) {
	required := []discordgo.Intent{
		discordgo.IntentGuilds,
		discordgo.IntentGuildMembers,
		discordgo.IntentGuildModeration,
		discordgo.IntentGuildScheduledEvents,
	}
	for _, intent := range required {
		if GatewayIntents&intent == 0 {
			t.Errorf("intent %d missing from GatewayIntents", intent)
		}
	}
}

func TestEventStatusFrom(t *testing.T) {
	tests := []struct {
		in   discordgo.GuildScheduledEventStatus
		want models.EventStatus
	}{
		{discordgo.GuildScheduledEventStatusScheduled, models.EventStatusScheduled},
		{discordgo.GuildScheduledEventStatusActive, models.EventStatusActive},
		{discordgo.GuildScheduledEventStatusCompleted, models.EventStatusCompleted},
		{discordgo.GuildScheduledEventStatusCanceled, models.EventStatusCancelled},
		{discordgo.GuildScheduledEventStatus(99), models.EventStatusUnknown},
	}

	for _, tt := range tests {
		if got := EventStatusFrom(tt.in); got != tt.want {
			t.Errorf("EventStatusFrom(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
