package services

import (
	"context"
	"errors"
	"sync"

	"warden/internal/models"
	"warden/internal/platform"
)

// fakePlatform is an in-memory platform.Client recording every call.
type fakePlatform struct {
	mu sync.Mutex

	members map[string][]platform.MemberInfo
	events  map[string][]models.ScheduledEventRecord
	listErr error

	listCalls     int
	revokedBans   []string // "guildID:userID"
	revokedMutes  []string
	notifications []string // "guildID:channelID:text"
	messages      []string // "channelID:text"
	started       []string // "guildID:eventID"

	revokeErr error
	notifyErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		members: map[string][]platform.MemberInfo{},
		events:  map[string][]models.ScheduledEventRecord{},
	}
}

func (f *fakePlatform) GuildMember(ctx context.Context, guildID, userID string) (*platform.MemberInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, info := range f.members[guildID] {
		if info.ID == userID {
			cp := info
			return &cp, nil
		}
	}
	return nil, platform.ErrNotFound
}

func (f *fakePlatform) ListMembers(ctx context.Context, guildID string) ([]platform.MemberInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]platform.MemberInfo(nil), f.members[guildID]...), nil
}

func (f *fakePlatform) ListScheduledEvents(ctx context.Context, guildID string) ([]models.ScheduledEventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ScheduledEventRecord(nil), f.events[guildID]...), nil
}

func (f *fakePlatform) StartEvent(ctx context.Context, guildID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, guildID+":"+eventID)
	return nil
}

func (f *fakePlatform) RevokeBan(ctx context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedBans = append(f.revokedBans, guildID+":"+userID)
	return f.revokeErr
}

func (f *fakePlatform) RevokeMute(ctx context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedMutes = append(f.revokedMutes, guildID+":"+userID)
	return f.revokeErr
}

func (f *fakePlatform) NotifyEvent(ctx context.Context, guildID, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, guildID+":"+channelID+":"+text)
	return f.notifyErr
}

func (f *fakePlatform) SendMessage(ctx context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, channelID+":"+text)
	return nil
}

func (f *fakePlatform) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

var errPlatformDown = errors.New("gateway unavailable")
