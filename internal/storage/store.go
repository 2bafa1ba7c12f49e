// Package storage persists guild state as flat per-guild YAML records under
// the data directory:
//
//	<root>/guilds/<guildID>/settings.yaml
//	<root>/guilds/<guildID>/events.yaml
//	<root>/guilds/<guildID>/members/<memberID>.yaml
//
// A missing or empty record always means "use defaults", never an error.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"warden/internal/models"
)

// Store reads and writes per-guild records. All methods are safe for
// concurrent use across different guilds; concurrent writes to the same
// record are last-write-wins via atomic rename.
type Store struct {
	root string
}

// NewStore creates a store rooted at dataDir, creating the directory if
// needed.
func NewStore(dataDir string) (*Store, error) {
	root := filepath.Join(dataDir, "guilds")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) guildDir(guildID string) string {
	return filepath.Join(s.root, guildID)
}

// LoadSettings returns the settings document for a guild. A missing record
// yields an empty document.
func (s *Store) LoadSettings(guildID string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(s.guildDir(guildID), "settings.yaml"))
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings for guild %s: %w", guildID, err)
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings for guild %s: %w", guildID, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// SaveSettings writes the settings document for a guild.
func (s *Store) SaveSettings(guildID string, doc map[string]any) error {
	return s.writeYAML(filepath.Join(s.guildDir(guildID), "settings.yaml"), doc)
}

// LoadEvents returns the scheduled-event table for a guild. A missing record
// yields an empty table.
func (s *Store) LoadEvents(guildID string) (map[string]*models.ScheduledEventRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.guildDir(guildID), "events.yaml"))
	if os.IsNotExist(err) {
		return map[string]*models.ScheduledEventRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read events for guild %s: %w", guildID, err)
	}

	events := map[string]*models.ScheduledEventRecord{}
	if err := yaml.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events for guild %s: %w", guildID, err)
	}
	if events == nil {
		events = map[string]*models.ScheduledEventRecord{}
	}
	return events, nil
}

// SaveEvents writes the scheduled-event table for a guild.
func (s *Store) SaveEvents(guildID string, events map[string]*models.ScheduledEventRecord) error {
	return s.writeYAML(filepath.Join(s.guildDir(guildID), "events.yaml"), events)
}

// LoadMembers returns all member records for a guild. A missing members
// directory yields an empty table.
func (s *Store) LoadMembers(guildID string) (map[string]*models.MemberRecord, error) {
	dir := filepath.Join(s.guildDir(guildID), "members")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]*models.MemberRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read members for guild %s: %w", guildID, err)
	}

	members := make(map[string]*models.MemberRecord, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read member record %s: %w", name, err)
		}
		var rec models.MemberRecord
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse member record %s: %w", name, err)
		}
		if rec.ID == "" {
			rec.ID = strings.TrimSuffix(name, ".yaml")
		}
		members[rec.ID] = &rec
	}
	return members, nil
}

// SaveMember writes one member record.
func (s *Store) SaveMember(guildID string, rec *models.MemberRecord) error {
	path := filepath.Join(s.guildDir(guildID), "members", rec.ID+".yaml")
	return s.writeYAML(path, rec)
}

// DeleteMember removes a member record. Deleting a record that does not
// exist is not an error.
func (s *Store) DeleteMember(guildID, memberID string) error {
	path := filepath.Join(s.guildDir(guildID), "members", memberID+".yaml")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete member record %s: %w", memberID, err)
	}
	return nil
}

// SaveGuild writes all three record kinds for a guild. Used by the flush path.
func (s *Store) SaveGuild(guildID string, settings map[string]any, events map[string]*models.ScheduledEventRecord, members map[string]*models.MemberRecord) error {
	if err := s.SaveSettings(guildID, settings); err != nil {
		return err
	}
	if err := s.SaveEvents(guildID, events); err != nil {
		return err
	}
	for _, rec := range members {
		if err := s.SaveMember(guildID, rec); err != nil {
			return err
		}
	}
	return nil
}

// writeYAML marshals v and writes it atomically via a temp file rename, so a
// crash mid-write never leaves a truncated record behind.
func (s *Store) writeYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit record %s: %w", filepath.Base(path), err)
	}
	return nil
}
