// Package options declares the typed settings every guild carries and the
// accessors used to read and write them. The settings document itself is an
// open key/value map; this registry is the only component that interprets it.
package options

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// InvalidValueError is returned when user-supplied text cannot be parsed as
// the option's type. It is a user-facing condition, never a system fault.
type InvalidValueError struct {
	Key    string
	Input  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for option %q: %s", e.Input, e.Key, e.Reason)
}

// Option describes one declared setting: a stable key, a default, a parser
// from user-supplied text and a human-readable renderer.
type Option struct {
	Key         string
	Description string
	Default     any
	Parse       func(string) (any, error)
	Display     func(any) string
}

// Declared options. Keys absent from a guild's document resolve to these
// defaults (or a deployment override, see SetOverrides). Keys outside this
// set are pruned on load.
var registry = map[string]Option{
	"mute_role": {
		Key:         "mute_role",
		Description: "Role applied to muted members",
		Default:     "",
		Parse:       parseSnowflake,
		Display:     displayString,
	},
	"log_channel": {
		Key:         "log_channel",
		Description: "Channel receiving moderation log messages",
		Default:     "",
		Parse:       parseSnowflake,
		Display:     displayString,
	},
	"event_channel": {
		Key:         "event_channel",
		Description: "Channel receiving scheduled-event notifications",
		Default:     "",
		Parse:       parseSnowflake,
		Display:     displayString,
	},
	"event_early_offset": {
		Key:         "event_early_offset",
		Description: "How long before an event starts the early notification fires",
		Default:     "10m",
		Parse:       parseDuration,
		Display:     displayString,
	},
	"auto_start_events": {
		Key:         "auto_start_events",
		Description: "Start tracked events automatically at their scheduled start time",
		Default:     false,
		Parse:       parseBool,
		Display:     displayBool,
	},
	"welcome_message": {
		Key:         "welcome_message",
		Description: "Message sent when a member joins (empty disables it)",
		Default:     "",
		Parse:       parseString,
		Display:     displayString,
	},
	"welcome_channel": {
		Key:         "welcome_channel",
		Description: "Channel the welcome message is sent to",
		Default:     "",
		Parse:       parseSnowflake,
		Display:     displayString,
	},
	"max_warns": {
		Key:         "max_warns",
		Description: "Warn count that triggers escalation",
		Default:     3,
		Parse:       parseInt,
		Display:     displayInt,
	},
	"reminder_limit": {
		Key:         "reminder_limit",
		Description: "Maximum pending reminders per member",
		Default:     25,
		Parse:       parseInt,
		Display:     displayInt,
	},
}

// Deployment-wide default overrides, hot-reloaded from defaults.yaml.
var (
	overridesMu sync.RWMutex
	overrides   = map[string]any{}
)

// Lookup returns the descriptor for key.
func Lookup(key string) (Option, bool) {
	opt, ok := registry[key]
	return opt, ok
}

// Declared returns all declared option keys.
func Declared() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}

// Default returns the effective default for key: the deployment override if
// one is set, the declared default otherwise.
func Default(key string) any {
	overridesMu.RLock()
	v, ok := overrides[key]
	overridesMu.RUnlock()
	if ok {
		return v
	}
	return registry[key].Default
}

// Get returns the stored value for key, or the effective default when the
// document has no entry. Stored values were validated on write and are
// trusted on read.
func Get(doc map[string]any, key string) any {
	if v, ok := doc[key]; ok {
		return v
	}
	return Default(key)
}

// GetString returns the option as a string. Empty string means unset for
// snowflake-typed options.
func GetString(doc map[string]any, key string) string {
	if s, ok := Get(doc, key).(string); ok {
		return s
	}
	return ""
}

// GetBool returns the option as a bool.
func GetBool(doc map[string]any, key string) bool {
	if b, ok := Get(doc, key).(bool); ok {
		return b
	}
	return false
}

// GetInt returns the option as an int.
func GetInt(doc map[string]any, key string) int {
	switch v := Get(doc, key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// GetDuration returns a duration-typed option. Durations are stored as their
// text form ("10m") so the on-disk document stays readable.
func GetDuration(doc map[string]any, key string) time.Duration {
	if s, ok := Get(doc, key).(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return 0
}

// Set validates input against the option's parser and writes the parsed value
// into the document. Unknown keys and unparseable input return an
// *InvalidValueError.
func Set(doc map[string]any, key, input string) error {
	opt, ok := registry[key]
	if !ok {
		return &InvalidValueError{Key: key, Input: input, Reason: "no such option"}
	}
	v, err := opt.Parse(input)
	if err != nil {
		return &InvalidValueError{Key: key, Input: input, Reason: err.Error()}
	}
	doc[key] = v
	return nil
}

// Reset removes key from the document so future reads resolve to the default.
// Resetting an unknown key is a no-op.
func Reset(doc map[string]any, key string) {
	delete(doc, key)
}

// Display renders the effective value of key for humans.
func Display(doc map[string]any, key string) string {
	opt, ok := registry[key]
	if !ok {
		return ""
	}
	return opt.Display(Get(doc, key))
}

// Normalize reconciles a loaded document with the declared option set: keys
// missing from the document get their defaults materialized, keys outside the
// declared set are dropped. Schema drift between releases is expected and is
// not an error.
func Normalize(doc map[string]any) map[string]any {
	out := make(map[string]any, len(registry))
	for key := range registry {
		if v, ok := doc[key]; ok {
			out[key] = v
		} else {
			out[key] = Default(key)
		}
	}
	return out
}

// LoadOverrides reads a deployment defaults file (flat key: value text map)
// and installs the parsed values as effective defaults. A missing file clears
// the overrides. Called at startup and again by the fsnotify watcher when the
// file changes.
func LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		overridesMu.Lock()
		overrides = map[string]any{}
		overridesMu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read defaults file: %w", err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse defaults file: %w", err)
	}

	parsed := make(map[string]any, len(raw))
	for key, input := range raw {
		opt, ok := registry[key]
		if !ok {
			continue
		}
		v, err := opt.Parse(input)
		if err != nil {
			return &InvalidValueError{Key: key, Input: input, Reason: err.Error()}
		}
		parsed[key] = v
	}

	overridesMu.Lock()
	overrides = parsed
	overridesMu.Unlock()
	return nil
}

func parseString(input string) (any, error) {
	return input, nil
}

func parseBool(input string) (any, error) {
	b, err := strconv.ParseBool(input)
	if err != nil {
		return nil, fmt.Errorf("expected true or false")
	}
	return b, nil
}

func parseInt(input string) (any, error) {
	n, err := strconv.Atoi(input)
	if err != nil {
		return nil, fmt.Errorf("expected a whole number")
	}
	return n, nil
}

// parseSnowflake accepts a Discord snowflake ID or empty string (unset).
func parseSnowflake(input string) (any, error) {
	if input == "" {
		return "", nil
	}
	if _, err := strconv.ParseUint(input, 10, 64); err != nil {
		return nil, fmt.Errorf("expected a numeric ID")
	}
	return input, nil
}

// parseDuration keeps the text form so the stored document stays readable.
func parseDuration(input string) (any, error) {
	d, err := time.ParseDuration(input)
	if err != nil {
		return nil, fmt.Errorf("expected a duration like 10m or 1h30m")
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}
	return input, nil
}

func displayString(v any) string {
	s, _ := v.(string)
	if s == "" {
		return "(unset)"
	}
	return s
}

func displayBool(v any) string {
	if b, _ := v.(bool); b {
		return "enabled"
	}
	return "disabled"
}

func displayInt(v any) string {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	}
	return "0"
}
