package options

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		input   string
		wantErr bool
		want    any
	}{
		{name: "bool true", key: "auto_start_events", input: "true", want: true},
		{name: "bool garbage", key: "auto_start_events", input: "maybe", wantErr: true},
		{name: "int", key: "max_warns", input: "5", want: 5},
		{name: "int garbage", key: "max_warns", input: "five", wantErr: true},
		{name: "snowflake", key: "mute_role", input: "81384788765712384", want: "81384788765712384"},
		{name: "snowflake garbage", key: "mute_role", input: "not-an-id", wantErr: true},
		{name: "snowflake unset", key: "mute_role", input: "", want: ""},
		{name: "duration", key: "event_early_offset", input: "15m", want: "15m"},
		{name: "duration negative", key: "event_early_offset", input: "-5m", wantErr: true},
		{name: "duration garbage", key: "event_early_offset", input: "soon", wantErr: true},
		{name: "string", key: "welcome_message", input: "hello there", want: "hello there"},
		{name: "unknown key", key: "no_such_option", input: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := map[string]any{}
			err := Set(doc, tt.key, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Set(%q, %q) succeeded, want error", tt.key, tt.input)
				}
				var ive *InvalidValueError
				if !errors.As(err, &ive) {
					t.Fatalf("Set returned %T, want *InvalidValueError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Set(%q, %q) failed: %v", tt.key, tt.input, err)
			}
			if got := doc[tt.key]; got != tt.want {
				t.Errorf("stored value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetFallsBackToDefault(t *testing.T) {
	doc := map[string]any{}

	if got := GetInt(doc, "max_warns"); got != 3 {
		t.Errorf("GetInt(max_warns) = %d, want default 3", got)
	}
	if got := GetDuration(doc, "event_early_offset"); got != 10*time.Minute {
		t.Errorf("GetDuration(event_early_offset) = %v, want 10m", got)
	}
	if got := GetBool(doc, "auto_start_events"); got {
		t.Error("GetBool(auto_start_events) = true, want default false")
	}
}

func TestResetRevertsToDefault(t *testing.T) {
	doc := map[string]any{}
	if err := Set(doc, "max_warns", "9"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := GetInt(doc, "max_warns"); got != 9 {
		t.Fatalf("GetInt after Set = %d, want 9", got)
	}

	Reset(doc, "max_warns")
	if got := GetInt(doc, "max_warns"); got != 3 {
		t.Errorf("GetInt after Reset = %d, want default 3", got)
	}
}

func TestNormalize(t *testing.T) {
	doc := map[string]any{
		"max_warns":     7,
		"legacy_option": "stale", // undeclared, must be dropped
	}

	out := Normalize(doc)

	if got := out["max_warns"]; got != 7 {
		t.Errorf("Normalize dropped stored value: max_warns = %v, want 7", got)
	}
	if _, ok := out["legacy_option"]; ok {
		t.Error("Normalize retained undeclared key legacy_option")
	}
	for _, key := range Declared() {
		if _, ok := out[key]; !ok {
			t.Errorf("Normalize did not materialize default for %q", key)
		}
	}
}

func TestDisplay(t *testing.T) {
	doc := map[string]any{}

	if got := Display(doc, "mute_role"); got != "(unset)" {
		t.Errorf("Display(mute_role) = %q, want (unset)", got)
	}
	if got := Display(doc, "auto_start_events"); got != "disabled" {
		t.Errorf("Display(auto_start_events) = %q, want disabled", got)
	}
	if got := Display(doc, "max_warns"); got != "3" {
		t.Errorf("Display(max_warns) = %q, want 3", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")

	content := "max_warns: \"6\"\nevent_early_offset: \"30m\"\nunknown_key: \"ignored\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write defaults file: %v", err)
	}

	if err := LoadOverrides(path); err != nil {
		t.Fatalf("LoadOverrides failed: %v", err)
	}
	t.Cleanup(func() { LoadOverrides(filepath.Join(dir, "missing.yaml")) })

	doc := map[string]any{}
	if got := GetInt(doc, "max_warns"); got != 6 {
		t.Errorf("GetInt(max_warns) with override = %d, want 6", got)
	}
	if got := GetDuration(doc, "event_early_offset"); got != 30*time.Minute {
		t.Errorf("GetDuration(event_early_offset) with override = %v, want 30m", got)
	}

	// A stored value still beats the override.
	if err := Set(doc, "max_warns", "2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := GetInt(doc, "max_warns"); got != 2 {
		t.Errorf("stored value = %d, want 2", got)
	}

	// Missing file clears overrides.
	if err := LoadOverrides(filepath.Join(dir, "missing.yaml")); err != nil {
		t.Fatalf("LoadOverrides on missing file failed: %v", err)
	}
	if got := GetInt(map[string]any{}, "max_warns"); got != 3 {
		t.Errorf("GetInt after clearing overrides = %d, want declared default 3", got)
	}
}
