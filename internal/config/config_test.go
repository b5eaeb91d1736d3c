package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

// Set and Validate both run on the daemon's request path, and Replace
// runs on the reload path; they must be safe together under the race
// detector.
func TestSetValidateReplaceConcurrent(t *testing.T) {
	cfg := Default()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if err := cfg.Set("suggestions.min_confidence", "0.5"); err != nil {
				t.Errorf("Set: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cfg.Replace(Default())
		}
	}()
	wg.Wait()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate after concurrent access: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Suggestions.MaxSuggestions != 5 {
		t.Fatalf("MaxSuggestions = %d, want default 5", cfg.Suggestions.MaxSuggestions)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Suggestions.MaxSuggestions = 9
	cfg.Daemon.LogLevel = "debug"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Suggestions.MaxSuggestions != 9 {
		t.Errorf("MaxSuggestions = %d, want 9", loaded.Suggestions.MaxSuggestions)
	}
	if loaded.Daemon.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", loaded.Daemon.LogLevel)
	}
}

func TestSaveRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Default().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config mode = %o, want 0600", perm)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := "suggestions:\n  max_suggestions: 3\n"
	if err := os.WriteFile(path, []byte(partial), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Suggestions.MaxSuggestions != 3 {
		t.Errorf("MaxSuggestions = %d, want 3", cfg.Suggestions.MaxSuggestions)
	}
	if cfg.Suggestions.FuzzyThreshold != 60 {
		t.Errorf("FuzzyThreshold = %d, want default 60", cfg.Suggestions.FuzzyThreshold)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	bad := "suggestions:\n  min_confidence: 3.5\n"
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("suggestions.fuzzy_threshold", "75"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := cfg.Get("suggestions.fuzzy_threshold")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 75 {
		t.Fatalf("value = %v, want 75", v)
	}
}

func TestGetUnknownKey(t *testing.T) {
	_, err := Default().Get("bogus.key")
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("got %v, want ErrUnknownKey", err)
	}
}

func TestSetUnknownKey(t *testing.T) {
	err := Default().Set("bogus.key", "1")
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("got %v, want ErrUnknownKey", err)
	}
}

func TestDimensionNotSettable(t *testing.T) {
	err := Default().Set("index.dimension", "256")
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("index.dimension must not be settable, got %v", err)
	}
}

func TestSetRejectsBadInt(t *testing.T) {
	if err := Default().Set("suggestions.max_suggestions", "lots"); err == nil {
		t.Fatal("non-integer accepted")
	}
}

func TestReplace(t *testing.T) {
	cfg := Default()
	next := Default()
	next.Suggestions.MaxSuggestions = 11

	cfg.Replace(next)
	if cfg.Suggestions.MaxSuggestions != 11 {
		t.Fatalf("Replace did not apply: %d", cfg.Suggestions.MaxSuggestions)
	}
}

func TestValidateBounds(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Suggestions.MaxSuggestions = 0 },
		func(c *Config) { c.Suggestions.MinConfidence = 1.5 },
		func(c *Config) { c.Suggestions.FuzzyThreshold = 101 },
		func(c *Config) { c.Index.Dimension = 0 },
		func(c *Config) { c.Index.Trees = -1 },
		func(c *Config) { c.Daemon.LogLevel = "loud" },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: invalid config accepted", i)
		}
	}
}

func TestPathsLayout(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/x/cfg")
	t.Setenv("XDG_DATA_HOME", "/x/data")
	t.Setenv("XDG_RUNTIME_DIR", "/x/run")

	p := DefaultPaths()
	if p.ConfigFile() != "/x/cfg/shellsense/config.yaml" {
		t.Errorf("ConfigFile = %q", p.ConfigFile())
	}
	if p.DatabaseFile() != "/x/data/shellsense/history.db" {
		t.Errorf("DatabaseFile = %q", p.DatabaseFile())
	}
	if p.SocketFile() != "/x/run/shellsense/sensed.sock" {
		t.Errorf("SocketFile = %q", p.SocketFile())
	}
}
