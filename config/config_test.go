package config

import (
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DBPath != "./data/pointdeck.db" {
		t.Errorf("DBPath = %q, want ./data/pointdeck.db", cfg.DBPath)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse([]string{"-p", "9000", "-d", "/tmp/test.db"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want /tmp/test.db", cfg.DBPath)
	}
}

func TestParseEnvFallback(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("POINTDECK_DB_PATH", "/tmp/env.db")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Errorf("DBPath = %q, want /tmp/env.db", cfg.DBPath)
	}
}

func TestParseFlagBeatsEnv(t *testing.T) {
	t.Setenv("PORT", "9100")

	cfg, err := Parse([]string{"-p", "9000"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want the flag value 9000", cfg.Port)
	}
}

func TestParseRejectsBadPort(t *testing.T) {
	if _, err := Parse([]string{"-p", "99999"}); err == nil {
		t.Error("expected error for out-of-range port")
	}

	t.Setenv("PORT", "not-a-number")
	if _, err := Parse(nil); err == nil {
		t.Error("expected error for non-numeric PORT")
	}
}
