package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"MODE", "HTTP_ADDR", "DB_DRIVER", "ENABLE_LATE_SWEEP", "TOKEN_TTL", "LOG_JSON"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Mode != ModeOffline || c.HTTPAddr != ":8080" || c.DBDriver != "sqlite" {
		t.Fatalf("defaults: %+v", c)
	}
	if c.EnableLateSweep || c.LogJSON {
		t.Fatal("late sweep and json logs are off by default offline")
	}
	if c.TokenTTL != 8*time.Hour {
		t.Fatalf("ttl = %v", c.TokenTTL)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("ENABLE_LATE_SWEEP", "yes")
	c := FromEnv()
	if c.Mode != ModeOnline || !c.LogJSON || !c.RoleFromDB {
		t.Fatalf("online defaults: %+v", c)
	}
	if len(c.CORSOriginsOnline) != 2 || c.CORSOriginsOnline[1] != "https://b.example" {
		t.Fatalf("origins = %v", c.CORSOriginsOnline)
	}
	if c.MaxUploadSize != 5<<20 || !c.EnableLateSweep {
		t.Fatalf("overrides: %+v", c)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.env")
	if err := os.WriteFile(p, []byte("LATE_SWEEP_SPEC=@every 1m\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LATE_SWEEP_SPEC", "")
	os.Unsetenv("LATE_SWEEP_SPEC")
	c := Load(p)
	if c.LateSweepSpec != "@every 1m" {
		t.Fatalf("spec = %q", c.LateSweepSpec)
	}
}
