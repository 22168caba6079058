package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("DB_DIALECT", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("MAX_UPLOAD_MB", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBDialect != "sqlite" {
		t.Fatalf("dialect = %q", cfg.DBDialect)
	}
	if cfg.SessionSecret != devSessionSecret {
		t.Fatalf("dev secret not applied: %q", cfg.SessionSecret)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("max upload = %d", cfg.MaxUploadBytes)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("ttl = %s", cfg.SessionTTL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"dialect", map[string]string{"DB_DIALECT": "mysql"}},
		{"upload size", map[string]string{"MAX_UPLOAD_MB": "abc"}},
		{"prod secret", map[string]string{"ENV": "prod", "SESSION_SECRET": ""}},
		{"b2 credentials", map[string]string{"STORAGE_BACKEND": "b2", "B2_KEY_ID": ""}},
		{"ttl", map[string]string{"SESSION_TTL": "forever"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %v", tc.env)
			}
		})
	}
}

func TestUploadPrefixTrimmed(t *testing.T) {
	t.Setenv("UPLOAD_URL_PREFIX", "/files/")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UploadURLPrefix != "/files" {
		t.Fatalf("prefix = %q", cfg.UploadURLPrefix)
	}
}
