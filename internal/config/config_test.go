package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, val string) {
	t.Helper()
	t.Setenv(key, val)
}

func TestLoadMissingRequired(t *testing.T) {
	setEnv(t, "DISCORD_TOKEN", "")
	os.Unsetenv("DISCORD_TOKEN_FILE")

	_, err := Load()
	if err == nil {
		t.Error("expected error when DISCORD_TOKEN missing")
	}
}

func TestLoadMinimalValid(t *testing.T) {
	setEnv(t, "DISCORD_TOKEN", "token-value")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DiscordToken != "token-value" {
		t.Errorf("DiscordToken: got %q", cfg.DiscordToken)
	}
}

func TestFileSecretInjection(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token.txt")
	if err := os.WriteFile(tokenFile, []byte("  secret-from-file  \n"), 0600); err != nil {
		t.Fatal(err)
	}

	setEnv(t, "DISCORD_TOKEN", "")
	setEnv(t, "DISCORD_TOKEN_FILE", tokenFile)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with file secret: %v", err)
	}
	if cfg.DiscordToken != "secret-from-file" {
		t.Errorf("expected trimmed file secret, got %q", cfg.DiscordToken)
	}
}

func TestBotPrefixStripped(t *testing.T) {
	setEnv(t, "DISCORD_TOKEN", `"Bot abc.def.ghi"`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DiscordToken != "abc.def.ghi" {
		t.Errorf("DiscordToken: got %q", cfg.DiscordToken)
	}
}

func TestDefaults(t *testing.T) {
	setEnv(t, "DISCORD_TOKEN", "token")
	os.Unsetenv("SYNC_INTERVAL")
	os.Unsetenv("SYNC_STARTUP_DELAY")
	os.Unsetenv("SYNC_DEBOUNCE")
	os.Unsetenv("SYNC_CONCURRENCY")
	os.Unsetenv("DISPLAY_NAME_TEMPLATE")
	os.Unsetenv("RENAME_LIMIT_MAX")
	os.Unsetenv("RESTORE_ON_START")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("default SyncInterval: got %s", cfg.SyncInterval)
	}
	if cfg.SyncStartupDelay != 10*time.Second {
		t.Errorf("default SyncStartupDelay: got %s", cfg.SyncStartupDelay)
	}
	if cfg.SyncDebounce != 3*time.Second {
		t.Errorf("default SyncDebounce: got %s", cfg.SyncDebounce)
	}
	if cfg.SyncConcurrency != 4 {
		t.Errorf("default SyncConcurrency: got %d", cfg.SyncConcurrency)
	}
	if cfg.DisplayNameTemplate != "{{.Label}} {{.Value}}" {
		t.Errorf("default DisplayNameTemplate: got %q", cfg.DisplayNameTemplate)
	}
	if cfg.RenameLimitMax != 2 {
		t.Errorf("default RenameLimitMax: got %d", cfg.RenameLimitMax)
	}
	if cfg.RestoreOnStart {
		t.Error("default RestoreOnStart: expected false")
	}
}

// baseEnv sets the minimum required fields for a valid config and clears
// fields that might cause spurious validation failures between test cases.
func baseEnv(t *testing.T) {
	t.Helper()
	setEnv(t, "DISCORD_TOKEN", "token")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("LOG_FORMAT")
	os.Unsetenv("SYNC_INTERVAL")
	os.Unsetenv("SYNC_DEBOUNCE")
	os.Unsetenv("SYNC_CONCURRENCY")
	os.Unsetenv("SYNC_QUEUE_DEPTH")
	os.Unsetenv("DISPLAY_NAME_TEMPLATE")
	os.Unsetenv("RENAME_LIMIT_MAX")
	os.Unsetenv("RENAME_LIMIT_WINDOW")
	os.Unsetenv("JANITOR_INTERVAL")
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(t *testing.T)
		wantErr bool
	}{
		{
			name:    "valid_minimal",
			setup:   func(t *testing.T) {},
			wantErr: false,
		},
		{
			name: "invalid_log_level",
			setup: func(t *testing.T) {
				setEnv(t, "LOG_LEVEL", "invalid")
			},
			wantErr: true,
		},
		{
			name: "valid_log_format_text",
			setup: func(t *testing.T) {
				setEnv(t, "LOG_FORMAT", "text")
			},
			wantErr: false,
		},
		{
			name: "invalid_log_format",
			setup: func(t *testing.T) {
				setEnv(t, "LOG_FORMAT", "yaml")
			},
			wantErr: true,
		},
		{
			name: "sync_interval_too_short",
			setup: func(t *testing.T) {
				setEnv(t, "SYNC_INTERVAL", "10s")
			},
			wantErr: true,
		},
		{
			name: "sync_debounce_zero",
			setup: func(t *testing.T) {
				setEnv(t, "SYNC_DEBOUNCE", "0s")
			},
			wantErr: true,
		},
		{
			name: "sync_concurrency_too_high",
			setup: func(t *testing.T) {
				setEnv(t, "SYNC_CONCURRENCY", "100")
			},
			wantErr: true,
		},
		{
			name: "sync_queue_depth_zero",
			setup: func(t *testing.T) {
				setEnv(t, "SYNC_QUEUE_DEPTH", "0")
			},
			wantErr: true,
		},
		{
			name: "invalid_display_template",
			setup: func(t *testing.T) {
				setEnv(t, "DISPLAY_NAME_TEMPLATE", "{{.Label unclosed")
			},
			wantErr: true,
		},
		{
			name: "rename_limit_disabled",
			setup: func(t *testing.T) {
				setEnv(t, "RENAME_LIMIT_MAX", "0")
			},
			wantErr: false,
		},
		{
			name: "rename_limit_negative",
			setup: func(t *testing.T) {
				setEnv(t, "RENAME_LIMIT_MAX", "-1")
			},
			wantErr: true,
		},
		{
			name: "invalid_janitor_interval_zero",
			setup: func(t *testing.T) {
				setEnv(t, "JANITOR_INTERVAL", "0s")
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			baseEnv(t)
			tc.setup(t)

			_, err := Load()
			if tc.wantErr && err == nil {
				t.Errorf("expected validation error, got nil")
			} else if !tc.wantErr && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}
