package config

import (
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration.
type Config struct {
	// Discord Connection
	DiscordToken        string `koanf:"discord_token"`
	DiscordClientID     string `koanf:"discord_client_id"`
	DiscordCommandGuild string `koanf:"discord_command_guild"`

	// Permissions
	SuperOperatorID string `koanf:"super_operator_id"`

	// Synchronization
	SyncInterval     time.Duration `koanf:"sync_interval"`
	SyncStartupDelay time.Duration `koanf:"sync_startup_delay"`
	SyncDebounce     time.Duration `koanf:"sync_debounce"`
	SyncConcurrency  int           `koanf:"sync_concurrency"`
	SyncQueueDepth   int           `koanf:"sync_queue_depth"`

	// Display Surfaces
	DisplayNameTemplate string `koanf:"display_name_template"`
	DisplayPlaceholder  string `koanf:"display_placeholder"`

	// Rename Rate Gate
	RenameLimitWindow time.Duration `koanf:"rename_limit_window"`
	RenameLimitMax    int           `koanf:"rename_limit_max"`

	// Storage & Snapshots
	DataDir        string `koanf:"data_dir"`
	RestoreOnStart bool   `koanf:"restore_on_start"`
	ExportDir      string `koanf:"export_dir"`

	// Operational
	DryRun          bool          `koanf:"dry_run"`
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format"`
	MetricsEnabled  bool          `koanf:"metrics_enabled"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	HealthAddr      string        `koanf:"health_addr"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
}

// sanitise removes a single layer of matching surrounding quotes from all string
// fields. This normalises values from Docker --env-file which does not strip
// shell quoting.
func (c *Config) sanitise() {
	c.DiscordToken = stripEnvQuotes(c.DiscordToken)
	c.DiscordClientID = stripEnvQuotes(c.DiscordClientID)
	c.DiscordCommandGuild = stripEnvQuotes(c.DiscordCommandGuild)
	c.SuperOperatorID = stripEnvQuotes(c.SuperOperatorID)
	c.DisplayNameTemplate = stripEnvQuotes(c.DisplayNameTemplate)
	c.DisplayPlaceholder = stripEnvQuotes(c.DisplayPlaceholder)
	c.DataDir = stripEnvQuotes(c.DataDir)
	c.ExportDir = stripEnvQuotes(c.ExportDir)
	c.LogLevel = stripEnvQuotes(c.LogLevel)
	c.LogFormat = stripEnvQuotes(c.LogFormat)
	c.MetricsAddr = stripEnvQuotes(c.MetricsAddr)
	c.HealthAddr = stripEnvQuotes(c.HealthAddr)

	// Bot tokens are sometimes pasted with the "Bot " scheme already attached.
	c.DiscordToken = strings.TrimPrefix(strings.TrimSpace(c.DiscordToken), "Bot ")
}

// defaults sets sensible default values.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"sync_interval":         "5m",
		"sync_startup_delay":    "10s",
		"sync_debounce":         "3s",
		"sync_concurrency":      4,
		"sync_queue_depth":      4,
		"display_name_template": "{{.Label}} {{.Value}}",
		"display_placeholder":   "⏳",
		"rename_limit_window":   "10m",
		"rename_limit_max":      2,
		"data_dir":              "/data",
		"restore_on_start":      false,
		"dry_run":               false,
		"log_level":             "info",
		"log_format":            "json",
		"metrics_enabled":       true,
		"metrics_addr":          ":9090",
		"health_addr":           ":8081",
		"janitor_interval":      "1m",
	}
}

// stripEnvQuotes removes a single layer of matching surrounding single or double
// quotes from s. Only symmetric pairs are stripped: 'x' → x, "x" → x.
// Unpaired or mismatched quotes are left as-is.
func stripEnvQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// Load reads configuration from environment variables, applying _FILE secret injection.
func Load() (*Config, error) {
	// Use "." as delimiter so that env vars with "_" in their names are
	// treated as flat keys, not nested paths. E.g. SYNC_INTERVAL → "sync_interval".
	k := koanf.New(".")

	if err := k.Load(&rawProvider{data: defaults()}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := injectFileSecrets(k); err != nil {
		return nil, fmt.Errorf("inject file secrets: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.sanitise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and semantic constraints.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}

	if c.SyncInterval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL must be >= 1m; got %s", c.SyncInterval)
	}
	if c.SyncStartupDelay < 0 {
		return fmt.Errorf("SYNC_STARTUP_DELAY must be >= 0; got %s", c.SyncStartupDelay)
	}
	if c.SyncDebounce <= 0 {
		return fmt.Errorf("SYNC_DEBOUNCE must be > 0; got %s", c.SyncDebounce)
	}
	if c.SyncConcurrency < 1 || c.SyncConcurrency > 32 {
		return fmt.Errorf("SYNC_CONCURRENCY must be 1–32; got %d", c.SyncConcurrency)
	}
	if c.SyncQueueDepth < 1 {
		return fmt.Errorf("SYNC_QUEUE_DEPTH must be >= 1; got %d", c.SyncQueueDepth)
	}

	if _, err := template.New("").Parse(c.DisplayNameTemplate); err != nil {
		return fmt.Errorf("DISPLAY_NAME_TEMPLATE is invalid Go template: %w", err)
	}

	if c.RenameLimitMax < 0 {
		return fmt.Errorf("RENAME_LIMIT_MAX must be >= 0; got %d", c.RenameLimitMax)
	}
	if c.RenameLimitMax > 0 && c.RenameLimitWindow <= 0 {
		return fmt.Errorf("RENAME_LIMIT_WINDOW must be > 0 when RENAME_LIMIT_MAX is set; got %s", c.RenameLimitWindow)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.LogFormat)
	}

	if c.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be > 0; got %s", c.JanitorInterval)
	}

	return nil
}

// fileSecretKeys lists keys that may be provided through a KEY_FILE env var.
var fileSecretKeys = []string{
	"discord_token",
}

// injectFileSecrets reads _FILE env vars and injects their file contents.
func injectFileSecrets(k *koanf.Koanf) error {
	for _, key := range fileSecretKeys {
		fileKey := key + "_file"
		filePath := k.String(fileKey)
		if filePath == "" {
			envKey := strings.ToUpper(key) + "_FILE"
			filePath = os.Getenv(envKey)
		}
		if filePath == "" {
			continue
		}
		filePath = stripEnvQuotes(filePath)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading secret file for %s (%s): %w", key, filePath, err)
		}
		val := strings.TrimSpace(string(content))
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("setting %s from file: %w", key, err)
		}
	}
	return nil
}

// rawProvider implements koanf.Provider for a map[string]interface{}.
type rawProvider struct {
	data map[string]interface{}
}

// Read returns the config map directly (no Parser needed).
func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

// ReadBytes is not used by rawProvider; koanf calls Read() when no Parser is given.
func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}
