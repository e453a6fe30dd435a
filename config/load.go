package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	PathEnvVar = "HELPDESK_CONFIG"
	envPrefix  = "HELPDESK_"
)

var envMappings = map[string]string{
	"database_url":              "database.url",
	"database_driver":           "database.driver",
	"jwt_secret":                "auth.jwt_secret",
	"token_encryption_key":      "auth.token_key",
	"jwt_issuer":                "auth.issuer",
	"jwt_audience":              "auth.audience",
	"app_url":                   "app.url",
	"api_url":                   "helpdesk.oauth.callback_base_url",
	"cors_allowed_origins":      "cors.allowed_origins",
	"port":                      "server.addr",
	"log_level":                 "logging.level",
	"log_format":                "logging.format",
	"zendesk_client_id":         "platforms.zendesk.client_id",
	"zendesk_client_secret":     "platforms.zendesk.client_secret",
	"zendesk_redirect_uri":      "platforms.zendesk.redirect_uri",
	"zoho_client_id":            "platforms.zoho.client_id",
	"zoho_client_secret":        "platforms.zoho.client_secret",
	"zoho_redirect_uri":         "platforms.zoho.redirect_uri",
	"freshdesk_client_id":       "platforms.freshdesk.client_id",
	"freshdesk_client_secret":   "platforms.freshdesk.client_secret",
	"freshdesk_redirect_uri":    "platforms.freshdesk.redirect_uri",
	"gmail_client_id":           "platforms.gmail.client_id",
	"gmail_client_secret":       "platforms.gmail.client_secret",
	"gmail_redirect_uri":        "platforms.gmail.redirect_uri",
	"google_client_id":          "platforms.gmail.client_id",
	"google_client_secret":      "platforms.gmail.client_secret",
	"sync_page_size":            "helpdesk.sync.page_size",
	"oauth_state_ttl_seconds":   "helpdesk.oauth.state_ttl_seconds",
	"scheduler_enabled":         "scheduler.enabled",
	"scheduler_sync_interval":   "scheduler.sync_interval",
	"scheduler_purge_interval":  "scheduler.purge_interval",
	"rate_limit_enabled":        "rate_limit.enabled",
	"rate_limit_requests":       "rate_limit.requests",
	"rate_limit_window":         "rate_limit.window",
	"connection_cache_enabled":  "cache.enabled",
	"connection_cache_ttl":      "cache.ttl",
	"database_migrate_on_start": "database.migrate",
}

var sliceConfigPaths = []string{
	"cors.allowed_origins",
}

// Load reads the file named by HELPDESK_CONFIG, if any, and the process
// environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv(PathEnvVar))
}

// LoadFrom layers defaults, the YAML file at path (skipped when empty) and
// the process environment.
func LoadFrom(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}
	if path = strings.TrimSpace(path); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKeyToPath), nil); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}
	if err := splitSliceFields(k); err != nil {
		return Config{}, err
	}

	cfg := Config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if addr := strings.TrimSpace(cfg.Server.Addr); addr != "" && !strings.Contains(addr, ":") {
		cfg.Server.Addr = ":" + addr
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeyToPath returns "" for variables that are not configuration.
func envKeyToPath(key string) string {
	lowered := strings.ToLower(strings.TrimSpace(key))
	if path, ok := envMappings[lowered]; ok {
		return path
	}
	prefix := strings.ToLower(envPrefix)
	if !strings.HasPrefix(lowered, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(lowered, prefix)
	if rest == "" || rest == "config" {
		return ""
	}
	return strings.ReplaceAll(rest, "__", ".")
}

func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(raw, ",")
		trimmed := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				trimmed = append(trimmed, part)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("config: set %s: %w", path, err)
		}
	}
	return nil
}
