// Package config loads process configuration for the helpdesk server.
//
// Layers, lowest precedence first: struct defaults, an optional YAML file
// named by HELPDESK_CONFIG, then environment variables. Well known variables
// such as DATABASE_URL, JWT_SECRET, APP_URL and {PLATFORM}_CLIENT_ID map to
// fixed paths. Any other variable prefixed with HELPDESK_ maps to a path by
// lowercasing it and reading "__" as the path separator, so
// HELPDESK_SERVER__ADDR sets server.addr.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	helpdesk "github.com/goliatone/go-helpdesk"
	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/migrations"
)

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver      string        `koanf:"driver"`
	URL         string        `koanf:"url"`
	Debug       bool          `koanf:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout"`
	Migrate     bool          `koanf:"migrate"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	Audience  string        `koanf:"audience"`
	Leeway    time.Duration `koanf:"leeway"`
	// TokenKey seals stored platform tokens when set.
	TokenKey string `koanf:"token_key"`
}

type AppConfig struct {
	// URL is the dashboard the OAuth callback redirects back to.
	URL          string `koanf:"url"`
	CallbackPath string `koanf:"callback_path"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

type PlatformConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURI  string `koanf:"redirect_uri"`
}

type PlatformsConfig struct {
	Zendesk   PlatformConfig `koanf:"zendesk"`
	Zoho      PlatformConfig `koanf:"zoho"`
	Freshdesk PlatformConfig `koanf:"freshdesk"`
	Gmail     PlatformConfig `koanf:"gmail"`
}

type SchedulerConfig struct {
	Enabled       bool          `koanf:"enabled"`
	SyncInterval  time.Duration `koanf:"sync_interval"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
	Workers       int           `koanf:"workers"`
	MaxAttempts   int           `koanf:"max_attempts"`
	// DeadLetterLimit caps the dead letter table; older entries are dropped.
	DeadLetterLimit int `koanf:"dead_letter_limit"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	App       AppConfig       `koanf:"app"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Platforms PlatformsConfig `koanf:"platforms"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Cache     CacheConfig     `koanf:"cache"`
	Logging   LoggingConfig   `koanf:"logging"`
	Helpdesk  core.Config     `koanf:"helpdesk"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      "postgres",
			PingTimeout: 5 * time.Second,
			Migrate:     true,
		},
		App: AppConfig{
			URL:          "http://localhost:3000",
			CallbackPath: "/integrations",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 60,
			Window:   time.Minute,
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			SyncInterval:    30 * time.Minute,
			PurgeInterval:   15 * time.Minute,
			Workers:         2,
			MaxAttempts:     3,
			DeadLetterLimit: 500,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Helpdesk: core.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if _, err := migrations.DialectForDriver(c.Database.Driver); err != nil {
		return fmt.Errorf("config: database.driver: %w", err)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("config: database.url (DATABASE_URL) is required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("config: auth.jwt_secret (JWT_SECRET) is required")
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(c.App.URL)); err != nil {
		return fmt.Errorf("config: app.url (APP_URL) is invalid: %w", err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("config: rate_limit requests and window must be positive")
	}
	if c.Scheduler.Enabled && (c.Scheduler.SyncInterval <= 0 || c.Scheduler.Workers <= 0) {
		return fmt.Errorf("config: scheduler sync_interval and workers must be positive")
	}
	return c.ServiceConfig().Validate()
}

// ServiceConfig returns the core config with per-platform redirect uris
// folded in.
func (c Config) ServiceConfig() core.Config {
	out := c.Helpdesk
	redirects := make(map[string]string, len(out.OAuth.RedirectURIs)+4)
	for key, value := range out.OAuth.RedirectURIs {
		redirects[key] = value
	}
	for platform, cfg := range c.Platforms.byType() {
		if uri := strings.TrimSpace(cfg.RedirectURI); uri != "" {
			redirects[string(platform)] = uri
		}
	}
	out.OAuth.RedirectURIs = redirects
	return out
}

func (c Config) PlatformClients() helpdesk.PlatformClients {
	return helpdesk.PlatformClients{
		Zendesk:   c.Platforms.Zendesk.credentials(),
		Zoho:      c.Platforms.Zoho.credentials(),
		Freshdesk: c.Platforms.Freshdesk.credentials(),
		Gmail:     c.Platforms.Gmail.credentials(),
	}
}

// CallbackURL is the dashboard page the OAuth callback redirects to.
func (c Config) CallbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.App.URL), "/")
	path := strings.TrimSpace(c.App.CallbackPath)
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

func (p PlatformsConfig) byType() map[core.PlatformType]PlatformConfig {
	return map[core.PlatformType]PlatformConfig{
		core.PlatformZendesk:   p.Zendesk,
		core.PlatformZoho:      p.Zoho,
		core.PlatformFreshdesk: p.Freshdesk,
		core.PlatformGmail:     p.Gmail,
	}
}

func (p PlatformConfig) credentials() helpdesk.ClientCredentials {
	return helpdesk.ClientCredentials{
		ClientID:     strings.TrimSpace(p.ClientID),
		ClientSecret: strings.TrimSpace(p.ClientSecret),
	}
}

// DatabaseConfig satisfies the go-persistence-bun client config.

func (d DatabaseConfig) GetDebug() bool                { return d.Debug }
func (d DatabaseConfig) GetDriver() string             { return d.SQLDriver() }
func (d DatabaseConfig) GetServer() string             { return d.URL }
func (d DatabaseConfig) GetPingTimeout() time.Duration { return d.PingTimeout }
func (d DatabaseConfig) GetOtelIdentifier() string     { return "go-helpdesk" }

// SQLDriver is the database/sql driver name registered for Driver.
func (d DatabaseConfig) SQLDriver() string {
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return "postgres"
	}
}
