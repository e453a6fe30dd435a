package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type OAuthConfig struct {
	StateTTLSeconds int `koanf:"state_ttl_seconds" mapstructure:"state_ttl_seconds"`
	// CallbackBaseURL is joined with /oauth/{platform}/callback when a platform
	// has no explicit redirect uri.
	CallbackBaseURL string            `koanf:"callback_base_url" mapstructure:"callback_base_url"`
	RedirectURIs    map[string]string `koanf:"redirect_uris" mapstructure:"redirect_uris"`
}

type SyncConfig struct {
	PageSize           int `koanf:"page_size" mapstructure:"page_size"`
	RefreshSkewSeconds int `koanf:"refresh_skew_seconds" mapstructure:"refresh_skew_seconds"`
}

type Config struct {
	ServiceName string      `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig `koanf:"oauth" mapstructure:"oauth"`
	Sync        SyncConfig  `koanf:"sync" mapstructure:"sync"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "helpdesk",
		OAuth: OAuthConfig{
			StateTTLSeconds: int(defaultOAuthStateTTL / time.Second),
			RedirectURIs:    map[string]string{},
		},
		Sync: SyncConfig{
			PageSize:           100,
			RefreshSkewSeconds: 60,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.StateTTLSeconds <= 0 {
		return fmt.Errorf("core: oauth.state_ttl_seconds must be positive")
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 500 {
		return fmt.Errorf("core: sync.page_size must be between 1 and 500")
	}
	if c.Sync.RefreshSkewSeconds < 0 {
		return fmt.Errorf("core: sync.refresh_skew_seconds must not be negative")
	}
	if base := strings.TrimSpace(c.OAuth.CallbackBaseURL); base != "" {
		if _, err := url.ParseRequestURI(base); err != nil {
			return fmt.Errorf("core: oauth.callback_base_url is invalid: %w", err)
		}
	}
	return nil
}

func (c Config) StateTTL() time.Duration {
	return time.Duration(c.OAuth.StateTTLSeconds) * time.Second
}

func (c Config) RefreshSkew() time.Duration {
	return time.Duration(c.Sync.RefreshSkewSeconds) * time.Second
}

// RedirectURI resolves the fixed callback uri registered with a platform.
func (c Config) RedirectURI(platform PlatformType) string {
	if uri := strings.TrimSpace(c.OAuth.RedirectURIs[string(platform)]); uri != "" {
		return uri
	}
	base := strings.TrimRight(strings.TrimSpace(c.OAuth.CallbackBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/oauth/" + string(platform) + "/callback"
}
