package helpdesk

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/providers/freshdesk"
	"github.com/goliatone/go-helpdesk/providers/google/gmail"
	"github.com/goliatone/go-helpdesk/providers/zendesk"
	"github.com/goliatone/go-helpdesk/providers/zoho"
	"github.com/goliatone/go-helpdesk/ratelimit"
	"github.com/goliatone/go-helpdesk/transport"
	"golang.org/x/time/rate"
)

func ZendeskPlatform(cfg zendesk.Config) (core.Platform, error) {
	return zendesk.New(cfg)
}

func ZohoPlatform(cfg zoho.Config) (core.Platform, error) {
	return zoho.New(cfg)
}

func FreshdeskPlatform(cfg freshdesk.Config) (core.Platform, error) {
	return freshdesk.New(cfg)
}

func GmailPlatform(cfg gmail.Config) (core.Platform, error) {
	return gmail.New(cfg)
}

const (
	platformRequestsPerSecond rate.Limit = 10
	platformRequestBurst                 = 10
)

// ClientCredentials is the OAuth client registered with one platform.
type ClientCredentials struct {
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
}

// Configured reports whether both halves of the client are set. A client id
// without its secret cannot complete the token exchange.
func (c ClientCredentials) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

type PlatformClients struct {
	Zendesk   ClientCredentials `koanf:"zendesk" mapstructure:"zendesk"`
	Zoho      ClientCredentials `koanf:"zoho" mapstructure:"zoho"`
	Freshdesk ClientCredentials `koanf:"freshdesk" mapstructure:"freshdesk"`
	Gmail     ClientCredentials `koanf:"gmail" mapstructure:"gmail"`
}

// NewPlatformRegistry registers every platform with a complete client. Platforms
// left out surface as configuration errors when a user tries to connect. All
// platforms share one rate limit policy, breaker set and pacer keyed by host.
func NewPlatformRegistry(clients PlatformClients, httpClient *http.Client) (core.PlatformRegistry, error) {
	registry := core.NewPlatformRegistry()
	register := func(name string, creds ClientCredentials, build func() (core.Platform, error)) error {
		if !creds.Configured() {
			return nil
		}
		platform, err := build()
		if err != nil {
			return fmt.Errorf("helpdesk: build %s platform: %w", name, err)
		}
		return registry.Register(platform)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	httpClient = ratelimit.WrapClient(httpClient,
		ratelimit.NewPolicy(ratelimit.NewMemoryStateStore()),
		ratelimit.WithBreakers(ratelimit.NewBreakers(ratelimit.DefaultBreakerConfig())),
		ratelimit.WithPacing(platformRequestsPerSecond, platformRequestBurst),
	)
	var doer transport.HTTPDoer = httpClient

	if err := register("zendesk", clients.Zendesk, func() (core.Platform, error) {
		return ZendeskPlatform(zendesk.Config{
			ClientID:     clients.Zendesk.ClientID,
			ClientSecret: clients.Zendesk.ClientSecret,
			HTTPClient:   doer,
		})
	}); err != nil {
		return nil, err
	}
	if err := register("zoho", clients.Zoho, func() (core.Platform, error) {
		return ZohoPlatform(zoho.Config{
			ClientID:     clients.Zoho.ClientID,
			ClientSecret: clients.Zoho.ClientSecret,
			HTTPClient:   doer,
		})
	}); err != nil {
		return nil, err
	}
	if err := register("freshdesk", clients.Freshdesk, func() (core.Platform, error) {
		return FreshdeskPlatform(freshdesk.Config{
			ClientID:     clients.Freshdesk.ClientID,
			ClientSecret: clients.Freshdesk.ClientSecret,
			HTTPClient:   doer,
		})
	}); err != nil {
		return nil, err
	}
	if err := register("gmail", clients.Gmail, func() (core.Platform, error) {
		return GmailPlatform(gmail.Config{
			ClientID:     clients.Gmail.ClientID,
			ClientSecret: clients.Gmail.ClientSecret,
			HTTPClient:   httpClient,
		})
	}); err != nil {
		return nil, err
	}
	return registry, nil
}
