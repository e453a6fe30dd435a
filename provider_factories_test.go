package helpdesk

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/providers/freshdesk"
	"github.com/goliatone/go-helpdesk/providers/google/gmail"
	"github.com/goliatone/go-helpdesk/providers/zendesk"
	"github.com/goliatone/go-helpdesk/providers/zoho"
)

func TestNewPlatformRegistry_RegistersConfiguredPlatforms(t *testing.T) {
	registry, err := NewPlatformRegistry(PlatformClients{
		Zendesk: ClientCredentials{ClientID: "zd-client", ClientSecret: "zd-secret"},
		Gmail:   ClientCredentials{ClientID: "gm-client", ClientSecret: "gm-secret"},
	}, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	platforms := registry.List()
	if len(platforms) != 2 {
		t.Fatalf("expected 2 configured platforms, got %d", len(platforms))
	}
	if platforms[0].Type() != core.PlatformGmail || platforms[1].Type() != core.PlatformZendesk {
		t.Fatalf("unexpected platform order %q, %q", platforms[0].Type(), platforms[1].Type())
	}
	if _, ok := registry.Get(core.PlatformZoho); ok {
		t.Fatalf("expected zoho to stay unregistered without a client id")
	}
}

func TestClientCredentialsConfiguredRequiresSecret(t *testing.T) {
	cases := []struct {
		name  string
		creds ClientCredentials
		want  bool
	}{
		{name: "complete", creds: ClientCredentials{ClientID: "id", ClientSecret: "secret"}, want: true},
		{name: "missing secret", creds: ClientCredentials{ClientID: "id"}, want: false},
		{name: "blank secret", creds: ClientCredentials{ClientID: "id", ClientSecret: "  "}, want: false},
		{name: "missing id", creds: ClientCredentials{ClientSecret: "secret"}, want: false},
		{name: "empty", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.creds.Configured(); got != tc.want {
				t.Fatalf("expected Configured() == %v, got %v", tc.want, got)
			}
		})
	}
}

func TestConnectWithoutClientSecretIsConfigurationError(t *testing.T) {
	registry, err := NewPlatformRegistry(PlatformClients{
		Zendesk: ClientCredentials{ClientID: "zd-client", ClientSecret: "zd-secret"},
		Zoho:    ClientCredentials{ClientID: "zo-client"},
	}, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, ok := registry.Get(core.PlatformZoho); ok {
		t.Fatalf("expected zoho without a client secret to stay unregistered")
	}

	svc, err := NewService(DefaultConfig(), WithPlatformRegistry(registry))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.Connect(context.Background(), core.ConnectRequest{ProfileID: "profile_1", PlatformType: core.PlatformZoho})
	if err == nil {
		t.Fatalf("expected connect without a client secret to fail")
	}
	if status := core.HTTPStatus(err); status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d (%v)", status, err)
	}
	if core.TextCode(err) != core.ServiceErrorConfigurationMissing {
		t.Fatalf("expected configuration text code, got %q", core.TextCode(err))
	}
}

func TestPlatformFactories(t *testing.T) {
	cases := map[core.PlatformType]func() (core.Platform, error){
		core.PlatformZendesk: func() (core.Platform, error) {
			return ZendeskPlatform(zendesk.Config{ClientID: "client", ClientSecret: "secret"})
		},
		core.PlatformZoho: func() (core.Platform, error) {
			return ZohoPlatform(zoho.Config{ClientID: "client", ClientSecret: "secret"})
		},
		core.PlatformFreshdesk: func() (core.Platform, error) {
			return FreshdeskPlatform(freshdesk.Config{ClientID: "client", ClientSecret: "secret"})
		},
		core.PlatformGmail: func() (core.Platform, error) {
			return GmailPlatform(gmail.Config{ClientID: "client", ClientSecret: "secret"})
		},
	}
	for want, build := range cases {
		platform, err := build()
		if err != nil {
			t.Fatalf("%s factory: %v", want, err)
		}
		if platform.Type() != want {
			t.Fatalf("expected %q, got %q", want, platform.Type())
		}
	}
}
