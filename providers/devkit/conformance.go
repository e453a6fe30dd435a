package devkit

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-helpdesk/core"
)

// ValidatePlatformConformance checks the authorize URL contract every
// platform must meet and that an empty code never reaches the token endpoint.
func ValidatePlatformConformance(
	ctx context.Context,
	platform core.Platform,
	clientID string,
	fields map[string]string,
) error {
	if platform == nil {
		return fmt.Errorf("devkit: platform is required")
	}
	if _, err := core.ParsePlatformType(platform.Type().String()); err != nil {
		return fmt.Errorf("devkit: %w", err)
	}

	const state = "devkit-state"
	const redirectURI = "https://app.example.test/oauth/callback"
	begin, err := platform.BeginAuth(ctx, core.BeginAuthRequest{
		ProfileID:   "devkit-profile",
		State:       state,
		RedirectURI: redirectURI,
		Fields:      fields,
	})
	if err != nil {
		return fmt.Errorf("devkit: begin auth: %w", err)
	}
	parsed, err := url.Parse(begin.URL)
	if err != nil {
		return fmt.Errorf("devkit: parse authorize url: %w", err)
	}
	query := parsed.Query()
	checks := map[string]string{
		"client_id":     clientID,
		"redirect_uri":  redirectURI,
		"state":         state,
		"response_type": "code",
	}
	for key, want := range checks {
		if got := query.Get(key); got != want {
			return fmt.Errorf("devkit: authorize url %s = %q, want %q", key, got, want)
		}
	}
	if strings.TrimSpace(query.Get("scope")) == "" {
		return fmt.Errorf("devkit: authorize url is missing scope")
	}

	if _, err := platform.ExchangeCode(ctx, core.ExchangeRequest{RedirectURI: redirectURI, Fields: fields}); err == nil {
		return fmt.Errorf("devkit: empty authorization code should be rejected")
	}
	return nil
}
