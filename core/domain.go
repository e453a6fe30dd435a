package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownPlatform                   = errors.New("core: unknown platform")
	ErrInvalidCredentialStatusTransition = errors.New("core: invalid credential status transition")
	ErrCredentialNotFound                = errors.New("core: credential not found")
	ErrConnectionNotFound                = errors.New("core: connection not found")
	ErrOAuthStateNotFound                = errors.New("core: oauth state not found")
	ErrOAuthStateExpired                 = errors.New("core: oauth state expired")
)

type PlatformType string

const (
	PlatformZendesk   PlatformType = "zendesk"
	PlatformZoho      PlatformType = "zoho"
	PlatformFreshdesk PlatformType = "freshdesk"
	PlatformGmail     PlatformType = "gmail"
)

// KnownPlatforms lists platforms in display order.
func KnownPlatforms() []PlatformType {
	return []PlatformType{PlatformZendesk, PlatformZoho, PlatformFreshdesk, PlatformGmail}
}

func ParsePlatformType(raw string) (PlatformType, error) {
	candidate := PlatformType(strings.ToLower(strings.TrimSpace(raw)))
	switch candidate {
	case PlatformZendesk, PlatformZoho, PlatformFreshdesk, PlatformGmail:
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, raw)
}

func (p PlatformType) String() string {
	return string(p)
}

// DisplayName is the user facing platform name.
func (p PlatformType) DisplayName() string {
	switch p {
	case PlatformZendesk:
		return "Zendesk"
	case PlatformZoho:
		return "Zoho Desk"
	case PlatformFreshdesk:
		return "FreshDesk"
	case PlatformGmail:
		return "Gmail"
	default:
		return string(p)
	}
}

type OAuthState struct {
	ID           string
	ProfileID    string
	PlatformType PlatformType
	State        string
	RedirectURI  string
	Metadata     map[string]any
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (s OAuthState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type CredentialStatus string

const (
	CredentialStatusPending  CredentialStatus = "pending"
	CredentialStatusActive   CredentialStatus = "active"
	CredentialStatusExpired  CredentialStatus = "expired"
	CredentialStatusInactive CredentialStatus = "inactive"
	CredentialStatusInvalid  CredentialStatus = "invalid"
)

type PlatformCredential struct {
	ID             string
	ProfileID      string
	PlatformType   PlatformType
	AccessToken    string
	RefreshToken   string
	TokenType      string
	Scopes         []string
	ExpiresAt      *time.Time
	Status         CredentialStatus
	PlatformFields map[string]string
	LastFetchedAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Usable reports whether the credential may be used, possibly after a refresh.
func (c PlatformCredential) Usable() bool {
	return c.Status == CredentialStatusActive || c.Status == CredentialStatusExpired
}

// NeedsRefresh reports whether the access token expires within skew of now.
func (c PlatformCredential) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if c.Status == CredentialStatusExpired {
		return true
	}
	if c.ExpiresAt == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(*c.ExpiresAt)
}

func (c PlatformCredential) Refreshable() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

func (c *PlatformCredential) TransitionTo(status CredentialStatus, now time.Time) error {
	if c == nil {
		return nil
	}
	if c.Status == status {
		c.UpdatedAt = now
		return nil
	}
	if !credentialTransitionAllowed(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidCredentialStatusTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = now
	return nil
}

var credentialTransitions = map[CredentialStatus]map[CredentialStatus]bool{
	CredentialStatusPending: {
		CredentialStatusActive:  true,
		CredentialStatusInvalid: true,
	},
	CredentialStatusActive: {
		CredentialStatusExpired:  true,
		CredentialStatusInactive: true,
		CredentialStatusInvalid:  true,
	},
	CredentialStatusExpired: {
		CredentialStatusActive:   true,
		CredentialStatusInactive: true,
		CredentialStatusInvalid:  true,
	},
	CredentialStatusInactive: {
		CredentialStatusActive: true,
	},
	CredentialStatusInvalid: {
		CredentialStatusActive:   true,
		CredentialStatusInactive: true,
	},
}

func credentialTransitionAllowed(from, to CredentialStatus) bool {
	if from == "" {
		return true
	}
	return credentialTransitions[from][to]
}

type PlatformConnection struct {
	ID            string
	ProfileID     string
	PlatformName  string
	PlatformType  PlatformType
	AuthTokens    map[string]any
	IsActive      bool
	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	TicketStatusOpen       = "Open"
	TicketStatusInProgress = "In_Progress"
	TicketStatusResolved   = "Resolved"
	TicketStatusClosed     = "Closed"
)

type Ticket struct {
	ID                   string
	ProfileID            string
	PlatformConnectionID string
	ExternalTicketID     string
	CreatedDate          time.Time
	ResolvedDate         *time.Time
	Status               string
	Thread               string
	Summary              string
	CustomerID           string
	AgentName            string
	LastFetchedAt        time.Time
}

type TicketFilter struct {
	ProfileID    string
	PlatformType PlatformType
	Status       string
	Limit        int
	Offset       int
}

type TicketPage struct {
	Items []Ticket
	Total int
}

type TicketSummary struct {
	ProfileID  string
	Total      int
	ByStatus   map[string]int
	ByPlatform map[PlatformType]int
}

// ConnectionStatusView is the server derived status of one platform for a profile.
type ConnectionStatusView struct {
	PlatformType     PlatformType
	PlatformName     string
	Configured       bool
	Connected        bool
	ConnectionID     string
	CredentialStatus CredentialStatus
	LastFetchedAt    *time.Time
}
