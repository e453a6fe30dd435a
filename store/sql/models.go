package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type oauthStateRecord struct {
	bun.BaseModel `bun:"table:oauth_states,alias:os"`

	ID           string         `bun:"id,pk"`
	ProfileID    string         `bun:"profile_id,notnull"`
	PlatformType string         `bun:"platform_type,notnull"`
	State        string         `bun:"state,notnull"`
	RedirectURI  string         `bun:"redirect_uri,notnull"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt    time.Time      `bun:"expires_at,notnull"`
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:platform_credentials,alias:pcr"`

	ID             string            `bun:"id,pk"`
	ProfileID      string            `bun:"profile_id,notnull"`
	PlatformType   string            `bun:"platform_type,notnull"`
	AccessToken    string            `bun:"access_token,notnull"`
	RefreshToken   string            `bun:"refresh_token,notnull"`
	TokenType      string            `bun:"token_type,notnull"`
	Scopes         []string          `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt      *time.Time        `bun:"expires_at,nullzero"`
	Status         string            `bun:"status,notnull"`
	PlatformFields map[string]string `bun:"platform_fields,type:jsonb,notnull"`
	LastFetchedAt  *time.Time        `bun:"last_fetched_at,nullzero"`
	CreatedAt      time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type connectionRecord struct {
	bun.BaseModel `bun:"table:platform_connections,alias:pc"`

	ID            string         `bun:"id,pk"`
	ProfileID     string         `bun:"profile_id,notnull"`
	PlatformName  string         `bun:"platform_name,notnull"`
	PlatformType  string         `bun:"platform_type,notnull"`
	AuthTokens    map[string]any `bun:"auth_tokens,type:jsonb,notnull"`
	IsActive      bool           `bun:"is_active,notnull"`
	LastFetchedAt *time.Time     `bun:"last_fetched_at,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type ticketRecord struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID                   string     `bun:"id,pk"`
	ProfileID            string     `bun:"profile_id,notnull"`
	PlatformConnectionID string     `bun:"platform_connection_id,notnull"`
	ExternalTicketID     string     `bun:"external_ticket_id,notnull"`
	CreatedDate          *time.Time `bun:"created_date,nullzero"`
	ResolvedDate         *time.Time `bun:"resolved_date,nullzero"`
	Status               string     `bun:"status,notnull"`
	Thread               string     `bun:"thread,notnull"`
	Summary              string     `bun:"summary,notnull"`
	CustomerID           string     `bun:"customer_id,notnull"`
	AgentName            string     `bun:"agent_name,notnull"`
	LastFetchedAt        time.Time  `bun:"last_fetched_at,notnull"`
	CreatedAt            time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// ticketCountRow is the scan target for grouped ticket counts.
type ticketCountRow struct {
	Bucket string `bun:"bucket"`
	Total  int    `bun:"total"`
}
