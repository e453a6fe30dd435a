package core

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

type SyncRequest struct {
	ProfileID    string       `json:"profile_id"`
	PlatformType PlatformType `json:"platform"`
	// ConnectionID optionally pins the sync to a known connection.
	ConnectionID string `json:"connection_id,omitempty"`
}

type SyncResult struct {
	ProfileID    string
	PlatformType PlatformType
	ConnectionID string
	Count        int
	FetchedAt    time.Time
	Refreshed    bool
}

// SyncTickets fetches one bounded page of tickets for a connected platform and
// upserts them keyed by connection and external ticket id.
func (s *Service) SyncTickets(ctx context.Context, req SyncRequest) (result SyncResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"platform":   string(req.PlatformType),
		"profile_id": req.ProfileID,
	}
	defer func() {
		if result.ConnectionID != "" {
			fields["connection_id"] = result.ConnectionID
			fields["count"] = result.Count
		}
		s.observeOperation(ctx, startedAt, "sync_tickets", err, fields)
	}()

	profileID := strings.TrimSpace(req.ProfileID)
	if profileID == "" {
		err = AuthenticationError("profile id is required")
		return SyncResult{}, err
	}
	platform, err := s.resolvePlatform(req.PlatformType)
	if err != nil {
		return SyncResult{}, err
	}
	if s.credentialStore == nil || s.connectionRegistry == nil || s.ticketStore == nil {
		err = ConfigurationError("credential, connection and ticket stores are required")
		return SyncResult{}, err
	}

	credential, err := s.credentialStore.Get(ctx, profileID, req.PlatformType)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			err = CredentialsNotFoundError(req.PlatformType)
			return SyncResult{}, err
		}
		err = PersistenceError(err, "credential lookup")
		return SyncResult{}, err
	}
	if !credential.Usable() {
		err = CredentialsNotFoundError(req.PlatformType)
		return SyncResult{}, err
	}

	connection, err := s.resolveSyncConnection(ctx, req, credential)
	if err != nil {
		return SyncResult{}, err
	}
	result = SyncResult{
		ProfileID:    profileID,
		PlatformType: req.PlatformType,
		ConnectionID: connection.ID,
	}

	now := s.now()
	if credential.NeedsRefresh(now, s.config.RefreshSkew()) {
		credential, err = s.refreshCredential(ctx, platform, credential)
		if err != nil {
			return result, err
		}
		result.Refreshed = true
	}

	fetched, err := platform.FetchTickets(ctx, FetchTicketsRequest{
		Credential: credential,
		Limit:      s.config.Sync.PageSize,
	})
	if err != nil {
		if isUnauthorized(err) {
			s.markCredential(ctx, credential, CredentialStatusInvalid)
		}
		if upstreamStatus(err) == http.StatusTooManyRequests {
			err = RateLimitedError(err, req.PlatformType)
			return result, err
		}
		err = ProviderExchangeError(err, req.PlatformType, "ticket fetch")
		return result, err
	}

	fetchedAt := s.now()
	tickets := normalizeTicketBatch(fetched, profileID, connection.ID, fetchedAt)
	written, err := s.ticketStore.UpsertBatch(ctx, tickets)
	if err != nil {
		err = PersistenceError(err, "ticket batch")
		return result, err
	}
	s.recordCounter(ctx, MetricTicketsUpserted, int64(written), map[string]string{
		"platform": string(req.PlatformType),
	})

	if err = s.credentialStore.TouchLastFetched(ctx, credential.ID, fetchedAt); err != nil {
		err = PersistenceError(err, "credential last fetched")
		return result, err
	}
	if err = s.connectionRegistry.MarkFetched(ctx, connection.ID, fetchedAt); err != nil {
		err = PersistenceError(err, "connection last fetched")
		return result, err
	}

	result.Count = written
	result.FetchedAt = fetchedAt
	return result, nil
}

func (s *Service) resolveSyncConnection(
	ctx context.Context,
	req SyncRequest,
	credential PlatformCredential,
) (PlatformConnection, error) {
	if connectionID := strings.TrimSpace(req.ConnectionID); connectionID != "" {
		connection, err := s.connectionRegistry.Get(ctx, connectionID)
		if err != nil {
			if errors.Is(err, ErrConnectionNotFound) {
				return PlatformConnection{}, CredentialsNotFoundError(req.PlatformType)
			}
			return PlatformConnection{}, PersistenceError(err, "connection lookup")
		}
		if connection.ProfileID != credential.ProfileID || connection.PlatformType != req.PlatformType {
			return PlatformConnection{}, CredentialsNotFoundError(req.PlatformType)
		}
		return connection, nil
	}

	connection, err := s.connectionRegistry.FindActive(ctx, credential.ProfileID, req.PlatformType)
	if err == nil {
		return connection, nil
	}
	if !errors.Is(err, ErrConnectionNotFound) {
		return PlatformConnection{}, PersistenceError(err, "connection lookup")
	}
	// Older rows may carry a credential without a registry entry.
	connection, err = s.connectionRegistry.Activate(ctx, ActivateConnectionInput{
		ProfileID:    credential.ProfileID,
		PlatformType: req.PlatformType,
		PlatformName: req.PlatformType.DisplayName(),
		AuthTokens:   connectionTokenSummary(credential),
	})
	if err != nil {
		return PlatformConnection{}, PersistenceError(err, "connection")
	}
	return connection, nil
}

func (s *Service) refreshCredential(
	ctx context.Context,
	platform Platform,
	credential PlatformCredential,
) (PlatformCredential, error) {
	fields := map[string]any{
		"platform":      string(credential.PlatformType),
		"credential_id": credential.ID,
	}
	if !credential.Refreshable() {
		s.markCredential(ctx, credential, CredentialStatusExpired)
		s.logWarn(ctx, "credential expired without refresh token", fields)
		return credential, ProviderExchangeError(
			errors.New("access token expired and no refresh token is stored"),
			credential.PlatformType,
			"token refresh",
		)
	}

	tokens, err := platform.Refresh(ctx, credential)
	if err != nil {
		status := CredentialStatusExpired
		if isClientRejection(err) {
			status = CredentialStatusInvalid
		}
		s.markCredential(ctx, credential, status)
		fields["status"] = string(status)
		s.logWarn(ctx, "credential refresh failed", fields)
		return credential, ProviderExchangeError(err, credential.PlatformType, "token refresh")
	}

	refreshToken := tokens.RefreshToken
	if strings.TrimSpace(refreshToken) == "" {
		refreshToken = credential.RefreshToken
	}
	platformFields := copyStringMap(credential.PlatformFields)
	for key, value := range tokens.Fields {
		platformFields[key] = value
	}
	scopes := tokens.Scopes
	if len(scopes) == 0 {
		scopes = credential.Scopes
	}
	tokenType := tokens.TokenType
	if strings.TrimSpace(tokenType) == "" {
		tokenType = credential.TokenType
	}
	updated, err := s.credentialStore.Upsert(ctx, SaveCredentialInput{
		ProfileID:      credential.ProfileID,
		PlatformType:   credential.PlatformType,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   refreshToken,
		TokenType:      tokenType,
		Scopes:         append([]string(nil), scopes...),
		ExpiresAt:      tokens.ExpiresAt,
		Status:         CredentialStatusActive,
		PlatformFields: platformFields,
	})
	if err != nil {
		return credential, PersistenceError(err, "refreshed credential")
	}
	s.logInfo(ctx, "credential refreshed", fields)
	return updated, nil
}

func (s *Service) markCredential(ctx context.Context, credential PlatformCredential, status CredentialStatus) {
	if err := credential.TransitionTo(status, s.now()); err != nil {
		return
	}
	if err := s.credentialStore.UpdateStatus(ctx, credential.ID, status); err != nil {
		s.logError(ctx, "credential status update failed", map[string]any{
			"platform":      string(credential.PlatformType),
			"credential_id": credential.ID,
			"status":        string(status),
			"error":         err.Error(),
		})
	}
}

// PurgeExpiredStates deletes states past their expiry.
func (s *Service) PurgeExpiredStates(ctx context.Context) (purged int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["purged"] = purged
		s.observeOperation(ctx, startedAt, "purge_expired_states", err, fields)
	}()
	if s.stateStore == nil {
		err = ConfigurationError("oauth state store is not configured")
		return 0, err
	}
	purged, err = s.stateStore.PurgeExpired(ctx, s.now())
	if err != nil {
		err = PersistenceError(err, "oauth state purge")
		return 0, err
	}
	return purged, nil
}

func (s *Service) ListTickets(ctx context.Context, filter TicketFilter) (TicketPage, error) {
	if strings.TrimSpace(filter.ProfileID) == "" {
		return TicketPage{}, AuthenticationError("profile id is required")
	}
	if filter.PlatformType != "" {
		if _, err := ParsePlatformType(string(filter.PlatformType)); err != nil {
			return TicketPage{}, s.mapError(err)
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = s.config.Sync.PageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if s.ticketStore == nil {
		return TicketPage{}, ConfigurationError("ticket store is not configured")
	}
	page, err := s.ticketStore.List(ctx, filter)
	if err != nil {
		return TicketPage{}, PersistenceError(err, "ticket lookup")
	}
	return page, nil
}

func (s *Service) SummarizeTickets(ctx context.Context, profileID string) (TicketSummary, error) {
	if strings.TrimSpace(profileID) == "" {
		return TicketSummary{}, AuthenticationError("profile id is required")
	}
	if s.ticketStore == nil {
		return TicketSummary{}, ConfigurationError("ticket store is not configured")
	}
	summary, err := s.ticketStore.Summarize(ctx, profileID)
	if err != nil {
		return TicketSummary{}, PersistenceError(err, "ticket summary")
	}
	return summary, nil
}

// normalizeTicketBatch stamps ownership and collapses duplicate external ids,
// keeping the last occurrence, so a single upsert never touches a row twice.
func normalizeTicketBatch(tickets []Ticket, profileID, connectionID string, fetchedAt time.Time) []Ticket {
	index := make(map[string]int, len(tickets))
	out := make([]Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		externalID := strings.TrimSpace(ticket.ExternalTicketID)
		if externalID == "" {
			continue
		}
		ticket.ExternalTicketID = externalID
		ticket.ProfileID = profileID
		ticket.PlatformConnectionID = connectionID
		ticket.LastFetchedAt = fetchedAt
		if ticket.CreatedDate.IsZero() {
			ticket.CreatedDate = fetchedAt
		}
		if position, seen := index[externalID]; seen {
			out[position] = ticket
			continue
		}
		index[externalID] = len(out)
		out = append(out, ticket)
	}
	return out
}

// HTTPStatusCoder is implemented by errors that carry an upstream status code.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatus(err error) int {
	var coder HTTPStatusCoder
	if errors.As(err, &coder) {
		return coder.HTTPStatusCode()
	}
	return 0
}

func isUnauthorized(err error) bool {
	return upstreamStatus(err) == http.StatusUnauthorized
}

func isClientRejection(err error) bool {
	status := upstreamStatus(err)
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
