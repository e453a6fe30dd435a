package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/google/uuid"
)

func newOAuthStateRecord(state core.OAuthState, now time.Time) *oauthStateRecord {
	record := &oauthStateRecord{
		ID:           strings.TrimSpace(state.ID),
		ProfileID:    strings.TrimSpace(state.ProfileID),
		PlatformType: string(state.PlatformType),
		State:        strings.TrimSpace(state.State),
		RedirectURI:  strings.TrimSpace(state.RedirectURI),
		Metadata:     copyAnyMap(state.Metadata),
		CreatedAt:    state.CreatedAt.UTC(),
		ExpiresAt:    state.ExpiresAt.UTC(),
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if state.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	return record
}

func (r *oauthStateRecord) toDomain() core.OAuthState {
	if r == nil {
		return core.OAuthState{}
	}
	return core.OAuthState{
		ID:           r.ID,
		ProfileID:    r.ProfileID,
		PlatformType: core.PlatformType(r.PlatformType),
		State:        r.State,
		RedirectURI:  r.RedirectURI,
		Metadata:     copyAnyMap(r.Metadata),
		CreatedAt:    r.CreatedAt.UTC(),
		ExpiresAt:    r.ExpiresAt.UTC(),
	}
}

func newCredentialRecord(in core.SaveCredentialInput, now time.Time) *credentialRecord {
	record := &credentialRecord{
		ID:           uuid.NewString(),
		ProfileID:    strings.TrimSpace(in.ProfileID),
		PlatformType: string(in.PlatformType),
		CreatedAt:    now,
	}
	record.apply(in, now)
	return record
}

// apply overwrites the token material and status from a save input.
func (r *credentialRecord) apply(in core.SaveCredentialInput, now time.Time) {
	r.AccessToken = in.AccessToken
	r.RefreshToken = in.RefreshToken
	r.TokenType = strings.TrimSpace(in.TokenType)
	if r.TokenType == "" {
		r.TokenType = "bearer"
	}
	r.Scopes = append([]string(nil), in.Scopes...)
	if r.Scopes == nil {
		r.Scopes = []string{}
	}
	r.ExpiresAt = cloneTimePointer(in.ExpiresAt)
	r.Status = string(in.Status)
	if r.Status == "" {
		r.Status = string(core.CredentialStatusActive)
	}
	r.PlatformFields = copyStringMap(in.PlatformFields)
	r.UpdatedAt = now
}

func (r *credentialRecord) toDomain() core.PlatformCredential {
	if r == nil {
		return core.PlatformCredential{}
	}
	return core.PlatformCredential{
		ID:             r.ID,
		ProfileID:      r.ProfileID,
		PlatformType:   core.PlatformType(r.PlatformType),
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		TokenType:      r.TokenType,
		Scopes:         append([]string(nil), r.Scopes...),
		ExpiresAt:      cloneTimePointer(r.ExpiresAt),
		Status:         core.CredentialStatus(r.Status),
		PlatformFields: copyStringMap(r.PlatformFields),
		LastFetchedAt:  cloneTimePointer(r.LastFetchedAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func newConnectionRecord(in core.ActivateConnectionInput, now time.Time) *connectionRecord {
	name := strings.TrimSpace(in.PlatformName)
	if name == "" {
		name = in.PlatformType.DisplayName()
	}
	return &connectionRecord{
		ID:           uuid.NewString(),
		ProfileID:    strings.TrimSpace(in.ProfileID),
		PlatformName: name,
		PlatformType: string(in.PlatformType),
		AuthTokens:   copyAnyMap(in.AuthTokens),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *connectionRecord) toDomain() core.PlatformConnection {
	if r == nil {
		return core.PlatformConnection{}
	}
	return core.PlatformConnection{
		ID:            r.ID,
		ProfileID:     r.ProfileID,
		PlatformName:  r.PlatformName,
		PlatformType:  core.PlatformType(r.PlatformType),
		AuthTokens:    copyAnyMap(r.AuthTokens),
		IsActive:      r.IsActive,
		LastFetchedAt: cloneTimePointer(r.LastFetchedAt),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func newTicketRecord(ticket core.Ticket, now time.Time) *ticketRecord {
	record := &ticketRecord{
		ID:                   strings.TrimSpace(ticket.ID),
		ProfileID:            strings.TrimSpace(ticket.ProfileID),
		PlatformConnectionID: strings.TrimSpace(ticket.PlatformConnectionID),
		ExternalTicketID:     strings.TrimSpace(ticket.ExternalTicketID),
		ResolvedDate:         cloneTimePointer(ticket.ResolvedDate),
		Status:               ticket.Status,
		Thread:               ticket.Thread,
		Summary:              ticket.Summary,
		CustomerID:           ticket.CustomerID,
		AgentName:            ticket.AgentName,
		LastFetchedAt:        ticket.LastFetchedAt.UTC(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if !ticket.CreatedDate.IsZero() {
		record.CreatedDate = cloneTimePointer(&ticket.CreatedDate)
	}
	if ticket.LastFetchedAt.IsZero() {
		record.LastFetchedAt = now
	}
	return record
}

func (r *ticketRecord) toDomain() core.Ticket {
	if r == nil {
		return core.Ticket{}
	}
	ticket := core.Ticket{
		ID:                   r.ID,
		ProfileID:            r.ProfileID,
		PlatformConnectionID: r.PlatformConnectionID,
		ExternalTicketID:     r.ExternalTicketID,
		ResolvedDate:         cloneTimePointer(r.ResolvedDate),
		Status:               r.Status,
		Thread:               r.Thread,
		Summary:              r.Summary,
		CustomerID:           r.CustomerID,
		AgentName:            r.AgentName,
		LastFetchedAt:        r.LastFetchedAt.UTC(),
	}
	if r.CreatedDate != nil {
		ticket.CreatedDate = r.CreatedDate.UTC()
	}
	return ticket
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil || input.IsZero() {
		return nil
	}
	value := input.UTC()
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
