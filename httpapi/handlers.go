package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-helpdesk/adapters/gocommand"
	helpdeskcommand "github.com/goliatone/go-helpdesk/command"
	"github.com/goliatone/go-helpdesk/core"
	helpdeskquery "github.com/goliatone/go-helpdesk/query"
)

const maxBodyBytes = 64 << 10

type connectBody struct {
	Subdomain string `json:"subdomain" validate:"omitempty,hostname_rfc1123"`
	Domain    string `json:"domain" validate:"omitempty,hostname_rfc1123"`
}

type syncBody struct {
	ConnectionID string `json:"connectionId" validate:"omitempty,uuid"`
}

type ticketsParams struct {
	Platform string `validate:"omitempty,oneof=zendesk zoho freshdesk gmail"`
	Status   string `validate:"omitempty,max=64"`
	Limit    int    `validate:"gte=0,lte=500"`
	Offset   int    `validate:"gte=0"`
}

type connectResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

type syncResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

type connectionView struct {
	Platform         string     `json:"platform"`
	Name             string     `json:"name"`
	Configured       bool       `json:"configured"`
	Connected        bool       `json:"connected"`
	ConnectionID     string     `json:"connectionId,omitempty"`
	CredentialStatus string     `json:"status,omitempty"`
	LastFetchedAt    *time.Time `json:"lastFetchedAt,omitempty"`
}

type ticketView struct {
	ID                   string     `json:"id"`
	PlatformConnectionID string     `json:"platformConnectionId"`
	ExternalTicketID     string     `json:"externalTicketId"`
	CreatedDate          time.Time  `json:"createdDate"`
	ResolvedDate         *time.Time `json:"resolvedDate,omitempty"`
	Status               string     `json:"status"`
	Summary              string     `json:"summary"`
	Thread               string     `json:"thread,omitempty"`
	CustomerID           string     `json:"customerId,omitempty"`
	AgentName            string     `json:"agentName,omitempty"`
	LastFetchedAt        time.Time  `json:"lastFetchedAt"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	body := connectBody{}
	if err := s.decodeOptionalBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	fields := map[string]string{}
	if body.Subdomain != "" {
		fields["subdomain"] = body.Subdomain
	}
	if body.Domain != "" {
		fields["domain"] = body.Domain
	}

	result, err := gocommand.Dispatch[helpdeskcommand.ConnectMessage, core.ConnectResult](
		r.Context(),
		helpdeskcommand.ConnectMessage{Request: core.ConnectRequest{
			ProfileID:    principal.ProfileID,
			PlatformType: routePlatform(r),
			Fields:       fields,
		}},
	)
	if err != nil {
		s.logFailure(r, "oauth connect failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Success: true, URL: result.URL})
}

// handleCallback always answers with a redirect to the application. Failures
// carry the error text code as the reason.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	platform := routePlatform(r)
	query := r.URL.Query()
	_, err := gocommand.Dispatch[helpdeskcommand.CompleteCallbackMessage, core.CallbackCompletion](
		r.Context(),
		helpdeskcommand.CompleteCallbackMessage{Request: core.CallbackRequest{
			PlatformType:     platform,
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		}},
	)
	if err != nil {
		s.logFailure(r, "oauth callback failed", err)
		http.Redirect(w, r, s.redirectTarget(platform, core.TextCode(err)), http.StatusFound)
		return
	}
	http.Redirect(w, r, s.redirectTarget(platform, ""), http.StatusFound)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	body := syncBody{}
	if err := s.decodeOptionalBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	result, err := gocommand.Dispatch[helpdeskcommand.SyncTicketsMessage, core.SyncResult](
		r.Context(),
		helpdeskcommand.SyncTicketsMessage{Request: core.SyncRequest{
			ProfileID:    principal.ProfileID,
			PlatformType: routePlatform(r),
			ConnectionID: body.ConnectionID,
		}},
	)
	if err != nil {
		s.logFailure(r, "ticket sync failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Success: true, Count: result.Count})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	views, err := gocommand.Query[helpdeskquery.ListConnectionsMessage, []core.ConnectionStatusView](
		r.Context(),
		helpdeskquery.ListConnectionsMessage{ProfileID: principal.ProfileID},
	)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]connectionView, 0, len(views))
	for _, view := range views {
		out = append(out, connectionView{
			Platform:         string(view.PlatformType),
			Name:             view.PlatformName,
			Configured:       view.Configured,
			Connected:        view.Connected,
			ConnectionID:     view.ConnectionID,
			CredentialStatus: string(view.CredentialStatus),
			LastFetchedAt:    view.LastFetchedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "connections": out})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	if _, err := gocommand.Dispatch[helpdeskcommand.DisconnectMessage, struct{}](
		r.Context(),
		helpdeskcommand.DisconnectMessage{Request: core.DisconnectRequest{
			ProfileID:    principal.ProfileID,
			PlatformType: routePlatform(r),
		}},
	); err != nil {
		s.logFailure(r, "disconnect failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	params, err := s.ticketsParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := helpdeskquery.ListTicketsMessage{Filter: core.TicketFilter{
		ProfileID:    principal.ProfileID,
		PlatformType: core.PlatformType(params.Platform),
		Status:       params.Status,
		Limit:        params.Limit,
		Offset:       params.Offset,
	}}
	page, err := gocommand.Query[helpdeskquery.ListTicketsMessage, core.TicketPage](r.Context(), msg)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]ticketView, 0, len(page.Items))
	for _, ticket := range page.Items {
		items = append(items, ticketView{
			ID:                   ticket.ID,
			PlatformConnectionID: ticket.PlatformConnectionID,
			ExternalTicketID:     ticket.ExternalTicketID,
			CreatedDate:          ticket.CreatedDate,
			ResolvedDate:         ticket.ResolvedDate,
			Status:               ticket.Status,
			Summary:              ticket.Summary,
			Thread:               ticket.Thread,
			CustomerID:           ticket.CustomerID,
			AgentName:            ticket.AgentName,
			LastFetchedAt:        ticket.LastFetchedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "total": page.Total, "tickets": items})
}

func (s *Server) handleTicketSummary(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	summary, err := gocommand.Query[helpdeskquery.SummarizeTicketsMessage, core.TicketSummary](
		r.Context(),
		helpdeskquery.SummarizeTicketsMessage{ProfileID: principal.ProfileID},
	)
	if err != nil {
		writeError(w, err)
		return
	}
	byPlatform := make(map[string]int, len(summary.ByPlatform))
	for platform, count := range summary.ByPlatform {
		byPlatform[string(platform)] = count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"total":      summary.Total,
		"byStatus":   summary.ByStatus,
		"byPlatform": byPlatform,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Success: false, Error: "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) decodeOptionalBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return core.BadInputError("request body is not valid JSON")
	}
	return s.validateStruct(dst)
}

func (s *Server) ticketsParams(r *http.Request) (ticketsParams, error) {
	query := r.URL.Query()
	params := ticketsParams{
		Platform: strings.ToLower(strings.TrimSpace(query.Get("platform"))),
		Status:   strings.TrimSpace(query.Get("status")),
	}
	var err error
	if params.Limit, err = intParam(query, "limit"); err != nil {
		return ticketsParams{}, err
	}
	if params.Offset, err = intParam(query, "offset"); err != nil {
		return ticketsParams{}, err
	}
	return params, s.validateStruct(&params)
}

func (s *Server) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return core.BadInputError("request is invalid")
	}
	fields := make([]goerrors.FieldError, 0, len(invalid))
	for _, fieldErr := range invalid {
		fields = append(fields, goerrors.FieldError{
			Field:   fieldErr.Field(),
			Message: "failed " + fieldErr.Tag() + " validation",
		})
	}
	return goerrors.NewValidation("request is invalid", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}

func intParam(values url.Values, key string) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.BadInputError(key + " must be an integer")
	}
	return value, nil
}

func routePlatform(r *http.Request) core.PlatformType {
	return core.PlatformType(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "platform"))))
}

// redirectTarget appends status, platform and, on failure, reason to the
// application callback url.
func (s *Server) redirectTarget(platform core.PlatformType, reason string) string {
	target, err := url.Parse(s.callbackURL)
	if err != nil {
		return s.callbackURL
	}
	values := target.Query()
	values.Set("platform", string(platform))
	if reason == "" {
		values.Set("status", "success")
	} else {
		values.Set("status", "error")
		values.Set("reason", reason)
	}
	target.RawQuery = values.Encode()
	return target.String()
}

func (s *Server) logFailure(r *http.Request, message string, err error) {
	s.logger.WithContext(r.Context()).Warn(message,
		"platform", chi.URLParam(r, "platform"),
		"status", core.HTTPStatus(err),
		"text_code", core.TextCode(err),
		"error", err,
	)
}
