package query

import (
	"strings"

	"github.com/goliatone/go-helpdesk/core"
)

const (
	TypeListConnections  = "helpdesk.query.connections.list"
	TypeListTickets      = "helpdesk.query.tickets.list"
	TypeSummarizeTickets = "helpdesk.query.tickets.summary"
)

type ListConnectionsMessage struct {
	ProfileID string
}

func (ListConnectionsMessage) Type() string { return TypeListConnections }

func (m ListConnectionsMessage) Validate() error {
	if strings.TrimSpace(m.ProfileID) == "" {
		return queryValidationError("profile_id", "profile id is required")
	}
	return nil
}

type ListTicketsMessage struct {
	Filter core.TicketFilter
}

func (ListTicketsMessage) Type() string { return TypeListTickets }

func (m ListTicketsMessage) Validate() error {
	if strings.TrimSpace(m.Filter.ProfileID) == "" {
		return queryValidationError("profile_id", "profile id is required")
	}
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be zero or positive")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must be zero or positive")
	}
	if m.Filter.PlatformType != "" {
		if _, err := core.ParsePlatformType(string(m.Filter.PlatformType)); err != nil {
			return queryWrapValidation(err, "query: unsupported platform")
		}
	}
	return nil
}

type SummarizeTicketsMessage struct {
	ProfileID string
}

func (SummarizeTicketsMessage) Type() string { return TypeSummarizeTickets }

func (m SummarizeTicketsMessage) Validate() error {
	if strings.TrimSpace(m.ProfileID) == "" {
		return queryValidationError("profile_id", "profile id is required")
	}
	return nil
}
