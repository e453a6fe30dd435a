package query

import (
	"context"

	"github.com/goliatone/go-helpdesk/core"
)

type ConnectionReader interface {
	ListConnections(ctx context.Context, profileID string) ([]core.ConnectionStatusView, error)
}

type TicketReader interface {
	ListTickets(ctx context.Context, filter core.TicketFilter) (core.TicketPage, error)
	SummarizeTickets(ctx context.Context, profileID string) (core.TicketSummary, error)
}

type ListConnectionsQuery struct {
	reader ConnectionReader
}

func NewListConnectionsQuery(reader ConnectionReader) *ListConnectionsQuery {
	return &ListConnectionsQuery{reader: reader}
}

func (q *ListConnectionsQuery) Query(
	ctx context.Context,
	msg ListConnectionsMessage,
) ([]core.ConnectionStatusView, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: connection reader is required")
	}
	return q.reader.ListConnections(ctx, msg.ProfileID)
}

type ListTicketsQuery struct {
	reader TicketReader
}

func NewListTicketsQuery(reader TicketReader) *ListTicketsQuery {
	return &ListTicketsQuery{reader: reader}
}

func (q *ListTicketsQuery) Query(ctx context.Context, msg ListTicketsMessage) (core.TicketPage, error) {
	if q == nil || q.reader == nil {
		return core.TicketPage{}, queryDependencyError("query: ticket reader is required")
	}
	return q.reader.ListTickets(ctx, msg.Filter)
}

type SummarizeTicketsQuery struct {
	reader TicketReader
}

func NewSummarizeTicketsQuery(reader TicketReader) *SummarizeTicketsQuery {
	return &SummarizeTicketsQuery{reader: reader}
}

func (q *SummarizeTicketsQuery) Query(ctx context.Context, msg SummarizeTicketsMessage) (core.TicketSummary, error) {
	if q == nil || q.reader == nil {
		return core.TicketSummary{}, queryDependencyError("query: ticket reader is required")
	}
	return q.reader.SummarizeTickets(ctx, msg.ProfileID)
}
