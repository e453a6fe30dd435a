package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-helpdesk/core"
)

var (
	_ gocmd.Querier[ListConnectionsMessage, []core.ConnectionStatusView] = (*ListConnectionsQuery)(nil)
	_ gocmd.Querier[ListTicketsMessage, core.TicketPage]                 = (*ListTicketsQuery)(nil)
	_ gocmd.Querier[SummarizeTicketsMessage, core.TicketSummary]         = (*SummarizeTicketsQuery)(nil)

	_ ConnectionReader = (*core.Service)(nil)
	_ TicketReader     = (*core.Service)(nil)
)
