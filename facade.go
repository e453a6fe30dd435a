package helpdesk

import (
	"fmt"

	helpdeskcommand "github.com/goliatone/go-helpdesk/command"
	helpdeskquery "github.com/goliatone/go-helpdesk/query"
)

// CommandQueryService is the surface the facade dispatches to. *Service
// satisfies it.
type CommandQueryService interface {
	helpdeskcommand.MutatingService
	helpdeskquery.ConnectionReader
	helpdeskquery.TicketReader
}

type Commands struct {
	Connect          *helpdeskcommand.ConnectCommand
	CompleteCallback *helpdeskcommand.CompleteCallbackCommand
	SyncTickets      *helpdeskcommand.SyncTicketsCommand
	Disconnect       *helpdeskcommand.DisconnectCommand
	PurgeStates      *helpdeskcommand.PurgeStatesCommand
}

type Queries struct {
	ListConnections  *helpdeskquery.ListConnectionsQuery
	ListTickets      *helpdeskquery.ListTicketsQuery
	SummarizeTickets *helpdeskquery.SummarizeTicketsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("helpdesk: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			Connect:          helpdeskcommand.NewConnectCommand(service),
			CompleteCallback: helpdeskcommand.NewCompleteCallbackCommand(service),
			SyncTickets:      helpdeskcommand.NewSyncTicketsCommand(service),
			Disconnect:       helpdeskcommand.NewDisconnectCommand(service),
			PurgeStates:      helpdeskcommand.NewPurgeStatesCommand(service),
		},
		queries: Queries{
			ListConnections:  helpdeskquery.NewListConnectionsQuery(service),
			ListTickets:      helpdeskquery.NewListTicketsQuery(service),
			SummarizeTickets: helpdeskquery.NewSummarizeTicketsQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
