// Package gocommand binds the helpdesk commands and queries to the go-command
// dispatcher. HTTP handlers and queued jobs reach the service through Dispatch
// and Query, so message validation and the command handlers run the same way
// for both.
package gocommand

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	helpdesk "github.com/goliatone/go-helpdesk"
	helpdeskcommand "github.com/goliatone/go-helpdesk/command"
	"github.com/goliatone/go-helpdesk/core"
	helpdeskquery "github.com/goliatone/go-helpdesk/query"
)

// Bindings holds the dispatcher subscriptions created by BindFacade.
type Bindings struct {
	mu            sync.Mutex
	subscriptions []dispatcher.Subscription
}

func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

func (b *Bindings) Unsubscribe() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

// BindFacade subscribes every facade command and query on the process wide
// dispatcher. The dispatcher runs every handler subscribed to a message type,
// so unsubscribe a previous binding before binding another facade.
func BindFacade(facade *helpdesk.Facade, runnerOpts ...runner.Option) (*Bindings, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	return &Bindings{subscriptions: []dispatcher.Subscription{
		subscribeCommand[helpdeskcommand.ConnectMessage](commands.Connect, runnerOpts),
		subscribeCommand[helpdeskcommand.CompleteCallbackMessage](commands.CompleteCallback, runnerOpts),
		subscribeCommand[helpdeskcommand.SyncTicketsMessage](commands.SyncTickets, runnerOpts),
		subscribeCommand[helpdeskcommand.DisconnectMessage](commands.Disconnect, runnerOpts),
		subscribeCommand[helpdeskcommand.PurgeStatesMessage](commands.PurgeStates, runnerOpts),
		subscribeQuery[helpdeskquery.ListConnectionsMessage, []core.ConnectionStatusView](queries.ListConnections, runnerOpts),
		subscribeQuery[helpdeskquery.ListTicketsMessage, core.TicketPage](queries.ListTickets, runnerOpts),
		subscribeQuery[helpdeskquery.SummarizeTicketsMessage, core.TicketSummary](queries.SummarizeTickets, runnerOpts),
	}}, nil
}

// Dispatch validates msg, runs the command subscribed for its type and returns
// the value the command stored in the result collector. Errors are the ones
// the command returned, not the dispatcher's wrapped copies, so the service
// error envelope reaches the caller intact.
func Dispatch[T command.Message, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	if err := validate(msg); err != nil {
		return zero, err
	}
	ctx, slot := withFailureSlot(ctx)
	result := command.NewResult[R]()
	if err := dispatcher.Dispatch(command.ContextWithResult(ctx, result), msg); err != nil {
		return zero, slot.resolve(err)
	}
	out, _ := result.Load()
	return out, nil
}

// Query validates msg and runs the single query subscribed for its type.
func Query[T command.Message, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	if err := validate(msg); err != nil {
		return zero, err
	}
	ctx, slot := withFailureSlot(ctx)
	out, err := dispatcher.Query[T, R](ctx, msg)
	if err != nil {
		return zero, slot.resolve(err)
	}
	return out, nil
}

// Forward returns a command that dispatches msg again. Queue workers register
// it so a queued message runs the subscribed handler.
func Forward[T command.Message, R any]() command.CommandFunc[T] {
	return func(ctx context.Context, msg T) error {
		_, err := Dispatch[T, R](ctx, msg)
		return err
	}
}

func validate(msg any) error {
	if command.IsNilMessage(msg) {
		return core.BadInputError("message is required")
	}
	if validator, ok := msg.(interface{ Validate() error }); ok {
		return validator.Validate()
	}
	return nil
}

func subscribeCommand[T any](cmd command.Commander[T], runnerOpts []runner.Option) dispatcher.Subscription {
	return dispatcher.SubscribeCommand[T](recordingCommand[T]{next: cmd}, runnerOpts...)
}

func subscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts []runner.Option) dispatcher.Subscription {
	return dispatcher.SubscribeQuery[T, R](recordingQuery[T, R]{next: qry}, runnerOpts...)
}

type recordingCommand[T any] struct {
	next command.Commander[T]
}

func (c recordingCommand[T]) Execute(ctx context.Context, msg T) error {
	return recordFailure(ctx, c.next.Execute(ctx, msg))
}

type recordingQuery[T any, R any] struct {
	next command.Querier[T, R]
}

func (q recordingQuery[T, R]) Query(ctx context.Context, msg T) (R, error) {
	out, err := q.next.Query(ctx, msg)
	return out, recordFailure(ctx, err)
}

type failureSlotKey struct{}

type failureSlot struct {
	mu  sync.Mutex
	err error
}

func withFailureSlot(ctx context.Context) (context.Context, *failureSlot) {
	slot := &failureSlot{}
	return context.WithValue(ctx, failureSlotKey{}, slot), slot
}

func recordFailure(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if slot, ok := ctx.Value(failureSlotKey{}).(*failureSlot); ok {
		slot.mu.Lock()
		if slot.err == nil {
			slot.err = err
		}
		slot.mu.Unlock()
	}
	return err
}

// resolve prefers the handler error over the dispatcher error wrapping it.
// Lookup failures never reach a handler and are returned as is.
func (s *failureSlot) resolve(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return err
}
