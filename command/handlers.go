package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-helpdesk/core"
)

type MutatingService interface {
	Connect(ctx context.Context, req core.ConnectRequest) (core.ConnectResult, error)
	CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackCompletion, error)
	SyncTickets(ctx context.Context, req core.SyncRequest) (core.SyncResult, error)
	Disconnect(ctx context.Context, req core.DisconnectRequest) error
	PurgeExpiredStates(ctx context.Context) (int, error)
}

type ConnectCommand struct {
	service MutatingService
}

func NewConnectCommand(service MutatingService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.Connect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.CompleteCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncTicketsCommand struct {
	service MutatingService
}

func NewSyncTicketsCommand(service MutatingService) *SyncTicketsCommand {
	return &SyncTicketsCommand{service: service}
}

func (c *SyncTicketsCommand) Execute(ctx context.Context, msg SyncTicketsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.SyncTickets(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	return c.service.Disconnect(ctx, msg.Request)
}

type PurgeStatesCommand struct {
	service MutatingService
}

func NewPurgeStatesCommand(service MutatingService) *PurgeStatesCommand {
	return &PurgeStatesCommand{service: service}
}

func (c *PurgeStatesCommand) Execute(ctx context.Context, _ PurgeStatesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: purge service is required")
	}
	purged, err := c.service.PurgeExpiredStates(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, purged)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
