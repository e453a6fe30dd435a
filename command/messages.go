package command

import (
	"strings"

	"github.com/goliatone/go-helpdesk/core"
)

const (
	TypeConnect          = "helpdesk.command.connect"
	TypeCompleteCallback = "helpdesk.command.callback.complete"
	TypeSyncTickets      = "helpdesk.command.tickets.sync"
	TypeDisconnect       = "helpdesk.command.disconnect"
	TypePurgeStates      = "helpdesk.command.oauth_states.purge"
)

type ConnectMessage struct {
	Request core.ConnectRequest
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProfileID) == "" {
		return commandValidationError("profile_id", "profile id is required")
	}
	return validatePlatform(m.Request.PlatformType)
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

// Validate only checks the route platform. Missing code or state is reported
// by the service so the callback can redirect with a reason.
func (m CompleteCallbackMessage) Validate() error {
	return validatePlatform(m.Request.PlatformType)
}

type SyncTicketsMessage struct {
	Request core.SyncRequest `json:"request"`
}

func (SyncTicketsMessage) Type() string { return TypeSyncTickets }

func (m SyncTicketsMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProfileID) == "" {
		return commandValidationError("profile_id", "profile id is required")
	}
	return validatePlatform(m.Request.PlatformType)
}

type DisconnectMessage struct {
	Request core.DisconnectRequest
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProfileID) == "" {
		return commandValidationError("profile_id", "profile id is required")
	}
	return validatePlatform(m.Request.PlatformType)
}

type PurgeStatesMessage struct{}

func (PurgeStatesMessage) Type() string { return TypePurgeStates }

func (PurgeStatesMessage) Validate() error { return nil }

func validatePlatform(platformType core.PlatformType) error {
	if strings.TrimSpace(string(platformType)) == "" {
		return commandValidationError("platform", "platform is required")
	}
	if _, err := core.ParsePlatformType(string(platformType)); err != nil {
		return commandWrapValidation(err, "command: unsupported platform")
	}
	return nil
}
