package helpdesk

import "github.com/goliatone/go-helpdesk/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type PlatformType = core.PlatformType

type ConnectRequest = core.ConnectRequest
type CallbackRequest = core.CallbackRequest
type SyncRequest = core.SyncRequest
type DisconnectRequest = core.DisconnectRequest
type TicketFilter = core.TicketFilter

const (
	PlatformZendesk   = core.PlatformZendesk
	PlatformZoho      = core.PlatformZoho
	PlatformFreshdesk = core.PlatformFreshdesk
	PlatformGmail     = core.PlatformGmail
)

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithPersistenceClient  = core.WithPersistenceClient
	WithRepositoryFactory  = core.WithRepositoryFactory
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithPlatformRegistry   = core.WithPlatformRegistry
	WithStateStore         = core.WithStateStore
	WithCredentialStore    = core.WithCredentialStore
	WithConnectionRegistry = core.WithConnectionRegistry
	WithTicketStore        = core.WithTicketStore
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
