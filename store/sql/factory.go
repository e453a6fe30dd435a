package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db       *bun.DB
	stateTTL time.Duration
	cache    repositorycache.CacheService
	secrets  core.SecretProvider

	stateStore         *StateStore
	credentialStore    *CredentialStore
	connectionStore    *ConnectionStore
	connectionRegistry core.ConnectionRegistry
	ticketStore        *TicketStore
}

type FactoryOption func(*RepositoryFactory)

// WithStateTTL sets the lifetime of OAuth states saved without an expiry.
func WithStateTTL(ttl time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		f.stateTTL = ttl
	}
}

// WithConnectionCache fronts the connection registry with cacheService.
func WithConnectionCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

// WithTokenCipher encrypts credential tokens at rest.
func WithTokenCipher(secrets core.SecretProvider) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = secrets
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.stateStore != nil && f.ticketStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) StateStore() core.StateStore {
	if f == nil || f.stateStore == nil {
		return nil
	}
	return f.stateStore
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil || f.credentialStore == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) ConnectionRegistry() core.ConnectionRegistry {
	if f == nil {
		return nil
	}
	return f.connectionRegistry
}

func (f *RepositoryFactory) TicketStore() core.TicketStore {
	if f == nil || f.ticketStore == nil {
		return nil
	}
	return f.ticketStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	stateStore, err := NewStateStore(f.db, f.stateTTL)
	if err != nil {
		return err
	}

	credentialRepo := repository.NewRepository[*credentialRecord](f.db, credentialHandlers())
	if validator, ok := credentialRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}

	connectionRepo := repository.NewRepository[*connectionRecord](f.db, connectionHandlers())
	if validator, ok := connectionRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid connection repository wiring: %w", err)
		}
	}

	ticketRepo := repository.NewRepository[*ticketRecord](f.db, ticketHandlers())
	if validator, ok := ticketRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid ticket repository wiring: %w", err)
		}
	}

	f.stateStore = stateStore
	f.credentialStore = &CredentialStore{db: f.db, repo: credentialRepo, secrets: f.secrets}
	f.connectionStore = &ConnectionStore{db: f.db, repo: connectionRepo}
	f.ticketStore = &TicketStore{db: f.db, repo: ticketRepo}

	f.connectionRegistry = f.connectionStore
	if f.cache != nil {
		cached, err := NewCachedConnectionRegistry(f.connectionStore, f.cache)
		if err != nil {
			return err
		}
		f.connectionRegistry = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
