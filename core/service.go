package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config             Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorMapper        ErrorMapper
	persistenceClient  any
	repositoryFactory  any
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	registry           PlatformRegistry
	stateStore         StateStore
	credentialStore    CredentialStore
	connectionRegistry ConnectionRegistry
	ticketStore        TicketStore
	now                func() time.Time
}

type ConnectRequest struct {
	ProfileID    string
	PlatformType PlatformType
	// Fields carries platform account hints such as the Zendesk subdomain.
	Fields map[string]string
}

type ConnectResult struct {
	URL          string
	State        string
	PlatformType PlatformType
	ExpiresAt    time.Time
}

type CallbackRequest struct {
	PlatformType     PlatformType
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

type CallbackCompletion struct {
	ProfileID    string
	PlatformType PlatformType
	Credential   PlatformCredential
	Connection   PlatformConnection
}

type DisconnectRequest struct {
	ProfileID    string
	PlatformType PlatformType
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("helpdesk", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("helpdesk"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewPlatformRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		var stores StoreProvider
		switch factory := builder.repositoryFactory.(type) {
		case RepositoryStoreFactory:
			built, buildErr := factory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		case StoreProvider:
			stores = factory
		}
		if stores != nil {
			if builder.stateStore == nil {
				builder.stateStore = stores.StateStore()
			}
			if builder.credentialStore == nil {
				builder.credentialStore = stores.CredentialStore()
			}
			if builder.connectionRegistry == nil {
				builder.connectionRegistry = stores.ConnectionRegistry()
			}
			if builder.ticketStore == nil {
				builder.ticketStore = stores.TicketStore()
			}
		}
	}
	if builder.stateStore == nil {
		builder.stateStore = NewMemoryStateStore(finalConfig.StateTTL())
	}

	return &Service{
		config:             finalConfig,
		logger:             logger,
		loggerProvider:     provider,
		metricsRecorder:    builder.metricsRecorder,
		errorMapper:        builder.errorMapper,
		persistenceClient:  builder.persistenceClient,
		repositoryFactory:  builder.repositoryFactory,
		configProvider:     builder.configProvider,
		optionsResolver:    builder.optionsResolver,
		registry:           builder.registry,
		stateStore:         builder.stateStore,
		credentialStore:    builder.credentialStore,
		connectionRegistry: builder.connectionRegistry,
		ticketStore:        builder.ticketStore,
		now:                builder.now,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Platforms() []Platform {
	if s == nil || s.registry == nil {
		return nil
	}
	return s.registry.List()
}

// Connect starts the authorization-code handshake for a profile: it mints a
// single use state, persists it, and returns the platform authorize url.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (result ConnectResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"platform":   string(req.PlatformType),
		"profile_id": req.ProfileID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	profileID := strings.TrimSpace(req.ProfileID)
	if profileID == "" {
		err = AuthenticationError("profile id is required")
		return ConnectResult{}, err
	}
	platform, err := s.resolvePlatform(req.PlatformType)
	if err != nil {
		return ConnectResult{}, err
	}
	redirectURI := s.config.RedirectURI(req.PlatformType)
	if redirectURI == "" {
		err = ConfigurationError(fmt.Sprintf("%s redirect uri is not configured", req.PlatformType.DisplayName()))
		return ConnectResult{}, err
	}
	if s.stateStore == nil {
		err = ConfigurationError("oauth state store is not configured")
		return ConnectResult{}, err
	}

	state, err := generateOAuthState()
	if err != nil {
		err = s.mapError(err)
		return ConnectResult{}, err
	}

	response, err := platform.BeginAuth(ctx, BeginAuthRequest{
		ProfileID:   profileID,
		State:       state,
		RedirectURI: redirectURI,
		Fields:      copyStringMap(req.Fields),
	})
	if err != nil {
		err = s.mapError(err)
		return ConnectResult{}, err
	}

	now := s.now()
	metadata := map[string]any{}
	for key, value := range req.Fields {
		metadata[key] = value
	}
	saved, err := s.stateStore.Save(ctx, OAuthState{
		ProfileID:    profileID,
		PlatformType: req.PlatformType,
		State:        state,
		RedirectURI:  redirectURI,
		Metadata:     metadata,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.StateTTL()),
	})
	if err != nil {
		err = PersistenceError(err, "oauth state")
		return ConnectResult{}, err
	}

	return ConnectResult{
		URL:          response.URL,
		State:        saved.State,
		PlatformType: req.PlatformType,
		ExpiresAt:    saved.ExpiresAt,
	}, nil
}

// CompleteCallback finishes the handshake. The state is consumed before the
// code exchange and cannot be replayed whether or not the exchange succeeds.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (completion CallbackCompletion, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"platform": string(req.PlatformType),
	}
	defer func() {
		if completion.ProfileID != "" {
			fields["profile_id"] = completion.ProfileID
		}
		if completion.Connection.ID != "" {
			fields["connection_id"] = completion.Connection.ID
		}
		s.observeOperation(ctx, startedAt, "complete_callback", err, fields)
	}()

	if _, err = ParsePlatformType(string(req.PlatformType)); err != nil {
		err = s.mapError(err)
		return CallbackCompletion{}, err
	}
	if providerErr := strings.TrimSpace(req.Error); providerErr != "" {
		detail := providerErr
		if description := strings.TrimSpace(req.ErrorDescription); description != "" {
			detail = providerErr + ": " + description
		}
		denied := ProviderExchangeError(errors.New(detail), req.PlatformType, "authorization")
		denied.TextCode = ServiceErrorProviderDenied
		err = denied
		return CallbackCompletion{}, err
	}
	if strings.TrimSpace(req.State) == "" {
		err = CsrfStateError(errors.New("core: oauth callback state is required"), req.PlatformType)
		return CallbackCompletion{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		err = BadInputError("authorization code is required")
		return CallbackCompletion{}, err
	}

	state, err := s.consumeCallbackState(ctx, req)
	if err != nil {
		return CallbackCompletion{}, err
	}
	completion.ProfileID = state.ProfileID
	completion.PlatformType = state.PlatformType

	platform, err := s.resolvePlatform(req.PlatformType)
	if err != nil {
		return completion, err
	}
	if s.credentialStore == nil || s.connectionRegistry == nil {
		err = ConfigurationError("credential store and connection registry are required")
		return completion, err
	}

	tokens, err := platform.ExchangeCode(ctx, ExchangeRequest{
		Code:        strings.TrimSpace(req.Code),
		RedirectURI: state.RedirectURI,
		Fields:      stateFields(state),
	})
	if err != nil {
		err = ProviderExchangeError(err, req.PlatformType, "token exchange")
		return completion, err
	}

	platformFields := stateFields(state)
	for key, value := range tokens.Fields {
		platformFields[key] = value
	}
	credential, err := s.credentialStore.Upsert(ctx, SaveCredentialInput{
		ProfileID:      state.ProfileID,
		PlatformType:   state.PlatformType,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenType:      tokens.TokenType,
		Scopes:         append([]string(nil), tokens.Scopes...),
		ExpiresAt:      tokens.ExpiresAt,
		Status:         CredentialStatusActive,
		PlatformFields: platformFields,
	})
	if err != nil {
		err = PersistenceError(err, "credential")
		return completion, err
	}
	completion.Credential = credential

	connection, err := s.connectionRegistry.Activate(ctx, ActivateConnectionInput{
		ProfileID:    state.ProfileID,
		PlatformType: state.PlatformType,
		PlatformName: state.PlatformType.DisplayName(),
		AuthTokens:   connectionTokenSummary(credential),
	})
	if err != nil {
		err = PersistenceError(err, "connection")
		return completion, err
	}
	completion.Connection = connection
	return completion, nil
}

func (s *Service) consumeCallbackState(ctx context.Context, req CallbackRequest) (OAuthState, error) {
	if s.stateStore == nil {
		return OAuthState{}, ConfigurationError("oauth state store is not configured")
	}
	state, err := s.stateStore.Consume(ctx, strings.TrimSpace(req.State))
	if err != nil {
		if errors.Is(err, ErrOAuthStateNotFound) || errors.Is(err, ErrOAuthStateExpired) {
			return OAuthState{}, CsrfStateError(err, req.PlatformType)
		}
		return OAuthState{}, PersistenceError(err, "oauth state")
	}
	if state.Expired(s.now()) {
		return OAuthState{}, CsrfStateError(ErrOAuthStateExpired, req.PlatformType)
	}
	if state.PlatformType != req.PlatformType {
		return OAuthState{}, CsrfStateError(
			fmt.Errorf("core: oauth callback state platform mismatch: %s", state.PlatformType),
			req.PlatformType,
		)
	}
	return state, nil
}

// Disconnect deletes the stored credential and deactivates the connection.
func (s *Service) Disconnect(ctx context.Context, req DisconnectRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"platform":   string(req.PlatformType),
		"profile_id": req.ProfileID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	if strings.TrimSpace(req.ProfileID) == "" {
		err = AuthenticationError("profile id is required")
		return err
	}
	if _, err = ParsePlatformType(string(req.PlatformType)); err != nil {
		err = s.mapError(err)
		return err
	}
	if s.credentialStore == nil || s.connectionRegistry == nil {
		err = ConfigurationError("credential store and connection registry are required")
		return err
	}
	if err = s.credentialStore.Delete(ctx, req.ProfileID, req.PlatformType); err != nil && !errors.Is(err, ErrCredentialNotFound) {
		err = PersistenceError(err, "credential")
		return err
	}
	if err = s.connectionRegistry.Deactivate(ctx, req.ProfileID, req.PlatformType); err != nil && !errors.Is(err, ErrConnectionNotFound) {
		err = PersistenceError(err, "connection")
		return err
	}
	err = nil
	return nil
}

// ListConnections derives connection status for every known platform from the
// credential store and connection registry.
func (s *Service) ListConnections(ctx context.Context, profileID string) (views []ConnectionStatusView, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"profile_id": profileID}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_connections", err, fields)
	}()

	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		err = AuthenticationError("profile id is required")
		return nil, err
	}
	if s.credentialStore == nil || s.connectionRegistry == nil {
		err = ConfigurationError("credential store and connection registry are required")
		return nil, err
	}

	connections, err := s.connectionRegistry.ListByProfile(ctx, profileID)
	if err != nil {
		err = PersistenceError(err, "connection lookup")
		return nil, err
	}
	byPlatform := make(map[PlatformType]PlatformConnection, len(connections))
	for _, connection := range connections {
		byPlatform[connection.PlatformType] = connection
	}

	views = make([]ConnectionStatusView, 0, len(KnownPlatforms()))
	for _, platformType := range KnownPlatforms() {
		_, configured := s.registry.Get(platformType)
		view := ConnectionStatusView{
			PlatformType: platformType,
			PlatformName: platformType.DisplayName(),
			Configured:   configured,
		}
		credential, credErr := s.credentialStore.Get(ctx, profileID, platformType)
		switch {
		case credErr == nil:
			view.CredentialStatus = credential.Status
			view.LastFetchedAt = credential.LastFetchedAt
		case errors.Is(credErr, ErrCredentialNotFound):
		default:
			err = PersistenceError(credErr, "credential lookup")
			return nil, err
		}
		if connection, ok := byPlatform[platformType]; ok {
			view.ConnectionID = connection.ID
			if connection.LastFetchedAt != nil {
				view.LastFetchedAt = connection.LastFetchedAt
			}
			view.Connected = connection.IsActive && credErr == nil && credential.Usable()
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) resolvePlatform(platformType PlatformType) (Platform, error) {
	if _, err := ParsePlatformType(string(platformType)); err != nil {
		return nil, s.mapError(err)
	}
	if s == nil || s.registry == nil {
		return nil, ConfigurationError("platform registry is not configured")
	}
	platform, ok := s.registry.Get(platformType)
	if !ok {
		return nil, ConfigurationError(fmt.Sprintf("%s client credentials are not configured", platformType.DisplayName()))
	}
	return platform, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func stateFields(state OAuthState) map[string]string {
	out := make(map[string]string, len(state.Metadata))
	for key, value := range state.Metadata {
		text := strings.TrimSpace(fmt.Sprint(value))
		if text == "" || text == "<nil>" {
			continue
		}
		out[key] = text
	}
	return out
}

func connectionTokenSummary(credential PlatformCredential) map[string]any {
	summary := map[string]any{
		"credential_id": credential.ID,
		"token_type":    credential.TokenType,
		"scopes":        append([]string(nil), credential.Scopes...),
		"refreshable":   credential.Refreshable(),
	}
	if credential.ExpiresAt != nil {
		summary["expires_at"] = credential.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return summary
}
