package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput               = "HELPDESK_BAD_INPUT"
	ServiceErrorAuthenticationFailed   = "HELPDESK_AUTHENTICATION_FAILED"
	ServiceErrorOAuthStateInvalid      = "HELPDESK_OAUTH_STATE_INVALID"
	ServiceErrorProviderExchangeFailed = "HELPDESK_PROVIDER_EXCHANGE_FAILED"
	ServiceErrorProviderDenied         = "HELPDESK_PROVIDER_DENIED"
	ServiceErrorPersistenceFailed      = "HELPDESK_PERSISTENCE_FAILED"
	ServiceErrorConfigurationMissing   = "HELPDESK_CONFIGURATION_MISSING"
	ServiceErrorCredentialsNotFound    = "HELPDESK_CREDENTIALS_NOT_FOUND"
	ServiceErrorConnectionNotFound     = "HELPDESK_CONNECTION_NOT_FOUND"
	ServiceErrorRateLimited            = "HELPDESK_RATE_LIMITED"
	ServiceErrorInternal               = "HELPDESK_INTERNAL_ERROR"
)

// AuthenticationError reports a missing or invalid bearer token.
func AuthenticationError(message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "Unauthorized"
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ServiceErrorAuthenticationFailed)
}

// CsrfStateError reports a missing, unknown, expired or mismatched OAuth state.
func CsrfStateError(source error, platform PlatformType) *goerrors.Error {
	return wrapServiceError(
		source,
		goerrors.CategoryAuth,
		"oauth state is invalid or expired",
		http.StatusBadRequest,
		ServiceErrorOAuthStateInvalid,
		map[string]any{"platform": string(platform)},
	)
}

// ProviderExchangeError reports a failed call to a platform token or ticket
// endpoint. The platform error detail stays in the wrapped source.
func ProviderExchangeError(source error, platform PlatformType, operation string) *goerrors.Error {
	message := fmt.Sprintf("%s %s failed", platform.DisplayName(), operation)
	if source != nil {
		message = fmt.Sprintf("%s: %s", message, source.Error())
	}
	return wrapServiceError(
		source,
		goerrors.CategoryExternal,
		message,
		http.StatusBadGateway,
		ServiceErrorProviderExchangeFailed,
		map[string]any{"platform": string(platform), "operation": operation},
	)
}

// RateLimitedError reports a platform that answered 429 or is still cooling
// down from one.
func RateLimitedError(source error, platform PlatformType) *goerrors.Error {
	return wrapServiceError(
		source,
		goerrors.CategoryRateLimit,
		platform.DisplayName()+" rate limit reached, try again later",
		http.StatusTooManyRequests,
		ServiceErrorRateLimited,
		map[string]any{"platform": string(platform)},
	)
}

func PersistenceError(source error, operation string) *goerrors.Error {
	return wrapServiceError(
		source,
		goerrors.CategoryInternal,
		"failed to persist "+operation,
		http.StatusInternalServerError,
		ServiceErrorPersistenceFailed,
		map[string]any{"operation": operation},
	)
}

func ConfigurationError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorConfigurationMissing)
}

// CredentialsNotFoundError is reported with status 500 so the dashboard treats
// a sync against a disconnected platform as a failed sync.
func CredentialsNotFoundError(platform PlatformType) *goerrors.Error {
	return wrapServiceError(
		nil,
		goerrors.CategoryNotFound,
		platform.DisplayName()+" credentials not found",
		http.StatusInternalServerError,
		ServiceErrorCredentialsNotFound,
		map[string]any{"platform": string(platform)},
	)
}

func BadInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput)
}

func wrapServiceError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrOAuthStateNotFound), errors.Is(err, ErrOAuthStateExpired):
		return ensureServiceErrorEnvelope(CsrfStateError(err, ""))
	case errors.Is(err, ErrUnknownPlatform), errors.Is(err, ErrInvalidCredentialStatusTransition):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	case errors.Is(err, ErrConnectionNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorConnectionNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "oauth state"):
		return newServiceError(err.Error(), goerrors.CategoryAuth, ServiceErrorOAuthStateInvalid)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorConnectionNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorAuthenticationFailed
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorProviderExchangeFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus resolves the response status for any error returned by the service.
func HTTPStatus(err error) int {
	mapped := serviceErrorMapper(err)
	if mapped == nil {
		return http.StatusOK
	}
	return mapped.Code
}

// PublicMessage is the error text safe to return to API callers.
func PublicMessage(err error) string {
	mapped := serviceErrorMapper(err)
	if mapped == nil {
		return ""
	}
	if strings.TrimSpace(mapped.Message) == "" {
		return "An unexpected error occurred"
	}
	return mapped.Message
}

// TextCode returns the envelope text code for err.
func TextCode(err error) string {
	mapped := serviceErrorMapper(err)
	if mapped == nil {
		return ""
	}
	return mapped.TextCode
}
