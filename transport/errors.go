package transport

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-helpdesk/core"
)

// StatusError is a non-2xx platform response. Detail is extracted from the
// platform error body when it has a recognizable shape.
type StatusError struct {
	StatusCode int
	Detail     string
	Body       []byte
}

func NewStatusError(res Response) *StatusError {
	return &StatusError{
		StatusCode: res.StatusCode,
		Detail:     DescribeErrorBody(res.Body),
		Body:       append([]byte(nil), res.Body...),
	}
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Detail)
}

func (e *StatusError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// DescribeErrorBody pulls the human readable error out of the JSON error
// payloads platforms return. Non JSON bodies are truncated verbatim.
func DescribeErrorBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return truncate(trimmed, 256)
	}
	parts := []string{}
	for _, key := range []string{"error", "errorCode", "error_description", "description", "message"} {
		switch value := payload[key].(type) {
		case string:
			if text := strings.TrimSpace(value); text != "" {
				parts = append(parts, text)
			}
		case map[string]any:
			if text, ok := value["message"].(string); ok && strings.TrimSpace(text) != "" {
				parts = append(parts, strings.TrimSpace(text))
			}
		}
	}
	if len(parts) == 0 {
		return truncate(trimmed, 256)
	}
	return strings.Join(parts, ": ")
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ServiceErrorBadInput
	case goerrors.CategoryExternal:
		return core.ServiceErrorProviderExchangeFailed
	default:
		return core.ServiceErrorInternal
	}
}

var _ core.HTTPStatusCoder = (*StatusError)(nil)
