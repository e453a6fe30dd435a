package providers

import (
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
)

// StatusTable maps provider-native ticket statuses to normalized ones. Keys
// are matched case-insensitively; unmapped values pass through unchanged.
type StatusTable map[string]string

func (t StatusTable) Normalize(native string) string {
	trimmed := strings.TrimSpace(native)
	if trimmed == "" {
		return core.TicketStatusOpen
	}
	if mapped, ok := t[strings.ToLower(trimmed)]; ok {
		return mapped
	}
	return trimmed
}

// ParseTimestamp reads the RFC 3339 variants platform APIs return. Zero is
// returned for empty or unparseable input.
func ParseTimestamp(value string) time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z0700", "2006-01-02T15:04:05Z0700"} {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// ResolvedAt returns fetchedAt for tickets in a terminal status when the
// platform does not report a resolution time.
func ResolvedAt(status string, reported time.Time, fallback time.Time) *time.Time {
	if status != core.TicketStatusResolved && status != core.TicketStatusClosed {
		return nil
	}
	at := reported
	if at.IsZero() {
		at = fallback
	}
	if at.IsZero() {
		return nil
	}
	at = at.UTC()
	return &at
}

// Truncate bounds free text such as ticket threads before they are stored.
func Truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

// BearerHeaders builds the Authorization header for a stored credential.
func BearerHeaders(credential core.PlatformCredential) map[string]string {
	return map[string]string{"Authorization": "Bearer " + strings.TrimSpace(credential.AccessToken)}
}
