package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// modelHandlers builds repository handlers for records keyed by a string
// uuid. idField returns nil for a nil record.
func modelHandlers[T any](
	newRecord func() T,
	idField func(T) *string,
	identifier string,
	identifierValue func(T) string,
) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			if field := idField(record); field != nil {
				return parseUUID(*field)
			}
			return uuid.Nil
		},
		SetID: func(record T, id uuid.UUID) {
			if field := idField(record); field != nil {
				*field = id.String()
			}
		},
		GetIdentifier: func() string {
			return identifier
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(identifierValue(record))
		},
	}
}

// oauthStateHandlers identify states by their opaque value so lookups go
// through the unique index.
func oauthStateHandlers() repository.ModelHandlers[*oauthStateRecord] {
	return modelHandlers(
		func() *oauthStateRecord { return &oauthStateRecord{} },
		func(r *oauthStateRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
		"state",
		func(r *oauthStateRecord) string {
			if r == nil {
				return ""
			}
			return r.State
		},
	)
}

func credentialHandlers() repository.ModelHandlers[*credentialRecord] {
	idField := func(r *credentialRecord) *string {
		if r == nil {
			return nil
		}
		return &r.ID
	}
	return modelHandlers(
		func() *credentialRecord { return &credentialRecord{} },
		idField,
		"id",
		func(r *credentialRecord) string { return derefString(idField(r)) },
	)
}

func connectionHandlers() repository.ModelHandlers[*connectionRecord] {
	idField := func(r *connectionRecord) *string {
		if r == nil {
			return nil
		}
		return &r.ID
	}
	return modelHandlers(
		func() *connectionRecord { return &connectionRecord{} },
		idField,
		"id",
		func(r *connectionRecord) string { return derefString(idField(r)) },
	)
}

func ticketHandlers() repository.ModelHandlers[*ticketRecord] {
	idField := func(r *ticketRecord) *string {
		if r == nil {
			return nil
		}
		return &r.ID
	}
	return modelHandlers(
		func() *ticketRecord { return &ticketRecord{} },
		idField,
		"id",
		func(r *ticketRecord) string { return derefString(idField(r)) },
	)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

// isUniqueViolation matches the sqlite and postgres unique constraint
// messages.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
