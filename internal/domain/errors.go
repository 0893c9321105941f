package domain

import (
	"errors"
	"regexp"
)

var (
	// ErrSourceNotFound is returned when an entity's source file is absent.
	ErrSourceNotFound = errors.New("source not found")
	// ErrSchemaMismatch is returned when source columns cannot be mapped onto an entity.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrTransactionFailure wraps destination write or commit failures.
	ErrTransactionFailure = errors.New("transaction failure")
	// ErrConfiguration marks errors that must abort a run before any tier is touched.
	ErrConfiguration = errors.New("configuration error")
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsIdentifier reports whether name is a safe unquoted SQL identifier.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
