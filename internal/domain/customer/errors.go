package customer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientKeyMaterial is returned when a record has no candidate key and
	// neither an email nor a display name to create it from
	ErrInsufficientKeyMaterial = errors.New("IdentityError: insufficient key material")

	// ErrIdentityConflict is returned when a write violates a per-tenant unique key
	ErrIdentityConflict = errors.New("identity conflict: unique key already owned by another record")

	// ErrAmbiguousMatch is returned when more than one record could be the match
	ErrAmbiguousMatch = errors.New("ambiguous identity match")
)

// AmbiguousMatchError carries the candidate records a human has to choose from
type AmbiguousMatchError struct {
	Reason     string
	Candidates []uuid.UUID
}

// Error implements error
func (e *AmbiguousMatchError) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, id := range e.Candidates {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%s: %s (candidates: %s)", ErrAmbiguousMatch, e.Reason, strings.Join(ids, ", "))
}

// Unwrap lets errors.Is match ErrAmbiguousMatch
func (e *AmbiguousMatchError) Unwrap() error {
	return ErrAmbiguousMatch
}
