package service

import (
	"errors"
	"strings"

	"github.com/iliyamo/apartment-board/internal/validation"
)

var (
	// ErrMissingToken is returned when an edit or delete carries no secret.
	ErrMissingToken = errors.New("missing security token")
	// ErrNotFound is returned when no listing exists for the id, or when a
	// soft-deleted listing is read through Get.
	ErrNotFound = errors.New("listing not found")
	// ErrTokenMismatch is returned when the supplied secret is wrong.
	ErrTokenMismatch = errors.New("security token mismatch")
	// ErrAlreadyDeleted is returned for edits and deletes of a soft-deleted listing.
	ErrAlreadyDeleted = errors.New("listing already deleted")
)

// ValidationError carries every field that failed validation.
type ValidationError struct {
	Errors []validation.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsAuthError reports whether err is one of the authorization failures
// that front-ends collapse into a single generic message.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrTokenMismatch) ||
		errors.Is(err, ErrAlreadyDeleted)
}
