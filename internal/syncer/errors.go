package syncer

import (
	"errors"
	"fmt"
)

// ErrSessionRequired is returned by mutations attempted with no active
// session.
var ErrSessionRequired = errors.New("no active session")

// ValidationError reports bad input caught before any remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
