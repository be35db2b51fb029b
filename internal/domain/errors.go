package domain

import "strings"

// ValidationError reports every rule an input violated. Nothing is applied
// when it is returned.
type ValidationError struct {
	Errors []string
}

// Error joins all violations with ", ".
func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, ", ")
}

// NewValidationError returns nil when errs is empty.
func NewValidationError(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
