// Package multierror aggregates independent failures into one error value.
package multierror

import (
	"errors"
	"strings"
)

// MultiError aggregates multiple errors into one.
type MultiError []error

func (m MultiError) Error() string {
	messages := make([]string, 0, len(m))
	for _, err := range m {
		if err == nil {
			continue
		}
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "\n")
}

// Is reports whether any aggregated error matches target.
func (m MultiError) Is(target error) bool {
	for _, err := range m {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrorOrNil returns nil for an empty MultiError, so it can be returned as a plain error.
func (m MultiError) ErrorOrNil() error {
	if len(m) == 0 {
		return nil
	}
	return m
}

// Append appends err to the MultiError if err is not nil.
func Append(m *MultiError, err error) {
	if err == nil {
		return
	}
	*m = append(*m, err)
}
