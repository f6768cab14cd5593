package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Application-level errors. Callers match them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrPersistence         = errors.New("persistence failure")
	ErrLockNotObtained     = errors.New("could not obtain driver lock")
	ErrAdminNotAuthorized  = fmt.Errorf("performing user is not authorized as an admin")
	ErrDriverAlreadyExists = fmt.Errorf("driver with this Telegram ID already exists")
)

// ValidationError lists the rejected fields of a command payload, each mapped
// to the rule it failed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
