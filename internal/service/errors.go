package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrThreadArchived       = errors.New("thread is archived")
	ErrMessageDeleted       = errors.New("message is deleted")
	ErrStorageNotConfigured = errors.New("storage not configured")
)

// ValidationError reports a rejected input field. It is returned as is to
// the caller and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// notFound maps a missing row to ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// systemClock returns now in the precision the database keeps.
func systemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
