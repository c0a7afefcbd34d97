package service

import (
	"errors"
	"fmt"

	"smarthome/internal/repository"
)

// Error taxonomy shared by every service. Callers test with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("temporary store failure")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func deniedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(format, args...))
}

// notFoundf deliberately says nothing about whether the row exists.
func notFoundf(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// storeErr maps a repository failure onto the service taxonomy. Missing rows
// become ErrNotFound; anything unclassified is treated as retryable.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFoundf(op)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrTransient):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
}
