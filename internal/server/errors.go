package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/patchnotes/internal/pipeline"
	"github.com/jonathan/patchnotes/internal/query"
	"github.com/jonathan/patchnotes/internal/summarize"
	"github.com/jonathan/patchnotes/internal/types"
	"github.com/jonathan/patchnotes/internal/upsert"
)

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "Invalid credentials"
}

// ErrUserNotFound indicates user was not found
type ErrUserNotFound struct {
	UserID uuid.UUID
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrUnavailable indicates an optional feature that is not configured.
type ErrUnavailable struct {
	Feature string
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("%s is not configured", e.Feature)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		emailTaken  *types.EmailTakenError
		badKind     *types.UnsupportedKindError
		badQuery    *query.ValidationError
		badRequest  *ErrValidation
		badLogin    *ErrInvalidCredentials
		noUser      *ErrUserNotFound
		unavailable *ErrUnavailable
		cycle       *pipeline.CycleError
		storeWrite  *upsert.StoreWriteError
	)
	switch {
	case errors.As(err, &storeWrite):
		return http.StatusInternalServerError
	case errors.As(err, &cycle):
		return http.StatusBadGateway
	case errors.As(err, &emailTaken):
		return http.StatusConflict
	case errors.As(err, &badKind), errors.As(err, &badQuery), errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.As(err, &badLogin):
		return http.StatusUnauthorized
	case errors.As(err, &noUser), errors.Is(err, summarize.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
