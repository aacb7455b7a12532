package server

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrListingNotFound indicates no listing exists for the requested ID
type ErrListingNotFound struct {
	ID string
}

func (e *ErrListingNotFound) Error() string {
	return fmt.Sprintf("job listing not found: %s", e.ID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrScrapeUnavailable indicates a run could not be started because the scheduler is stopping
type ErrScrapeUnavailable struct{}

func (e *ErrScrapeUnavailable) Error() string {
	return "scraper is shutting down"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound    *ErrListingNotFound
		validation  *ErrValidation
		unavailable *ErrScrapeUnavailable
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
