package matchdata

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrUnavailable means the upstream could not be reached or kept failing
	// after all attempts. The caller may try again later.
	ErrUnavailable = errors.New("match data unavailable")
	// ErrUnauthorized means the API token was rejected. Retrying will not help.
	ErrUnauthorized = errors.New("match data unauthorized")
)

// StatusError is a non-2xx upstream reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

func retryable(err error) bool {
	return !errors.Is(err, ErrUnauthorized)
}
