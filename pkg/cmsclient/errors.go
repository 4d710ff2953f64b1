package cmsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNotFound is returned when the CMS has nothing at the requested path,
	// including when the site config has not been seeded yet.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost to a newer version.
	ErrConflict = errors.New("version conflict")
	// ErrUnauthenticated is returned when the session is missing or expired
	// and the client has no password to log in again.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalid is returned for rejected input (400 and 422 responses).
	ErrInvalid = errors.New("invalid request")
	// ErrForbidden is returned when the server refuses a preview message origin.
	ErrForbidden = errors.New("forbidden")
)

// FieldError is a single rejected field from a 422 response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a problem response returned by the CMS.
type APIError struct {
	Status int
	Key    string
	Detail string
	Fields []FieldError
}

func (e *APIError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cms: status %d", e.Status)
	}
	return fmt.Sprintf("cms: %s (%d): %s", e.Key, e.Status, e.Detail)
}

// Is matches APIError against the package sentinels by status.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	case ErrInvalid:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}

type problemBody struct {
	Key    string       `json:"key"`
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors"`
}

// decodeError builds an APIError from a non-2xx response.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(body) > 0 {
		var p problemBody
		if json.Unmarshal(body, &p) == nil {
			apiErr.Key = p.Key
			apiErr.Detail = p.Detail
			apiErr.Fields = p.Errors
		}
	}
	return apiErr
}
