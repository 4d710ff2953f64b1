package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/sitecms/internal/content"
	"github.com/hyperengineering/sitecms/internal/store"
	"github.com/hyperengineering/sitecms/internal/validation"
)

// Stable message keys carried by every problem response. Clients switch on
// these, never on detail text.
const (
	KeyUnauthenticated     = "unauthenticated"
	KeyInvalidCredentials  = "invalid_credentials"
	KeyInvalidJSON         = "invalid_json"
	KeyInvalidSection      = "invalid_section"
	KeyInvalidIntent       = "invalid_intent"
	KeyInvalidContent      = "invalid_content"
	KeyInvalidPrecondition = "invalid_precondition"
	KeyInvalidMessage      = "invalid_message"
	KeyForbiddenOrigin     = "forbidden_origin"
	KeyNotFound            = "not_found"
	KeyConflict            = "conflict"
	KeyStorageUnavailable  = "storage_unavailable"
	KeyInternal            = "internal_error"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Key      string `json:"key"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized: {
		typeURI: "https://sitecms.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://sitecms.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://sitecms.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://sitecms.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://sitecms.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://sitecms.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
	http.StatusConflict: {
		typeURI: "https://sitecms.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusForbidden: {
		typeURI: "https://sitecms.dev/errors/forbidden",
		title:   "Forbidden",
	},
	http.StatusRequestEntityTooLarge: {
		typeURI: "https://sitecms.dev/errors/too-large",
		title:   "Request Entity Too Large",
	},
}

func newProblem(r *http.Request, status int, key, detail string) Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt.typeURI = "https://sitecms.dev/errors/unknown"
		pt.title = http.StatusText(status)
	}
	return Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Key:      key,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, key, detail string) {
	writeProblemBody(w, status, newProblem(r, status, key, detail))
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	p := ProblemWithErrors{
		Problem: newProblem(r, http.StatusUnprocessableEntity, KeyInvalidContent, detail),
		Errors:  errs,
	}
	writeProblemBody(w, http.StatusUnprocessableEntity, p)
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapStoreError converts domain errors to Problem Details responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, KeyNotFound, "Site config has not been seeded")
	case errors.Is(err, store.ErrConflict):
		WriteProblem(w, r, http.StatusConflict, KeyConflict, "Site config was modified concurrently")
	case errors.Is(err, content.ErrInvalidSection):
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidSection, "Unknown section")
	case errors.Is(err, content.ErrInvalidIntent):
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidIntent, "Unknown intent")
	case errors.Is(err, content.ErrInvalidValue):
		WriteProblem(w, r, http.StatusBadRequest, KeyInvalidJSON, "Request body must be valid JSON")
	case errors.Is(err, content.ErrInvalidDocument):
		WriteProblem(w, r, http.StatusUnprocessableEntity, KeyInvalidContent, "Site config must be a JSON object")
	default:
		// Never expose internal error details to client
		slog.Error("storage failure", "error", err, "path", r.URL.Path)
		WriteProblem(w, r, http.StatusInternalServerError, KeyStorageUnavailable, "Storage unavailable")
	}
}
