package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/sitecms/internal/types"
)

// sectionContextKey is the context key for the resolved section name.
type sectionContextKey struct{}

// intentContextKey is the context key for the resolved intent key.
type intentContextKey struct{}

var (
	// ErrNoSectionInContext indicates no section was resolved for the request.
	ErrNoSectionInContext = errors.New("no section in context")
	// ErrNoIntentInContext indicates no intent was resolved for the request.
	ErrNoIntentInContext = errors.New("no intent in context")
)

// WithSection returns a new context with the section name attached.
func WithSection(ctx context.Context, name types.SectionName) context.Context {
	return context.WithValue(ctx, sectionContextKey{}, name)
}

// SectionFromContext extracts the section name from the context.
func SectionFromContext(ctx context.Context) (types.SectionName, error) {
	name, ok := ctx.Value(sectionContextKey{}).(types.SectionName)
	if !ok || name == "" {
		return "", ErrNoSectionInContext
	}
	return name, nil
}

// MustSectionFromContext extracts the section name or panics.
// Use only when SectionMiddleware guarantees its presence.
func MustSectionFromContext(ctx context.Context) types.SectionName {
	name, err := SectionFromContext(ctx)
	if err != nil {
		panic("section not in context: middleware misconfiguration")
	}
	return name
}

// WithIntent returns a new context with the intent key attached.
func WithIntent(ctx context.Context, key types.IntentKey) context.Context {
	return context.WithValue(ctx, intentContextKey{}, key)
}

// IntentFromContext extracts the intent key from the context.
func IntentFromContext(ctx context.Context) (types.IntentKey, error) {
	key, ok := ctx.Value(intentContextKey{}).(types.IntentKey)
	if !ok || key == "" {
		return "", ErrNoIntentInContext
	}
	return key, nil
}

// MustIntentFromContext extracts the intent key or panics.
func MustIntentFromContext(ctx context.Context) types.IntentKey {
	key, err := IntentFromContext(ctx)
	if err != nil {
		panic("intent not in context: middleware misconfiguration")
	}
	return key
}

// SectionMiddleware resolves the {section} URL parameter against the section
// whitelist. Unknown names get 400 before any handler runs.
func SectionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := types.SectionName(chi.URLParam(r, "section"))
		if !name.IsValid() {
			WriteProblem(w, r, http.StatusBadRequest, KeyInvalidSection, "Unknown section")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSection(r.Context(), name)))
	})
}

// IntentMiddleware resolves the {intent} URL parameter against the intent
// whitelist. Unknown keys get 400; there is no default-intent fallback here.
func IntentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := types.IntentKey(chi.URLParam(r, "intent"))
		if !key.IsValid() {
			WriteProblem(w, r, http.StatusBadRequest, KeyInvalidIntent, "Unknown intent")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIntent(r.Context(), key)))
	})
}
