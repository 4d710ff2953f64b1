package store

import "errors"

var (
	ErrNotFound = errors.New("site config not found")
	ErrConflict = errors.New("site config version conflict")
)
