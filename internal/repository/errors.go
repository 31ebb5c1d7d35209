package repository

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForeignKey  = errors.New("referenced row missing or still referenced")
	ErrUnavailable = errors.New("storage unavailable")
)
