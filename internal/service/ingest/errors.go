package ingest

import "errors"

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrMissingClient      = errors.New("client id is required")
	ErrMissingEmailColumn = errors.New("email column mapping is required")
	ErrEmptyFile          = errors.New("file is empty")
)
