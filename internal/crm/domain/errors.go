package domain

import "errors"

var (
	ErrInvalidRecord = errors.New("invalid_record")
	ErrNotFound      = errors.New("not_found")
)
