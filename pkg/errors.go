package pkg

import "github.com/pkg/errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrDuplicateEvent = errors.New("duplicate event")
	ErrAlreadyPaid    = errors.New("already paid")
)
