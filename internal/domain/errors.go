package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failed")
	ErrTransport    = errors.New("transport failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrChannelNotFound = fmt.Errorf("channel %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrNotMember       = fmt.Errorf("membership %w", ErrNotFound)
	ErrEmptyContent    = fmt.Errorf("%w: message content is required", ErrValidation)
	ErrContentTooLong  = fmt.Errorf("%w: message content is too long", ErrValidation)
)
