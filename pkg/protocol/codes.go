package protocol

import (
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Code is the stable error identifier carried by error and send_result events.
type Code string

const (
	CodeValidation   Code = "validation"
	CodeAccessDenied Code = "access_denied"
	CodeNotFound     Code = "not_found"
	CodePersistence  Code = "persistence"
	CodeTransport    Code = "transport"
	CodeUnauthorized Code = "unauthorized"
	CodeBadRequest   Code = "bad_request"
	CodeInternal     Code = "internal"
)

var codeErrs = map[Code]error{
	CodeValidation:   domain.ErrValidation,
	CodeAccessDenied: domain.ErrAccessDenied,
	CodeNotFound:     domain.ErrNotFound,
	CodePersistence:  domain.ErrPersistence,
	CodeTransport:    domain.ErrTransport,
	CodeUnauthorized: domain.ErrUnauthorized,
}

func CodeOf(err error) Code {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation
	case errors.Is(err, domain.ErrAccessDenied):
		return CodeAccessDenied
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrPersistence):
		return CodePersistence
	case errors.Is(err, domain.ErrTransport):
		return CodeTransport
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrUnknownType):
		return CodeBadRequest
	}
	return CodeInternal
}

// NewError builds the wire error for err. Internal failures do not leak their text.
func NewError(err error) *Error {
	code := CodeOf(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return &Error{Code: code, Message: msg}
}

// Unwrap lets receivers classify a remote error with errors.Is against the domain sentinels.
func (e *Error) Unwrap() error {
	return codeErrs[e.Code]
}
