package auth

import (
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

var (
	ErrMissingToken   = fmt.Errorf("%w: missing access token", domain.ErrUnauthorized)
	ErrInvalidToken   = fmt.Errorf("%w: invalid access token", domain.ErrUnauthorized)
	ErrInvalidSubject = fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
)
