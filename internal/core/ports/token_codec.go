package ports

import (
	"time"

	"github.com/taskboard/uaa/internal/core/domain"
)

// TokenCodec signs and verifies tokens. Decode fails with
// domain.ErrInvalidToken for any malformed, badly signed or expired input.
type TokenCodec interface {
	Issue(subject domain.Subject, kind domain.TokenKind, ttl time.Duration) (domain.Token, error)
	Decode(raw string) (domain.DecodedToken, error)
}
