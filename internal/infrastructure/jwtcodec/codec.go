// Package jwtcodec signs and verifies the HS256 access and refresh tokens.
//
// Wire format: compact JWS with a "typ" header of "at" (access) or "rt"
// (refresh) and the claims sub, role, token_use, uid, jti, iat and exp.
package jwtcodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/taskboard/uaa/internal/core/domain"
)

// MinSecretLength is the shortest HMAC secret accepted.
const MinSecretLength = 32

var ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)

type claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	TokenUse string `json:"token_use"`
	UserID   string `json:"uid"`
}

// Codec implements ports.TokenCodec.
type Codec struct {
	key    []byte
	now    func() time.Time
	parser *jwt.Parser
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for iat/exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New returns a Codec keyed by secret.
func New(secret string, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	c := &Codec{key: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Issue signs a new token of the given kind for subject, valid for ttl.
func (c *Codec) Issue(subject domain.Subject, kind domain.TokenKind, ttl time.Duration) (domain.Token, error) {
	if !kind.Valid() {
		return domain.Token{}, fmt.Errorf("issue token: unknown kind %q", kind)
	}
	if ttl < time.Second {
		return domain.Token{}, fmt.Errorf("issue token: ttl %s below one second", ttl)
	}

	// NumericDate carries whole seconds only.
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role:     string(subject.Role),
		TokenUse: string(kind),
		UserID:   subject.UserID,
	})
	t.Header["typ"] = kind.TypeHeader()

	raw, err := t.SignedString(c.key)
	if err != nil {
		return domain.Token{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	return domain.Token{
		UserID:    subject.UserID,
		Raw:       raw,
		Kind:      kind,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Decode verifies raw and returns its claims. Every failure wraps
// domain.ErrInvalidToken.
func (c *Codec) Decode(raw string) (domain.DecodedToken, error) {
	var cl claims
	tok, err := c.parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return domain.DecodedToken{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	if !tok.Valid {
		return domain.DecodedToken{}, domain.ErrInvalidToken
	}

	typ, _ := tok.Header["typ"].(string)
	kind, ok := domain.TokenKindFromHeader(typ)
	if !ok {
		return domain.DecodedToken{}, fmt.Errorf("%w: unknown type header %q", domain.ErrInvalidToken, typ)
	}
	if domain.TokenKind(cl.TokenUse) != kind {
		return domain.DecodedToken{}, fmt.Errorf("%w: token_use %q does not match type header", domain.ErrInvalidToken, cl.TokenUse)
	}

	role := domain.Role(cl.Role)
	if cl.Subject == "" || cl.UserID == "" || cl.IssuedAt == nil || !role.Valid() {
		return domain.DecodedToken{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, errMissingClaims)
	}

	return domain.DecodedToken{
		ID:        cl.ID,
		Subject:   cl.Subject,
		UserID:    cl.UserID,
		Role:      role,
		Kind:      kind,
		IssuedAt:  cl.IssuedAt.Time.UTC(),
		ExpiresAt: cl.ExpiresAt.Time.UTC(),
	}, nil
}

var errMissingClaims = errors.New("missing required claim")
