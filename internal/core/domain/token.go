package domain

import "time"

// TokenKind discriminates what a token may be used for.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// typeHeaders maps each kind to the "typ" header written into the token.
var typeHeaders = map[TokenKind]string{
	TokenKindAccess:  "at",
	TokenKindRefresh: "rt",
}

// TypeHeader returns the compact "typ" header value for the kind.
func (k TokenKind) TypeHeader() string {
	return typeHeaders[k]
}

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	_, ok := typeHeaders[k]
	return ok
}

// TokenKindFromHeader resolves a "typ" header back to its kind.
func TokenKindFromHeader(typ string) (TokenKind, bool) {
	for k, h := range typeHeaders {
		if h == typ {
			return k, true
		}
	}
	return "", false
}

// Subject is what gets embedded in a freshly issued token.
type Subject struct {
	UserID   string
	Username string
	Role     Role
}

// Token is one signed credential of a pair.
type Token struct {
	UserID    string
	Raw       string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining returns how long the token stays valid after now; never negative.
func (t Token) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// TokenPair is the unit handed out on login and revoked together.
type TokenPair struct {
	Access  Token
	Refresh Token
}

// Tokens returns both tokens, access first.
func (p TokenPair) Tokens() []Token {
	return []Token{p.Access, p.Refresh}
}

// DecodedToken holds verified claims. Only the token codec builds one, and
// only after signature and expiry checks passed.
type DecodedToken struct {
	ID        string
	Subject   string
	UserID    string
	Role      Role
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal is the outcome of a successful verification. RawToken is kept so
// it can be forwarded on calls to other services.
type Principal struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Kind     TokenKind `json:"kind"`
	RawToken string    `json:"-"`
}

// Authorities lists the granted authorities.
func (p Principal) Authorities() []string {
	return []string{p.Role.Authority()}
}
