package domain

import "time"

// Authentication is a session owning one access and one refresh token.
// It is either a PendingAuthentication (not stored yet) or a
// StoredAuthentication (has an id); no other implementations exist.
type Authentication interface {
	Owner() string
	Pair() TokenPair
	sealed()
}

// PendingAuthentication is a freshly issued pair that has no row yet.
type PendingAuthentication struct {
	UserID string
	Tokens TokenPair
}

func (a PendingAuthentication) Owner() string   { return a.UserID }
func (a PendingAuthentication) Pair() TokenPair { return a.Tokens }
func (PendingAuthentication) sealed()           {}

// StoredAuthentication is a persisted session.
type StoredAuthentication struct {
	ID        string
	UserID    string
	Tokens    TokenPair
	CreatedAt time.Time
}

func (a StoredAuthentication) Owner() string   { return a.UserID }
func (a StoredAuthentication) Pair() TokenPair { return a.Tokens }
func (StoredAuthentication) sealed()           {}

// Pairs extracts the token pairs of the given sessions.
func Pairs(auths []StoredAuthentication) []TokenPair {
	out := make([]TokenPair, 0, len(auths))
	for _, a := range auths {
		out = append(out, a.Tokens)
	}
	return out
}

// SessionIDs extracts the ids of the given sessions.
func SessionIDs(auths []StoredAuthentication) []string {
	out := make([]string, 0, len(auths))
	for _, a := range auths {
		out = append(out, a.ID)
	}
	return out
}

// Incident describes a compensation failure that needs an operator.
type Incident struct {
	ID         string
	Kind       string
	UserID     string
	SessionIDs []string
	Cause      string
	RestoreErr string
	OccurredAt time.Time
}

const IncidentCompensationFailed = "compensation_failed"
