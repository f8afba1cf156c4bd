package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskboard/uaa/internal/core/domain"
)

const keyPrefix = "uaa:token"

// TokenIndex is the Redis-backed fast-access index of active tokens.
// Key format: uaa:token:<user_id>:<sha256(raw token)>, value is the token kind.
// Every key carries a TTL equal to the remaining lifetime of its token.
type TokenIndex struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewTokenIndex creates a TokenIndex wrapping the given Redis client.
func NewTokenIndex(client redis.UniversalClient) *TokenIndex {
	return &TokenIndex{client: client, now: time.Now}
}

// Exists reports whether raw is currently indexed for userID.
func (i *TokenIndex) Exists(ctx context.Context, userID, raw string) (bool, error) {
	n, err := i.client.Exists(ctx, Key(userID, raw)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists: %w", domain.ErrTokenStore, err)
	}
	return n > 0, nil
}

// Save indexes both tokens of pair in one MULTI/EXEC. Tokens that have already
// expired are skipped.
func (i *TokenIndex) Save(ctx context.Context, pair domain.TokenPair) error {
	now := i.now()
	live := make([]domain.Token, 0, 2)
	for _, t := range pair.Tokens() {
		if t.Remaining(now) > 0 {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil
	}

	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range live {
			pipe.Set(ctx, Key(t.UserID, t.Raw), string(t.Kind), t.Remaining(now))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save pair: %w", domain.ErrTokenStore, err)
	}
	return nil
}

// Delete removes both tokens of pair. Missing keys are not an error.
func (i *TokenIndex) Delete(ctx context.Context, pair domain.TokenPair) error {
	if err := i.client.Del(ctx, Key(pair.Access.UserID, pair.Access.Raw), Key(pair.Refresh.UserID, pair.Refresh.Raw)).Err(); err != nil {
		return fmt.Errorf("%w: delete pair: %w", domain.ErrTokenStore, err)
	}
	return nil
}

// Key returns the index key for a token. The raw value is hashed so keys stay
// short and the token itself never shows up in Redis tooling.
func Key(userID, raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s:%s:%s", keyPrefix, userID, hex.EncodeToString(sum[:]))
}
