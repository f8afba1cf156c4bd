package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/uaa/internal/core/domain"
)

func setupTestIndex(t *testing.T) (*TokenIndex, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewTokenIndex(client), mr
}

func testPair(now time.Time) domain.TokenPair {
	return domain.TokenPair{
		Access: domain.Token{
			UserID: "u-1", Raw: "access-raw", Kind: domain.TokenKindAccess,
			IssuedAt: now, ExpiresAt: now.Add(5 * time.Minute),
		},
		Refresh: domain.Token{
			UserID: "u-1", Raw: "refresh-raw", Kind: domain.TokenKindRefresh,
			IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		},
	}
}

func TestTokenIndex_SaveAndExists(t *testing.T) {
	idx, mr := setupTestIndex(t)
	ctx := context.Background()
	now := time.Now()
	idx.now = func() time.Time { return now }
	pair := testPair(now)

	require.NoError(t, idx.Save(ctx, pair))

	for _, tok := range pair.Tokens() {
		ok, err := idx.Exists(ctx, tok.UserID, tok.Raw)
		require.NoError(t, err)
		assert.True(t, ok, "expected %s token indexed", tok.Kind)
	}

	assert.Equal(t, 5*time.Minute, mr.TTL(Key("u-1", "access-raw")))
	assert.Equal(t, time.Hour, mr.TTL(Key("u-1", "refresh-raw")))

	val, err := mr.Get(Key("u-1", "refresh-raw"))
	require.NoError(t, err)
	assert.Equal(t, "refresh", val)
}

func TestTokenIndex_EntriesExpireWithToken(t *testing.T) {
	idx, mr := setupTestIndex(t)
	ctx := context.Background()
	now := time.Now()
	idx.now = func() time.Time { return now }
	pair := testPair(now)

	require.NoError(t, idx.Save(ctx, pair))
	mr.FastForward(5 * time.Minute)

	ok, err := idx.Exists(ctx, "u-1", "access-raw")
	require.NoError(t, err)
	assert.False(t, ok, "access entry must not outlive the token")

	ok, err = idx.Exists(ctx, "u-1", "refresh-raw")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTokenIndex_SaveSkipsExpiredTokens(t *testing.T) {
	idx, mr := setupTestIndex(t)
	now := time.Now()
	idx.now = func() time.Time { return now.Add(2 * time.Hour) }

	require.NoError(t, idx.Save(context.Background(), testPair(now)))
	assert.Empty(t, mr.Keys())
}

func TestTokenIndex_DeleteIsIdempotent(t *testing.T) {
	idx, mr := setupTestIndex(t)
	ctx := context.Background()
	now := time.Now()
	idx.now = func() time.Time { return now }
	pair := testPair(now)

	require.NoError(t, idx.Save(ctx, pair))
	require.NoError(t, idx.Delete(ctx, pair))
	require.NoError(t, idx.Delete(ctx, pair))

	assert.Empty(t, mr.Keys())
}

func TestTokenIndex_ExistsIsScopedToUser(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	now := time.Now()
	idx.now = func() time.Time { return now }

	require.NoError(t, idx.Save(ctx, testPair(now)))

	ok, err := idx.Exists(ctx, "u-2", "access-raw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenIndex_FailuresWrapTokenStoreError(t *testing.T) {
	idx, mr := setupTestIndex(t)
	ctx := context.Background()
	pair := testPair(time.Now())
	mr.SetError("LOADING redis is loading the dataset")

	_, err := idx.Exists(ctx, "u-1", "access-raw")
	assert.ErrorIs(t, err, domain.ErrTokenStore)
	assert.ErrorIs(t, idx.Save(ctx, pair), domain.ErrTokenStore)
	assert.ErrorIs(t, idx.Delete(ctx, pair), domain.ErrTokenStore)
}

func TestKey_HashesRawToken(t *testing.T) {
	k := Key("u-1", "secret-token")
	assert.Contains(t, k, "uaa:token:u-1:")
	assert.NotContains(t, k, "secret-token")
	assert.Len(t, k, len("uaa:token:u-1:")+64)
}
