package antiabuse

import (
	"context"
	"testing"

	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caller = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func newTestLimiter(t *testing.T) *Limiter {
	t.Setenv("DB_DIR", t.TempDir())
	config.InitConfig()
	dbm := db.NewDatabaseManager()
	t.Cleanup(dbm.Close)
	return NewLimiter(dbm)
}

func TestDefaults(t *testing.T) {
	l := newTestLimiter(t)
	cfg, err := l.GetConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{WindowSize: DefaultWindowSize, MaxOperations: DefaultMaxOperations, CooldownPeriod: DefaultCooldownPeriod}, cfg)
}

func TestWindowExhausted(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	require.NoError(t, l.SetConfig(nil, Config{WindowSize: 3600, MaxOperations: 3, CooldownPeriod: 0}))

	now := uint64(1_000_000)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, nil, caller, now+uint64(i)))
	}
	assert.ErrorIs(t, l.Check(ctx, nil, caller, now+3), types.ErrRateLimited)

	// a new window resets the count
	require.NoError(t, l.Check(ctx, nil, caller, now+3600))
	st, err := l.GetState(nil, caller, now+3600)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, uint32(1), st.OperationCount)
	assert.Equal(t, now+3600, st.WindowStartTimestamp)
}

func TestCooldown(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	now := uint64(5_000)
	// fresh state skips the cooldown check
	require.NoError(t, l.Check(ctx, nil, caller, now))
	assert.ErrorIs(t, l.Check(ctx, nil, caller, now+59), types.ErrRateLimited)
	require.NoError(t, l.Check(ctx, nil, caller, now+60))
}

func TestWhitelistBypass(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	require.NoError(t, l.SeedWhitelist([]string{caller}))

	for i := 0; i < 50; i++ {
		require.NoError(t, l.Check(ctx, nil, caller, 100))
	}
	st, err := l.GetState(nil, caller, 100)
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, l.SetWhitelist(nil, caller, false))
	ok, err := l.IsWhitelisted(nil, caller)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiryExtendedAndPruned(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, nil, caller, 1_000))
	st, err := l.GetState(nil, caller, 1_000)
	require.NoError(t, err)
	assert.Equal(t, 1_000+l.ttl, st.ExpiresAt)

	require.NoError(t, l.Check(ctx, nil, caller, 2_000))
	st, err = l.GetState(nil, caller, 2_000)
	require.NoError(t, err)
	assert.Equal(t, 2_000+l.ttl, st.ExpiresAt)

	// expired state is treated as absent
	st, err = l.GetState(nil, caller, 2_000+l.ttl)
	require.NoError(t, err)
	assert.Nil(t, st)

	n, err := l.Prune(ctx, 2_000+l.ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWindowLongerThanStateTTL(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	window := 2 * l.ttl
	require.NoError(t, l.SetConfig(nil, Config{WindowSize: window, MaxOperations: 1, CooldownPeriod: 0}))

	now := uint64(1_000_000)
	require.NoError(t, l.Check(ctx, nil, caller, now))
	assert.ErrorIs(t, l.Check(ctx, nil, caller, now+10), types.ErrRateLimited)

	// past the ttl but still inside the window
	assert.ErrorIs(t, l.Check(ctx, nil, caller, now+l.ttl+1), types.ErrRateLimited)
	st, err := l.GetState(nil, caller, now+l.ttl+1)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, now+window, st.ExpiresAt)

	require.NoError(t, l.Check(ctx, nil, caller, now+window))
}

func TestInvalidConfig(t *testing.T) {
	l := newTestLimiter(t)
	assert.Error(t, l.SetConfig(nil, Config{WindowSize: 0, MaxOperations: 1}))
	assert.Error(t, l.SetConfig(nil, Config{WindowSize: 10, MaxOperations: 0}))
}
