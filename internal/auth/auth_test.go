package auth

import (
	"context"
	"testing"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	bob   = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

func TestRequire(t *testing.T) {
	ctx := WithSigners(context.Background(), alice)
	assert.NoError(t, Require(ctx, alice))
	assert.NoError(t, Require(ctx, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"))
	assert.ErrorIs(t, Require(ctx, bob), types.ErrUnauthorized)

	ctx = WithSigners(ctx, bob)
	assert.NoError(t, Require(ctx, bob))
	assert.Len(t, Signers(ctx), 2)
	assert.ErrorIs(t, Require(context.Background(), alice), types.ErrUnauthorized)
}

func TestTokenRoundTrip(t *testing.T) {
	raw, err := IssueToken("s3cret", alice, time.Minute)
	require.NoError(t, err)

	addr, err := ParseToken("s3cret", raw)
	require.NoError(t, err)
	assert.Equal(t, alice, addr)

	_, err = ParseToken("other", raw)
	assert.Error(t, err)
	_, err = ParseToken("", raw)
	assert.Error(t, err)

	expired, err := IssueToken("s3cret", alice, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.Error(t, err)
}
