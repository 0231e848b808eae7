package escrow

import (
	"context"
	"testing"

	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchLockFunds(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	deadline := f.clock.Unix() + 1000

	events := make(chan interface{}, 4)
	f.state.EventBus.Subscribe(state.BatchFundsLocked, events)

	n, err := f.engine.BatchLockFunds(as(alice, bob), []types.LockFundsItem{
		{BountyID: 10, Depositor: alice, Amount: 100, Deadline: deadline},
		{BountyID: 11, Depositor: bob, Amount: 200, Deadline: deadline},
		{BountyID: 12, Depositor: alice, Amount: 300, Deadline: deadline},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
	assert.Equal(t, int64(600), f.balance(t, f.engine.Custody()))

	require.Len(t, events, 1)
	ev := (<-events).(state.Event)
	assert.Equal(t, state.BatchData{Count: 3, TotalAmount: 600}, ev.Data)
}

func TestBatchLockIsAtomic(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	deadline := f.clock.Unix() + 1000
	f.lock(t, alice, 2, 50)

	_, err := f.engine.BatchLockFunds(as(alice), []types.LockFundsItem{
		{BountyID: 1, Depositor: alice, Amount: 100, Deadline: deadline},
		{BountyID: 2, Depositor: alice, Amount: 100, Deadline: deadline},
	})
	assert.ErrorIs(t, err, types.ErrBountyExists)
	_, err = f.engine.GetEscrowInfo(context.Background(), 1)
	assert.ErrorIs(t, err, types.ErrBountyNotFound)
	assert.Equal(t, int64(1_000_000-50), f.balance(t, alice))

	_, err = f.engine.BatchLockFunds(as(alice), []types.LockFundsItem{
		{BountyID: 3, Depositor: alice, Amount: 100, Deadline: deadline},
		{BountyID: 3, Depositor: alice, Amount: 100, Deadline: deadline},
	})
	assert.ErrorIs(t, err, types.ErrDuplicateBountyId)

	_, err = f.engine.BatchLockFunds(as(alice), []types.LockFundsItem{
		{BountyID: 4, Depositor: alice, Amount: 100, Deadline: deadline},
		{BountyID: 5, Depositor: bob, Amount: 100, Deadline: deadline},
	})
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = f.engine.BatchLockFunds(as(alice), []types.LockFundsItem{
		{BountyID: 6, Depositor: alice, Amount: 100, Deadline: deadline},
		{BountyID: 7, Depositor: alice, Amount: 0, Deadline: deadline},
	})
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = f.engine.BatchLockFunds(as(alice), []types.LockFundsItem{
		{BountyID: 8, Depositor: alice, Amount: 100, Deadline: f.clock.Unix()},
	})
	assert.ErrorIs(t, err, types.ErrInvalidDeadline)

	assert.Equal(t, 1, f.engine.index.Len())
}

func TestBatchSizeBounds(t *testing.T) {
	f := newFixture(t, fixtureOption{})

	_, err := f.engine.BatchLockFunds(as(alice), nil)
	assert.ErrorIs(t, err, types.ErrInvalidBatchSize)
	_, err = f.engine.BatchReleaseFunds(asAdmin(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidBatchSize)

	items := make([]types.LockFundsItem, MaxBatchSize+1)
	for i := range items {
		items[i] = types.LockFundsItem{BountyID: uint64(i + 1), Depositor: alice, Amount: 1, Deadline: f.clock.Unix() + 10}
	}
	_, err = f.engine.BatchLockFunds(as(alice), items)
	assert.ErrorIs(t, err, types.ErrInvalidBatchSize)

	n, err := f.engine.BatchLockFunds(as(alice), items[:MaxBatchSize])
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxBatchSize), n)
}

func TestBatchReleaseFunds(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	f.lock(t, alice, 1, 1_000)
	f.lock(t, alice, 2, 2_000)
	f.lock(t, alice, 3, 3_000)

	// a missing bounty aborts the whole batch
	_, err := f.engine.BatchReleaseFunds(asAdmin(), []types.ReleaseFundsItem{
		{BountyID: 1, Recipient: bob},
		{BountyID: 42, Recipient: bob},
	})
	assert.ErrorIs(t, err, types.ErrBountyNotFound)
	assert.Equal(t, int64(1_000), f.escrow(t, 1).RemainingAmount)

	_, err = f.engine.BatchReleaseFunds(asAdmin(), []types.ReleaseFundsItem{
		{BountyID: 1, Recipient: bob},
		{BountyID: 1, Recipient: carol},
	})
	assert.ErrorIs(t, err, types.ErrDuplicateBountyId)

	_, err = f.engine.BatchReleaseFunds(as(alice), []types.ReleaseFundsItem{{BountyID: 1, Recipient: bob}})
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	n, err := f.engine.BatchReleaseFunds(asAdmin(), []types.ReleaseFundsItem{
		{BountyID: 1, Recipient: bob},
		{BountyID: 2, Recipient: carol, Amount: 500},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)
	assert.Equal(t, string(types.StatusReleased), f.escrow(t, 1).Status)
	assert.Equal(t, string(types.StatusPartiallyReleased), f.escrow(t, 2).Status)
	assert.Equal(t, int64(1_500), f.escrow(t, 2).RemainingAmount)
	assert.Equal(t, int64(500), f.balance(t, carol))
	assert.Equal(t, int64(4_500), f.balance(t, f.engine.Custody()))

	_, err = f.engine.BatchReleaseFunds(asAdmin(), []types.ReleaseFundsItem{
		{BountyID: 3, Recipient: bob},
		{BountyID: 1, Recipient: bob},
	})
	assert.ErrorIs(t, err, types.ErrFundsNotLocked)
	assert.Equal(t, int64(3_000), f.escrow(t, 3).RemainingAmount)
}

func TestZippedBatchMismatch(t *testing.T) {
	_, err := types.ZipReleaseItems([]uint64{1, 2}, []string{bob}, nil)
	assert.ErrorIs(t, err, types.ErrBatchSizeMismatch)
}
