package escrow

import (
	"context"
	"testing"

	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bountyIDs(rows []db.Escrow) []uint64 {
	out := make([]uint64, len(rows))
	for i, r := range rows {
		out[i] = r.BountyID
	}
	return out
}

func TestGetBountiesFiltersAndPages(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	ctx := context.Background()

	// registry order is lock order, not id order
	f.lock(t, alice, 50, 100)
	f.lock(t, bob, 10, 200)
	f.lock(t, alice, 30, 300)
	f.lock(t, bob, 20, 400)
	f.lock(t, alice, 40, 500)
	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 30, carol, nil))

	all, err := f.engine.GetBounties(ctx, types.BountyFilter{}, types.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{50, 10, 30, 20, 40}, bountyIDs(all))

	dep := alice
	rows, err := f.engine.GetBounties(ctx, types.BountyFilter{Depositor: &dep}, types.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{50, 30, 40}, bountyIDs(rows))

	locked := types.StatusLocked
	rows, err = f.engine.GetBounties(ctx, types.BountyFilter{Status: &locked, Depositor: &dep}, types.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{50, 40}, bountyIDs(rows))

	lo, hi := int64(200), int64(400)
	rows, err = f.engine.GetBounties(ctx, types.BountyFilter{MinAmount: &lo, MaxAmount: &hi}, types.Pagination{StartIndex: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint64{30}, bountyIDs(rows))

	deadline := f.clock.Unix() + 1000
	rows, err = f.engine.GetBounties(ctx, types.BountyFilter{StartDeadline: &deadline, EndDeadline: &deadline}, types.Pagination{StartIndex: 4})
	require.NoError(t, err)
	assert.Equal(t, []uint64{40}, bountyIDs(rows))

	rows, err = f.engine.GetBounties(ctx, types.BountyFilter{}, types.Pagination{StartIndex: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetStats(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	ctx := context.Background()

	f.lock(t, alice, 1, 1_000)
	f.lock(t, alice, 2, 2_000)
	f.lock(t, bob, 3, 3_000)
	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 1, carol, nil))
	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 2, carol, amount(500)))
	f.clock.Advance(1000)
	require.NoError(t, f.engine.Refund(ctx, 3, nil, nil, types.RefundFull))

	stats, err := f.engine.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalBounties)
	assert.Equal(t, "1500", stats.TotalLockedAmount)
	assert.Equal(t, "1500", stats.TotalReleasedAmount)
	assert.Equal(t, "3000", stats.TotalRefundedAmount)
	assert.Equal(t, int64(1), stats.CountByStatus[types.StatusReleased])
	assert.Equal(t, int64(1), stats.CountByStatus[types.StatusPartiallyReleased])
	assert.Equal(t, int64(1), stats.CountByStatus[types.StatusRefunded])
	assert.Equal(t, int64(0), stats.CountByStatus[types.StatusLocked])

	bal, err := f.engine.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500), bal)
}

func TestIndexSurvivesRestart(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	f.lock(t, alice, 5, 100)
	f.lock(t, bob, 6, 100)
	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 5, carol, nil))

	restarted := NewEngine(f.dbm, f.state, f.ledger, f.limiter, f.engine.monitor, WithClock(f.clock.Now))
	released := types.StatusReleased
	rows, err := restarted.GetBounties(context.Background(), types.BountyFilter{Status: &released}, types.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, bountyIDs(rows))
}
