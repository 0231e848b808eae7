package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/antiabuse"
	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/metrics"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/goatnetwork/goat-escrow/internal/token"
	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	admin = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	alice = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	bob   = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	carol = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
	tok   = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	genesis = int64(1_700_000_000)
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(seconds int64) { c.now = c.now.Add(time.Duration(seconds) * time.Second) }

func (c *testClock) Unix() uint64 { return uint64(c.now.Unix()) }

type fixture struct {
	engine  *Engine
	ledger  *token.Ledger
	limiter *antiabuse.Limiter
	state   *state.State
	dbm     *db.DatabaseManager
	clock   *testClock
}

type fixtureOption struct {
	noWhitelist bool
	noInit      bool
	transfer    func(*token.Ledger) ValueTransfer
}

func newFixture(t *testing.T, fo fixtureOption) *fixture {
	t.Helper()
	t.Setenv("DB_DIR", t.TempDir())
	config.InitConfig()

	dbm := db.NewDatabaseManager()
	t.Cleanup(dbm.Close)

	ledger := token.NewLedger(dbm)
	limiter := antiabuse.NewLimiter(dbm)
	if fo.noWhitelist {
		require.NoError(t, limiter.SeedWhitelist([]string{admin}))
	} else {
		require.NoError(t, limiter.SeedWhitelist([]string{admin, alice, bob, carol}))
	}
	var vt ValueTransfer = ledger
	if fo.transfer != nil {
		vt = fo.transfer(ledger)
	}

	clock := &testClock{now: time.Unix(genesis, 0)}
	st := state.InitializeState(dbm)
	engine := NewEngine(dbm, st, vt, limiter, metrics.NewMonitor(dbm), WithClock(clock.Now))

	ctx := context.Background()
	for _, holder := range []string{alice, bob} {
		require.NoError(t, ledger.Mint(ctx, nil, tok, holder, 1_000_000))
	}
	if !fo.noInit {
		require.NoError(t, engine.Initialize(asAdmin(), admin, tok))
	}
	return &fixture{engine: engine, ledger: ledger, limiter: limiter, state: st, dbm: dbm, clock: clock}
}

func asAdmin() context.Context {
	return auth.WithSigners(context.Background(), admin)
}

func as(signers ...string) context.Context {
	return auth.WithSigners(context.Background(), signers...)
}

func amount(v int64) *int64 { return &v }

func (f *fixture) balance(t *testing.T, holder string) int64 {
	t.Helper()
	bal, err := f.ledger.Balance(context.Background(), nil, tok, holder)
	require.NoError(t, err)
	return bal
}

func (f *fixture) escrow(t *testing.T, id uint64) db.Escrow {
	t.Helper()
	info, err := f.engine.GetEscrowInfo(context.Background(), id)
	require.NoError(t, err)
	return info.Escrow
}

func (f *fixture) lock(t *testing.T, depositor string, id uint64, amt int64) {
	t.Helper()
	require.NoError(t, f.engine.LockFunds(as(depositor), depositor, id, amt, f.clock.Unix()+1000))
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, fixtureOption{noInit: true})

	err := f.engine.LockFunds(as(alice), alice, 1, 100, f.clock.Unix()+10)
	assert.ErrorIs(t, err, types.ErrNotInitialized)

	_, err = f.engine.GetContractState(context.Background())
	assert.ErrorIs(t, err, types.ErrNotInitialized)

	assert.ErrorIs(t, f.engine.Initialize(as(alice), admin, tok), types.ErrUnauthorized)
	require.NoError(t, f.engine.Initialize(asAdmin(), admin, tok))
	assert.ErrorIs(t, f.engine.Initialize(asAdmin(), admin, tok), types.ErrAlreadyInitialized)

	cs, err := f.engine.GetContractState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, admin, cs.Admin)
	assert.Equal(t, tok, cs.Token)
	assert.Equal(t, f.engine.Custody(), cs.Custody)
	assert.False(t, cs.IsPaused)
	assert.Equal(t, uint32(db.CONTRACT_VERSION), cs.ContractVersion)
}

func TestLockAndReleaseInTwoSteps(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	ctx := context.Background()

	events := make(chan interface{}, 16)
	f.state.EventBus.Subscribe(state.FundsReleased, events)

	f.lock(t, alice, 7, 10_000)
	assert.Equal(t, int64(10_000), f.balance(t, f.engine.Custody()))

	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 7, bob, amount(4_000)))
	esc := f.escrow(t, 7)
	assert.Equal(t, int64(6_000), esc.RemainingAmount)
	assert.Equal(t, string(types.StatusPartiallyReleased), esc.Status)

	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 7, bob, amount(6_000)))
	esc = f.escrow(t, 7)
	assert.Equal(t, int64(0), esc.RemainingAmount)
	assert.Equal(t, string(types.StatusReleased), esc.Status)

	assert.ErrorIs(t, f.engine.ReleaseFunds(asAdmin(), 7, bob, amount(1)), types.ErrFundsNotLocked)

	assert.Equal(t, int64(1_010_000), f.balance(t, bob))
	assert.Equal(t, int64(0), f.balance(t, f.engine.Custody()))

	payouts, err := f.engine.GetPayoutHistory(ctx, 7)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	assert.Equal(t, int64(4_000), payouts[0].Amount)

	require.Len(t, events, 2)
	ev := (<-events).(state.Event)
	assert.Equal(t, "f_rel", ev.Name)
	assert.Equal(t, int64(6_000), ev.Data.(state.FundsReleasedData).RemainingAmount)
}

func TestReleaseFullByDefault(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	f.lock(t, alice, 1, 500)

	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 1, bob, nil))
	assert.Equal(t, string(types.StatusReleased), f.escrow(t, 1).Status)
	assert.Equal(t, int64(1_000_500), f.balance(t, bob))
}

func TestReleaseValidation(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	f.lock(t, alice, 1, 500)

	assert.ErrorIs(t, f.engine.ReleaseFunds(as(alice), 1, bob, nil), types.ErrUnauthorized)
	assert.ErrorIs(t, f.engine.ReleaseFunds(asAdmin(), 2, bob, nil), types.ErrBountyNotFound)
	assert.ErrorIs(t, f.engine.ReleaseFunds(asAdmin(), 1, bob, amount(0)), types.ErrInvalidAmount)
	assert.ErrorIs(t, f.engine.ReleaseFunds(asAdmin(), 1, bob, amount(501)), types.ErrInvalidAmount)
	assert.ErrorIs(t, f.engine.ReleaseFunds(asAdmin(), 1, "not-an-address", nil), types.ErrInvalidAddress)

	assert.Equal(t, int64(500), f.escrow(t, 1).RemainingAmount)
}

func TestFeesConserveValue(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	_, err := f.engine.UpdateFeeConfig(asAdmin(), types.FeeConfigUpdate{
		LockFeeRate:    amount(100),
		ReleaseFeeRate: amount(200),
		FeeRecipient:   func() *string { s := carol; return &s }(),
		FeeEnabled:     func() *bool { b := true; return &b }(),
	})
	require.NoError(t, err)

	f.lock(t, alice, 1, 10_000)
	esc := f.escrow(t, 1)
	assert.Equal(t, int64(9_900), esc.Amount)
	assert.Equal(t, int64(9_900), esc.RemainingAmount)
	assert.Equal(t, int64(100), f.balance(t, carol))
	assert.Equal(t, int64(9_900), f.balance(t, f.engine.Custody()))

	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 1, bob, nil))
	assert.Equal(t, int64(1_000_000+9_702), f.balance(t, bob))
	assert.Equal(t, int64(298), f.balance(t, carol))
	assert.Equal(t, int64(0), f.balance(t, f.engine.Custody()))

	// every unit alice paid ended with bob or the fee recipient
	spent := 1_000_000 - f.balance(t, alice)
	assert.Equal(t, spent, f.balance(t, bob)-1_000_000+f.balance(t, carol))

	payouts, err := f.engine.GetPayoutHistory(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, int64(198), payouts[0].Fee)

	_, err = f.engine.UpdateFeeConfig(asAdmin(), types.FeeConfigUpdate{LockFeeRate: amount(1_001)})
	assert.ErrorIs(t, err, types.ErrInvalidFeeRate)
}

func TestPauseAndEmergencyWithdraw(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	f.lock(t, alice, 1, 3_000)

	_, err := f.engine.EmergencyWithdraw(asAdmin(), carol)
	assert.ErrorIs(t, err, types.ErrNotPaused)

	require.NoError(t, f.engine.Pause(asAdmin(), "incident"))
	assert.True(t, f.state.IsPaused())
	assert.ErrorIs(t, f.engine.LockFunds(as(alice), alice, 2, 100, f.clock.Unix()+10), types.ErrContractPaused)
	assert.ErrorIs(t, f.engine.ReleaseFunds(asAdmin(), 1, bob, nil), types.ErrContractPaused)

	swept, err := f.engine.EmergencyWithdraw(asAdmin(), carol)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000), swept)
	assert.Equal(t, int64(3_000), f.balance(t, carol))

	// records are untouched, but custody can no longer cover them
	assert.Equal(t, int64(3_000), f.escrow(t, 1).RemainingAmount)
	require.NoError(t, f.engine.Unpause(asAdmin(), ""))
	assert.ErrorIs(t, f.engine.ReleaseFunds(asAdmin(), 1, bob, nil), types.ErrInsufficientFunds)
}

type reentrantTransfer struct {
	*token.Ledger
	engine *Engine
	inner  error
}

func (r *reentrantTransfer) Transfer(ctx context.Context, tx *gorm.DB, token, from, to string, amount int64, kind string) error {
	if r.engine != nil && kind == db.TRANSFER_KIND_RELEASE {
		r.inner = r.engine.LockFunds(as(alice), alice, 99, 1, r.engine.timestamp()+10)
		if r.inner != nil {
			return r.inner
		}
	}
	return r.Ledger.Transfer(ctx, tx, token, from, to, amount, kind)
}

func TestReentrantCallAborts(t *testing.T) {
	rt := &reentrantTransfer{}
	f := newFixture(t, fixtureOption{transfer: func(l *token.Ledger) ValueTransfer {
		rt.Ledger = l
		return rt
	}})
	f.lock(t, alice, 1, 1_000)
	rt.engine = f.engine

	err := f.engine.ReleaseFunds(asAdmin(), 1, bob, nil)
	assert.ErrorIs(t, err, types.ErrReentrancy)
	assert.ErrorIs(t, rt.inner, types.ErrReentrancy)

	// the outer operation rolled back completely
	esc := f.escrow(t, 1)
	assert.Equal(t, int64(1_000), esc.RemainingAmount)
	assert.Equal(t, string(types.StatusLocked), esc.Status)
	assert.Equal(t, int64(1_000), f.balance(t, f.engine.Custody()))
	_, err = f.engine.GetEscrowInfo(context.Background(), 99)
	assert.ErrorIs(t, err, types.ErrBountyNotFound)

	// and the guard was released
	rt.engine = nil
	require.NoError(t, f.engine.ReleaseFunds(asAdmin(), 1, bob, nil))
}

func TestRateLimitedDepositor(t *testing.T) {
	f := newFixture(t, fixtureOption{noWhitelist: true})
	require.NoError(t, f.engine.SetAntiAbuseConfig(asAdmin(), antiabuse.Config{WindowSize: 3600, MaxOperations: 2, CooldownPeriod: 0}))

	f.lock(t, alice, 1, 100)
	f.lock(t, alice, 2, 100)
	err := f.engine.LockFunds(as(alice), alice, 3, 100, f.clock.Unix()+1000)
	assert.ErrorIs(t, err, types.ErrRateLimited)
	assert.Equal(t, int64(1_000_000-200), f.balance(t, alice))

	// a failed operation does not consume budget of other callers
	f.lock(t, bob, 3, 100)

	f.clock.Advance(3600)
	f.lock(t, alice, 4, 100)

	require.NoError(t, f.engine.SetWhitelist(asAdmin(), alice, true))
	f.lock(t, alice, 5, 100)
	f.lock(t, alice, 6, 100)
}

func TestCooldownAppliesBetweenOperations(t *testing.T) {
	f := newFixture(t, fixtureOption{noWhitelist: true})

	f.lock(t, alice, 1, 100)
	err := f.engine.LockFunds(as(alice), alice, 2, 100, f.clock.Unix()+1000)
	assert.ErrorIs(t, err, types.ErrRateLimited)

	f.clock.Advance(antiabuse.DefaultCooldownPeriod)
	f.lock(t, alice, 2, 100)
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	f.lock(t, alice, 1, 100)

	err := f.engine.LockFunds(as(alice), alice, 1, 100, f.clock.Unix()+1000)
	assert.ErrorIs(t, err, types.ErrBountyExists)
	assert.Equal(t, int64(1_000_000-100), f.balance(t, alice))
	assert.Equal(t, 1, f.engine.index.Len())

	stats, err := f.engine.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalBounties)
}
