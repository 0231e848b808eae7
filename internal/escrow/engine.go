package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goatnetwork/goat-escrow/internal/antiabuse"
	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/fee"
	"github.com/goatnetwork/goat-escrow/internal/guard"
	"github.com/goatnetwork/goat-escrow/internal/metrics"
	"github.com/goatnetwork/goat-escrow/internal/registry"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/goatnetwork/goat-escrow/internal/types"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const MaxBatchSize = 100

// ValueTransfer moves token value between holders. Implementations must
// write on tx so a failed operation leaves no movement behind, and must
// refuse transfers whose sender is not among the signers in ctx.
type ValueTransfer interface {
	Transfer(ctx context.Context, tx *gorm.DB, token, from, to string, amount int64, kind string) error
	Balance(ctx context.Context, tx *gorm.DB, token, holder string) (int64, error)
}

type Option func(*Engine)

// WithClock overrides the time source used for deadlines, schedules and
// rate limiting.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithCustody(addr string) Option {
	return func(e *Engine) { e.custody = types.MustNormalizeAddress(addr) }
}

func WithMaxBatchSize(n int) Option {
	return func(e *Engine) { e.maxBatch = n }
}

// Engine is the bounty escrow. Every mutating call runs under the guard in a
// single database transaction; events and the in-memory index are updated
// only after commit.
type Engine struct {
	db      *gorm.DB
	state   *state.State
	guard   *guard.Guard
	limiter *antiabuse.Limiter
	ledger  ValueTransfer
	index   *registry.Index
	monitor *metrics.Monitor

	custody     string
	maxBatch    int
	maxTimeLock uint64
	now         func() time.Time

	logger *log.Entry
}

func NewEngine(dbm *db.DatabaseManager, st *state.State, ledger ValueTransfer, limiter *antiabuse.Limiter, monitor *metrics.Monitor, opts ...Option) *Engine {
	e := &Engine{
		db:          dbm.GetEscrowDB(),
		state:       st,
		guard:       guard.New(),
		limiter:     limiter,
		ledger:      ledger,
		index:       registry.NewIndex(),
		monitor:     monitor,
		custody:     custodyAddress(),
		maxBatch:    config.AppConfig.MaxBatchSize,
		maxTimeLock: uint64(config.AppConfig.MaxTimeLock / time.Second),
		now:         time.Now,
		logger:      log.WithFields(log.Fields{"module": "escrow"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxBatch <= 0 || e.maxBatch > MaxBatchSize {
		e.maxBatch = MaxBatchSize
	}
	if err := e.index.Rebuild(context.Background(), e.db); err != nil {
		e.logger.Fatalf("Failed to rebuild registry index: %v", err)
	}
	e.logger.Infof("Escrow engine ready, custody %s, max batch %d", e.custody, e.maxBatch)
	return e
}

func custodyAddress() string {
	if key := config.AppConfig.EscrowPrivKey; key != "" {
		addr, err := types.PrivateKeyToAddress(key)
		if err != nil {
			log.Fatalf("Failed to derive custody address: %v", err)
		}
		return addr
	}
	return common.BytesToAddress(crypto.Keccak256([]byte("goat-escrow/custody"))).Hex()
}

// Custody is the holder that keeps escrowed value on the ledger.
func (e *Engine) Custody() string {
	return e.custody
}

func (e *Engine) timestamp() uint64 {
	return uint64(e.now().Unix())
}

// op carries the per-call transaction and the effects deferred to commit.
type op struct {
	ctx    context.Context
	tx     *gorm.DB
	inst   *db.InstanceState
	now    uint64
	caller string

	events          []state.Event
	after           []func()
	instanceChanged bool
}

func (o *op) emit(t state.EventType, data interface{}) {
	o.events = append(o.events, state.NewEvent(t, o.now, data))
}

func (o *op) onCommit(fn func()) {
	o.after = append(o.after, fn)
}

func (o *op) saveInstance() error {
	o.inst.UpdatedAt = time.Now()
	o.instanceChanged = true
	if err := o.tx.Save(o.inst).Error; err != nil {
		return fmt.Errorf("save instance: %w", err)
	}
	return nil
}

func (o *op) fees() fee.Engine {
	return fee.NewEngine(feeConfig(o.inst))
}

// execute runs fn under the guard inside one transaction. Any error rolls
// back every write made through o.tx, including limiter state and ledger
// movements.
func (e *Engine) execute(ctx context.Context, name string, fn func(o *op) error) error {
	release, err := e.guard.Enter(name)
	if err != nil {
		metrics.ReentrancyRejections.Inc()
		return err
	}
	defer release()

	started := time.Now()
	o := &op{ctx: ctx, now: e.timestamp()}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o.tx = tx
		inst, err := loadInstance(tx)
		if err != nil {
			return err
		}
		o.inst = inst
		return fn(o)
	})
	if err != nil {
		e.logger.WithFields(log.Fields{"op": name, "caller": o.caller}).Warnf("Operation failed: %v", err)
	} else {
		if o.instanceChanged {
			e.state.CommitInstance(*o.inst)
		}
		for _, f := range o.after {
			f()
		}
		e.state.PublishEvents(o.events)
	}
	e.monitor.Track(ctx, name, o.caller, started, err)
	return err
}

// executeInitialized is execute for every operation except Initialize.
func (e *Engine) executeInitialized(ctx context.Context, name string, fn func(o *op) error) error {
	return e.execute(ctx, name, func(o *op) error {
		if o.inst == nil {
			return types.ErrNotInitialized
		}
		return fn(o)
	})
}

func (e *Engine) requireAdmin(o *op) error {
	o.caller = o.inst.Admin
	if err := auth.Require(o.ctx, o.inst.Admin); err != nil {
		return err
	}
	return e.limiter.Check(o.ctx, o.tx, o.inst.Admin, o.now)
}

func requireActive(o *op) error {
	if o.inst.Paused {
		return types.ErrContractPaused
	}
	return nil
}

// transfer moves value on the operation's transaction. Payouts leave the
// custody holder, which the engine signs for itself.
func (e *Engine) transfer(o *op, from, to string, amount int64, kind string) error {
	if amount == 0 {
		return nil
	}
	ctx := o.ctx
	if from == e.custody {
		ctx = auth.WithSigners(ctx, e.custody)
	}
	if err := e.ledger.Transfer(ctx, o.tx, o.inst.Token, from, to, amount, kind); err != nil {
		return fmt.Errorf("%s transfer of %d to %s: %w", kind, amount, to, err)
	}
	o.onCommit(func() {
		metrics.ValueMovedTotal.WithLabelValues(kind).Add(float64(amount))
	})
	return nil
}

func (e *Engine) custodyBalance(o *op) (int64, error) {
	return e.ledger.Balance(o.ctx, o.tx, o.inst.Token, e.custody)
}

func (e *Engine) requireCustody(o *op, amount int64) error {
	bal, err := e.custodyBalance(o)
	if err != nil {
		return err
	}
	if bal < amount {
		return types.ErrInsufficientFunds
	}
	return nil
}

func loadInstance(tx *gorm.DB) (*db.InstanceState, error) {
	var inst db.InstanceState
	err := tx.First(&inst, db.INSTANCE_ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	return &inst, nil
}

func loadEscrow(tx *gorm.DB, bountyID uint64) (*db.Escrow, error) {
	var esc db.Escrow
	err := tx.First(&esc, "bounty_id = ?", bountyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrBountyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load escrow %d: %w", bountyID, err)
	}
	return &esc, nil
}

func escrowExists(tx *gorm.DB, bountyID uint64) (bool, error) {
	var count int64
	if err := tx.Model(&db.Escrow{}).Where("bounty_id = ?", bountyID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// debit lowers the remaining amount and moves the escrow to the partial or
// final status. The record is written before any outbound transfer.
func (e *Engine) debit(o *op, esc *db.Escrow, amount int64, partial, final types.EscrowStatus) error {
	esc.RemainingAmount -= amount
	if esc.RemainingAmount == 0 {
		esc.Status = string(final)
	} else {
		esc.Status = string(partial)
	}
	esc.UpdatedAt = time.Now()
	if err := o.tx.Save(esc).Error; err != nil {
		return fmt.Errorf("save escrow %d: %w", esc.BountyID, err)
	}
	if esc.RemainingAmount == 0 {
		if err := o.tx.Delete(&db.RefundApproval{}, "bounty_id = ?", esc.BountyID).Error; err != nil {
			return err
		}
	}
	id, status := esc.BountyID, types.EscrowStatus(esc.Status)
	o.onCommit(func() { e.index.SetStatus(id, status) })
	return nil
}

func feeConfig(inst *db.InstanceState) types.FeeConfig {
	return types.FeeConfig{
		LockFeeRate:    inst.LockFeeRate,
		ReleaseFeeRate: inst.ReleaseFeeRate,
		FeeRecipient:   inst.FeeRecipient,
		FeeEnabled:     inst.FeeEnabled,
	}
}

func configLimits(inst *db.InstanceState) types.ConfigLimits {
	return types.ConfigLimits{
		MinBountyAmount:     inst.MinBountyAmount,
		MaxBountyAmount:     inst.MaxBountyAmount,
		MinDeadlineDuration: inst.MinDeadlineDuration,
		MaxDeadlineDuration: inst.MaxDeadlineDuration,
	}
}

// Initialize binds the admin and the token. It may succeed once.
func (e *Engine) Initialize(ctx context.Context, admin, token string) error {
	admin, err := types.NormalizeAddress(admin)
	if err != nil {
		return err
	}
	token, err = types.NormalizeAddress(token)
	if err != nil {
		return err
	}
	return e.execute(ctx, "init", func(o *op) error {
		o.caller = admin
		if o.inst != nil {
			return types.ErrAlreadyInitialized
		}
		if err := auth.Require(o.ctx, admin); err != nil {
			return err
		}
		if err := e.limiter.Check(o.ctx, o.tx, admin, o.now); err != nil {
			return err
		}
		o.inst = &db.InstanceState{
			ID:              db.INSTANCE_ID,
			Admin:           admin,
			Token:           token,
			NextActionID:    1,
			FeeRecipient:    admin,
			ContractVersion: db.CONTRACT_VERSION,
			InitializedAt:   o.now,
		}
		if err := o.tx.Create(o.inst).Error; err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		o.instanceChanged = true
		o.emit(state.EscrowInitialized, state.InitializedData{Admin: admin, Token: token})
		e.logger.Infof("Escrow initialized, admin %s, token %s", admin, token)
		return nil
	})
}
