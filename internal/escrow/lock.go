package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/goatnetwork/goat-escrow/internal/types"
)

// LockFunds moves amount from the depositor into custody under bountyID.
// With a lock fee configured the escrow holds the net value.
func (e *Engine) LockFunds(ctx context.Context, depositor string, bountyID uint64, amount int64, deadline uint64) error {
	depositor, err := types.NormalizeAddress(depositor)
	if err != nil {
		return err
	}
	item := types.LockFundsItem{BountyID: bountyID, Depositor: depositor, Amount: amount, Deadline: deadline}
	return e.executeInitialized(ctx, "lock_funds", func(o *op) error {
		o.caller = depositor
		if err := auth.Require(o.ctx, depositor); err != nil {
			return err
		}
		if err := e.limiter.Check(o.ctx, o.tx, depositor, o.now); err != nil {
			return err
		}
		if err := requireActive(o); err != nil {
			return err
		}
		if err := validateLock(o, item); err != nil {
			return err
		}
		_, err := e.lock(o, item)
		return err
	})
}

// BatchLockFunds locks every item or none.
func (e *Engine) BatchLockFunds(ctx context.Context, items []types.LockFundsItem) (uint32, error) {
	if len(items) == 0 || len(items) > e.maxBatch {
		return 0, types.ErrInvalidBatchSize
	}
	normalized := make([]types.LockFundsItem, len(items))
	for i, item := range items {
		dep, err := types.NormalizeAddress(item.Depositor)
		if err != nil {
			return 0, err
		}
		item.Depositor = dep
		normalized[i] = item
	}

	var count uint32
	err := e.executeInitialized(ctx, "batch_lock_funds", func(o *op) error {
		o.caller = normalized[0].Depositor
		seen := make(map[uint64]struct{}, len(normalized))
		depositors := make([]string, 0, len(normalized))
		known := make(map[string]struct{})
		for _, item := range normalized {
			if _, dup := seen[item.BountyID]; dup {
				return types.ErrDuplicateBountyId
			}
			seen[item.BountyID] = struct{}{}
			if _, ok := known[item.Depositor]; !ok {
				known[item.Depositor] = struct{}{}
				depositors = append(depositors, item.Depositor)
			}
		}
		for _, dep := range depositors {
			if err := auth.Require(o.ctx, dep); err != nil {
				return err
			}
			if err := e.limiter.Check(o.ctx, o.tx, dep, o.now); err != nil {
				return err
			}
		}
		if err := requireActive(o); err != nil {
			return err
		}
		for _, item := range normalized {
			if err := validateLock(o, item); err != nil {
				return err
			}
		}

		var total int64
		for _, item := range normalized {
			net, err := e.lock(o, item)
			if err != nil {
				return err
			}
			total += net
		}
		count = uint32(len(normalized))
		o.emit(state.BatchFundsLocked, state.BatchData{Count: count, TotalAmount: total})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func validateLock(o *op, item types.LockFundsItem) error {
	limits := configLimits(o.inst)
	if item.Amount <= 0 {
		return types.ErrInvalidAmount
	}
	if err := limits.CheckAmount(item.Amount); err != nil {
		return err
	}
	if item.Deadline <= o.now {
		return types.ErrInvalidDeadline
	}
	if err := limits.CheckDuration(item.Deadline - o.now); err != nil {
		return err
	}
	exists, err := escrowExists(o.tx, item.BountyID)
	if err != nil {
		return err
	}
	if exists {
		return types.ErrBountyExists
	}
	return nil
}

// lock performs the transfers and writes for one validated item and returns
// the net amount held.
func (e *Engine) lock(o *op, item types.LockFundsItem) (int64, error) {
	fees := o.fees()
	lockFee := fees.LockFee(item.Amount)
	net := item.Amount - lockFee

	if err := e.transfer(o, item.Depositor, e.custody, net, db.TRANSFER_KIND_LOCK); err != nil {
		return 0, err
	}
	if lockFee > 0 {
		cfg := fees.Config()
		if err := e.transfer(o, item.Depositor, cfg.FeeRecipient, lockFee, db.TRANSFER_KIND_FEE); err != nil {
			return 0, err
		}
		o.emit(state.FeeCollected, state.FeeCollectedData{
			OperationType: "lock",
			Amount:        lockFee,
			FeeRate:       cfg.LockFeeRate,
			Recipient:     cfg.FeeRecipient,
		})
	}

	esc := &db.Escrow{
		BountyID:        item.BountyID,
		Depositor:       item.Depositor,
		Amount:          net,
		RemainingAmount: net,
		Status:          string(types.StatusLocked),
		Deadline:        item.Deadline,
		CreatedAt:       o.now,
		UpdatedAt:       time.Now(),
	}
	if err := o.tx.Create(esc).Error; err != nil {
		return 0, fmt.Errorf("create escrow %d: %w", item.BountyID, err)
	}
	if err := o.tx.Create(&db.RegistryEntry{BountyID: item.BountyID}).Error; err != nil {
		return 0, fmt.Errorf("register bounty %d: %w", item.BountyID, err)
	}
	o.onCommit(func() { e.index.Add(item.BountyID, item.Depositor, types.StatusLocked) })
	o.emit(state.FundsLocked, state.FundsLockedData{
		BountyID:  item.BountyID,
		Amount:    net,
		Depositor: item.Depositor,
		Deadline:  item.Deadline,
	})
	e.logger.Debugf("Locked bounty %d, net %d, fee %d", item.BountyID, net, lockFee)
	return net, nil
}
