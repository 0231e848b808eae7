package escrow

import (
	"context"
	"fmt"

	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/goatnetwork/goat-escrow/internal/types"
)

// ReleaseFunds pays out of a bounty to the recipient. A nil amount releases
// the whole remaining amount. The release fee is carved from the payout.
func (e *Engine) ReleaseFunds(ctx context.Context, bountyID uint64, recipient string, amount *int64) error {
	recipient, err := types.NormalizeAddress(recipient)
	if err != nil {
		return err
	}
	return e.executeInitialized(ctx, "release_funds", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		if err := requireActive(o); err != nil {
			return err
		}
		esc, err := loadEscrow(o.tx, bountyID)
		if err != nil {
			return err
		}
		payout, err := releaseAmount(esc, amount)
		if err != nil {
			return err
		}
		if err := e.requireCustody(o, payout); err != nil {
			return err
		}
		return e.release(o, esc, recipient, payout)
	})
}

// BatchReleaseFunds releases every item or none. An item amount of zero
// releases the whole remaining amount.
func (e *Engine) BatchReleaseFunds(ctx context.Context, items []types.ReleaseFundsItem) (uint32, error) {
	if len(items) == 0 || len(items) > e.maxBatch {
		return 0, types.ErrInvalidBatchSize
	}
	normalized := make([]types.ReleaseFundsItem, len(items))
	for i, item := range items {
		rcpt, err := types.NormalizeAddress(item.Recipient)
		if err != nil {
			return 0, err
		}
		item.Recipient = rcpt
		normalized[i] = item
	}

	var count uint32
	err := e.executeInitialized(ctx, "batch_release_funds", func(o *op) error {
		seen := make(map[uint64]struct{}, len(normalized))
		for _, item := range normalized {
			if _, dup := seen[item.BountyID]; dup {
				return types.ErrDuplicateBountyId
			}
			seen[item.BountyID] = struct{}{}
		}
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		if err := requireActive(o); err != nil {
			return err
		}

		escrows := make([]*db.Escrow, len(normalized))
		payouts := make([]int64, len(normalized))
		var total int64
		for i, item := range normalized {
			esc, err := loadEscrow(o.tx, item.BountyID)
			if err != nil {
				return err
			}
			var requested *int64
			if item.Amount != 0 {
				requested = &item.Amount
			}
			payout, err := releaseAmount(esc, requested)
			if err != nil {
				return err
			}
			escrows[i], payouts[i] = esc, payout
			total += payout
		}
		if err := e.requireCustody(o, total); err != nil {
			return err
		}

		for i, item := range normalized {
			if err := e.release(o, escrows[i], item.Recipient, payouts[i]); err != nil {
				return err
			}
		}
		count = uint32(len(normalized))
		o.emit(state.BatchFundsReleased, state.BatchData{Count: count, TotalAmount: total})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func releaseAmount(esc *db.Escrow, requested *int64) (int64, error) {
	if types.EscrowStatus(esc.Status).IsTerminal() {
		return 0, types.ErrFundsNotLocked
	}
	if requested == nil {
		return esc.RemainingAmount, nil
	}
	if *requested <= 0 || *requested > esc.RemainingAmount {
		return 0, types.ErrInvalidAmount
	}
	return *requested, nil
}

// release records the payout and then moves payout minus fee to the
// recipient and the fee to the fee recipient.
func (e *Engine) release(o *op, esc *db.Escrow, recipient string, payout int64) error {
	fees := o.fees()
	releaseFee := fees.ReleaseFee(payout)
	net := payout - releaseFee

	if err := e.debit(o, esc, payout, types.StatusPartiallyReleased, types.StatusReleased); err != nil {
		return err
	}
	record := &db.PayoutRecord{
		BountyID:  esc.BountyID,
		Amount:    payout,
		Fee:       releaseFee,
		Recipient: recipient,
		Source:    db.PAYOUT_SOURCE_RELEASE,
		Timestamp: o.now,
	}
	if err := o.tx.Create(record).Error; err != nil {
		return fmt.Errorf("record payout for bounty %d: %w", esc.BountyID, err)
	}

	if err := e.transfer(o, e.custody, recipient, net, db.TRANSFER_KIND_RELEASE); err != nil {
		return err
	}
	if releaseFee > 0 {
		cfg := fees.Config()
		if err := e.transfer(o, e.custody, cfg.FeeRecipient, releaseFee, db.TRANSFER_KIND_FEE); err != nil {
			return err
		}
		o.emit(state.FeeCollected, state.FeeCollectedData{
			OperationType: "release",
			Amount:        releaseFee,
			FeeRate:       cfg.ReleaseFeeRate,
			Recipient:     cfg.FeeRecipient,
		})
	}
	o.emit(state.FundsReleased, state.FundsReleasedData{
		BountyID:        esc.BountyID,
		Amount:          net,
		Recipient:       recipient,
		RemainingAmount: esc.RemainingAmount,
	})
	e.logger.Debugf("Released bounty %d to %s, payout %d, fee %d", esc.BountyID, recipient, payout, releaseFee)
	return nil
}
