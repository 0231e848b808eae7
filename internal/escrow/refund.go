package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/goatnetwork/goat-escrow/internal/types"
	"gorm.io/gorm"
)

// ApproveRefund records the single refund the admin allows before the
// deadline. A later approval for the same bounty replaces the earlier one.
func (e *Engine) ApproveRefund(ctx context.Context, bountyID uint64, amount int64, recipient string, mode types.RefundMode) error {
	recipient, err := types.NormalizeAddress(recipient)
	if err != nil {
		return err
	}
	mode, err = types.ParseRefundMode(string(mode))
	if err != nil {
		return err
	}
	return e.executeInitialized(ctx, "approve_refund", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		esc, err := loadEscrow(o.tx, bountyID)
		if err != nil {
			return err
		}
		if types.EscrowStatus(esc.Status).IsTerminal() {
			return types.ErrFundsNotLocked
		}
		if amount <= 0 || amount > esc.RemainingAmount {
			return types.ErrInvalidAmount
		}
		approval := &db.RefundApproval{
			BountyID:   bountyID,
			Amount:     amount,
			Recipient:  recipient,
			Mode:       string(mode),
			ApprovedBy: o.inst.Admin,
			ApprovedAt: o.now,
		}
		if err := o.tx.Save(approval).Error; err != nil {
			return fmt.Errorf("save refund approval for bounty %d: %w", bountyID, err)
		}
		e.logger.Infof("Refund approved for bounty %d, %d to %s (%s)", bountyID, amount, recipient, mode)
		return nil
	})
}

// Refund returns value from a bounty. Full refunds the whole remaining
// amount to the depositor, Partial a chosen amount to the depositor, Custom
// a chosen amount to a chosen recipient. Before the deadline only a Custom
// refund that exactly matches the recorded approval may proceed, and it
// consumes the approval. After the deadline Full and Partial refunds need no
// signature since the funds can only go back to the depositor, while a Custom
// refund must be signed by the admin and is rate limited against the admin.
func (e *Engine) Refund(ctx context.Context, bountyID uint64, amount *int64, recipient *string, mode types.RefundMode) error {
	mode, err := types.ParseRefundMode(string(mode))
	if err != nil {
		return err
	}
	var customRecipient string
	if mode == types.RefundCustom {
		if amount == nil || recipient == nil {
			return types.ErrInvalidAmount
		}
		addr, err := types.NormalizeAddress(*recipient)
		if err != nil {
			return err
		}
		customRecipient = addr
	}

	return e.executeInitialized(ctx, "refund", func(o *op) error {
		esc, err := loadEscrow(o.tx, bountyID)
		if err != nil {
			return err
		}
		o.caller = esc.Depositor
		beforeDeadline := o.now < esc.Deadline

		if mode == types.RefundCustom && !beforeDeadline {
			o.caller = o.inst.Admin
			if err := auth.Require(o.ctx, o.inst.Admin); err != nil {
				return err
			}
		}
		if err := e.limiter.Check(o.ctx, o.tx, o.caller, o.now); err != nil {
			return err
		}
		if err := requireActive(o); err != nil {
			return err
		}
		if types.EscrowStatus(esc.Status).IsTerminal() {
			return types.ErrFundsNotLocked
		}

		var (
			refundAmount int64
			refundTo     string
		)
		switch mode {
		case types.RefundFull:
			if beforeDeadline {
				return types.ErrDeadlineNotPassed
			}
			refundAmount, refundTo = esc.RemainingAmount, esc.Depositor
		case types.RefundPartial:
			if beforeDeadline {
				return types.ErrDeadlineNotPassed
			}
			refundAmount, refundTo = esc.RemainingAmount, esc.Depositor
			if amount != nil {
				refundAmount = *amount
			}
		case types.RefundCustom:
			refundAmount, refundTo = *amount, customRecipient
			approval, err := loadApproval(o.tx, bountyID)
			if err != nil {
				return err
			}
			matches := approval != nil && approval.Amount == refundAmount &&
				types.SameAddress(approval.Recipient, refundTo) && approval.Mode == string(mode)
			if beforeDeadline && !matches {
				return types.ErrRefundNotApproved
			}
			if matches {
				if err := o.tx.Delete(&db.RefundApproval{}, "bounty_id = ?", bountyID).Error; err != nil {
					return err
				}
			}
		}
		if refundAmount <= 0 || refundAmount > esc.RemainingAmount {
			return types.ErrInvalidAmount
		}
		if err := e.requireCustody(o, refundAmount); err != nil {
			return err
		}

		if err := e.debit(o, esc, refundAmount, types.StatusPartiallyRefunded, types.StatusRefunded); err != nil {
			return err
		}
		record := &db.RefundRecord{
			BountyID:  bountyID,
			Amount:    refundAmount,
			Recipient: refundTo,
			Mode:      string(mode),
			Timestamp: o.now,
		}
		if err := o.tx.Create(record).Error; err != nil {
			return fmt.Errorf("record refund for bounty %d: %w", bountyID, err)
		}
		if err := e.transfer(o, e.custody, refundTo, refundAmount, db.TRANSFER_KIND_REFUND); err != nil {
			return err
		}
		o.emit(state.FundsRefunded, state.FundsRefundedData{
			BountyID:        bountyID,
			Amount:          refundAmount,
			RefundTo:        refundTo,
			Mode:            string(mode),
			RemainingAmount: esc.RemainingAmount,
		})
		return nil
	})
}

// GetRefundEligibility reports whether a refund could proceed now, and the
// approval that would allow one before the deadline.
func (e *Engine) GetRefundEligibility(ctx context.Context, bountyID uint64) (types.RefundEligibility, error) {
	conn := e.db.WithContext(ctx)
	esc, err := loadEscrow(conn, bountyID)
	if err != nil {
		return types.RefundEligibility{}, err
	}
	approval, err := loadApproval(conn, bountyID)
	if err != nil {
		return types.RefundEligibility{}, err
	}
	out := types.RefundEligibility{
		DeadlinePassed:  e.timestamp() >= esc.Deadline,
		RemainingAmount: esc.RemainingAmount,
		Approval:        toRefundApproval(approval),
	}
	out.CanRefund = !types.EscrowStatus(esc.Status).IsTerminal() && esc.RemainingAmount > 0 &&
		(out.DeadlinePassed || approval != nil)
	return out, nil
}

func loadApproval(tx *gorm.DB, bountyID uint64) (*db.RefundApproval, error) {
	var approval db.RefundApproval
	err := tx.First(&approval, "bounty_id = ?", bountyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load refund approval %d: %w", bountyID, err)
	}
	return &approval, nil
}

func toRefundApproval(a *db.RefundApproval) *types.RefundApproval {
	if a == nil {
		return nil
	}
	return &types.RefundApproval{
		BountyID:   a.BountyID,
		Amount:     a.Amount,
		Recipient:  a.Recipient,
		Mode:       types.RefundMode(a.Mode),
		ApprovedBy: a.ApprovedBy,
		ApprovedAt: a.ApprovedAt,
	}
}
