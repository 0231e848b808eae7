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

// CreateReleaseSchedule queues a future payout from a bounty. Unreleased
// schedules of one bounty never add up to more than its remaining amount.
func (e *Engine) CreateReleaseSchedule(ctx context.Context, bountyID uint64, amount int64, releaseTimestamp uint64, recipient string) (uint64, error) {
	recipient, err := types.NormalizeAddress(recipient)
	if err != nil {
		return 0, err
	}
	var scheduleID uint64
	err = e.executeInitialized(ctx, "create_release_schedule", func(o *op) error {
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
		if amount <= 0 {
			return types.ErrInvalidAmount
		}
		if releaseTimestamp <= o.now {
			return types.ErrInvalidScheduleTimestamp
		}

		var agg struct {
			Pending int64
			MaxID   uint64
		}
		if err := o.tx.Model(&db.ReleaseSchedule{}).
			Select("COALESCE(SUM(CASE WHEN released THEN 0 ELSE amount END), 0) AS pending, COALESCE(MAX(schedule_id), 0) AS max_id").
			Where("bounty_id = ?", bountyID).
			Scan(&agg).Error; err != nil {
			return fmt.Errorf("aggregate schedules of bounty %d: %w", bountyID, err)
		}
		if agg.Pending > esc.RemainingAmount || amount > esc.RemainingAmount-agg.Pending {
			return types.ErrInsufficientScheduledAmount
		}

		id := agg.MaxID + 1
		if _, err := loadSchedule(o.tx, bountyID, id); err == nil {
			return types.ErrScheduleExists
		} else if !errors.Is(err, types.ErrScheduleNotFound) {
			return err
		}
		sch := &db.ReleaseSchedule{
			BountyID:         bountyID,
			ScheduleID:       id,
			Amount:           amount,
			ReleaseTimestamp: releaseTimestamp,
			Recipient:        recipient,
		}
		if err := o.tx.Create(sch).Error; err != nil {
			return fmt.Errorf("create schedule %d/%d: %w", bountyID, id, err)
		}
		scheduleID = id
		o.emit(state.ScheduleCreated, state.ScheduleData{
			BountyID:         bountyID,
			ScheduleID:       id,
			Amount:           amount,
			Recipient:        recipient,
			ReleaseTimestamp: releaseTimestamp,
			By:               o.inst.Admin,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return scheduleID, nil
}

// ReleaseScheduleAutomatic pays a due schedule. Anyone may trigger it; the
// caller is taken from the signers when present, otherwise the recipient.
func (e *Engine) ReleaseScheduleAutomatic(ctx context.Context, bountyID, scheduleID uint64) error {
	return e.executeInitialized(ctx, "release_schedule_automatic", func(o *op) error {
		sch, esc, err := loadScheduleAndEscrow(o.tx, bountyID, scheduleID)
		if err != nil {
			return err
		}
		o.caller = sch.Recipient
		if signers := auth.Signers(o.ctx); len(signers) > 0 {
			o.caller = signers[0]
		}
		if err := e.limiter.Check(o.ctx, o.tx, o.caller, o.now); err != nil {
			return err
		}
		if err := requireActive(o); err != nil {
			return err
		}
		if sch.Released {
			return types.ErrScheduleAlreadyReleased
		}
		if o.now < sch.ReleaseTimestamp {
			return types.ErrScheduleNotDue
		}
		return e.releaseSchedule(o, esc, sch, types.ReleaseAutomatic)
	})
}

// ReleaseScheduleManual pays a schedule early on the admin's authority.
func (e *Engine) ReleaseScheduleManual(ctx context.Context, bountyID, scheduleID uint64) error {
	return e.executeInitialized(ctx, "release_schedule_manual", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		if err := requireActive(o); err != nil {
			return err
		}
		sch, esc, err := loadScheduleAndEscrow(o.tx, bountyID, scheduleID)
		if err != nil {
			return err
		}
		if sch.Released {
			return types.ErrScheduleAlreadyReleased
		}
		return e.releaseSchedule(o, esc, sch, types.ReleaseManual)
	})
}

// releaseSchedule carries no fee. The schedule and escrow are updated before
// the transfer.
func (e *Engine) releaseSchedule(o *op, esc *db.Escrow, sch *db.ReleaseSchedule, kind types.ReleaseType) error {
	if types.EscrowStatus(esc.Status).IsTerminal() {
		return types.ErrFundsNotLocked
	}
	if sch.Amount > esc.RemainingAmount {
		return types.ErrInsufficientScheduledAmount
	}
	if err := e.requireCustody(o, sch.Amount); err != nil {
		return err
	}

	sch.Released = true
	sch.ReleasedAt = o.now
	sch.ReleasedBy = o.caller
	if err := o.tx.Save(sch).Error; err != nil {
		return fmt.Errorf("save schedule %d/%d: %w", sch.BountyID, sch.ScheduleID, err)
	}
	if err := e.debit(o, esc, sch.Amount, types.StatusPartiallyReleased, types.StatusReleased); err != nil {
		return err
	}
	if err := o.tx.Create(&db.PayoutRecord{
		BountyID:   sch.BountyID,
		Amount:     sch.Amount,
		Recipient:  sch.Recipient,
		Source:     db.PAYOUT_SOURCE_SCHEDULE,
		ScheduleID: sch.ScheduleID,
		Timestamp:  o.now,
	}).Error; err != nil {
		return err
	}
	if err := o.tx.Create(&db.ReleaseHistory{
		BountyID:    sch.BountyID,
		ScheduleID:  sch.ScheduleID,
		Amount:      sch.Amount,
		Recipient:   sch.Recipient,
		ReleasedAt:  o.now,
		ReleasedBy:  o.caller,
		ReleaseType: string(kind),
	}).Error; err != nil {
		return err
	}
	if err := e.transfer(o, e.custody, sch.Recipient, sch.Amount, db.TRANSFER_KIND_RELEASE); err != nil {
		return err
	}
	o.emit(state.ScheduleReleased, state.ScheduleData{
		BountyID:    sch.BountyID,
		ScheduleID:  sch.ScheduleID,
		Amount:      sch.Amount,
		Recipient:   sch.Recipient,
		By:          o.caller,
		ReleaseType: string(kind),
	})
	return nil
}

func loadSchedule(tx *gorm.DB, bountyID, scheduleID uint64) (*db.ReleaseSchedule, error) {
	var sch db.ReleaseSchedule
	err := tx.First(&sch, "bounty_id = ? AND schedule_id = ?", bountyID, scheduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule %d/%d: %w", bountyID, scheduleID, err)
	}
	return &sch, nil
}

func loadScheduleAndEscrow(tx *gorm.DB, bountyID, scheduleID uint64) (*db.ReleaseSchedule, *db.Escrow, error) {
	esc, err := loadEscrow(tx, bountyID)
	if err != nil {
		return nil, nil, err
	}
	sch, err := loadSchedule(tx, bountyID, scheduleID)
	if err != nil {
		return nil, nil, err
	}
	return sch, esc, nil
}

func (e *Engine) GetReleaseSchedule(ctx context.Context, bountyID, scheduleID uint64) (*db.ReleaseSchedule, error) {
	return loadSchedule(e.db.WithContext(ctx), bountyID, scheduleID)
}

func (e *Engine) GetAllReleaseSchedules(ctx context.Context, bountyID uint64) ([]db.ReleaseSchedule, error) {
	var out []db.ReleaseSchedule
	err := e.db.WithContext(ctx).Where("bounty_id = ?", bountyID).Order("schedule_id asc").Find(&out).Error
	return out, err
}

func (e *Engine) GetPendingSchedules(ctx context.Context, bountyID uint64) ([]db.ReleaseSchedule, error) {
	var out []db.ReleaseSchedule
	err := e.db.WithContext(ctx).Where("bounty_id = ? AND released = ?", bountyID, false).
		Order("schedule_id asc").Find(&out).Error
	return out, err
}

// GetDueSchedules lists unreleased schedules whose release time has come.
func (e *Engine) GetDueSchedules(ctx context.Context, bountyID uint64) ([]db.ReleaseSchedule, error) {
	var out []db.ReleaseSchedule
	err := e.db.WithContext(ctx).
		Where("bounty_id = ? AND released = ? AND release_timestamp <= ?", bountyID, false, e.timestamp()).
		Order("schedule_id asc").Find(&out).Error
	return out, err
}

func (e *Engine) GetReleaseHistory(ctx context.Context, bountyID uint64) ([]db.ReleaseHistory, error) {
	var out []db.ReleaseHistory
	err := e.db.WithContext(ctx).Where("bounty_id = ?", bountyID).Order("id asc").Find(&out).Error
	return out, err
}
