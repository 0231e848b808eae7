package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/goatnetwork/goat-escrow/internal/antiabuse"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/fee"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/goatnetwork/goat-escrow/internal/types"
	"gorm.io/gorm"
)

// UpdateAdmin hands the admin role over. With a time lock configured the
// change is queued and the returned action id is non-zero.
func (e *Engine) UpdateAdmin(ctx context.Context, newAdmin string) (uint64, error) {
	addr, err := types.NormalizeAddress(newAdmin)
	if err != nil {
		return 0, err
	}
	return e.proposeOrApply(ctx, "update_admin", types.UpdateAdmin{NewAdmin: addr})
}

func (e *Engine) UpdatePayoutKey(ctx context.Context, newPayoutKey string) (uint64, error) {
	addr, err := types.NormalizeAddress(newPayoutKey)
	if err != nil {
		return 0, err
	}
	return e.proposeOrApply(ctx, "update_payout_key", types.UpdatePayoutKey{NewPayoutKey: addr})
}

func (e *Engine) UpdateConfigLimits(ctx context.Context, update types.ConfigLimitsUpdate) (uint64, error) {
	return e.proposeOrApply(ctx, "update_config_limits", types.UpdateConfigLimits{Limits: update})
}

func (e *Engine) UpdateFeeConfig(ctx context.Context, update types.FeeConfigUpdate) (uint64, error) {
	return e.proposeOrApply(ctx, "update_fee_config", types.UpdateFeeConfig{Update: update})
}

// proposeOrApply validates the change against the current configuration,
// then applies it at once or queues it behind the time lock.
func (e *Engine) proposeOrApply(ctx context.Context, name string, action types.AdminActionType) (uint64, error) {
	var actionID uint64
	err := e.executeInitialized(ctx, name, func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		preview := *o.inst
		if err := applyToInstance(&preview, action); err != nil {
			return err
		}
		if o.inst.TimeLockDuration == 0 {
			return e.applyAction(o, action)
		}

		kind, payload, err := types.EncodeAdminAction(action)
		if err != nil {
			return err
		}
		row := &db.AdminAction{
			ActionID:      o.inst.NextActionID,
			Kind:          kind,
			Payload:       payload,
			ProposedBy:    o.inst.Admin,
			ProposedAt:    o.now,
			ExecutionTime: o.now + o.inst.TimeLockDuration,
		}
		if err := o.tx.Create(row).Error; err != nil {
			return fmt.Errorf("queue admin action: %w", err)
		}
		o.inst.NextActionID++
		if err := o.saveInstance(); err != nil {
			return err
		}
		actionID = row.ActionID
		o.emit(state.AdminActionProposed, state.AdminActionData{
			ActionID:      row.ActionID,
			Kind:          kind,
			By:            o.inst.Admin,
			ExecutionTime: row.ExecutionTime,
		})
		e.logger.Infof("Admin action %d (%s) queued until %d", row.ActionID, kind, row.ExecutionTime)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return actionID, nil
}

// applyToInstance mutates inst in place; it has no other effects.
func applyToInstance(inst *db.InstanceState, action types.AdminActionType) error {
	switch a := action.(type) {
	case types.UpdateAdmin:
		addr, err := types.NormalizeAddress(a.NewAdmin)
		if err != nil {
			return err
		}
		inst.Admin = addr
	case types.UpdatePayoutKey:
		addr, err := types.NormalizeAddress(a.NewPayoutKey)
		if err != nil {
			return err
		}
		inst.PayoutKey = addr
	case types.UpdateConfigLimits:
		limits, err := a.Limits.Apply(configLimits(inst))
		if err != nil {
			return err
		}
		inst.MinBountyAmount = limits.MinBountyAmount
		inst.MaxBountyAmount = limits.MaxBountyAmount
		inst.MinDeadlineDuration = limits.MinDeadlineDuration
		inst.MaxDeadlineDuration = limits.MaxDeadlineDuration
	case types.UpdateFeeConfig:
		cfg, err := fee.Apply(feeConfig(inst), a.Update)
		if err != nil {
			return err
		}
		inst.LockFeeRate = cfg.LockFeeRate
		inst.ReleaseFeeRate = cfg.ReleaseFeeRate
		inst.FeeRecipient = cfg.FeeRecipient
		inst.FeeEnabled = cfg.FeeEnabled
	default:
		return fmt.Errorf("unhandled admin action %T", action)
	}
	return nil
}

func (e *Engine) applyAction(o *op, action types.AdminActionType) error {
	by := o.inst.Admin
	before := *o.inst
	if err := applyToInstance(o.inst, action); err != nil {
		return err
	}
	if err := o.saveInstance(); err != nil {
		return err
	}

	switch action.(type) {
	case types.UpdateAdmin:
		o.emit(state.AdminUpdated, state.AddressChangeData{Old: before.Admin, New: o.inst.Admin, By: by})
		e.logger.Infof("Admin changed from %s to %s", before.Admin, o.inst.Admin)
	case types.UpdatePayoutKey:
		o.emit(state.PayoutKeyUpdated, state.AddressChangeData{Old: before.PayoutKey, New: o.inst.PayoutKey, By: by})
	case types.UpdateConfigLimits:
		o.emit(state.ConfigLimitsUpdated, state.ConfigLimitsData{
			MinBountyAmount:     o.inst.MinBountyAmount,
			MaxBountyAmount:     o.inst.MaxBountyAmount,
			MinDeadlineDuration: o.inst.MinDeadlineDuration,
			MaxDeadlineDuration: o.inst.MaxDeadlineDuration,
			By:                  by,
		})
	case types.UpdateFeeConfig:
		o.emit(state.FeeConfigUpdated, state.FeeConfigData{
			LockFeeRate:    o.inst.LockFeeRate,
			ReleaseFeeRate: o.inst.ReleaseFeeRate,
			FeeRecipient:   o.inst.FeeRecipient,
			FeeEnabled:     o.inst.FeeEnabled,
		})
	}
	return nil
}

// SetTimeLockDuration sets the delay between proposing and executing admin
// changes. Zero applies changes immediately.
func (e *Engine) SetTimeLockDuration(ctx context.Context, seconds uint64) error {
	if seconds > e.maxTimeLock {
		return types.ErrInvalidTimeLock
	}
	return e.executeInitialized(ctx, "set_time_lock_duration", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		o.inst.TimeLockDuration = seconds
		e.logger.Infof("Time lock duration set to %ds", seconds)
		return o.saveInstance()
	})
}

// ExecuteAdminAction applies a queued change once its execution time has
// passed. An action is executed at most once.
func (e *Engine) ExecuteAdminAction(ctx context.Context, actionID uint64) error {
	return e.executeInitialized(ctx, "execute_admin_action", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		row, err := loadPendingAction(o.tx, actionID)
		if err != nil {
			return err
		}
		if o.now < row.ExecutionTime {
			return types.ErrActionNotReady
		}
		action, err := types.DecodeAdminAction(row.Kind, row.Payload)
		if err != nil {
			return err
		}
		by := o.inst.Admin
		if err := e.applyAction(o, action); err != nil {
			return err
		}
		row.Executed = true
		if err := o.tx.Save(row).Error; err != nil {
			return fmt.Errorf("mark admin action %d executed: %w", actionID, err)
		}
		o.emit(state.AdminActionExecuted, state.AdminActionData{ActionID: actionID, Kind: row.Kind, By: by})
		return nil
	})
}

func (e *Engine) CancelAdminAction(ctx context.Context, actionID uint64) error {
	return e.executeInitialized(ctx, "cancel_admin_action", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		row, err := loadPendingAction(o.tx, actionID)
		if err != nil {
			return err
		}
		if err := o.tx.Delete(row).Error; err != nil {
			return fmt.Errorf("cancel admin action %d: %w", actionID, err)
		}
		o.emit(state.AdminActionCancelled, state.AdminActionData{ActionID: actionID, Kind: row.Kind, By: o.inst.Admin})
		return nil
	})
}

func loadPendingAction(tx *gorm.DB, actionID uint64) (*db.AdminAction, error) {
	var row db.AdminAction
	err := tx.First(&row, "action_id = ?", actionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrActionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load admin action %d: %w", actionID, err)
	}
	if row.Executed {
		return nil, types.ErrActionNotFound
	}
	return &row, nil
}

func (e *Engine) GetAdminAction(ctx context.Context, actionID uint64) (*types.AdminAction, error) {
	var row db.AdminAction
	err := e.db.WithContext(ctx).First(&row, "action_id = ?", actionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrActionNotFound
	}
	if err != nil {
		return nil, err
	}
	return toAdminAction(row)
}

// GetPendingAdminActions lists queued actions not yet executed, oldest first.
func (e *Engine) GetPendingAdminActions(ctx context.Context) ([]types.AdminAction, error) {
	var rows []db.AdminAction
	if err := e.db.WithContext(ctx).Where("executed = ?", false).Order("action_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.AdminAction, 0, len(rows))
	for _, row := range rows {
		a, err := toAdminAction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func toAdminAction(row db.AdminAction) (*types.AdminAction, error) {
	action, err := types.DecodeAdminAction(row.Kind, row.Payload)
	if err != nil {
		return nil, err
	}
	return &types.AdminAction{
		ActionID:      row.ActionID,
		ActionType:    action,
		ProposedBy:    row.ProposedBy,
		ProposedAt:    row.ProposedAt,
		ExecutionTime: row.ExecutionTime,
		Executed:      row.Executed,
	}, nil
}

// Pause blocks lock, release, refund and schedule payouts. Pausing an
// already paused contract only replaces the reason.
func (e *Engine) Pause(ctx context.Context, reason string) error {
	return e.executeInitialized(ctx, "pause", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		o.inst.Paused = true
		o.inst.PauseReason = reason
		if err := o.saveInstance(); err != nil {
			return err
		}
		o.emit(state.ContractPaused, state.PauseData{By: o.inst.Admin, Reason: reason})
		e.logger.Warnf("Escrow paused by %s: %s", o.inst.Admin, reason)
		return nil
	})
}

func (e *Engine) Unpause(ctx context.Context, reason string) error {
	return e.executeInitialized(ctx, "unpause", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		o.inst.Paused = false
		o.inst.PauseReason = ""
		if err := o.saveInstance(); err != nil {
			return err
		}
		o.emit(state.ContractUnpaused, state.PauseData{By: o.inst.Admin, Reason: reason})
		e.logger.Infof("Escrow unpaused by %s", o.inst.Admin)
		return nil
	})
}

// EmergencyWithdraw sweeps the whole custody balance to recipient. It is
// only allowed while paused and leaves escrow records untouched.
func (e *Engine) EmergencyWithdraw(ctx context.Context, recipient string) (int64, error) {
	recipient, err := types.NormalizeAddress(recipient)
	if err != nil {
		return 0, err
	}
	var swept int64
	err = e.executeInitialized(ctx, "emergency_withdraw", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		if !o.inst.Paused {
			return types.ErrNotPaused
		}
		bal, err := e.custodyBalance(o)
		if err != nil {
			return err
		}
		if err := e.transfer(o, e.custody, recipient, bal, db.TRANSFER_KIND_EMERGENCY); err != nil {
			return err
		}
		swept = bal
		o.emit(state.EmergencyWithdrawn, state.EmergencyWithdrawData{By: o.inst.Admin, Recipient: recipient, Amount: bal})
		e.logger.Warnf("Emergency withdrawal of %d to %s", bal, recipient)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

func (e *Engine) SetAntiAbuseConfig(ctx context.Context, cfg antiabuse.Config) error {
	return e.executeInitialized(ctx, "set_anti_abuse_config", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		return e.limiter.SetConfig(o.tx, cfg)
	})
}

func (e *Engine) SetWhitelist(ctx context.Context, address string, whitelisted bool) error {
	address, err := types.NormalizeAddress(address)
	if err != nil {
		return err
	}
	return e.executeInitialized(ctx, "set_whitelist", func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		return e.limiter.SetWhitelist(o.tx, address, whitelisted)
	})
}

func (e *Engine) GetAntiAbuseConfig(ctx context.Context) (antiabuse.Config, error) {
	return e.limiter.GetConfig(e.db.WithContext(ctx))
}
