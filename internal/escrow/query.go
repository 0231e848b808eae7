package escrow

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/types"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 1000

	queryChunk = 200
)

// EscrowInfo is an escrow with its payout and refund history.
type EscrowInfo struct {
	db.Escrow
	RefundHistory []db.RefundRecord `json:"refund_history"`
	PayoutHistory []db.PayoutRecord `json:"payout_history"`
}

func (e *Engine) GetEscrowInfo(ctx context.Context, bountyID uint64) (*EscrowInfo, error) {
	esc, err := loadEscrow(e.db.WithContext(ctx), bountyID)
	if err != nil {
		return nil, err
	}
	refunds, err := e.GetRefundHistory(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	payouts, err := e.GetPayoutHistory(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	return &EscrowInfo{Escrow: *esc, RefundHistory: refunds, PayoutHistory: payouts}, nil
}

// GetBalance returns the custody balance of the escrowed token.
func (e *Engine) GetBalance(ctx context.Context) (int64, error) {
	inst, ok := e.state.GetInstance()
	if !ok {
		return 0, types.ErrNotInitialized
	}
	return e.ledger.Balance(ctx, e.db.WithContext(ctx), inst.Token, e.custody)
}

func (e *Engine) GetRefundHistory(ctx context.Context, bountyID uint64) ([]db.RefundRecord, error) {
	out := []db.RefundRecord{}
	err := e.db.WithContext(ctx).Where("bounty_id = ?", bountyID).Order("id asc").Find(&out).Error
	return out, err
}

func (e *Engine) GetPayoutHistory(ctx context.Context, bountyID uint64) ([]db.PayoutRecord, error) {
	out := []db.PayoutRecord{}
	err := e.db.WithContext(ctx).Where("bounty_id = ?", bountyID).Order("id asc").Find(&out).Error
	return out, err
}

// GetRefundApproval returns the pending approval for bountyID, or nil.
func (e *Engine) GetRefundApproval(ctx context.Context, bountyID uint64) (*types.RefundApproval, error) {
	approval, err := loadApproval(e.db.WithContext(ctx), bountyID)
	if err != nil {
		return nil, err
	}
	return toRefundApproval(approval), nil
}

func (e *Engine) GetContractState(ctx context.Context) (types.ContractState, error) {
	inst, ok := e.state.GetInstance()
	if !ok {
		return types.ContractState{}, types.ErrNotInitialized
	}
	return types.ContractState{
		Admin:            inst.Admin,
		Token:            inst.Token,
		PayoutKey:        inst.PayoutKey,
		Custody:          e.custody,
		IsPaused:         inst.Paused,
		PauseReason:      inst.PauseReason,
		TimeLockDuration: inst.TimeLockDuration,
		ConfigLimits:     configLimits(&inst),
		FeeConfig:        feeConfig(&inst),
		ContractVersion:  inst.ContractVersion,
	}, nil
}

// GetBounties walks the registry in insertion order, skips the first
// StartIndex matches and returns up to Limit more.
func (e *Engine) GetBounties(ctx context.Context, filter types.BountyFilter, page types.Pagination) ([]db.Escrow, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if filter.Depositor != nil {
		addr, err := types.NormalizeAddress(*filter.Depositor)
		if err != nil {
			return nil, err
		}
		filter.Depositor = &addr
	}

	candidates := e.index.Candidates(filter.Status, filter.Depositor)
	out := make([]db.Escrow, 0)
	skip := page.StartIndex
	conn := e.db.WithContext(ctx)
	for start := 0; start < len(candidates) && len(out) < limit; start += queryChunk {
		end := start + queryChunk
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[start:end]
		var rows []db.Escrow
		if err := conn.Where("bounty_id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		byID := make(map[uint64]db.Escrow, len(rows))
		for _, r := range rows {
			byID[r.BountyID] = r
		}
		for _, id := range chunk {
			row, ok := byID[id]
			if !ok || !matches(row, filter) {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			out = append(out, row)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func matches(esc db.Escrow, f types.BountyFilter) bool {
	if f.Status != nil && esc.Status != string(*f.Status) {
		return false
	}
	if f.Depositor != nil && esc.Depositor != *f.Depositor {
		return false
	}
	if f.MinAmount != nil && esc.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && esc.Amount > *f.MaxAmount {
		return false
	}
	if f.StartDeadline != nil && esc.Deadline < *f.StartDeadline {
		return false
	}
	if f.EndDeadline != nil && esc.Deadline > *f.EndDeadline {
		return false
	}
	return true
}

// GetStats aggregates over every bounty ever locked. Sums use arbitrary
// precision so they never overflow.
func (e *Engine) GetStats(ctx context.Context) (types.Stats, error) {
	conn := e.db.WithContext(ctx)

	var locked []int64
	nonTerminal := []string{string(types.StatusLocked), string(types.StatusPartiallyReleased), string(types.StatusPartiallyRefunded)}
	if err := conn.Model(&db.Escrow{}).Where("status IN ?", nonTerminal).Pluck("remaining_amount", &locked).Error; err != nil {
		return types.Stats{}, err
	}
	var released []int64
	if err := conn.Model(&db.PayoutRecord{}).Pluck("amount", &released).Error; err != nil {
		return types.Stats{}, err
	}
	var refunded []int64
	if err := conn.Model(&db.RefundRecord{}).Pluck("amount", &refunded).Error; err != nil {
		return types.Stats{}, err
	}
	var total int64
	if err := conn.Model(&db.RegistryEntry{}).Count(&total).Error; err != nil {
		return types.Stats{}, err
	}

	return types.Stats{
		TotalBounties:       total,
		TotalLockedAmount:   sum(locked).String(),
		TotalReleasedAmount: sum(released).String(),
		TotalRefundedAmount: sum(refunded).String(),
		CountByStatus:       e.index.CountByStatus(),
	}, nil
}

func sum(values []int64) sdkmath.Int {
	acc := sdkmath.ZeroInt()
	for _, v := range values {
		acc = acc.AddRaw(v)
	}
	return acc
}
