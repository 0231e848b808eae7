package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

type EscrowStatus string

const (
	StatusLocked            EscrowStatus = "locked"
	StatusPartiallyReleased EscrowStatus = "partially_released"
	StatusReleased          EscrowStatus = "released"
	StatusPartiallyRefunded EscrowStatus = "partially_refunded"
	StatusRefunded          EscrowStatus = "refunded"
)

var AllStatuses = []EscrowStatus{
	StatusLocked, StatusPartiallyReleased, StatusReleased, StatusPartiallyRefunded, StatusRefunded,
}

// IsTerminal reports whether no further release or refund may touch the escrow.
func (s EscrowStatus) IsTerminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

func (s EscrowStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ParseEscrowStatus(s string) (EscrowStatus, error) {
	st := EscrowStatus(strings.ToLower(s))
	if !st.Valid() {
		return "", fmt.Errorf("unknown escrow status %q", s)
	}
	return st, nil
}

type RefundMode string

const (
	RefundFull    RefundMode = "full"
	RefundPartial RefundMode = "partial"
	RefundCustom  RefundMode = "custom"
)

func ParseRefundMode(s string) (RefundMode, error) {
	switch m := RefundMode(strings.ToLower(s)); m {
	case RefundFull, RefundPartial, RefundCustom:
		return m, nil
	}
	return "", fmt.Errorf("unknown refund mode %q", s)
}

func (m *RefundMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRefundMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type ReleaseType string

const (
	ReleaseAutomatic ReleaseType = "automatic"
	ReleaseManual    ReleaseType = "manual"
)

// LockFundsItem is one entry of a batch lock.
type LockFundsItem struct {
	BountyID  uint64 `json:"bounty_id"`
	Depositor string `json:"depositor"`
	Amount    int64  `json:"amount"`
	Deadline  uint64 `json:"deadline"`
}

// ReleaseFundsItem is one entry of a batch release. A zero Amount releases
// the whole remaining balance.
type ReleaseFundsItem struct {
	BountyID  uint64 `json:"bounty_id"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount,omitempty"`
}

// ZipReleaseItems builds batch release items from parallel arrays. amounts
// may be empty, meaning full releases.
func ZipReleaseItems(ids []uint64, recipients []string, amounts []int64) ([]ReleaseFundsItem, error) {
	if len(ids) != len(recipients) || (len(amounts) != 0 && len(amounts) != len(ids)) {
		return nil, ErrBatchSizeMismatch
	}
	items := make([]ReleaseFundsItem, len(ids))
	for i := range ids {
		items[i] = ReleaseFundsItem{BountyID: ids[i], Recipient: recipients[i]}
		if len(amounts) != 0 {
			items[i].Amount = amounts[i]
		}
	}
	return items, nil
}

// ZipLockItems builds batch lock items from parallel arrays.
func ZipLockItems(ids []uint64, depositors []string, amounts []int64, deadlines []uint64) ([]LockFundsItem, error) {
	n := len(ids)
	if len(depositors) != n || len(amounts) != n || len(deadlines) != n {
		return nil, ErrBatchSizeMismatch
	}
	items := make([]LockFundsItem, n)
	for i := 0; i < n; i++ {
		items[i] = LockFundsItem{BountyID: ids[i], Depositor: depositors[i], Amount: amounts[i], Deadline: deadlines[i]}
	}
	return items, nil
}

// BountyFilter is a conjunction; nil fields match everything.
type BountyFilter struct {
	Status        *EscrowStatus `json:"status,omitempty"`
	Depositor     *string       `json:"depositor,omitempty"`
	MinAmount     *int64        `json:"min_amount,omitempty"`
	MaxAmount     *int64        `json:"max_amount,omitempty"`
	StartDeadline *uint64       `json:"start_deadline,omitempty"`
	EndDeadline   *uint64       `json:"end_deadline,omitempty"`
}

type Pagination struct {
	StartIndex int `json:"start_index"`
	Limit      int `json:"limit"`
}

type ConfigLimits struct {
	MinBountyAmount     int64  `json:"min_bounty_amount"`
	MaxBountyAmount     int64  `json:"max_bounty_amount"`
	MinDeadlineDuration uint64 `json:"min_deadline_duration"`
	MaxDeadlineDuration uint64 `json:"max_deadline_duration"`
}

// CheckAmount applies the amount bounds; zero bounds are open.
func (l ConfigLimits) CheckAmount(amount int64) error {
	if l.MinBountyAmount > 0 && amount < l.MinBountyAmount {
		return ErrInvalidAmount
	}
	if l.MaxBountyAmount > 0 && amount > l.MaxBountyAmount {
		return ErrInvalidAmount
	}
	return nil
}

func (l ConfigLimits) CheckDuration(d uint64) error {
	if l.MinDeadlineDuration > 0 && d < l.MinDeadlineDuration {
		return ErrInvalidDeadline
	}
	if l.MaxDeadlineDuration > 0 && d > l.MaxDeadlineDuration {
		return ErrInvalidDeadline
	}
	return nil
}

// ConfigLimitsUpdate carries optional replacements for ConfigLimits fields.
type ConfigLimitsUpdate struct {
	MinBountyAmount     *int64  `json:"min_bounty_amount,omitempty"`
	MaxBountyAmount     *int64  `json:"max_bounty_amount,omitempty"`
	MinDeadlineDuration *uint64 `json:"min_deadline_duration,omitempty"`
	MaxDeadlineDuration *uint64 `json:"max_deadline_duration,omitempty"`
}

func (u ConfigLimitsUpdate) Apply(l ConfigLimits) (ConfigLimits, error) {
	if u.MinBountyAmount != nil {
		l.MinBountyAmount = *u.MinBountyAmount
	}
	if u.MaxBountyAmount != nil {
		l.MaxBountyAmount = *u.MaxBountyAmount
	}
	if u.MinDeadlineDuration != nil {
		l.MinDeadlineDuration = *u.MinDeadlineDuration
	}
	if u.MaxDeadlineDuration != nil {
		l.MaxDeadlineDuration = *u.MaxDeadlineDuration
	}
	if l.MinBountyAmount < 0 || l.MaxBountyAmount < 0 ||
		(l.MaxBountyAmount > 0 && l.MinBountyAmount > l.MaxBountyAmount) {
		return l, ErrInvalidAmount
	}
	if l.MaxDeadlineDuration > 0 && l.MinDeadlineDuration > l.MaxDeadlineDuration {
		return l, ErrInvalidDeadline
	}
	return l, nil
}

type FeeConfig struct {
	LockFeeRate    int64  `json:"lock_fee_rate"`
	ReleaseFeeRate int64  `json:"release_fee_rate"`
	FeeRecipient   string `json:"fee_recipient"`
	FeeEnabled     bool   `json:"fee_enabled"`
}

// FeeConfigUpdate carries optional replacements for FeeConfig fields.
type FeeConfigUpdate struct {
	LockFeeRate    *int64  `json:"lock_fee_rate,omitempty"`
	ReleaseFeeRate *int64  `json:"release_fee_rate,omitempty"`
	FeeRecipient   *string `json:"fee_recipient,omitempty"`
	FeeEnabled     *bool   `json:"fee_enabled,omitempty"`
}

// RefundEligibility is the read-only answer to "may this escrow be refunded now".
type RefundEligibility struct {
	CanRefund       bool            `json:"can_refund"`
	DeadlinePassed  bool            `json:"deadline_passed"`
	RemainingAmount int64           `json:"remaining_amount"`
	Approval        *RefundApproval `json:"approval,omitempty"`
}

type RefundApproval struct {
	BountyID   uint64     `json:"bounty_id"`
	Amount     int64      `json:"amount"`
	Recipient  string     `json:"recipient"`
	Mode       RefundMode `json:"mode"`
	ApprovedBy string     `json:"approved_by"`
	ApprovedAt uint64     `json:"approved_at"`
}

type Stats struct {
	TotalBounties       int64                  `json:"total_bounties"`
	TotalLockedAmount   string                 `json:"total_locked_amount"`
	TotalReleasedAmount string                 `json:"total_released_amount"`
	TotalRefundedAmount string                 `json:"total_refunded_amount"`
	CountByStatus       map[EscrowStatus]int64 `json:"count_by_status"`
}

type ContractState struct {
	Admin            string       `json:"admin"`
	Token            string       `json:"token"`
	PayoutKey        string       `json:"payout_key"`
	Custody          string       `json:"custody"`
	IsPaused         bool         `json:"is_paused"`
	PauseReason      string       `json:"pause_reason,omitempty"`
	TimeLockDuration uint64       `json:"time_lock_duration"`
	ConfigLimits     ConfigLimits `json:"config_limits"`
	FeeConfig        FeeConfig    `json:"fee_config"`
	ContractVersion  uint32       `json:"contract_version"`
}
