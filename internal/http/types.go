package http

import (
	"github.com/goatnetwork/goat-escrow/internal/types"
)

type InitRequest struct {
	Admin string `json:"admin" binding:"required"`
	Token string `json:"token" binding:"required"`
}

type LockRequest struct {
	BountyID  uint64 `json:"bounty_id"`
	Depositor string `json:"depositor" binding:"required"`
	Amount    int64  `json:"amount"`
	Deadline  uint64 `json:"deadline"`
}

// BatchLockRequest carries parallel arrays, one entry per bounty.
type BatchLockRequest struct {
	BountyIDs  []uint64 `json:"bounty_ids"`
	Depositors []string `json:"depositors"`
	Amounts    []int64  `json:"amounts"`
	Deadlines  []uint64 `json:"deadlines"`
}

type ReleaseRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Amount    *int64 `json:"amount,omitempty"`
}

// BatchReleaseRequest carries parallel arrays. Amounts may be omitted for
// full releases.
type BatchReleaseRequest struct {
	BountyIDs  []uint64 `json:"bounty_ids"`
	Recipients []string `json:"recipients"`
	Amounts    []int64  `json:"amounts,omitempty"`
}

type ApproveRefundRequest struct {
	Amount    int64            `json:"amount"`
	Recipient string           `json:"recipient" binding:"required"`
	Mode      types.RefundMode `json:"mode" binding:"required"`
}

type RefundRequest struct {
	Amount    *int64           `json:"amount,omitempty"`
	Recipient *string          `json:"recipient,omitempty"`
	Mode      types.RefundMode `json:"mode" binding:"required"`
}

type ScheduleRequest struct {
	Amount           int64  `json:"amount"`
	ReleaseTimestamp uint64 `json:"release_timestamp"`
	Recipient        string `json:"recipient" binding:"required"`
}

type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

type TimeLockRequest struct {
	Seconds uint64 `json:"seconds"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type WhitelistRequest struct {
	Address     string `json:"address" binding:"required"`
	Whitelisted bool   `json:"whitelisted"`
}

type FaucetRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  int64  `json:"amount"`
}

// ActionResponse reports a config change; ActionID is zero when the change
// was applied immediately.
type ActionResponse struct {
	ActionID uint64 `json:"action_id"`
	Queued   bool   `json:"queued"`
}

type LedgerResponse struct {
	Holder  string      `json:"holder"`
	Balance int64       `json:"balance"`
	History interface{} `json:"history"`
}
