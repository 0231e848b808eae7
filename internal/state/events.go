package state

import (
	"github.com/google/uuid"
)

// Event is the notification record handed to subscribers after an operation
// commits. Data holds one of the payload structs below.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"-"`
	Name      string      `json:"name"`
	Timestamp uint64      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(t EventType, ts uint64, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Name:      t.Topic(),
		Timestamp: ts,
		Data:      data,
	}
}

type InitializedData struct {
	Admin string `json:"admin"`
	Token string `json:"token"`
}

type FundsLockedData struct {
	BountyID  uint64 `json:"bounty_id"`
	Amount    int64  `json:"amount"`
	Depositor string `json:"depositor"`
	Deadline  uint64 `json:"deadline"`
}

type FundsReleasedData struct {
	BountyID        uint64 `json:"bounty_id"`
	Amount          int64  `json:"amount"`
	Recipient       string `json:"recipient"`
	RemainingAmount int64  `json:"remaining_amount"`
}

type FundsRefundedData struct {
	BountyID        uint64 `json:"bounty_id"`
	Amount          int64  `json:"amount"`
	RefundTo        string `json:"refund_to"`
	Mode            string `json:"mode"`
	RemainingAmount int64  `json:"remaining_amount"`
}

type FeeCollectedData struct {
	OperationType string `json:"operation_type"` // "lock", "release"
	Amount        int64  `json:"amount"`
	FeeRate       int64  `json:"fee_rate"`
	Recipient     string `json:"recipient"`
}

type BatchData struct {
	Count       uint32 `json:"count"`
	TotalAmount int64  `json:"total_amount"`
}

type FeeConfigData struct {
	LockFeeRate    int64  `json:"lock_fee_rate"`
	ReleaseFeeRate int64  `json:"release_fee_rate"`
	FeeRecipient   string `json:"fee_recipient"`
	FeeEnabled     bool   `json:"fee_enabled"`
}

type PauseData struct {
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

type EmergencyWithdrawData struct {
	By        string `json:"by"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

type AddressChangeData struct {
	Old string `json:"old"`
	New string `json:"new"`
	By  string `json:"by"`
}

type ConfigLimitsData struct {
	MinBountyAmount     int64  `json:"min_bounty_amount"`
	MaxBountyAmount     int64  `json:"max_bounty_amount"`
	MinDeadlineDuration uint64 `json:"min_deadline_duration"`
	MaxDeadlineDuration uint64 `json:"max_deadline_duration"`
	By                  string `json:"by"`
}

type AdminActionData struct {
	ActionID      uint64 `json:"action_id"`
	Kind          string `json:"kind"`
	By            string `json:"by"`
	ExecutionTime uint64 `json:"execution_time,omitempty"`
}

type ScheduleData struct {
	BountyID         uint64 `json:"bounty_id"`
	ScheduleID       uint64 `json:"schedule_id"`
	Amount           int64  `json:"amount"`
	Recipient        string `json:"recipient"`
	ReleaseTimestamp uint64 `json:"release_timestamp,omitempty"`
	By               string `json:"by"`
	ReleaseType      string `json:"release_type,omitempty"`
}
