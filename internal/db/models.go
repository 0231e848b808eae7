package db

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// InstanceState model (only 1 record), the contract-wide configuration
type InstanceState struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Admin               string    `gorm:"not null" json:"admin"`
	Token               string    `gorm:"not null" json:"token"`
	PayoutKey           string    `json:"payout_key"`
	Paused              bool      `gorm:"not null" json:"paused"`
	PauseReason         string    `json:"pause_reason"`
	TimeLockDuration    uint64    `gorm:"not null" json:"time_lock_duration"`
	NextActionID        uint64    `gorm:"not null" json:"next_action_id"`
	LockFeeRate         int64     `gorm:"not null" json:"lock_fee_rate"`
	ReleaseFeeRate      int64     `gorm:"not null" json:"release_fee_rate"`
	FeeRecipient        string    `json:"fee_recipient"`
	FeeEnabled          bool      `gorm:"not null" json:"fee_enabled"`
	MinBountyAmount     int64     `gorm:"not null" json:"min_bounty_amount"`
	MaxBountyAmount     int64     `gorm:"not null" json:"max_bounty_amount"`
	MinDeadlineDuration uint64    `gorm:"not null" json:"min_deadline_duration"`
	MaxDeadlineDuration uint64    `gorm:"not null" json:"max_deadline_duration"`
	ContractVersion     uint32    `gorm:"not null" json:"contract_version"`
	InitializedAt       uint64    `gorm:"not null" json:"initialized_at"`
	UpdatedAt           time.Time `gorm:"not null" json:"updated_at"`
}

// Escrow model, one per bounty id, never deleted
type Escrow struct {
	BountyID        uint64    `gorm:"primaryKey;autoIncrement:false" json:"bounty_id"`
	Depositor       string    `gorm:"not null;index" json:"depositor"`
	Amount          int64     `gorm:"not null" json:"amount"`           // net value held at lock
	RemainingAmount int64     `gorm:"not null" json:"remaining_amount"` // still releasable or refundable
	Status          string    `gorm:"not null;index" json:"status"`     // "locked", "partially_released", "released", "partially_refunded", "refunded"
	Deadline        uint64    `gorm:"not null" json:"deadline"`
	CreatedAt       uint64    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// RefundRecord model, append-only
type RefundRecord struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	BountyID  uint64 `gorm:"not null;index" json:"bounty_id"`
	Amount    int64  `gorm:"not null" json:"amount"`
	Recipient string `gorm:"not null" json:"recipient"`
	Mode      string `gorm:"not null" json:"mode"`
	Timestamp uint64 `gorm:"not null" json:"timestamp"`
}

// PayoutRecord model, append-only
type PayoutRecord struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	BountyID   uint64 `gorm:"not null;index" json:"bounty_id"`
	Amount     int64  `gorm:"not null" json:"amount"` // gross payout, includes fee
	Fee        int64  `gorm:"not null" json:"fee"`
	Recipient  string `gorm:"not null" json:"recipient"`
	Source     string `gorm:"not null" json:"source"` // "release", "schedule"
	ScheduleID uint64 `json:"schedule_id,omitempty"`
	Timestamp  uint64 `gorm:"not null" json:"timestamp"`
}

// RefundApproval model, at most one per bounty id
type RefundApproval struct {
	BountyID   uint64 `gorm:"primaryKey;autoIncrement:false" json:"bounty_id"`
	Amount     int64  `gorm:"not null" json:"amount"`
	Recipient  string `gorm:"not null" json:"recipient"`
	Mode       string `gorm:"not null" json:"mode"`
	ApprovedBy string `gorm:"not null" json:"approved_by"`
	ApprovedAt uint64 `gorm:"not null" json:"approved_at"`
}

// AdminAction model, payload is the JSON of the action variant named by Kind
type AdminAction struct {
	ActionID      uint64 `gorm:"primaryKey;autoIncrement:false" json:"action_id"`
	Kind          string `gorm:"not null" json:"kind"`
	Payload       string `gorm:"not null" json:"payload"`
	ProposedBy    string `gorm:"not null" json:"proposed_by"`
	ProposedAt    uint64 `gorm:"not null" json:"proposed_at"`
	ExecutionTime uint64 `gorm:"not null" json:"execution_time"`
	Executed      bool   `gorm:"not null" json:"executed"`
}

// AddressState model, rate limiter state per caller
type AddressState struct {
	Address                string `gorm:"primaryKey" json:"address"`
	LastOperationTimestamp uint64 `gorm:"not null" json:"last_operation_timestamp"`
	WindowStartTimestamp   uint64 `gorm:"not null" json:"window_start_timestamp"`
	OperationCount         uint32 `gorm:"not null" json:"operation_count"`
	ExpiresAt              uint64 `gorm:"not null" json:"expires_at"`
}

// RateLimitConfig model (only 1 record)
type RateLimitConfig struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	WindowSize     uint64 `gorm:"not null" json:"window_size"`
	MaxOperations  uint32 `gorm:"not null" json:"max_operations"`
	CooldownPeriod uint64 `gorm:"not null" json:"cooldown_period"`
}

// RateLimitWhitelist model
type RateLimitWhitelist struct {
	Address string `gorm:"primaryKey" json:"address"`
}

// RegistryEntry model, append-only ordered list of bounty ids
type RegistryEntry struct {
	Seq      uint64 `gorm:"primaryKey;autoIncrement" json:"seq"`
	BountyID uint64 `gorm:"not null;uniqueIndex" json:"bounty_id"`
}

// ReleaseSchedule model
type ReleaseSchedule struct {
	ID               uint   `gorm:"primaryKey" json:"-"`
	BountyID         uint64 `gorm:"not null;uniqueIndex:idx_bounty_schedule" json:"bounty_id"`
	ScheduleID       uint64 `gorm:"not null;uniqueIndex:idx_bounty_schedule" json:"schedule_id"`
	Amount           int64  `gorm:"not null" json:"amount"`
	ReleaseTimestamp uint64 `gorm:"not null" json:"release_timestamp"`
	Recipient        string `gorm:"not null" json:"recipient"`
	Released         bool   `gorm:"not null" json:"released"`
	ReleasedAt       uint64 `json:"released_at,omitempty"`
	ReleasedBy       string `json:"released_by,omitempty"`
}

// ReleaseHistory model, append-only
type ReleaseHistory struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	BountyID    uint64 `gorm:"not null;index" json:"bounty_id"`
	ScheduleID  uint64 `gorm:"not null" json:"schedule_id"`
	Amount      int64  `gorm:"not null" json:"amount"`
	Recipient   string `gorm:"not null" json:"recipient"`
	ReleasedAt  uint64 `gorm:"not null" json:"released_at"`
	ReleasedBy  string `gorm:"not null" json:"released_by"`
	ReleaseType string `gorm:"not null" json:"release_type"` // "automatic", "manual"
}

// TokenBalance model, value-transfer ledger
type TokenBalance struct {
	Token  string `gorm:"primaryKey" json:"token"`
	Holder string `gorm:"primaryKey" json:"holder"`
	Amount int64  `gorm:"not null" json:"amount"`
}

// TokenTransfer model, append-only journal of value movements
type TokenTransfer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"not null;index" json:"token"`
	Sender    string    `gorm:"not null;index" json:"sender"`
	Receiver  string    `gorm:"not null;index" json:"receiver"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Kind      string    `gorm:"not null" json:"kind"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// OperationStat model in the monitor database
type OperationStat struct {
	Operation    string    `gorm:"primaryKey" json:"operation"`
	SuccessCount uint64    `gorm:"not null" json:"success_count"`
	FailureCount uint64    `gorm:"not null" json:"failure_count"`
	LastCaller   string    `json:"last_caller"`
	LastError    string    `json:"last_error"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// OperationCaller model in the monitor database, one row per distinct caller
type OperationCaller struct {
	Address   string    `gorm:"primaryKey" json:"address"`
	FirstSeen time.Time `gorm:"not null" json:"first_seen"`
}

func (dm *DatabaseManager) autoMigrate() {
	if err := dm.escrowDb.AutoMigrate(&InstanceState{}, &Escrow{}, &RefundRecord{}, &PayoutRecord{},
		&RefundApproval{}, &AdminAction{}, &AddressState{}, &RateLimitConfig{}, &RateLimitWhitelist{},
		&RegistryEntry{}, &ReleaseSchedule{}, &ReleaseHistory{}, &TokenBalance{}, &TokenTransfer{}); err != nil {
		log.Fatalf("Failed to migrate escrow database: %v", err)
	}
	if err := dm.monitorDb.AutoMigrate(&OperationStat{}, &OperationCaller{}); err != nil {
		log.Fatalf("Failed to migrate monitor database: %v", err)
	}
}
