package migrations

import (
	"gorm.io/gorm"
)

// Named migration applied once per database, in order.
type Named struct {
	Name string
	Fn   func(*gorm.DB) error
}

var EscrowMigrations = []Named{
	{Name: "20241020_escrow_status_deadline_index", Fn: AddEscrowStatusDeadlineIndex},
	{Name: "20241020_address_state_expiry_index", Fn: AddAddressStateExpiryIndex},
}

// AddEscrowStatusDeadlineIndex adds the composite index used by refund
// eligibility scans and deadline range filters
func AddEscrowStatusDeadlineIndex(tx *gorm.DB) error {
	return tx.Exec("CREATE INDEX IF NOT EXISTS escrow_status_deadline_index ON escrows (status, deadline)").Error
}

// AddAddressStateExpiryIndex speeds up the janitor sweep of expired limiter state
func AddAddressStateExpiryIndex(tx *gorm.DB) error {
	return tx.Exec("CREATE INDEX IF NOT EXISTS address_state_expiry_index ON address_states (expires_at)").Error
}
