package db

const (
	PAYOUT_SOURCE_RELEASE  = "release"
	PAYOUT_SOURCE_SCHEDULE = "schedule"

	TRANSFER_KIND_LOCK      = "lock"
	TRANSFER_KIND_FEE       = "fee"
	TRANSFER_KIND_RELEASE   = "release"
	TRANSFER_KIND_REFUND    = "refund"
	TRANSFER_KIND_EMERGENCY = "emergency"
	TRANSFER_KIND_MINT      = "mint"

	INSTANCE_ID      = 1
	CONTRACT_VERSION = 1
)
