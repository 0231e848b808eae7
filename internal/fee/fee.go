package fee

import (
	sdkmath "cosmossdk.io/math"
	"github.com/goatnetwork/goat-escrow/internal/types"
)

const (
	BasisPointsDenominator = 10_000
	MaxFeeRate             = 1_000 // 10%
)

// Compute returns floor(amount * rateBp / 10000) using arbitrary precision
// so amount*rate never overflows.
func Compute(amount, rateBp int64) int64 {
	if amount <= 0 || rateBp <= 0 {
		return 0
	}
	return sdkmath.NewInt(amount).MulRaw(rateBp).QuoRaw(BasisPointsDenominator).Int64()
}

func ValidateRate(rateBp int64) error {
	if rateBp < 0 || rateBp > MaxFeeRate {
		return types.ErrInvalidFeeRate
	}
	return nil
}

// Engine wraps the fee configuration in force for one operation.
type Engine struct {
	cfg types.FeeConfig
}

func NewEngine(cfg types.FeeConfig) Engine {
	return Engine{cfg: cfg}
}

func (e Engine) Config() types.FeeConfig {
	return e.cfg
}

func (e Engine) LockFee(amount int64) int64 {
	if !e.cfg.FeeEnabled {
		return 0
	}
	return Compute(amount, e.cfg.LockFeeRate)
}

func (e Engine) ReleaseFee(amount int64) int64 {
	if !e.cfg.FeeEnabled {
		return 0
	}
	return Compute(amount, e.cfg.ReleaseFeeRate)
}

// Apply returns cfg with the update merged in, validating both rates.
func Apply(cfg types.FeeConfig, u types.FeeConfigUpdate) (types.FeeConfig, error) {
	if u.LockFeeRate != nil {
		if err := ValidateRate(*u.LockFeeRate); err != nil {
			return cfg, err
		}
		cfg.LockFeeRate = *u.LockFeeRate
	}
	if u.ReleaseFeeRate != nil {
		if err := ValidateRate(*u.ReleaseFeeRate); err != nil {
			return cfg, err
		}
		cfg.ReleaseFeeRate = *u.ReleaseFeeRate
	}
	if u.FeeRecipient != nil {
		addr, err := types.NormalizeAddress(*u.FeeRecipient)
		if err != nil {
			return cfg, err
		}
		cfg.FeeRecipient = addr
	}
	if u.FeeEnabled != nil {
		cfg.FeeEnabled = *u.FeeEnabled
	}
	return cfg, nil
}
