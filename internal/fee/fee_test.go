package fee

import (
	"math"
	"testing"

	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	cases := []struct {
		amount, rate, want int64
	}{
		{10_000, 100, 100},
		{9_999, 100, 99},
		{1, 1_000, 0},
		{10, 1_000, 1},
		{0, 500, 0},
		{1_000, 0, 0},
		// amount*rate overflows int64 without wide arithmetic
		{math.MaxInt64, 1_000, math.MaxInt64 / 10},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Compute(c.amount, c.rate), "amount=%d rate=%d", c.amount, c.rate)
	}
}

func TestValidateRate(t *testing.T) {
	assert.NoError(t, ValidateRate(0))
	assert.NoError(t, ValidateRate(MaxFeeRate))
	assert.ErrorIs(t, ValidateRate(MaxFeeRate+1), types.ErrInvalidFeeRate)
	assert.ErrorIs(t, ValidateRate(-1), types.ErrInvalidFeeRate)
}

func TestEngineDisabled(t *testing.T) {
	e := NewEngine(types.FeeConfig{LockFeeRate: 500, ReleaseFeeRate: 500, FeeEnabled: false})
	assert.Equal(t, int64(0), e.LockFee(10_000))
	assert.Equal(t, int64(0), e.ReleaseFee(10_000))

	e = NewEngine(types.FeeConfig{LockFeeRate: 500, ReleaseFeeRate: 250, FeeEnabled: true})
	assert.Equal(t, int64(500), e.LockFee(10_000))
	assert.Equal(t, int64(250), e.ReleaseFee(10_000))
}

func TestApply(t *testing.T) {
	lock, bad := int64(300), int64(1_001)
	enabled := true
	recipient := "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"

	cfg, err := Apply(types.FeeConfig{}, types.FeeConfigUpdate{LockFeeRate: &lock, FeeEnabled: &enabled, FeeRecipient: &recipient})
	require.NoError(t, err)
	assert.Equal(t, int64(300), cfg.LockFeeRate)
	assert.True(t, cfg.FeeEnabled)
	assert.Equal(t, "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", cfg.FeeRecipient)

	_, err = Apply(cfg, types.FeeConfigUpdate{ReleaseFeeRate: &bad})
	assert.ErrorIs(t, err, types.ErrInvalidFeeRate)
}
