package types

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipReleaseItems(t *testing.T) {
	items, err := ZipReleaseItems([]uint64{1, 2}, []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int64(0), items[1].Amount)

	items, err = ZipReleaseItems([]uint64{1, 2}, []string{"a", "b"}, []int64{5, 6})
	require.NoError(t, err)
	assert.Equal(t, int64(6), items[1].Amount)

	_, err = ZipReleaseItems([]uint64{1, 2}, []string{"a"}, nil)
	assert.True(t, errors.Is(err, ErrBatchSizeMismatch))

	_, err = ZipReleaseItems([]uint64{1, 2}, []string{"a", "b"}, []int64{1})
	assert.True(t, errors.Is(err, ErrBatchSizeMismatch))
}

func TestZipLockItems(t *testing.T) {
	_, err := ZipLockItems([]uint64{1}, []string{"a"}, []int64{1, 2}, []uint64{9})
	assert.ErrorIs(t, err, ErrBatchSizeMismatch)

	items, err := ZipLockItems([]uint64{1}, []string{"a"}, []int64{100}, []uint64{9})
	require.NoError(t, err)
	assert.Equal(t, LockFundsItem{BountyID: 1, Depositor: "a", Amount: 100, Deadline: 9}, items[0])
}

func TestErrorTaxonomy(t *testing.T) {
	assert.Equal(t, uint32(1), ErrAlreadyInitialized.Code)
	assert.Equal(t, uint32(13), ErrRefundNotApproved.Code)
	assert.Equal(t, "escrow error 4: BountyNotFound", ErrBountyNotFound.Error())
	assert.True(t, ErrReentrancy.IsFatal())
	assert.True(t, ErrUnauthorized.IsFatal())
	assert.False(t, ErrInvalidAmount.IsFatal())
	assert.Equal(t, http.StatusNotFound, ErrBountyNotFound.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, ErrRateLimited.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, ErrInvalidFeeRate.HTTPStatus())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusReleased.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.False(t, StatusPartiallyRefunded.IsTerminal())

	st, err := ParseEscrowStatus("LOCKED")
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, st)
	_, err = ParseEscrowStatus("gone")
	assert.Error(t, err)
}

func TestRefundModeJSON(t *testing.T) {
	var body struct {
		Mode RefundMode `json:"mode"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"Custom"}`), &body))
	assert.Equal(t, RefundCustom, body.Mode)
	assert.Error(t, json.Unmarshal([]byte(`{"mode":"half"}`), &body))
}

func TestConfigLimits(t *testing.T) {
	lo, hi := int64(10), int64(100)
	limits, err := ConfigLimitsUpdate{MinBountyAmount: &lo, MaxBountyAmount: &hi}.Apply(ConfigLimits{})
	require.NoError(t, err)
	assert.ErrorIs(t, limits.CheckAmount(9), ErrInvalidAmount)
	assert.ErrorIs(t, limits.CheckAmount(101), ErrInvalidAmount)
	assert.NoError(t, limits.CheckAmount(100))
	assert.NoError(t, limits.CheckDuration(1<<40))

	_, err = ConfigLimitsUpdate{MinBountyAmount: &hi, MaxBountyAmount: &lo}.Apply(ConfigLimits{})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAdminActionRoundTrip(t *testing.T) {
	rate := int64(250)
	actions := []AdminActionType{
		UpdateAdmin{NewAdmin: "0x01"},
		UpdatePayoutKey{NewPayoutKey: "0x02"},
		UpdateConfigLimits{Limits: ConfigLimitsUpdate{MinBountyAmount: &rate}},
		UpdateFeeConfig{Update: FeeConfigUpdate{LockFeeRate: &rate}},
	}
	for _, a := range actions {
		kind, payload, err := EncodeAdminAction(a)
		require.NoError(t, err)
		decoded, err := DecodeAdminAction(kind, payload)
		require.NoError(t, err)
		assert.Equal(t, a, decoded)
	}

	_, err := DecodeAdminAction("drop_table", "{}")
	assert.Error(t, err)

	out, err := json.Marshal(AdminAction{ActionID: 1, ActionType: UpdateAdmin{NewAdmin: "0x01"}})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"action_kind":"update_admin"`)
	assert.Contains(t, string(out), `"new_admin":"0x01"`)
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := NormalizeAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	require.NoError(t, err)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", addr)
	assert.True(t, SameAddress(addr, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"))

	_, err = NormalizeAddress("goat1xyz")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	derived, err := PrivateKeyToAddress("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", derived)
}
