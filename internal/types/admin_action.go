package types

import (
	"encoding/json"
	"fmt"
)

const (
	ActionKindUpdateAdmin        = "update_admin"
	ActionKindUpdatePayoutKey    = "update_payout_key"
	ActionKindUpdateConfigLimits = "update_config_limits"
	ActionKindUpdateFeeConfig    = "update_fee_config"
)

// AdminActionType is the closed set of configuration changes that may be
// queued behind the time lock. Implementations live in this file only.
type AdminActionType interface {
	Kind() string
	adminAction()
}

type UpdateAdmin struct {
	NewAdmin string `json:"new_admin"`
}

type UpdatePayoutKey struct {
	NewPayoutKey string `json:"new_payout_key"`
}

type UpdateConfigLimits struct {
	Limits ConfigLimitsUpdate `json:"limits"`
}

type UpdateFeeConfig struct {
	Update FeeConfigUpdate `json:"update"`
}

func (UpdateAdmin) Kind() string        { return ActionKindUpdateAdmin }
func (UpdatePayoutKey) Kind() string    { return ActionKindUpdatePayoutKey }
func (UpdateConfigLimits) Kind() string { return ActionKindUpdateConfigLimits }
func (UpdateFeeConfig) Kind() string    { return ActionKindUpdateFeeConfig }

func (UpdateAdmin) adminAction()        {}
func (UpdatePayoutKey) adminAction()    {}
func (UpdateConfigLimits) adminAction() {}
func (UpdateFeeConfig) adminAction()    {}

// AdminAction is a queued governance item.
type AdminAction struct {
	ActionID      uint64          `json:"action_id"`
	ActionType    AdminActionType `json:"-"`
	ProposedBy    string          `json:"proposed_by"`
	ProposedAt    uint64          `json:"proposed_at"`
	ExecutionTime uint64          `json:"execution_time"`
	Executed      bool            `json:"executed"`
}

func (a AdminAction) MarshalJSON() ([]byte, error) {
	type plain AdminAction
	payload, err := json.Marshal(a.ActionType)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		plain
		Kind    string          `json:"action_kind"`
		Payload json.RawMessage `json:"action_payload"`
	}{plain(a), a.ActionType.Kind(), payload})
}

// EncodeAdminAction returns the kind tag and JSON payload used for storage.
func EncodeAdminAction(a AdminActionType) (string, string, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return "", "", err
	}
	return a.Kind(), string(payload), nil
}

func DecodeAdminAction(kind, payload string) (AdminActionType, error) {
	var (
		action AdminActionType
		err    error
	)
	switch kind {
	case ActionKindUpdateAdmin:
		var v UpdateAdmin
		err = json.Unmarshal([]byte(payload), &v)
		action = v
	case ActionKindUpdatePayoutKey:
		var v UpdatePayoutKey
		err = json.Unmarshal([]byte(payload), &v)
		action = v
	case ActionKindUpdateConfigLimits:
		var v UpdateConfigLimits
		err = json.Unmarshal([]byte(payload), &v)
		action = v
	case ActionKindUpdateFeeConfig:
		var v UpdateFeeConfig
		err = json.Unmarshal([]byte(payload), &v)
		action = v
	default:
		return nil, fmt.Errorf("unknown admin action kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return action, nil
}
