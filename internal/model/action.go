package model

import (
	"github.com/shopspring/decimal"
)

type ActionKind string

const (
	KindReadBalance     ActionKind = "read_balance"
	KindReadHistory     ActionKind = "read_history"
	KindPlaceOrder      ActionKind = "place_order"
	KindCancelOrder     ActionKind = "cancel_order"
	KindSetSpread       ActionKind = "set_spread"
	KindSetVolumeTarget ActionKind = "set_volume_target"
	KindCreateClient    ActionKind = "create_client"
	KindCreatePair      ActionKind = "create_pair"
	KindDeletePair      ActionKind = "delete_pair"
)

// Mutating reports whether the kind changes external state. Read kinds
// survive suspension and policy-store outages; mutating kinds do not.
func (k ActionKind) Mutating() bool {
	switch k {
	case KindReadBalance, KindReadHistory:
		return false
	default:
		return true
	}
}

// AdminOnly reports whether only admin actors may request the kind.
func (k ActionKind) AdminOnly() bool {
	switch k {
	case KindCreateClient, KindCreatePair, KindDeletePair, KindSetSpread, KindSetVolumeTarget:
		return true
	default:
		return false
	}
}

// Known reports whether k is part of the action vocabulary.
func (k ActionKind) Known() bool {
	switch k {
	case KindReadBalance, KindReadHistory, KindPlaceOrder, KindCancelOrder,
		KindSetSpread, KindSetVolumeTarget, KindCreateClient, KindCreatePair, KindDeletePair:
		return true
	default:
		return false
	}
}

// ActionParams carries the kind-specific arguments. Only the fields the
// kind needs are set; the gateway validates presence per kind.
type ActionParams struct {
	Exchange     string           `json:"exchange,omitempty"`
	Pair         string           `json:"pair,omitempty"`
	Side         string           `json:"side,omitempty"`
	Quantity     decimal.Decimal  `json:"quantity,omitempty"`
	Price        decimal.Decimal  `json:"price,omitempty"`
	OrderID      string           `json:"order_id,omitempty"`
	Spread       decimal.Decimal  `json:"spread,omitempty"`
	VolumeTarget decimal.Decimal  `json:"volume_target,omitempty"`
	HistoryLimit int              `json:"history_limit,omitempty"`
	NewClient    *NewClientParams `json:"new_client,omitempty"`
}

// NewClientParams is the payload for create_client.
type NewClientParams struct {
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
	Email         string `json:"email,omitempty"`
}

// ActionRequest is one gated action as seen by the gateway. RequestID is
// assigned at entry and threads through the audit trail.
type ActionRequest struct {
	RequestID      string       `json:"request_id"`
	ActorID        string       `json:"actor_id"`
	ActorRole      Role         `json:"actor_role"`
	Kind           ActionKind   `json:"kind"`
	TargetClientID string       `json:"target_client_id"`
	Params         ActionParams `json:"params"`
}

// ActionResult is what Evaluate returns to the transport layer.
type ActionResult struct {
	RequestID string      `json:"request_id"`
	Outcome   string      `json:"outcome"`
	Data      interface{} `json:"data,omitempty"`
}
