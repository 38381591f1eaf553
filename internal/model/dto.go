package model

import "github.com/shopspring/decimal"

// OrderRequest represents the incoming JSON body for order placement.
type OrderRequest struct {
	Exchange string          `json:"exchange" binding:"required"`
	Pair     string          `json:"pair" binding:"required"`
	Side     string          `json:"side" binding:"required,oneof=buy sell BUY SELL"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Price    decimal.Decimal `json:"price" binding:"required"`
}

// CreateClientRequest is the admin payload for onboarding a client.
type CreateClientRequest struct {
	Name          string `json:"name" binding:"required"`
	WalletAddress string `json:"wallet_address" binding:"required"`
	Email         string `json:"email,omitempty"`
}

// CreatePairRequest configures one trading pair for a client.
type CreatePairRequest struct {
	Exchange          string          `json:"exchange" binding:"required"`
	Pair              string          `json:"pair" binding:"required"`
	SpreadTarget      decimal.Decimal `json:"spread_target,omitempty"`
	VolumeTargetDaily decimal.Decimal `json:"volume_target_daily,omitempty"`
}

// DeletePairRequest names the pair to remove.
type DeletePairRequest struct {
	Exchange string `json:"exchange" binding:"required"`
	Pair     string `json:"pair" binding:"required"`
}

// SetSpreadRequest updates the live spread for a client's pair.
type SetSpreadRequest struct {
	Exchange string          `json:"exchange" binding:"required"`
	Pair     string          `json:"pair" binding:"required"`
	Spread   decimal.Decimal `json:"spread" binding:"required"`
}

// SetVolumeTargetRequest updates the daily volume target for a pair.
type SetVolumeTargetRequest struct {
	Exchange string          `json:"exchange" binding:"required"`
	Pair     string          `json:"pair" binding:"required"`
	Target   decimal.Decimal `json:"target" binding:"required"`
}

// PolicyRequest is the admin payload for writing a client policy.
type PolicyRequest struct {
	AllowedExchanges []string        `json:"allowed_exchanges"`
	AllowedPairs     []string        `json:"allowed_pairs"`
	MaxSpreadPercent decimal.Decimal `json:"max_spread_percent"`
	MaxDailyVolume   decimal.Decimal `json:"max_daily_volume"`
	Role             Role            `json:"role,omitempty"`
	Status           ClientStatus    `json:"status,omitempty"`
	RateTier         string          `json:"rate_tier,omitempty"`
}
