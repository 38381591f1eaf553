package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientRecord is the business record behind a client ID. WalletAddress
// is stored EIP-55 checksummed; the unique indexes back the atomic
// duplicate checks for create_client.
type ClientRecord struct {
	ID            string       `json:"id" gorm:"primaryKey;size:64"`
	Name          string       `json:"name" gorm:"size:128"`
	WalletAddress string       `json:"wallet_address" gorm:"size:64;uniqueIndex"`
	Email         string       `json:"email,omitempty" gorm:"size:128;uniqueIndex:idx_clients_email,where:email <> ''"`
	Status        ClientStatus `json:"status" gorm:"size:16"`
	CreatedAt     time.Time    `json:"created_at"`
}

// PairRecord is one configured trading pair for a client. At most one row
// per (client, exchange, pair).
type PairRecord struct {
	ID                uint            `json:"-" gorm:"primaryKey;autoIncrement"`
	ClientID          string          `json:"client_id" gorm:"size:64;uniqueIndex:idx_pairs_client_exchange_pair,priority:1"`
	Exchange          string          `json:"exchange" gorm:"size:32;uniqueIndex:idx_pairs_client_exchange_pair,priority:2"`
	TradingPair       string          `json:"trading_pair" gorm:"size:32;uniqueIndex:idx_pairs_client_exchange_pair,priority:3"`
	SpreadTarget      decimal.Decimal `json:"spread_target" gorm:"type:numeric(12,6)"`
	VolumeTargetDaily decimal.Decimal `json:"volume_target_daily" gorm:"type:numeric(24,8)"`
	Status            string          `json:"status" gorm:"size:16"`
	CreatedAt         time.Time       `json:"created_at"`
}
