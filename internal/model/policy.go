package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

type ClientStatus string

const (
	StatusActive    ClientStatus = "active"
	StatusSuspended ClientStatus = "suspended"
)

// ClientPolicy is the authorization boundary for one client. The gateway
// consults it on every evaluation; it is replaced whole on update so a
// reader never observes a half-applied edit.
type ClientPolicy struct {
	ClientID         string          `json:"client_id" gorm:"primaryKey;size:64"`
	AllowedExchanges []string        `json:"allowed_exchanges" gorm:"serializer:json"`
	AllowedPairs     []string        `json:"allowed_pairs" gorm:"serializer:json"`
	MaxSpreadPercent decimal.Decimal `json:"max_spread_percent" gorm:"type:numeric(12,6)"`
	MaxDailyVolume   decimal.Decimal `json:"max_daily_volume" gorm:"type:numeric(24,8)"`
	Role             Role            `json:"role" gorm:"size:16"`
	Status           ClientStatus    `json:"status" gorm:"size:16"`
	RateTier         string          `json:"rate_tier" gorm:"size:32"`
}

// AllowsExchange reports set membership; exchanges are stored lower-case.
func (p *ClientPolicy) AllowsExchange(exchange string) bool {
	exchange = strings.ToLower(exchange)
	for _, e := range p.AllowedExchanges {
		if e == exchange {
			return true
		}
	}
	return false
}

// AllowsPair reports set membership; pairs are stored upper-case BASE-QUOTE.
func (p *ClientPolicy) AllowsPair(pair string) bool {
	pair = strings.ToUpper(pair)
	for _, pr := range p.AllowedPairs {
		if pr == pair {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hold a policy across an
// evaluation while writers replace the stored one.
func (p *ClientPolicy) Clone() *ClientPolicy {
	cp := *p
	cp.AllowedExchanges = append([]string(nil), p.AllowedExchanges...)
	cp.AllowedPairs = append([]string(nil), p.AllowedPairs...)
	return &cp
}
