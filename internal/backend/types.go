// Package backend talks to the bot-orchestration API that actually
// holds exchange connectivity. The gateway never speaks an exchange
// protocol itself; everything goes through this one HTTP/WS surface.
package backend

import (
	"time"

	"github.com/shopspring/decimal"
)

type AssetBalance struct {
	Exchange string          `json:"exchange"`
	Asset    string          `json:"asset"`
	Free     decimal.Decimal `json:"free"`
	Locked   decimal.Decimal `json:"locked"`
}

type BalanceSnapshot struct {
	ClientID  string         `json:"client_id"`
	Balances  []AssetBalance `json:"balances"`
	FetchedAt time.Time      `json:"fetched_at"`
}

type OrderSubmission struct {
	ClientID string          `json:"client_id"`
	Exchange string          `json:"exchange"`
	Pair     string          `json:"pair"`
	Side     string          `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type OrderAck struct {
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Trade struct {
	OrderID    string          `json:"order_id"`
	Exchange   string          `json:"exchange"`
	Pair       string          `json:"pair"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}
