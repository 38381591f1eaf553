package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAllowsExchangeCaseInsensitive(t *testing.T) {
	p := &ClientPolicy{AllowedExchanges: []string{"binance", "kraken"}}

	for _, ex := range []string{"binance", "BINANCE", "Kraken"} {
		if !p.AllowsExchange(ex) {
			t.Fatalf("%q should be allowed", ex)
		}
	}
	if p.AllowsExchange("okx") {
		t.Fatalf("okx is not in the grant")
	}
	if p.AllowsExchange("") {
		t.Fatalf("empty exchange must not match")
	}
}

func TestAllowsPairCaseInsensitive(t *testing.T) {
	p := &ClientPolicy{AllowedPairs: []string{"BTC-USDT", "ETH-USD"}}

	for _, pair := range []string{"BTC-USDT", "btc-usdt", "Eth-Usd"} {
		if !p.AllowsPair(pair) {
			t.Fatalf("%q should be allowed", pair)
		}
	}
	if p.AllowsPair("DOGE-USDT") {
		t.Fatalf("DOGE-USDT is not in the grant")
	}
}

func TestPolicyCloneIsIndependent(t *testing.T) {
	orig := &ClientPolicy{
		ClientID:         "client-1",
		AllowedExchanges: []string{"binance"},
		AllowedPairs:     []string{"BTC-USDT"},
		MaxSpreadPercent: decimal.NewFromFloat(0.5),
		Status:           StatusActive,
	}

	cp := orig.Clone()
	cp.AllowedExchanges[0] = "okx"
	cp.AllowedPairs = append(cp.AllowedPairs, "ETH-USD")
	cp.Status = StatusSuspended

	if orig.AllowedExchanges[0] != "binance" {
		t.Fatalf("clone shares the exchanges slice")
	}
	if len(orig.AllowedPairs) != 1 {
		t.Fatalf("clone shares the pairs slice")
	}
	if orig.Status != StatusActive {
		t.Fatalf("clone shares scalar state")
	}
}

func TestActionKindMutating(t *testing.T) {
	reads := []ActionKind{KindReadBalance, KindReadHistory}
	for _, k := range reads {
		if k.Mutating() {
			t.Fatalf("%s must not be mutating", k)
		}
	}

	mutations := []ActionKind{
		KindPlaceOrder, KindCancelOrder, KindSetSpread, KindSetVolumeTarget,
		KindCreateClient, KindCreatePair, KindDeletePair,
	}
	for _, k := range mutations {
		if !k.Mutating() {
			t.Fatalf("%s must be mutating", k)
		}
	}
}

func TestActionKindAdminOnly(t *testing.T) {
	adminOnly := []ActionKind{
		KindCreateClient, KindCreatePair, KindDeletePair, KindSetSpread, KindSetVolumeTarget,
	}
	for _, k := range adminOnly {
		if !k.AdminOnly() {
			t.Fatalf("%s must be admin-only", k)
		}
	}

	clientReachable := []ActionKind{KindReadBalance, KindReadHistory, KindPlaceOrder, KindCancelOrder}
	for _, k := range clientReachable {
		if k.AdminOnly() {
			t.Fatalf("%s must be reachable by clients", k)
		}
	}
}

func TestActionKindKnown(t *testing.T) {
	if !KindPlaceOrder.Known() {
		t.Fatalf("place_order is part of the vocabulary")
	}
	for _, k := range []ActionKind{"", "explode", "READ_BALANCE"} {
		if k.Known() {
			t.Fatalf("%q should be unknown", k)
		}
	}
}
