package service

import (
	"testing"
	"time"

	"github.com/pipelabs/pipegate/internal/config"
	"github.com/pipelabs/pipegate/internal/model"
)

func TestTokenRegistrySeedsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Auth: config.AuthConfig{AdminToken: "root-token"},
		Tokens: []config.TokenConfig{
			{Token: "agent-1-token", ActorID: "client-1", Role: "client", RateTier: "pro"},
			{Token: "ops-token", ActorID: "ops", Role: "admin"},
			{Token: "bad-expiry", ActorID: "x", Role: "client", ExpiresAt: "not-a-time"},
		},
	}
	reg := NewTokenRegistry(cfg)
	now := time.Now().UTC()

	admin, ok := reg.Resolve("root-token", now)
	if !ok || admin.Role != model.RoleAdmin {
		t.Fatalf("bootstrap admin token should resolve to an admin")
	}

	client, ok := reg.Resolve("agent-1-token", now)
	if !ok || client.ID != "client-1" || client.RateTier != "pro" {
		t.Fatalf("client token resolved wrong: %+v ok=%v", client, ok)
	}

	if _, ok := reg.Resolve("bad-expiry", now); ok {
		t.Fatalf("token with malformed expiry must not be registered")
	}
}

func TestTokenRegistryExpiry(t *testing.T) {
	reg := NewTokenRegistry(&config.Config{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	reg.Register("short-lived", &model.Actor{
		ID:        "client-9",
		Role:      model.RoleClient,
		ExpiresAt: now.Add(time.Hour),
	})

	if _, ok := reg.Resolve("short-lived", now); !ok {
		t.Fatalf("token should resolve before expiry")
	}
	if _, ok := reg.Resolve("short-lived", now.Add(2*time.Hour)); ok {
		t.Fatalf("expired token must resolve to nothing")
	}
}

func TestTokenRegistryRevoke(t *testing.T) {
	reg := NewTokenRegistry(&config.Config{})
	now := time.Now().UTC()

	reg.Register("tok", &model.Actor{ID: "c", Role: model.RoleClient})
	reg.Revoke("tok")
	if _, ok := reg.Resolve("tok", now); ok {
		t.Fatalf("revoked token must not resolve")
	}
}

func TestTokenRegistryUnknownAndEmpty(t *testing.T) {
	reg := NewTokenRegistry(&config.Config{})
	now := time.Now().UTC()

	if _, ok := reg.Resolve("never-issued", now); ok {
		t.Fatalf("unknown token must not resolve")
	}
	if _, ok := reg.Resolve("", now); ok {
		t.Fatalf("empty token must not resolve")
	}
	if _, ok := reg.Resolve("   ", now); ok {
		t.Fatalf("blank token must not resolve")
	}
}

func TestTokenRegistryCoercesUnknownRoles(t *testing.T) {
	cfg := &config.Config{
		Tokens: []config.TokenConfig{
			{Token: "t", ActorID: "a", Role: "owner"},
		},
	}
	reg := NewTokenRegistry(cfg)

	actor, ok := reg.Resolve("t", time.Now().UTC())
	if !ok || actor.Role != model.RoleClient {
		t.Fatalf("unknown roles must degrade to client, got %+v", actor)
	}
}
