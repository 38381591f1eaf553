package service

import (
	"strings"
	"sync"
	"time"

	"github.com/pipelabs/pipegate/internal/config"
	"github.com/pipelabs/pipegate/internal/model"
	"github.com/pipelabs/pipegate/internal/pkg/logger"
)

// TokenRegistry resolves bearer credentials to actors. Resolution is a
// pure function of the credential and the current clock; expired tokens
// resolve to nothing, exactly as if they were never issued.
type TokenRegistry struct {
	mu     sync.RWMutex
	actors map[string]*model.Actor // key: bearer token
}

func NewTokenRegistry(cfg *config.Config) *TokenRegistry {
	r := &TokenRegistry{
		actors: make(map[string]*model.Actor),
	}

	if cfg.Auth.AdminToken != "" {
		r.Register(cfg.Auth.AdminToken, &model.Actor{
			ID:   "admin-bootstrap",
			Role: model.RoleAdmin,
		})
	}

	for _, tc := range cfg.Tokens {
		actor := &model.Actor{
			ID:       tc.ActorID,
			Role:     model.Role(tc.Role),
			RateTier: tc.RateTier,
		}
		if actor.Role != model.RoleAdmin {
			actor.Role = model.RoleClient
		}
		if tc.ExpiresAt != "" {
			exp, err := time.Parse(time.RFC3339, tc.ExpiresAt)
			if err != nil {
				logger.Warn("skipping token with bad expires_at", "actor_id", tc.ActorID, "expires_at", tc.ExpiresAt)
				continue
			}
			actor.ExpiresAt = exp
		}
		r.Register(tc.Token, actor)
	}

	return r
}

func (r *TokenRegistry) Register(token string, actor *model.Actor) {
	token = strings.TrimSpace(token)
	if token == "" || actor == nil || actor.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors[token] = actor
}

func (r *TokenRegistry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actors, token)
}

// Resolve returns the actor behind a credential, or false for unknown
// and expired tokens.
func (r *TokenRegistry) Resolve(token string, now time.Time) (*model.Actor, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}
	r.mu.RLock()
	actor, ok := r.actors[token]
	r.mu.RUnlock()
	if !ok || actor.Expired(now) {
		return nil, false
	}
	return actor, true
}
