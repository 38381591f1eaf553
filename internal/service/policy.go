package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pipelabs/pipegate/internal/config"
	"github.com/pipelabs/pipegate/internal/model"
	"github.com/pipelabs/pipegate/internal/pkg/apperrors"
	"github.com/pipelabs/pipegate/internal/repository"
)

var pairPattern = regexp.MustCompile(`^[A-Z0-9]+-[A-Z0-9]+$`)

// PolicyRepo persists policies. The store works without one; policies
// then live only in memory.
type PolicyRepo interface {
	Get(ctx context.Context, clientID string) (*model.ClientPolicy, error)
	Save(ctx context.Context, p *model.ClientPolicy) error
	Delete(ctx context.Context, clientID string) error
}

// PolicyStore holds the per-client authorization boundaries. Reads far
// outnumber writes, so policies sit in an RWMutex-guarded map; a write
// replaces the entry whole and is visible to the next evaluation.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*model.ClientPolicy
	repo     PolicyRepo
	defaults config.PolicyDefaults
}

func NewPolicyStore(defaults config.PolicyDefaults, repo PolicyRepo) *PolicyStore {
	return &PolicyStore{
		policies: make(map[string]*model.ClientPolicy),
		repo:     repo,
		defaults: defaults,
	}
}

// GetPolicy returns a copy of the client's policy. A repository miss is
// repository.ErrPolicyNotFound; any other repository error means the
// store is unavailable and the caller decides the fail direction.
func (s *PolicyStore) GetPolicy(ctx context.Context, clientID string) (*model.ClientPolicy, error) {
	s.mu.RLock()
	p, ok := s.policies[clientID]
	s.mu.RUnlock()
	if ok {
		return p.Clone(), nil
	}

	if s.repo == nil {
		return nil, repository.ErrPolicyNotFound
	}

	p, err := s.repo.Get(ctx, clientID)
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrPolicyNotFound) {
		return nil, repository.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.policies[clientID] = p.Clone()
	s.mu.Unlock()
	return p, nil
}

// SetPolicy validates and stores a policy, replacing any previous one
// atomically. In-flight evaluations keep the policy they already read.
func (s *PolicyStore) SetPolicy(ctx context.Context, p *model.ClientPolicy) error {
	if p == nil || strings.TrimSpace(p.ClientID) == "" {
		return apperrors.New(apperrors.ErrInvalidPolicy, "policy client_id is required", nil)
	}
	normalized := p.Clone()
	if err := normalizePolicy(normalized); err != nil {
		return err
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, normalized); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.policies[normalized.ClientID] = normalized
	s.mu.Unlock()
	return nil
}

// SetStatus flips a client between active and suspended without touching
// the rest of the boundary.
func (s *PolicyStore) SetStatus(ctx context.Context, clientID string, status model.ClientStatus) error {
	p, err := s.GetPolicy(ctx, clientID)
	if err != nil {
		return err
	}
	p.Status = status
	return s.SetPolicy(ctx, p)
}

// RemovePolicy drops a client's policy from cache and repository.
func (s *PolicyStore) RemovePolicy(ctx context.Context, clientID string) error {
	if s.repo != nil {
		if err := s.repo.Delete(ctx, clientID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	delete(s.policies, clientID)
	s.mu.Unlock()
	return nil
}

// DefaultPolicy builds the boundary a freshly onboarded client starts
// with: no exchanges or pairs until an admin grants them, and the
// configured spread and volume ceilings.
func (s *PolicyStore) DefaultPolicy(clientID string) *model.ClientPolicy {
	return &model.ClientPolicy{
		ClientID:         clientID,
		AllowedExchanges: []string{},
		AllowedPairs:     []string{},
		MaxSpreadPercent: decimal.NewFromFloat(s.defaults.MaxSpreadPercent),
		MaxDailyVolume:   decimal.NewFromFloat(s.defaults.MaxDailyVolume),
		Role:             model.RoleClient,
		Status:           model.StatusActive,
	}
}

func normalizePolicy(p *model.ClientPolicy) error {
	if p.MaxSpreadPercent.IsNegative() {
		return apperrors.New(apperrors.ErrInvalidPolicy, "max_spread_percent must be non-negative", nil)
	}
	if p.MaxDailyVolume.IsNegative() {
		return apperrors.New(apperrors.ErrInvalidPolicy, "max_daily_volume must be non-negative", nil)
	}

	switch p.Role {
	case "":
		p.Role = model.RoleClient
	case model.RoleClient, model.RoleAdmin:
	default:
		return apperrors.New(apperrors.ErrInvalidPolicy, fmt.Sprintf("unknown role %q", p.Role), nil)
	}

	switch p.Status {
	case "":
		p.Status = model.StatusActive
	case model.StatusActive, model.StatusSuspended:
	default:
		return apperrors.New(apperrors.ErrInvalidPolicy, fmt.Sprintf("unknown status %q", p.Status), nil)
	}

	for i, ex := range p.AllowedExchanges {
		p.AllowedExchanges[i] = strings.ToLower(strings.TrimSpace(ex))
		if p.AllowedExchanges[i] == "" {
			return apperrors.New(apperrors.ErrInvalidPolicy, "allowed_exchanges contains an empty entry", nil)
		}
	}
	for i, pair := range p.AllowedPairs {
		normalized := strings.ToUpper(strings.TrimSpace(pair))
		if !pairPattern.MatchString(normalized) {
			return apperrors.New(apperrors.ErrInvalidPolicy, fmt.Sprintf("pair %q is not BASE-QUOTE", pair), nil)
		}
		p.AllowedPairs[i] = normalized
	}
	return nil
}

// ValidPairSymbol reports whether a pair is well-formed BASE-QUOTE after
// upper-casing.
func ValidPairSymbol(pair string) bool {
	return pairPattern.MatchString(strings.ToUpper(strings.TrimSpace(pair)))
}
