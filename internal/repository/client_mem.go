package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pipelabs/pipegate/internal/model"
)

// MemoryClientStore keeps client and pair records in process memory.
// One mutex covers both the uniqueness check and the insert, so the
// check-and-insert is atomic without a database.
type MemoryClientStore struct {
	mu       sync.Mutex
	clients  map[string]*model.ClientRecord
	wallets  map[string]string // wallet address -> client ID
	emails   map[string]string // email -> client ID
	pairs    map[string]*model.PairRecord
	pairKeys map[string][]string // client ID -> pair keys
}

func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{
		clients:  make(map[string]*model.ClientRecord),
		wallets:  make(map[string]string),
		emails:   make(map[string]string),
		pairs:    make(map[string]*model.PairRecord),
		pairKeys: make(map[string][]string),
	}
}

func pairKey(clientID, exchange, pair string) string {
	return clientID + "|" + exchange + "|" + pair
}

func (s *MemoryClientStore) CreateClient(_ context.Context, rec *model.ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[rec.ID]; ok {
		return ErrDuplicateClient
	}
	if _, ok := s.wallets[rec.WalletAddress]; ok {
		return ErrDuplicateClient
	}
	email := strings.ToLower(rec.Email)
	if email != "" {
		if _, ok := s.emails[email]; ok {
			return ErrDuplicateClient
		}
	}

	cp := *rec
	s.clients[rec.ID] = &cp
	s.wallets[rec.WalletAddress] = rec.ID
	if email != "" {
		s.emails[email] = rec.ID
	}
	return nil
}

func (s *MemoryClientStore) GetClient(_ context.Context, id string) (*model.ClientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryClientStore) ListClients(_ context.Context) ([]*model.ClientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.ClientRecord, 0, len(s.clients))
	for _, rec := range s.clients {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryClientStore) CreatePair(_ context.Context, rec *model.PairRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(rec.ClientID, rec.Exchange, rec.TradingPair)
	if _, ok := s.pairs[key]; ok {
		return ErrDuplicatePair
	}
	cp := *rec
	s.pairs[key] = &cp
	s.pairKeys[rec.ClientID] = append(s.pairKeys[rec.ClientID], key)
	return nil
}

func (s *MemoryClientStore) DeletePair(_ context.Context, clientID, exchange, pair string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(clientID, exchange, pair)
	if _, ok := s.pairs[key]; !ok {
		return ErrPairNotFound
	}
	delete(s.pairs, key)
	keys := s.pairKeys[clientID]
	for i, k := range keys {
		if k == key {
			s.pairKeys[clientID] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryClientStore) ListPairs(_ context.Context, clientID string) ([]*model.PairRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.pairKeys[clientID]
	out := make([]*model.PairRecord, 0, len(keys))
	for _, key := range keys {
		if rec, ok := s.pairs[key]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryClientStore) UpdatePairSpread(_ context.Context, clientID, exchange, pair string, spread decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.pairs[pairKey(clientID, exchange, pair)]
	if !ok {
		return ErrPairNotFound
	}
	rec.SpreadTarget = spread
	return nil
}

func (s *MemoryClientStore) UpdatePairVolumeTarget(_ context.Context, clientID, exchange, pair string, target decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.pairs[pairKey(clientID, exchange, pair)]
	if !ok {
		return ErrPairNotFound
	}
	rec.VolumeTargetDaily = target
	return nil
}
