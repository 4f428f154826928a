// Package memory provides in-process implementations of the repository
// contracts. They back unit tests and the dev-mode server where no Postgres
// instance is available. All returned values are copies; callers never share
// memory with a store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/repository"
)

// ItemStore is a map-backed repository.ItemStore.
type ItemStore struct {
	mu    sync.Mutex
	items map[string]entity.Item
	order []string
}

func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[string]entity.Item)}
}

func (s *ItemStore) Get(ctx context.Context, id string) (*entity.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (s *ItemStore) ListCatalog(ctx context.Context) ([]entity.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	// Newest listings first, matching the home-feed catalog order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PostedAt.After(out[j].PostedAt)
	})
	return out, nil
}

func (s *ItemStore) MarkSold(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	item.IsSold = true
	s.items[id] = item
	return nil
}

func (s *ItemStore) Seed(ctx context.Context, items []entity.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) > 0 {
		return nil
	}
	for _, item := range items {
		s.items[item.ID] = item
		s.order = append(s.order, item.ID)
	}
	return nil
}

// Put inserts or replaces a single item. Used by tests and the dev seeder.
func (s *ItemStore) Put(ctx context.Context, item entity.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; !ok {
		s.order = append(s.order, item.ID)
	}
	s.items[item.ID] = item
	return nil
}

// RequestStore is a map-backed repository.RequestStore. Status transitions
// are compare-and-swap under the store mutex, so concurrent accepts observe
// the same exclusivity guarantee the Postgres store enforces with guarded
// updates.
type RequestStore struct {
	mu       sync.Mutex
	requests map[string]entity.Request
	byPair   map[[2]string]string // (itemID, buyerID) -> request ID
}

func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[string]entity.Request),
		byPair:   make(map[[2]string]string),
	}
}

func (s *RequestStore) Insert(ctx context.Context, req *entity.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := [2]string{req.ItemID, req.BuyerID}
	if _, ok := s.byPair[pair]; ok {
		return repository.ErrDuplicateRequest
	}
	s.requests[req.ID] = *req
	s.byPair[pair] = req.ID
	return nil
}

func (s *RequestStore) Get(ctx context.Context, id string) (*entity.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (s *RequestStore) Find(ctx context.Context, itemID, buyerID string) (*entity.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPair[[2]string{itemID, buyerID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	req := s.requests[id]
	return &req, nil
}

func (s *RequestStore) UpdateStatus(ctx context.Context, id string, expected, next entity.RequestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if req.Status != expected {
		return false, nil
	}
	req.Status = next
	s.requests[id] = req
	return true, nil
}

func (s *RequestStore) ListPendingForItem(ctx context.Context, itemID string) ([]entity.Request, error) {
	return s.list(func(r entity.Request) bool {
		return r.ItemID == itemID && r.Status == entity.StatusPending
	}), nil
}

func (s *RequestStore) ListForSeller(ctx context.Context, sellerID string) ([]entity.Request, error) {
	return s.list(func(r entity.Request) bool { return r.SellerID == sellerID }), nil
}

func (s *RequestStore) ListForBuyer(ctx context.Context, buyerID string) ([]entity.Request, error) {
	return s.list(func(r entity.Request) bool { return r.BuyerID == buyerID }), nil
}

func (s *RequestStore) list(keep func(entity.Request) bool) []entity.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.Request
	for _, req := range s.requests {
		if keep(req) {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ChatStore is a map-backed repository.ChatStore.
type ChatStore struct {
	mu       sync.Mutex
	channels map[string]entity.ChatChannel
}

func NewChatStore() *ChatStore {
	return &ChatStore{channels: make(map[string]entity.ChatChannel)}
}

func (s *ChatStore) EnsureChannel(ctx context.Context, ch *entity.ChatChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[ch.ID]; ok {
		return nil
	}
	s.channels[ch.ID] = *ch
	return nil
}

// Count reports how many channels exist. Test helper.
func (s *ChatStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// LocationStore is a map-backed repository.LocationStore.
type LocationStore struct {
	mu     sync.Mutex
	states map[string]entity.LocationState
}

func NewLocationStore() *LocationStore {
	return &LocationStore{states: make(map[string]entity.LocationState)}
}

func (s *LocationStore) Load(ctx context.Context, userID string) (*entity.LocationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &state, nil
}

func (s *LocationStore) Save(ctx context.Context, state *entity.LocationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.UserID] = *state
	return nil
}
