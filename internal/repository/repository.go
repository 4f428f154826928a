package repository

import (
	"context"
	"errors"

	"github.com/nearbuy/backend/internal/entity"
)

var (
	// ErrNotFound is returned when a referenced item, request, or location
	// record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRequest is returned when a buyer already holds a request
	// for an item. Backed by a uniqueness constraint on (item_id, buyer_id).
	ErrDuplicateRequest = errors.New("request already exists for this item and buyer")
)

// ItemStore handles persistence for catalog items. The matcher treats the
// catalog as read-only; only MarkSold mutates an item.
type ItemStore interface {
	Get(ctx context.Context, id string) (*entity.Item, error)
	ListCatalog(ctx context.Context) ([]entity.Item, error)
	MarkSold(ctx context.Context, id string) error
	// Seed inserts initial items if none exist.
	Seed(ctx context.Context, items []entity.Item) error
}

// RequestStore handles persistence for buy requests.
type RequestStore interface {
	// Insert stores a new request. It returns ErrDuplicateRequest if a
	// request for the same (item, buyer) pair already exists.
	Insert(ctx context.Context, req *entity.Request) error
	Get(ctx context.Context, id string) (*entity.Request, error)
	// Find looks up the request a buyer holds for an item, if any.
	Find(ctx context.Context, itemID, buyerID string) (*entity.Request, error)
	// UpdateStatus transitions a request from expected to next and reports
	// whether the write happened. A false return means the request was not
	// in the expected status; this is the compare-and-swap primitive the
	// acceptance cascade depends on.
	UpdateStatus(ctx context.Context, id string, expected, next entity.RequestStatus) (bool, error)
	ListPendingForItem(ctx context.Context, itemID string) ([]entity.Request, error)
	ListForSeller(ctx context.Context, sellerID string) ([]entity.Request, error)
	ListForBuyer(ctx context.Context, buyerID string) ([]entity.Request, error)
}

// ChatStore handles persistence for provisioned chat channels.
type ChatStore interface {
	// EnsureChannel inserts the channel if it does not exist yet. Calling it
	// twice with the same channel ID is a no-op.
	EnsureChannel(ctx context.Context, ch *entity.ChatChannel) error
}

// LocationStore persists the last-known location cache per user.
type LocationStore interface {
	// Load returns ErrNotFound when no cache exists for the user.
	Load(ctx context.Context, userID string) (*entity.LocationState, error)
	Save(ctx context.Context, state *entity.LocationState) error
}
