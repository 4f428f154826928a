// Package chat provisions the conversation channel between a seller and the
// buyer whose request they accepted.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/repository"
)

// ChannelID derives the deterministic channel identifier for a transaction.
// The same (item, buyer, seller) triple always maps to the same channel, so
// repeated acceptance attempts converge on one conversation.
func ChannelID(itemID, buyerID, sellerID string) string {
	return itemID + "_" + buyerID + "_" + sellerID
}

// Provisioner creates chat channels idempotently.
type Provisioner struct {
	store repository.ChatStore
	nowFn func() time.Time
}

func NewProvisioner(store repository.ChatStore) *Provisioner {
	return &Provisioner{store: store, nowFn: time.Now}
}

// WithClock overrides the time provider (used primarily in tests).
func (p *Provisioner) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		p.nowFn = nowFn
	}
}

// EnsureChannel creates the channel for the triple if it does not exist and
// returns its identifier. Calling it twice returns the same identifier and
// never duplicates the channel.
func (p *Provisioner) EnsureChannel(ctx context.Context, itemID, buyerID, sellerID string) (string, error) {
	ch := &entity.ChatChannel{
		ID:        ChannelID(itemID, buyerID, sellerID),
		ItemID:    itemID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: p.nowFn(),
	}
	if err := p.store.EnsureChannel(ctx, ch); err != nil {
		return "", fmt.Errorf("failed to provision chat channel: %w", err)
	}
	return ch.ID, nil
}
