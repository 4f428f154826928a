package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/repository"
)

type chatStore struct {
	db *sql.DB
}

// NewChatStore creates a ChatStore backed by Postgres.
func NewChatStore(db *sql.DB) repository.ChatStore {
	return &chatStore{db: db}
}

func (r *chatStore) EnsureChannel(ctx context.Context, ch *entity.ChatChannel) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_channels (id, item_id, buyer_id, seller_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		ch.ID, ch.ItemID, ch.BuyerID, ch.SellerID, ch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure chat channel: %w", err)
	}
	return nil
}
