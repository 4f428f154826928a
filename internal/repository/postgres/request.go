package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/repository"
)

// uniqueViolation is the Postgres error code raised when the
// (item_id, buyer_id) unique constraint rejects a duplicate request.
const uniqueViolation = "23505"

type requestStore struct {
	db *sql.DB
}

// NewRequestStore creates a RequestStore backed by Postgres.
func NewRequestStore(db *sql.DB) repository.RequestStore {
	return &requestStore{db: db}
}

const requestColumns = "id, item_id, item_title, buyer_id, buyer_name, seller_id, status, created_at"

func (r *requestStore) Insert(ctx context.Context, req *entity.Request) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requests (id, item_id, item_title, buyer_id, buyer_name, seller_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.ItemID, req.ItemTitle, req.BuyerID, req.BuyerName, req.SellerID, req.Status, req.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrDuplicateRequest
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (r *requestStore) Get(ctx context.Context, id string) (*entity.Request, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE id = $1", id)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query request: %w", err)
	}
	return req, nil
}

func (r *requestStore) Find(ctx context.Context, itemID, buyerID string) (*entity.Request, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE item_id = $1 AND buyer_id = $2",
		itemID, buyerID)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query request: %w", err)
	}
	return req, nil
}

// UpdateStatus is a guarded write: the row only changes when its current
// status matches expected. Two racing transitions on the same request can
// never both win.
func (r *requestStore) UpdateStatus(ctx context.Context, id string, expected, next entity.RequestStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE requests SET status = $1 WHERE id = $2 AND status = $3",
		next, id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update request status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish a lost swap from a missing row.
	var exists bool
	err = r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM requests WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check request existence: %w", err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (r *requestStore) ListPendingForItem(ctx context.Context, itemID string) ([]entity.Request, error) {
	return r.list(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE item_id = $1 AND status = $2 ORDER BY created_at",
		itemID, entity.StatusPending)
}

func (r *requestStore) ListForSeller(ctx context.Context, sellerID string) ([]entity.Request, error) {
	return r.list(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE seller_id = $1 ORDER BY created_at DESC",
		sellerID)
}

func (r *requestStore) ListForBuyer(ctx context.Context, buyerID string) ([]entity.Request, error) {
	return r.list(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE buyer_id = $1 ORDER BY created_at DESC",
		buyerID)
}

func (r *requestStore) list(ctx context.Context, query string, args ...any) ([]entity.Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []entity.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

func scanRequest(row rowScanner) (*entity.Request, error) {
	var req entity.Request
	err := row.Scan(&req.ID, &req.ItemID, &req.ItemTitle, &req.BuyerID, &req.BuyerName,
		&req.SellerID, &req.Status, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
