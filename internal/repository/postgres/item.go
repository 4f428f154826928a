package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/repository"
)

type itemStore struct {
	db *sql.DB
}

// NewItemStore creates an ItemStore backed by Postgres.
func NewItemStore(db *sql.DB) repository.ItemStore {
	return &itemStore{db: db}
}

const itemColumns = "id, seller_id, title, category, price, image_url, latitude, longitude, is_sold, posted_at"

func (r *itemStore) Get(ctx context.Context, id string) (*entity.Item, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE id = $1", id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}
	return item, nil
}

func (r *itemStore) ListCatalog(ctx context.Context) ([]entity.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM items ORDER BY posted_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var items []entity.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *itemStore) MarkSold(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE items SET is_sold = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to mark item sold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *itemStore) Seed(ctx context.Context, items []entity.Item) error {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, item := range items {
		var lat, lng sql.NullFloat64
		if item.Coordinate != nil {
			lat = sql.NullFloat64{Float64: item.Coordinate.Latitude, Valid: true}
			lng = sql.NullFloat64{Float64: item.Coordinate.Longitude, Valid: true}
		}
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO items (id, seller_id, title, category, price, image_url, latitude, longitude, is_sold, posted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			item.ID, item.SellerID, item.Title, item.Category, item.Price, item.ImageURL,
			lat, lng, item.IsSold, item.PostedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to seed item %s: %w", item.ID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*entity.Item, error) {
	var item entity.Item
	var lat, lng sql.NullFloat64
	err := row.Scan(&item.ID, &item.SellerID, &item.Title, &item.Category, &item.Price,
		&item.ImageURL, &lat, &lng, &item.IsSold, &item.PostedAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		item.Coordinate = &entity.Coordinate{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	return &item, nil
}
