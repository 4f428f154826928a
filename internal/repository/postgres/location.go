package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/repository"
)

type locationStore struct {
	db *sql.DB
}

// NewLocationStore creates a LocationStore backed by Postgres.
func NewLocationStore(db *sql.DB) repository.LocationStore {
	return &locationStore{db: db}
}

func (r *locationStore) Load(ctx context.Context, userID string) (*entity.LocationState, error) {
	var state entity.LocationState
	var lat, lng sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, latitude, longitude, manual_override, updated_at FROM location_cache WHERE user_id = $1",
		userID,
	).Scan(&state.UserID, &lat, &lng, &state.ManualOverride, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load location cache: %w", err)
	}
	if lat.Valid && lng.Valid {
		state.Cached = &entity.Coordinate{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	return &state, nil
}

func (r *locationStore) Save(ctx context.Context, state *entity.LocationState) error {
	var lat, lng sql.NullFloat64
	if state.Cached != nil {
		lat = sql.NullFloat64{Float64: state.Cached.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: state.Cached.Longitude, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO location_cache (user_id, latitude, longitude, manual_override, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET latitude = EXCLUDED.latitude,
		     longitude = EXCLUDED.longitude,
		     manual_override = EXCLUDED.manual_override,
		     updated_at = EXCLUDED.updated_at`,
		state.UserID, lat, lng, state.ManualOverride, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save location cache: %w", err)
	}
	return nil
}
