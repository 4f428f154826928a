// Package location resolves the single coordinate the rest of the engine
// trusts for a user session, under unreliable or denied device signals.
package location

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/repository"
)

// ErrUnavailable is returned only when every source in the fallback chain is
// exhausted. With the static default in place this should not happen; it
// exists so a misconfigured resolver fails loudly instead of inventing a
// coordinate.
var ErrUnavailable = errors.New("no location source available")

// DefaultCoordinate keeps the system usable on cold start with no device
// permission and no cache. New Delhi, matching the launch market.
var DefaultCoordinate = entity.Coordinate{Latitude: 28.6139, Longitude: 77.2090}

// DefaultDeviceTimeout bounds how long a resolution waits on the device
// before falling through to the cache.
const DefaultDeviceTimeout = 5 * time.Second

// DeviceLocator is the device geolocation contract. Implementations report
// the device's current coordinate or an error when the signal is denied,
// stale, or absent.
type DeviceLocator interface {
	CurrentLocation(ctx context.Context, userID string) (entity.Coordinate, error)
}

// Resolved is the outcome of a resolution: the coordinate plus the source it
// came from, so callers can tell a real fix from the low-confidence default.
type Resolved struct {
	Coordinate entity.Coordinate     `json:"coordinate"`
	Source     entity.LocationSource `json:"source"`
}

// Resolver owns per-user location state. All reads go through Resolve;
// nothing else hands out coordinates.
type Resolver struct {
	store         repository.LocationStore
	device        DeviceLocator
	deviceTimeout time.Duration
	fallback      *entity.Coordinate
	logger        *slog.Logger
	nowFn         func() time.Time

	// group coalesces concurrent resolutions per user into one in-flight
	// lookup whose result fans out to all waiters.
	group singleflight.Group
}

func NewResolver(store repository.LocationStore, device DeviceLocator, logger *slog.Logger) *Resolver {
	fallback := DefaultCoordinate
	return &Resolver{
		store:         store,
		device:        device,
		deviceTimeout: DefaultDeviceTimeout,
		fallback:      &fallback,
		logger:        logger,
		nowFn:         time.Now,
	}
}

// WithDeviceTimeout overrides the device wait bound.
func (r *Resolver) WithDeviceTimeout(d time.Duration) {
	if d > 0 {
		r.deviceTimeout = d
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (r *Resolver) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		r.nowFn = nowFn
	}
}

// Resolve produces the authoritative coordinate for the user. Priority:
// manual override, then device, then last cached fix, then the static
// default. Device failure is recovered locally and never surfaced.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Resolved, error) {
	v, err, _ := r.group.Do(userID, func() (any, error) {
		return r.resolve(ctx, userID)
	})
	if err != nil {
		return Resolved{}, err
	}
	return v.(Resolved), nil
}

func (r *Resolver) resolve(ctx context.Context, userID string) (Resolved, error) {
	state, err := r.loadState(ctx, userID)
	if err != nil {
		return Resolved{}, err
	}

	if state.ManualOverride && state.Cached != nil {
		return Resolved{Coordinate: *state.Cached, Source: entity.SourceManual}, nil
	}

	if coord, ok := r.tryDevice(ctx, userID); ok {
		state.Cached = &coord
		state.UpdatedAt = r.nowFn()
		if err := r.store.Save(ctx, state); err != nil {
			r.logger.Warn("Failed to persist location cache", "user", userID, "err", err)
		}
		return Resolved{Coordinate: coord, Source: entity.SourceDevice}, nil
	}

	if state.Cached != nil {
		return Resolved{Coordinate: *state.Cached, Source: entity.SourceCached}, nil
	}

	// Cold start with no permission: hand out the default but never cache
	// it, so a later real fix is not mistaken for one already made.
	if r.fallback != nil {
		return Resolved{Coordinate: *r.fallback, Source: entity.SourceDefault}, nil
	}
	return Resolved{}, ErrUnavailable
}

// Detect clears the manual override and forces a fresh resolution, so the
// device is consulted again. The cached coordinate survives as a fallback.
func (r *Resolver) Detect(ctx context.Context, userID string) (Resolved, error) {
	state, err := r.loadState(ctx, userID)
	if err != nil {
		return Resolved{}, err
	}
	if state.ManualOverride {
		state.ManualOverride = false
		state.UpdatedAt = r.nowFn()
		if err := r.store.Save(ctx, state); err != nil {
			return Resolved{}, err
		}
	}
	return r.Resolve(ctx, userID)
}

// SetManual pins the user's location to an explicitly chosen place. The
// override wins over every other source until cleared.
func (r *Resolver) SetManual(ctx context.Context, userID string, coord entity.Coordinate) error {
	state, err := r.loadState(ctx, userID)
	if err != nil {
		return err
	}
	state.Cached = &coord
	state.ManualOverride = true
	state.UpdatedAt = r.nowFn()
	return r.store.Save(ctx, state)
}

// ClearManual drops the override flag but keeps the cached coordinate, so
// the user still has a fallback if the device stays silent.
func (r *Resolver) ClearManual(ctx context.Context, userID string) error {
	state, err := r.loadState(ctx, userID)
	if err != nil {
		return err
	}
	state.ManualOverride = false
	state.UpdatedAt = r.nowFn()
	return r.store.Save(ctx, state)
}

func (r *Resolver) loadState(ctx context.Context, userID string) (*entity.LocationState, error) {
	state, err := r.store.Load(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &entity.LocationState{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *Resolver) tryDevice(ctx context.Context, userID string) (entity.Coordinate, bool) {
	if r.device == nil {
		return entity.Coordinate{}, false
	}

	deviceCtx, cancel := context.WithTimeout(ctx, r.deviceTimeout)
	defer cancel()

	coord, err := r.device.CurrentLocation(deviceCtx, userID)
	if err != nil {
		r.logger.Warn("Device geolocation failed, using saved location or default",
			"user", userID, "err", err)
		return entity.Coordinate{}, false
	}
	return coord, true
}
