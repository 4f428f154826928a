package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nearbuy/backend/internal/entity"
)

// ErrNoReading is returned by ReportedLocator when a user has no fresh
// device report.
var ErrNoReading = errors.New("no device reading reported")

// reportTTL is how long a client-reported fix counts as current.
const reportTTL = 2 * time.Minute

type report struct {
	coord entity.Coordinate
	at    time.Time
}

// ReportedLocator is the DeviceLocator used behind the HTTP surface. The
// device GPS runs on the client, so the detect endpoint reports the
// browser's reading here and the resolver pulls it back out through the
// DeviceLocator contract. A reading expires after a short TTL so the
// resolver falls through to the cache rather than trusting a stale fix.
type ReportedLocator struct {
	mu      sync.Mutex
	reports map[string]report
	nowFn   func() time.Time
}

func NewReportedLocator() *ReportedLocator {
	return &ReportedLocator{
		reports: make(map[string]report),
		nowFn:   time.Now,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (l *ReportedLocator) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		l.nowFn = nowFn
	}
}

// Report records the client-supplied device coordinate for a user.
func (l *ReportedLocator) Report(userID string, coord entity.Coordinate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports[userID] = report{coord: coord, at: l.nowFn()}
}

func (l *ReportedLocator) CurrentLocation(ctx context.Context, userID string) (entity.Coordinate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, ok := l.reports[userID]
	if !ok || l.nowFn().Sub(rep.at) > reportTTL {
		delete(l.reports, userID)
		return entity.Coordinate{}, ErrNoReading
	}
	return rep.coord, nil
}
