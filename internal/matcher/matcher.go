// Package matcher filters and ranks the item catalog by proximity to a
// resolved location. It is a pure transformation over a catalog snapshot and
// never mutates item state.
package matcher

import (
	"sort"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/geo"
)

// DefaultRadiusKm is the home-feed cutoff. Browse views apply a tighter
// user-selected radius on top of the same base set.
const DefaultRadiusKm = 50.0

// Nearby returns catalog items within radiusKm of origin, annotated with
// their distance and sorted ascending. Ties keep the catalog order, which is
// newest-first. Items sold, without a coordinate, or listed by the requester
// are skipped.
func Nearby(catalog []entity.Item, origin entity.Coordinate, requesterID string, radiusKm float64) []entity.ItemWithDistance {
	out := make([]entity.ItemWithDistance, 0, len(catalog))
	for _, item := range catalog {
		if item.SellerID == requesterID {
			continue
		}
		if item.IsSold {
			continue
		}
		if item.Coordinate == nil {
			continue
		}
		d := geo.Distance(origin, *item.Coordinate)
		if d > radiusKm {
			continue
		}
		out = append(out, entity.ItemWithDistance{Item: item, DistanceKm: d})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}
