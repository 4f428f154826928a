package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearbuy/backend/internal/entity"
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	p := entity.Coordinate{Latitude: 28.6139, Longitude: 77.2090}
	assert.Equal(t, 0.0, Distance(p, p))
}

func TestDistanceSymmetric(t *testing.T) {
	pairs := []struct {
		a, b entity.Coordinate
	}{
		{entity.Coordinate{Latitude: 28.6139, Longitude: 77.2090}, entity.Coordinate{Latitude: 28.7041, Longitude: 77.1025}},
		{entity.Coordinate{Latitude: -33.8688, Longitude: 151.2093}, entity.Coordinate{Latitude: 51.5072, Longitude: -0.1276}},
		{entity.Coordinate{Latitude: 0, Longitude: 0}, entity.Coordinate{Latitude: 0, Longitude: 180}},
	}
	for _, p := range pairs {
		assert.InDelta(t, Distance(p.a, p.b), Distance(p.b, p.a), 1e-9)
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// Connaught Place to Delhi University, roughly 14 km apart.
	delhi := entity.Coordinate{Latitude: 28.6139, Longitude: 77.2090}
	north := entity.Coordinate{Latitude: 28.7041, Longitude: 77.1025}

	d := Distance(delhi, north)
	require.Greater(t, d, 10.0)
	require.Less(t, d, 15.0)

	// Quarter of the equator.
	d = Distance(entity.Coordinate{}, entity.Coordinate{Longitude: 90})
	assert.InDelta(t, 10007.5, d, 5.0)
}
