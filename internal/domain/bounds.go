package domain

import (
	"errors"
	"math"
)

// ErrInvalidBounds is returned by Bounds.Validate.
var ErrInvalidBounds = errors.New("invalid bounding box")

// Bounds is a closed latitude/longitude rectangle.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Validate checks coordinate ranges and ordering. Boxes crossing the
// antimeridian (MinLon > MaxLon) are rejected.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.MinLat, b.MinLon, b.MaxLat, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidBounds
		}
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLat > b.MaxLat {
		return ErrInvalidBounds
	}
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLon > b.MaxLon {
		return ErrInvalidBounds
	}
	return nil
}

// Contains reports whether loc lies inside the closed rectangle.
func (b Bounds) Contains(loc Location) bool {
	return loc.Latitude >= b.MinLat && loc.Latitude <= b.MaxLat &&
		loc.Longitude >= b.MinLon && loc.Longitude <= b.MaxLon
}
