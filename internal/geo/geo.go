// Package geo computes great-circle distances between listings and a buyer's position.
package geo

import (
	"cmp"
	"math"
	"slices"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether p lies within the coordinate ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// SortByDistance orders items nearest-first relative to origin and returns the distance of each
// item in the new order. Items at equal distance keep their relative order.
func SortByDistance[T any](items []T, origin Point, at func(T) Point) []float64 {
	type ranked struct {
		item T
		km   float64
	}
	rs := make([]ranked, len(items))
	for i, it := range items {
		rs[i] = ranked{item: it, km: Distance(origin, at(it))}
	}
	slices.SortStableFunc(rs, func(a, b ranked) int { return cmp.Compare(a.km, b.km) })

	dists := make([]float64, len(rs))
	for i, r := range rs {
		items[i] = r.item
		dists[i] = r.km
	}
	return dists
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
