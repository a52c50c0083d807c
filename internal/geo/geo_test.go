package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	jakarta := Point{Lat: -6.2088, Lon: 106.8456}
	bandung := Point{Lat: -6.9175, Lon: 107.6191}

	tests := []struct {
		name string
		a, b Point
		want float64
		tol  float64
	}{
		{"same point", jakarta, jakarta, 0, 1e-9},
		{"jakarta to bandung", jakarta, bandung, 116.0, 2},
		{"symmetric", bandung, jakarta, 116.0, 2},
		{"quarter meridian", Point{0, 0}, Point{90, 0}, math.Pi / 2 * EarthRadiusKm, 1e-6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tol {
				t.Fatalf("expected %.3f±%.3f, got %.3f", tt.want, tt.tol, got)
			}
		})
	}
}

func TestSortByDistanceIsStable(t *testing.T) {
	type place struct {
		name string
		p    Point
	}
	origin := Point{Lat: -6.2, Lon: 106.8}
	items := []place{
		{"far", Point{Lat: -7.8, Lon: 110.4}},
		{"near-a", Point{Lat: -6.3, Lon: 106.8}},
		{"here", origin},
		{"near-b", Point{Lat: -6.3, Lon: 106.8}},
	}

	dists := SortByDistance(items, origin, func(p place) Point { return p.p })

	want := []string{"here", "near-a", "near-b", "far"}
	for i, it := range items {
		if it.name != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], it.name)
		}
	}
	if dists[0] != 0 || dists[1] != dists[2] || dists[3] <= dists[2] {
		t.Fatalf("unexpected distances %v", dists)
	}
}

func TestPointValid(t *testing.T) {
	if !(Point{Lat: -6.2, Lon: 106.8}).Valid() {
		t.Fatalf("expected valid point")
	}
	if (Point{Lat: 91, Lon: 0}).Valid() || (Point{Lat: 0, Lon: -181}).Valid() {
		t.Fatalf("expected invalid point")
	}
}
