package geoutil

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/citywalker/go-city-walker/internal/types"
)

// Point converts our coordinate type to an orb point (lng, lat order).
func Point(c types.Coordinates) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(a, b types.Coordinates) float64 {
	return geo.DistanceHaversine(Point(a), Point(b))
}

// DistanceKm returns the great-circle distance in kilometers.
func DistanceKm(a, b types.Coordinates) float64 {
	return DistanceMeters(a, b) / 1000.0
}

// Centroid returns the arithmetic center of a coordinate set.
func Centroid(coords []types.Coordinates) types.Coordinates {
	if len(coords) == 0 {
		return types.Coordinates{}
	}
	var lat, lng float64
	for _, c := range coords {
		lat += c.Lat
		lng += c.Lng
	}
	n := float64(len(coords))
	return types.Coordinates{Lat: lat / n, Lng: lng / n}
}

// BBox is a geographic bounding box in Nominatim order.
type BBox struct {
	South float64
	North float64
	West  float64
	East  float64
}

// Pad expands the box by the given number of degrees on every side.
func (b BBox) Pad(deg float64) BBox {
	return BBox{
		South: b.South - deg,
		North: b.North + deg,
		West:  b.West - deg,
		East:  b.East + deg,
	}
}

// Contains reports whether the coordinate lies inside the box.
func (b BBox) Contains(c types.Coordinates) bool {
	return c.Lat >= b.South && c.Lat <= b.North && c.Lng >= b.West && c.Lng <= b.East
}

// Viewbox renders the box as a Nominatim viewbox parameter
// (min_lng,max_lat,max_lng,min_lat).
func (b BBox) Viewbox() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.West, b.North, b.East, b.South)
}

// ViewboxAround builds a box of roughly radiusKm around a center point,
// correcting longitude span by latitude.
func ViewboxAround(center types.Coordinates, radiusKm float64) BBox {
	latOffset := radiusKm / 111.0
	lngOffset := latOffset / math.Cos(center.Lat*math.Pi/180)
	return BBox{
		South: center.Lat - latOffset,
		North: center.Lat + latOffset,
		West:  center.Lng - lngOffset,
		East:  center.Lng + lngOffset,
	}
}
