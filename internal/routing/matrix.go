package routing

import (
	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/types"
)

// fallbackSpeedKmh converts straight-line distances into travel times
// when OSRM is unreachable.
var fallbackSpeedKmh = map[types.TransportMode]float64{
	types.TransportWalking: 5,
	types.TransportDriving: 40,
	types.TransportTransit: 20,
}

// legSpeedKmh normalizes per-leg durations. Driving is assumed slower
// than highway speed inside a city, transit slower still with stops.
var legSpeedKmh = map[types.TransportMode]float64{
	types.TransportWalking: 5,
	types.TransportDriving: 30,
	types.TransportTransit: 15,
}

// haversineMatrix builds a symmetric straight-line matrix as a stand-in
// for an OSRM table.
func haversineMatrix(points []types.Coordinates, mode types.TransportMode) *types.DistanceMatrix {
	speed := fallbackSpeedKmh[mode]
	if speed == 0 {
		speed = fallbackSpeedKmh[types.TransportWalking]
	}
	m := types.NewDistanceMatrix(len(points))
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			d := geoutil.DistanceMeters(points[i], points[j])
			t := d / 1000 / speed * 3600
			m.Distances[i][j], m.Distances[j][i] = d, d
			m.Durations[i][j], m.Durations[j][i] = t, t
		}
	}
	return m
}

// legDuration converts a leg distance in meters to seconds at the
// normalized speed for the mode.
func legDuration(distanceMeters float64, mode types.TransportMode) float64 {
	speed := legSpeedKmh[mode]
	if speed == 0 {
		speed = legSpeedKmh[types.TransportWalking]
	}
	return distanceMeters / 1000 / speed * 3600
}
