package routing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/citywalker/go-city-walker/internal/httpclient"
	"github.com/citywalker/go-city-walker/internal/types"
)

// osrmClient wraps the OSRM table and route HTTP services.
type osrmClient struct {
	http    *httpclient.Client
	baseURL string
}

// profileFor maps transport modes to OSRM profiles. There is no transit
// profile, so transit degrades to foot and gets its durations normalized
// later.
func profileFor(mode types.TransportMode) string {
	if mode == types.TransportDriving {
		return "car"
	}
	return "foot"
}

// coordPath renders coordinates the OSRM way: lng,lat pairs joined by ;
func coordPath(points []types.Coordinates) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%f,%f", p.Lng, p.Lat)
	}
	return strings.Join(parts, ";")
}

type tableResponse struct {
	Code      string      `json:"code"`
	Durations [][]float64 `json:"durations"`
	Distances [][]float64 `json:"distances"`
}

func (c *osrmClient) table(ctx context.Context, mode types.TransportMode, points []types.Coordinates) (*types.DistanceMatrix, error) {
	endpoint := fmt.Sprintf("%s/table/v1/%s/%s",
		strings.TrimRight(c.baseURL, "/"), profileFor(mode), coordPath(points))
	params := url.Values{}
	params.Set("annotations", "duration,distance")

	var resp tableResponse
	if err := c.http.GetJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, fmt.Errorf("osrm table: %w", err)
	}
	if resp.Code != "Ok" || len(resp.Durations) != len(points) || len(resp.Distances) != len(points) {
		return nil, fmt.Errorf("osrm table: unusable response code %q", resp.Code)
	}
	return &types.DistanceMatrix{Distances: resp.Distances, Durations: resp.Durations}, nil
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Geometry is a fetched route shape with its road totals.
type Geometry struct {
	Geometry string
	Distance float64
	Duration float64
}

func (c *osrmClient) route(ctx context.Context, mode types.TransportMode, points []types.Coordinates) (*Geometry, error) {
	endpoint := fmt.Sprintf("%s/route/v1/%s/%s",
		strings.TrimRight(c.baseURL, "/"), profileFor(mode), coordPath(points))
	params := url.Values{}
	params.Set("overview", "full")
	params.Set("geometries", "polyline")
	params.Set("steps", "false")

	var resp routeResponse
	if err := c.http.GetJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, fmt.Errorf("osrm route: %w", err)
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return nil, fmt.Errorf("osrm route: no route found (code %q)", resp.Code)
	}
	r := resp.Routes[0]
	return &Geometry{Geometry: r.Geometry, Distance: r.Distance, Duration: r.Duration}, nil
}
