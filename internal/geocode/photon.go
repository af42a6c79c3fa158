package geocode

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/citywalker/go-city-walker/internal/httpclient"
	"github.com/citywalker/go-city-walker/internal/types"
)

// photonClient queries the secondary free-text geocoder.
type photonClient struct {
	http    *httpclient.Client
	baseURL string
}

type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Name    string `json:"name"`
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"properties"`
	} `json:"features"`
}

// search returns coordinates plus a display label, preferring results whose
// city property matches the expected city.
func (c *photonClient) search(ctx context.Context, query, city string) (*types.Coordinates, string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(5))

	var resp photonResponse
	if err := c.http.GetJSON(ctx, strings.TrimRight(c.baseURL, "/")+"/api", params, &resp); err != nil {
		return nil, "", err
	}
	if len(resp.Features) == 0 {
		return nil, "", nil
	}

	cityLower := strings.ToLower(city)
	best := -1
	for i, f := range resp.Features {
		if len(f.Geometry.Coordinates) != 2 {
			continue
		}
		if best < 0 {
			best = i
		}
		props := f.Properties
		if cityLower != "" && (strings.EqualFold(props.City, city) || strings.Contains(strings.ToLower(props.Name), cityLower)) {
			best = i
			break
		}
	}
	if best < 0 {
		return nil, "", nil
	}

	f := resp.Features[best]
	coords := types.Coordinates{Lat: f.Geometry.Coordinates[1], Lng: f.Geometry.Coordinates[0]}
	if coords.Validate() != nil {
		return nil, "", nil
	}
	label := f.Properties.Name
	if f.Properties.City != "" {
		label += ", " + f.Properties.City
	}
	if f.Properties.Country != "" {
		label += ", " + f.Properties.Country
	}
	return &coords, label, nil
}
