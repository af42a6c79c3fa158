package geocode

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/httpclient"
	"github.com/citywalker/go-city-walker/internal/types"
)

// NominatimPlace is one result row from the Nominatim search API.
type NominatimPlace struct {
	PlaceID     int64             `json:"place_id"`
	OSMType     string            `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	BoundingBox []string          `json:"boundingbox"`
	ExtraTags   map[string]string `json:"extratags"`
	Address     struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func (p *NominatimPlace) Coordinates() (types.Coordinates, bool) {
	lat, err1 := strconv.ParseFloat(p.Lat, 64)
	lng, err2 := strconv.ParseFloat(p.Lon, 64)
	if err1 != nil || err2 != nil {
		return types.Coordinates{}, false
	}
	c := types.Coordinates{Lat: lat, Lng: lng}
	return c, c.Validate() == nil
}

// BBox parses Nominatim's boundingbox array (south, north, west, east).
func (p *NominatimPlace) BBox() (geoutil.BBox, bool) {
	if len(p.BoundingBox) != 4 {
		return geoutil.BBox{}, false
	}
	vals := make([]float64, 4)
	for i, s := range p.BoundingBox {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return geoutil.BBox{}, false
		}
		vals[i] = v
	}
	return geoutil.BBox{South: vals[0], North: vals[1], West: vals[2], East: vals[3]}, true
}

// nominatimClient wraps the shared rate-limited client for the Nominatim
// endpoint.
type nominatimClient struct {
	http    *httpclient.Client
	baseURL string
}

type nominatimQuery struct {
	Query          string
	Limit          int
	Viewbox        string
	Bounded        bool
	FeatureType    string
	AddressDetails bool
	ExtraTags      bool
}

func (c *nominatimClient) search(ctx context.Context, q nominatimQuery) ([]NominatimPlace, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("format", "json")
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Viewbox != "" {
		params.Set("viewbox", q.Viewbox)
		if q.Bounded {
			params.Set("bounded", "1")
		} else {
			params.Set("bounded", "0")
		}
	}
	if q.FeatureType != "" {
		params.Set("featuretype", q.FeatureType)
	}
	if q.AddressDetails {
		params.Set("addressdetails", "1")
	}
	if q.ExtraTags {
		params.Set("extratags", "1")
	}

	var results []NominatimPlace
	if err := c.http.GetJSON(ctx, strings.TrimRight(c.baseURL, "/")+"/search", params, &results); err != nil {
		return nil, err
	}
	return results, nil
}
