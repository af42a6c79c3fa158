package geoutil

import (
	"math"
	"strings"

	"github.com/citywalker/go-city-walker/internal/types"
)

// Polyline codec at 1e-5 precision with zig-zag sign encoding and 5-bit
// chunks offset by 63, matching the format OSRM and Google emit.

const polylinePrecision = 1e5

// EncodePolyline encodes coordinates as a polyline string.
func EncodePolyline(coords []types.Coordinates) string {
	var sb strings.Builder
	var prevLat, prevLng int64
	for _, c := range coords {
		lat := int64(math.Round(c.Lat * polylinePrecision))
		lng := int64(math.Round(c.Lng * polylinePrecision))
		encodeSigned(&sb, lat-prevLat)
		encodeSigned(&sb, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

func encodeSigned(sb *strings.Builder, v int64) {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	sb.WriteByte(byte(u + 63))
}

// DecodePolyline decodes a polyline string into coordinates. Truncated
// trailing chunks are dropped rather than reported as an error.
func DecodePolyline(s string) []types.Coordinates {
	var coords []types.Coordinates
	var lat, lng int64
	i := 0
	for i < len(s) {
		dLat, n, ok := decodeSigned(s[i:])
		if !ok {
			break
		}
		i += n
		dLng, n, ok := decodeSigned(s[i:])
		if !ok {
			break
		}
		i += n
		lat += dLat
		lng += dLng
		coords = append(coords, types.Coordinates{
			Lat: float64(lat) / polylinePrecision,
			Lng: float64(lng) / polylinePrecision,
		})
	}
	return coords
}

func decodeSigned(s string) (int64, int, bool) {
	var u int64
	var shift uint
	for i := 0; i < len(s); i++ {
		b := int64(s[i]) - 63
		u |= (b & 0x1f) << shift
		if b < 0x20 {
			v := u >> 1
			if u&1 != 0 {
				v = ^v
			}
			return v, i + 1, true
		}
		shift += 5
	}
	return 0, 0, false
}
