// Package polyline decodes Google encoded polylines and measures them.
// Format reference: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for path lengths.
const EarthRadiusMeters = 6371008.8

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lon)
}

// Decode decodes a polyline-encoded string with precision 5.
// Truncated input yields the points decoded so far.
func Decode(encoded string) []Coordinate {
	if encoded == "" {
		return nil
	}

	var coords []Coordinate
	index := 0
	lat := 0
	lon := 0

	for index < len(encoded) {
		latDelta, next := decodeValue(encoded, index)
		if next >= len(encoded) {
			break
		}
		lonDelta, after := decodeValue(encoded, next)
		index = after

		lat += latDelta
		lon += lonDelta
		coords = append(coords, Coordinate{
			Lat: float64(lat) / 1e5,
			Lon: float64(lon) / 1e5,
		})
	}

	return coords
}

// decodeValue returns the delta at index and the index after it.
func decodeValue(encoded string, index int) (int, int) {
	shift := 0
	result := 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index
	}
	return result >> 1, index
}

// Encode encodes coordinates with precision 5.
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(coords)*4)
	prevLat := 0
	prevLon := 0

	for _, coord := range coords {
		lat := int(math.Round(coord.Lat * 1e5))
		lon := int(math.Round(coord.Lon * 1e5))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat = lat
		prevLon = lon
	}

	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// Length returns the great-circle length of the path in meters.
func Length(coords []Coordinate) float64 {
	return LengthBetween(coords, 0, len(coords)-1)
}

// LengthBetween returns the length in meters of the sub-path from point
// index start to point index end. Indexes are clamped to the path.
func LengthBetween(coords []Coordinate, start, end int) float64 {
	start = max(start, 0)
	end = min(end, len(coords)-1)
	if end <= start {
		return 0
	}

	var total float64
	prev := coords[start].latLng()
	for i := start + 1; i <= end; i++ {
		next := coords[i].latLng()
		total += prev.Distance(next).Radians() * EarthRadiusMeters
		prev = next
	}
	return total
}

// EncodedLengthKm decodes a polyline and returns its length in kilometres.
func EncodedLengthKm(encoded string) float64 {
	return Length(Decode(encoded)) / 1000
}
