// Package waypoint normalizes heterogeneous location inputs into a single
// canonical representation understood by routing providers.
package waypoint

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies which variant of a Waypoint is populated.
type Kind int

const (
	// KindAddress is free-text geocodable input.
	KindAddress Kind = iota
	// KindPlace is an opaque provider place identifier.
	KindPlace
	// KindCoordinate is a latitude/longitude pair.
	KindCoordinate
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPlace:
		return "place"
	case KindCoordinate:
		return "coordinate"
	default:
		return "address"
	}
}

// Waypoint is a tagged union: exactly one of Address, PlaceID or Lat/Lng
// is meaningful, selected by Kind. Waypoints are immutable values.
type Waypoint struct {
	Kind    Kind
	Address string
	PlaceID string
	Lat     float64
	Lng     float64
}

// Address builds an address waypoint.
func Address(text string) Waypoint {
	return Waypoint{Kind: KindAddress, Address: text}
}

// Place builds a place-reference waypoint.
func Place(id string) Waypoint {
	return Waypoint{Kind: KindPlace, PlaceID: id}
}

// Coordinate builds a coordinate waypoint.
func Coordinate(lat, lng float64) Waypoint {
	return Waypoint{Kind: KindCoordinate, Lat: lat, Lng: lng}
}

// IsZero reports whether the waypoint carries no usable location.
func (w Waypoint) IsZero() bool {
	switch w.Kind {
	case KindPlace:
		return w.PlaceID == ""
	case KindCoordinate:
		return false
	default:
		return w.Address == ""
	}
}

// String renders the waypoint for logs, cache keys and history records.
func (w Waypoint) String() string {
	switch w.Kind {
	case KindPlace:
		return "place:" + w.PlaceID
	case KindCoordinate:
		return strconv.FormatFloat(w.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(w.Lng, 'f', 6, 64)
	default:
		return w.Address
	}
}

// Input is a raw location as received from callers: either a JSON string
// or an object carrying placeId or lat/lng.
type Input struct {
	Text    string
	PlaceID string
	Lat     *float64
	Lng     *float64
}

// Text wraps a plain string as an Input.
func Text(s string) Input {
	return Input{Text: s}
}

// LatLng wraps a structured coordinate as an Input.
func LatLng(lat, lng float64) Input {
	return Input{Lat: &lat, Lng: &lng}
}

type inputObject struct {
	PlaceID *string  `json:"placeId"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address *string  `json:"address"`
}

// UnmarshalJSON accepts a string or an object.
func (in *Input) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*in = Input{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*in = Input{Text: s}
		return nil
	}

	var obj inputObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	out := Input{Lat: obj.Lat, Lng: obj.Lng}
	if obj.PlaceID != nil {
		out.PlaceID = *obj.PlaceID
	}
	if obj.Address != nil {
		out.Text = *obj.Address
	}
	*in = out
	return nil
}

// MarshalJSON writes the input back in its most specific shape.
func (in Input) MarshalJSON() ([]byte, error) {
	switch {
	case in.PlaceID != "":
		return json.Marshal(map[string]string{"placeId": in.PlaceID})
	case in.Lat != nil && in.Lng != nil:
		return json.Marshal(map[string]float64{"lat": *in.Lat, "lng": *in.Lng})
	default:
		return json.Marshal(in.Text)
	}
}

var latLngPattern = regexp.MustCompile(`^@?\s*(-?\d+(\.\d+)?)[,\s]+(-?\d+(\.\d+)?)\s*$`)

// Normalize converts an Input into a Waypoint. It never fails: shapes that
// are not recognized become an address of the trimmed text.
func Normalize(in Input) Waypoint {
	if in.PlaceID != "" {
		return Place(in.PlaceID)
	}
	if in.Lat != nil && in.Lng != nil && isFinite(*in.Lat) && isFinite(*in.Lng) {
		return Coordinate(*in.Lat, *in.Lng)
	}

	text := strings.TrimSpace(in.Text)
	if m := latLngPattern.FindStringSubmatch(text); m != nil {
		lat, latErr := strconv.ParseFloat(m[1], 64)
		lng, lngErr := strconv.ParseFloat(m[3], 64)
		if latErr == nil && lngErr == nil {
			return Coordinate(lat, lng)
		}
	}
	return Address(text)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
