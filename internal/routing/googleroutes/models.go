package googleroutes

import "github.com/congestionai/congestionai/internal/routing"

// computeRoutesRequest is the subset of the Routes v2 request we send.
type computeRoutesRequest struct {
	Origin            waypointPayload `json:"origin"`
	Destination       waypointPayload `json:"destination"`
	TravelMode        string          `json:"travelMode"`
	RoutingPreference string          `json:"routingPreference"`
	DepartureTime     string          `json:"departureTime"`
	RouteModifiers    routeModifiers  `json:"routeModifiers"`
}

// waypointPayload carries exactly one of address, placeId or location.
type waypointPayload struct {
	Address  string    `json:"address,omitempty"`
	PlaceID  string    `json:"placeId,omitempty"`
	Location *location `json:"location,omitempty"`
}

type location struct {
	LatLng latLng `json:"latLng"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routeModifiers struct {
	AvoidTolls    bool `json:"avoidTolls"`
	AvoidHighways bool `json:"avoidHighways"`
}

// computeRoutesResponse mirrors the fields selected by FieldMask.
type computeRoutesResponse struct {
	Routes []apiRoute `json:"routes"`
}

type apiRoute struct {
	Duration       string `json:"duration"`
	StaticDuration string `json:"staticDuration"`
	Polyline       *struct {
		EncodedPolyline string `json:"encodedPolyline"`
	} `json:"polyline"`
	TravelAdvisory *struct {
		SpeedReadingIntervals []apiSpeedInterval `json:"speedReadingIntervals"`
	} `json:"travelAdvisory"`
}

type apiSpeedInterval struct {
	StartPolylinePointIndex int    `json:"startPolylinePointIndex"`
	EndPolylinePointIndex   int    `json:"endPolylinePointIndex"`
	Speed                   string `json:"speed"`
}

// apiErrorResponse is the Google API error envelope.
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func toSpeedIntervals(in []apiSpeedInterval) []routing.SpeedInterval {
	out := make([]routing.SpeedInterval, 0, len(in))
	for _, s := range in {
		speed := routing.SpeedClass(s.Speed)
		switch speed {
		case routing.SpeedNormal, routing.SpeedSlow, routing.SpeedTrafficJam:
		default:
			speed = routing.SpeedUnknown
		}
		out = append(out, routing.SpeedInterval{
			StartIndex: s.StartPolylinePointIndex,
			EndIndex:   s.EndPolylinePointIndex,
			Speed:      speed,
		})
	}
	return out
}
