// Package geo wraps the maps web services used to pick places and measure trips.
package geo

import (
	"context"
	"strconv"

	"github.com/mmcloughlin/geohash"

	"github.com/semanticallynull/rideledger-backend/internal/apperr"
)

var (
	ErrNoResults    = apperr.New(apperr.NotFound, "NO_RESULTS", "no results for the given location")
	ErrMissingInput = apperr.New(apperr.Validation, "MISSING_INPUT", "location input is required")
	ErrUpstream     = apperr.New(apperr.Upstream, "GEO_UNAVAILABLE", "maps service request failed")
)

type Prediction struct {
	Description string `json:"description"`
	PlaceID     string `json:"place_id"`
}

type Location struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formattedAddress"`
}

// Coordinates renders the location as the "lat,lng" form the directions service accepts.
func (l Location) Coordinates() string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lng, 'f', -1, 64)
}

// Geohash is the 7-character cell (about 150 m) containing the location.
func (l Location) Geohash() string {
	return geohash.EncodeWithPrecision(l.Lat, l.Lng, 7)
}

type Leg struct {
	StartAddress    string `json:"startAddress"`
	EndAddress      string `json:"endAddress"`
	DistanceText    string `json:"distanceText"`
	DistanceMeters  int    `json:"distanceMeters"`
	DurationText    string `json:"durationText"`
	DurationSeconds int    `json:"durationSeconds"`
}

type Route struct {
	Summary string `json:"summary"`
	Legs    []Leg  `json:"legs"`
	// DistanceText is the first leg's human readable distance, e.g. "15.3 km".
	DistanceText string `json:"distance"`
}

// Service is the geo collaborator. Calls are never retried.
type Service interface {
	Autocomplete(ctx context.Context, input string) ([]Prediction, error)
	// Geocode resolves a place id, or a free-form address when placeID is empty.
	Geocode(ctx context.Context, placeID, address string) (Location, error)
	Route(ctx context.Context, origin, destination string) (Route, error)
}
