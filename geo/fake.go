package geo

import "context"

// FakeService is a test implementation of Service
type FakeService struct {
	Predictions map[string][]Prediction // keyed by input
	Locations   map[string]Location     // keyed by place id or address
	Routes      map[[2]string]Route     // keyed by origin, destination
	Calls       int
}

func NewFakeService() *FakeService {
	return &FakeService{
		Predictions: make(map[string][]Prediction),
		Locations:   make(map[string]Location),
		Routes:      make(map[[2]string]Route),
	}
}

func (f *FakeService) Autocomplete(ctx context.Context, input string) ([]Prediction, error) {
	f.Calls++
	if input == "" {
		return nil, ErrMissingInput
	}
	return f.Predictions[input], nil
}

func (f *FakeService) Geocode(ctx context.Context, placeID, address string) (Location, error) {
	f.Calls++
	key := placeID
	if key == "" {
		key = address
	}
	if key == "" {
		return Location{}, ErrMissingInput
	}
	if loc, ok := f.Locations[key]; ok {
		return loc, nil
	}
	return Location{}, ErrNoResults
}

func (f *FakeService) Route(ctx context.Context, origin, destination string) (Route, error) {
	f.Calls++
	if r, ok := f.Routes[[2]string{origin, destination}]; ok {
		return r, nil
	}
	return Route{}, ErrNoResults
}

// AddRoute registers a single-leg route with the given distance text
func (f *FakeService) AddRoute(origin, destination, distanceText string) {
	f.Routes[[2]string{origin, destination}] = Route{
		Legs:         []Leg{{DistanceText: distanceText}},
		DistanceText: distanceText,
	}
}
