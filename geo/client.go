package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

const DefaultBaseURL = "https://maps.googleapis.com/maps/api"

// HTTPClient implements Service against the Google Maps web services.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	country    string
	httpClient *http.Client
}

// NewHTTPClient restricts autocomplete to country, an ISO 3166-1 code such as "ca". An empty
// baseURL uses DefaultBaseURL.
func NewHTTPClient(baseURL, apiKey, country string) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		country: country,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type apiStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (s apiStatus) err() error {
	switch s.Status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return ErrNoResults.WithReason("%s", s.Status)
	}
	if s.ErrorMessage != "" {
		return ErrUpstream.WithReason("%s: %s", s.Status, s.ErrorMessage)
	}
	return ErrUpstream.WithReason("%s", s.Status)
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ErrUpstream.Wrap(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrUpstream.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrUpstream.WithReason("status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrUpstream.Wrap(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

type autocompleteResponse struct {
	apiStatus
	Predictions []Prediction `json:"predictions"`
}

func (c *HTTPClient) Autocomplete(ctx context.Context, input string) ([]Prediction, error) {
	if input == "" {
		return nil, ErrMissingInput
	}
	params := url.Values{}
	params.Set("input", input)
	params.Set("types", "geocode")
	if c.country != "" {
		params.Set("components", "country:"+c.country)
	}

	var resp autocompleteResponse
	if err := c.get(ctx, "/place/autocomplete/json", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "ZERO_RESULTS" {
		return []Prediction{}, nil
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return resp.Predictions, nil
}

type geocodeResponse struct {
	apiStatus
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *HTTPClient) Geocode(ctx context.Context, placeID, address string) (Location, error) {
	params := url.Values{}
	switch {
	case placeID != "":
		params.Set("place_id", placeID)
	case address != "":
		params.Set("address", address)
	default:
		return Location{}, ErrMissingInput
	}

	var resp geocodeResponse
	if err := c.get(ctx, "/geocode/json", params, &resp); err != nil {
		return Location{}, err
	}
	if err := resp.err(); err != nil {
		return Location{}, err
	}
	if len(resp.Results) == 0 {
		return Location{}, ErrNoResults
	}

	first := resp.Results[0]
	return Location{
		Lat:              first.Geometry.Location.Lat,
		Lng:              first.Geometry.Location.Lng,
		FormattedAddress: first.FormattedAddress,
	}, nil
}

type textValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type directionsResponse struct {
	apiStatus
	Routes []struct {
		Summary string `json:"summary"`
		Legs    []struct {
			StartAddress string    `json:"start_address"`
			EndAddress   string    `json:"end_address"`
			Distance     textValue `json:"distance"`
			Duration     textValue `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

func (c *HTTPClient) Route(ctx context.Context, origin, destination string) (Route, error) {
	if origin == "" || destination == "" {
		return Route{}, ErrMissingInput
	}
	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", destination)
	params.Set("mode", "driving")

	var resp directionsResponse
	if err := c.get(ctx, "/directions/json", params, &resp); err != nil {
		return Route{}, err
	}
	if err := resp.err(); err != nil {
		return Route{}, err
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return Route{}, ErrNoResults.WithReason("no route between %q and %q", origin, destination)
	}

	first := resp.Routes[0]
	route := Route{Summary: first.Summary, DistanceText: first.Legs[0].Distance.Text}
	for _, l := range first.Legs {
		route.Legs = append(route.Legs, Leg{
			StartAddress:    l.StartAddress,
			EndAddress:      l.EndAddress,
			DistanceText:    l.Distance.Text,
			DistanceMeters:  l.Distance.Value,
			DurationText:    l.Duration.Text,
			DurationSeconds: l.Duration.Value,
		})
	}
	return route, nil
}
