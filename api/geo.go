package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rideledger-backend/geo"
	"github.com/semanticallynull/rideledger-backend/internal/middleware"
)

func (a *API) autocompleteHandler(c *gin.Context) {
	predictions, err := a.geo.Autocomplete(c.Request.Context(), c.Query("input"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": predictions})
}

func (a *API) geocodeHandler(c *gin.Context) {
	loc, err := a.geo.Geocode(c.Request.Context(), c.Query("placeId"), c.Query("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

type coords struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (p *coords) location() (geo.Location, bool) {
	if p == nil || p.Lat == nil || p.Lng == nil {
		return geo.Location{}, false
	}
	return geo.Location{Lat: *p.Lat, Lng: *p.Lng}, true
}

type routeRequest struct {
	PickupCoords *coords `json:"pickupCoords"`
	DropCoords   *coords `json:"dropCoords"`
}

// routeHandler measures the trip between two coordinates and quotes its fare.
func (a *API) routeHandler(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest.Wrap(err))
		return
	}
	pickup, ok := req.PickupCoords.location()
	drop, ok2 := req.DropCoords.location()
	if !ok || !ok2 {
		writeError(c, geo.ErrMissingInput.WithReason("pickupCoords and dropCoords are required"))
		return
	}

	a.quote(c, pickup.Coordinates(), drop.Coordinates(), gin.H{
		"pickupGeohash": pickup.Geohash(),
		"dropGeohash":   drop.Geohash(),
	})
}

type directionsRequest struct {
	PickupLocation string `json:"pickupLocation"`
	DropLocation   string `json:"dropLocation"`
}

func (a *API) directionsHandler(c *gin.Context) {
	var req directionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest.Wrap(err))
		return
	}
	if req.PickupLocation == "" || req.DropLocation == "" {
		writeError(c, geo.ErrMissingInput.WithReason("pickupLocation and dropLocation are required"))
		return
	}

	a.quote(c, req.PickupLocation, req.DropLocation, nil)
}

type addressRouteRequest struct {
	PickupAddress string `json:"pickupAddress"`
	DropAddress   string `json:"dropAddress"`
}

// directionsByAddressHandler geocodes both addresses before routing between them.
func (a *API) directionsByAddressHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req addressRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest.Wrap(err))
		return
	}
	if req.PickupAddress == "" || req.DropAddress == "" {
		writeError(c, geo.ErrMissingInput.WithReason("pickupAddress and dropAddress are required"))
		return
	}

	ctx := c.Request.Context()
	pickup, err := a.geo.Geocode(ctx, "", req.PickupAddress)
	if err != nil {
		logger.Info("pickup address did not geocode", "address", req.PickupAddress)
		writeError(c, err)
		return
	}
	drop, err := a.geo.Geocode(ctx, "", req.DropAddress)
	if err != nil {
		logger.Info("drop address did not geocode", "address", req.DropAddress)
		writeError(c, err)
		return
	}

	a.quote(c, pickup.Coordinates(), drop.Coordinates(), gin.H{
		"pickupGeohash": pickup.Geohash(),
		"dropGeohash":   drop.Geohash(),
	})
}

// quote prices the trip and writes it with any extra fields.
func (a *API) quote(c *gin.Context, origin, destination string, extra gin.H) {
	q, err := a.coord.QuoteRide(c.Request.Context(), origin, destination)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{
		"route":      q.Route,
		"distance":   q.Route.DistanceText,
		"distanceKm": q.DistanceKm,
		"price":      q.Price,
	}
	for k, v := range extra {
		resp[k] = v
	}
	c.JSON(http.StatusOK, resp)
}
