package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rideledger-backend/coordinator"
	"github.com/semanticallynull/rideledger-backend/geo"
	"github.com/semanticallynull/rideledger-backend/internal/auth"
	"github.com/semanticallynull/rideledger-backend/internal/middleware"
	"github.com/semanticallynull/rideledger-backend/internal/o11y"
	"github.com/semanticallynull/rideledger-backend/user"
)

type Config struct {
	MetricsUsername string
	MetricsPassword string
}

type API struct {
	r      *gin.Engine
	users  *user.Registry
	coord  *coordinator.Coordinator
	geo    geo.Service
	tokens *auth.Issuer
}

func New(users *user.Registry, coord *coordinator.Coordinator, g geo.Service, tokens *auth.Issuer, obs *o11y.Observability, cfg Config) (*API, error) {
	tc := tokens.Config()
	requireToken, err := middleware.Auth(tc.Secret, tc.Issuer, tc.Audience)
	if err != nil {
		return nil, err
	}

	a := &API{
		r:      gin.New(),
		users:  users,
		coord:  coord,
		geo:    g,
		tokens: tokens,
	}

	a.r.Use(
		gin.Recovery(),
		middleware.Tracing(),
		middleware.Logging(obs.Logger),
		middleware.Metrics(obs.Registry),
	)

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.r.GET("/metrics", middleware.MetricsHandler(obs.Registry, cfg.MetricsUsername, cfg.MetricsPassword)...)

	a.r.POST("/register", a.registerHandler)
	a.r.POST("/login", a.loginHandler)
	a.r.POST("/validateEthereumAddress", a.validateAddressHandler)
	a.r.GET("/ethereum-addresses", a.addressesHandler)

	a.r.GET("/getAvailableRides", a.availableRidesHandler)
	a.r.GET("/rides", a.availableRidesHandler)
	a.r.GET("/rides/:id", a.rideHandler)
	a.r.GET("/rideHistory/:address", a.riderHistoryHandler)
	a.r.GET("/driverHistory/:address", a.driverHistoryHandler)
	a.r.GET("/balance/:address", a.balanceHandler)

	a.r.GET("/autocomplete", a.autocompleteHandler)
	a.r.GET("/geocode", a.geocodeHandler)
	a.r.POST("/get-route", a.routeHandler)
	a.r.POST("/getDirections", a.directionsHandler)
	a.r.POST("/get-directions-by-address", a.directionsByAddressHandler)

	writes := a.r.Group("/")
	writes.Use(requireToken)
	{
		writes.POST("/createRide", a.createRideHandler)
		writes.POST("/acceptRide", a.acceptRideHandler)
		writes.POST("/completeRide", a.completeRideHandler)
		writes.POST("/cancelRide", a.cancelRideHandler)
		writes.POST("/deleteRide", a.deleteRideHandler)
	}

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}
