package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/rideledger-backend/coordinator"
	"github.com/semanticallynull/rideledger-backend/internal/ethaddr"
	"github.com/semanticallynull/rideledger-backend/internal/middleware"
	"github.com/semanticallynull/rideledger-backend/ride"
	"github.com/semanticallynull/rideledger-backend/user"
)

// senderFor returns the token's address if the token was issued for role. A sender named in the
// body must be the same account.
func senderFor(c *gin.Context, role user.Role, claimed string) (string, error) {
	sub, ok := middleware.GetSender(c)
	if !ok {
		return "", errUnauthorized
	}
	if claimed != "" && !ethaddr.Equal(claimed, sub) {
		return "", errSenderMismatch.WithReason("token is for %s", sub)
	}
	if got, ok := middleware.GetRole(c); !ok || got != role {
		return "", coordinator.ErrWrongRole.WithReason("token is for a %s, need %s", got, role)
	}
	return sub, nil
}

type createRideRequest struct {
	PickupLocation string              `json:"pickupLocation"`
	DropLocation   string              `json:"dropLocation"`
	Price          decimal.NullDecimal `json:"price"`
	Distance       decimal.Decimal     `json:"distance"`
	SenderAddress  string              `json:"senderAddress"`
}

func (a *API) createRideHandler(c *gin.Context) {
	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest.Wrap(err))
		return
	}

	sender, err := senderFor(c, user.Rider, req.SenderAddress)
	if err != nil {
		writeError(c, err)
		return
	}

	var price string
	if req.Price.Valid {
		price = req.Price.Decimal.String()
	}

	receipt, err := a.coord.CreateRide(c.Request.Context(), coordinator.CreateRequest{
		Pickup:   req.PickupLocation,
		Drop:     req.DropLocation,
		Price:    price,
		Distance: req.Distance,
		Sender:   sender,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

type rideRequest struct {
	RideID        *uint64 `json:"rideId"`
	SenderAddress string  `json:"senderAddress"`
	DriverAddress string  `json:"driverAddress"`
}

func (r rideRequest) claimed() string {
	if r.DriverAddress != "" {
		return r.DriverAddress
	}
	return r.SenderAddress
}

// transitionHandler binds a rideRequest and runs one lifecycle write as the token's sender.
func (a *API) transitionHandler(c *gin.Context, role user.Role, write func(ctx context.Context, rideID uint64, sender string) (*coordinator.Receipt, error)) {
	var req rideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest.Wrap(err))
		return
	}
	if req.RideID == nil {
		writeError(c, errBadRequest.WithReason("rideId is required"))
		return
	}

	sender, err := senderFor(c, role, req.claimed())
	if err != nil {
		writeError(c, err)
		return
	}

	receipt, err := write(c.Request.Context(), *req.RideID, sender)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (a *API) acceptRideHandler(c *gin.Context) {
	a.transitionHandler(c, user.Driver, a.coord.AcceptRide)
}

func (a *API) completeRideHandler(c *gin.Context) {
	a.transitionHandler(c, user.Rider, a.coord.CompleteRide)
}

func (a *API) cancelRideHandler(c *gin.Context) {
	a.transitionHandler(c, user.Rider, a.coord.CancelRide)
}

func (a *API) deleteRideHandler(c *gin.Context) {
	a.transitionHandler(c, user.Rider, a.coord.DeleteRide)
}

func (a *API) availableRidesHandler(c *gin.Context) {
	rides, err := a.coord.ListAvailableRides(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"availableRides": rides})
}

func (a *API) rideHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, ride.ErrNotFound.WithReason("%q is not a ride id", c.Param("id")))
		return
	}

	r, err := a.coord.GetRide(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (a *API) riderHistoryHandler(c *gin.Context) {
	rides, err := a.coord.ListRiderHistory(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rides)
}

func (a *API) driverHistoryHandler(c *gin.Context) {
	rides, err := a.coord.ListDriverHistory(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rides)
}

func (a *API) balanceHandler(c *gin.Context) {
	balance, err := a.coord.GetBalance(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
