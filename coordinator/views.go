package coordinator

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/semanticallynull/rideledger-backend/geo"
	"github.com/semanticallynull/rideledger-backend/internal/ethaddr"
	"github.com/semanticallynull/rideledger-backend/money"
	"github.com/semanticallynull/rideledger-backend/ride"
)

// RideView is a ride shaped for callers: ether price with two decimals and distance with one.
type RideView struct {
	RideID    uint64      `json:"rideId"`
	Rider     string      `json:"rider"`
	Driver    string      `json:"driver,omitempty"`
	Pickup    string      `json:"pickupLocation"`
	Drop      string      `json:"dropLocation"`
	Price     string      `json:"price"`
	Distance  string      `json:"distance"`
	Accepted  bool        `json:"isAccepted"`
	Completed bool        `json:"isCompleted"`
	Cancelled bool        `json:"isCancelled"`
	Status    ride.Status `json:"status"`
}

func NewRideView(r ride.Ride) RideView {
	return RideView{
		RideID:    r.ID,
		Rider:     r.Rider,
		Driver:    r.Driver,
		Pickup:    r.Pickup,
		Drop:      r.Drop,
		Price:     money.FormatPrice(r.PriceWei),
		Distance:  money.FormatDistance(r.DistanceKm),
		Accepted:  r.Accepted,
		Completed: r.Completed,
		Cancelled: r.Cancelled,
		Status:    r.Status(),
	}
}

func views(rides []ride.Ride) []RideView {
	out := make([]RideView, 0, len(rides))
	for _, r := range rides {
		out = append(out, NewRideView(r))
	}
	return out
}

// ListAvailableRides returns rides a driver may accept, newest first.
func (c *Coordinator) ListAvailableRides(ctx context.Context) ([]RideView, error) {
	rides, err := c.ledger.GetAvailableRides(ctx)
	if err != nil {
		return nil, err
	}
	return views(rides), nil
}

func (c *Coordinator) ListRiderHistory(ctx context.Context, rider string) ([]RideView, error) {
	addr, err := ethaddr.Normalize(rider)
	if err != nil {
		return nil, err
	}
	rides, err := c.ledger.GetRiderRides(ctx, addr)
	if err != nil {
		return nil, err
	}
	return views(rides), nil
}

func (c *Coordinator) ListDriverHistory(ctx context.Context, driver string) ([]RideView, error) {
	addr, err := ethaddr.Normalize(driver)
	if err != nil {
		return nil, err
	}
	rides, err := c.ledger.GetDriverRides(ctx, addr)
	if err != nil {
		return nil, err
	}
	return views(rides), nil
}

// GetRide returns the current state of one ride.
func (c *Coordinator) GetRide(ctx context.Context, rideID uint64) (RideView, error) {
	r, err := c.ledger.GetRide(ctx, rideID)
	if err != nil {
		return RideView{}, err
	}
	return NewRideView(r), nil
}

// GetBalance returns the account balance as decimal ether text.
func (c *Coordinator) GetBalance(ctx context.Context, address string) (string, error) {
	wei, err := c.ledger.GetBalance(ctx, address)
	if err != nil {
		return "", err
	}
	return money.FormatBalance(wei), nil
}

// UnassignedAddresses lists ledger accounts no user has registered yet.
func (c *Coordinator) UnassignedAddresses(ctx context.Context) ([]string, error) {
	accounts, err := c.ledger.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	return c.identities.ListUnassignedAddresses(ctx, accounts)
}

// ValidateAddress checks that address is a ledger account free for registration.
func (c *Coordinator) ValidateAddress(ctx context.Context, address string) error {
	accounts, err := c.ledger.Accounts(ctx)
	if err != nil {
		return err
	}
	return c.identities.ValidateAddress(ctx, address, accounts)
}

type Quote struct {
	Route geo.Route `json:"route"`
	// DistanceKm is the measured distance; the ledger records it truncated to whole km.
	DistanceKm decimal.Decimal `json:"distanceKm"`
	Price      string          `json:"price"`
}

// QuoteRide measures the trip with the geo service and prices it at the flat rate.
func (c *Coordinator) QuoteRide(ctx context.Context, origin, destination string) (*Quote, error) {
	route, err := c.geo.Route(ctx, origin, destination)
	if err != nil {
		return nil, err
	}
	km, err := money.ParseDistanceText(route.DistanceText)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Route:      route,
		DistanceKm: km,
		Price:      money.Price(km, c.rate).StringFixed(money.Decimals),
	}, nil
}
