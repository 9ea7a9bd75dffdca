// Package coordinator drives the ride lifecycle: it checks who is asking, guards each
// transition against the ledger's current state, submits a single write and confirms on a
// fresh read that the intended state landed.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/rideledger-backend/geo"
	"github.com/semanticallynull/rideledger-backend/internal/apperr"
	"github.com/semanticallynull/rideledger-backend/internal/ethaddr"
	"github.com/semanticallynull/rideledger-backend/ledger"
	"github.com/semanticallynull/rideledger-backend/money"
	"github.com/semanticallynull/rideledger-backend/ride"
	"github.com/semanticallynull/rideledger-backend/user"
)

var (
	ErrUnregistered = apperr.New(apperr.Forbidden, "UNREGISTERED_SENDER", "sender address is not registered")
	ErrWrongRole    = apperr.New(apperr.Forbidden, "WRONG_ROLE", "sender role may not perform this action")
	ErrMissingField = apperr.New(apperr.Validation, "MISSING_FIELD", "required field missing")
)

// Ledger is the ride ledger as the coordinator uses it. *ledger.Client implements it.
type Ledger interface {
	CreateRide(ctx context.Context, pickup, drop, price string, distanceKm decimal.Decimal, sender string) (ledger.Submission, error)
	AcceptRide(ctx context.Context, rideID uint64, sender string) (common.Hash, error)
	CompleteRide(ctx context.Context, rideID uint64, sender string) (common.Hash, error)
	CancelRide(ctx context.Context, rideID uint64, sender string) (common.Hash, error)
	DeleteRide(ctx context.Context, rideID uint64, sender string) (common.Hash, error)
	GetRide(ctx context.Context, rideID uint64) (ride.Ride, error)
	GetAvailableRides(ctx context.Context) ([]ride.Ride, error)
	GetRiderRides(ctx context.Context, rider string) ([]ride.Ride, error)
	GetDriverRides(ctx context.Context, driver string) ([]ride.Ride, error)
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	Accounts(ctx context.Context) ([]string, error)
}

// Identities resolves ledger addresses to registered users. *user.Registry implements it.
type Identities interface {
	Lookup(ctx context.Context, address string) (*user.User, error)
	ListUnassignedAddresses(ctx context.Context, candidates []string) ([]string, error)
	ValidateAddress(ctx context.Context, address string, known []string) error
}

type Config struct {
	// RatePerKm is the flat fare in ether. Zero means money.DefaultRatePerKm.
	RatePerKm decimal.Decimal
}

type Coordinator struct {
	ledger     Ledger
	identities Identities
	geo        geo.Service
	rate       decimal.Decimal
	logger     *slog.Logger
}

func New(l Ledger, identities Identities, g geo.Service, cfg Config, logger *slog.Logger) *Coordinator {
	rate := cfg.RatePerKm
	if rate.IsZero() {
		rate = money.DefaultRatePerKm
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		ledger:     l,
		identities: identities,
		geo:        g,
		rate:       rate,
		logger:     logger,
	}
}

// Receipt is the outcome of a confirmed write.
type Receipt struct {
	Ride   RideView `json:"ride"`
	TxHash string   `json:"transactionHash"`
}

// authorize returns the registered, checksummed form of sender if it holds role.
func (c *Coordinator) authorize(ctx context.Context, sender string, role user.Role) (string, error) {
	addr, err := ethaddr.Normalize(sender)
	if err != nil {
		return "", err
	}
	u, err := c.identities.Lookup(ctx, addr)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", ErrUnregistered.WithReason("%s", addr)
		}
		return "", err
	}
	if u.Role != role {
		return "", ErrWrongRole.WithReason("%s is a %s, need %s", addr, u.Role, role)
	}
	return addr, nil
}

type CreateRequest struct {
	Pickup string
	Drop   string
	// Price in ether. Empty means priced from Distance at the flat rate.
	Price    string
	Distance decimal.Decimal
	Sender   string
}

// CreateRide records a new ride on the ledger, escrowing its price from the rider.
func (c *Coordinator) CreateRide(ctx context.Context, req CreateRequest) (*Receipt, error) {
	if req.Pickup == "" || req.Drop == "" {
		return nil, ErrMissingField.WithReason("pickupLocation and dropLocation are required")
	}
	if !req.Distance.IsPositive() {
		return nil, money.ErrInvalidDistance.WithReason("%s", req.Distance.String())
	}
	sender, err := c.authorize(ctx, req.Sender, user.Rider)
	if err != nil {
		return nil, err
	}

	price := req.Price
	if price == "" {
		price = money.Price(req.Distance, c.rate).StringFixed(money.Decimals)
	}

	sub, err := c.ledger.CreateRide(ctx, req.Pickup, req.Drop, price, req.Distance, sender)
	if err != nil {
		c.logFailedWrite(ctx, "create", 0, sender, err)
		return nil, err
	}

	created, err := c.ledger.GetRide(ctx, sub.RideID)
	if err != nil {
		return nil, err
	}
	if !created.OwnedBy(sender) || created.Status() != ride.Pending {
		return nil, ledger.ErrLedger.WithReason("ride %d read back as %s owned by %s", sub.RideID, created.Status(), created.Rider)
	}

	c.logger.InfoContext(ctx, "ride created",
		slog.Uint64("ride_id", sub.RideID),
		slog.String("tx_hash", sub.TxHash.Hex()),
		slog.String("sender", sender),
		slog.String("price", price),
	)
	return &Receipt{Ride: NewRideView(created), TxHash: sub.TxHash.Hex()}, nil
}

func (c *Coordinator) AcceptRide(ctx context.Context, rideID uint64, driver string) (*Receipt, error) {
	return c.transition(ctx, ride.Accept, rideID, driver)
}

func (c *Coordinator) CompleteRide(ctx context.Context, rideID uint64, rider string) (*Receipt, error) {
	return c.transition(ctx, ride.Complete, rideID, rider)
}

func (c *Coordinator) CancelRide(ctx context.Context, rideID uint64, rider string) (*Receipt, error) {
	return c.transition(ctx, ride.Cancel, rideID, rider)
}

func (c *Coordinator) DeleteRide(ctx context.Context, rideID uint64, rider string) (*Receipt, error) {
	return c.transition(ctx, ride.Delete, rideID, rider)
}

func actorFor(action ride.Action) user.Role {
	if action == ride.Accept {
		return user.Driver
	}
	return user.Rider
}

func (c *Coordinator) write(action ride.Action) func(context.Context, uint64, string) (common.Hash, error) {
	switch action {
	case ride.Accept:
		return c.ledger.AcceptRide
	case ride.Complete:
		return c.ledger.CompleteRide
	case ride.Cancel:
		return c.ledger.CancelRide
	}
	return c.ledger.DeleteRide
}

// landed reports whether after shows action applied by sender.
func landed(action ride.Action, after ride.Ride, sender string) bool {
	switch action {
	case ride.Accept:
		return after.Accepted && after.DrivenBy(sender)
	case ride.Complete:
		return after.Completed
	case ride.Cancel:
		return after.Cancelled
	}
	return false
}

// transition runs read, guard, write, re-read. A write that reports success is still checked
// against the ledger: a competing writer may have got there first.
func (c *Coordinator) transition(ctx context.Context, action ride.Action, rideID uint64, rawSender string) (*Receipt, error) {
	sender, err := c.authorize(ctx, rawSender, actorFor(action))
	if err != nil {
		return nil, err
	}

	before, err := c.ledger.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if action != ride.Accept && !before.OwnedBy(sender) {
		return nil, ride.ErrNotOwner.WithReason("ride %d belongs to %s", rideID, before.Rider)
	}
	if err := ride.CheckTransition(before, action); err != nil {
		return nil, err
	}

	hash, werr := c.write(action)(ctx, rideID, sender)
	if werr != nil && !apperr.IsKind(werr, apperr.Ledger) {
		// Preflight rejections and unconfirmed submissions are already precise. An
		// unconfirmed write may still land, so the ride is not re-read as a failure.
		c.logFailedWrite(ctx, action.String(), rideID, sender, werr)
		return nil, werr
	}

	after, rerr := c.ledger.GetRide(ctx, rideID)
	if action == ride.Delete {
		if werr == nil && errors.Is(rerr, ride.ErrNotFound) {
			return c.confirmed(ctx, action, before, hash, sender), nil
		}
		if rerr != nil && !errors.Is(rerr, ride.ErrNotFound) {
			return nil, rerr
		}
	} else if rerr != nil {
		if werr != nil {
			return nil, werr
		}
		return nil, rerr
	}

	if werr == nil && landed(action, after, sender) {
		return c.confirmed(ctx, action, after, hash, sender), nil
	}

	// The write did not land as intended. The fresh state says why.
	lost := ride.CheckTransition(after, action)
	if rerr != nil {
		lost = rerr
	}
	if lost == nil {
		if werr != nil {
			return nil, werr
		}
		lost = ledger.ErrLedger.WithReason("ride %d did not reach %s", rideID, action.Target())
	}
	c.logger.WarnContext(ctx, "ride write lost race",
		slog.String("action", action.String()),
		slog.Uint64("ride_id", rideID),
		slog.String("sender", sender),
		slog.String("status", after.Status().String()),
		slog.Any("error", lost),
	)
	return nil, lost
}

func (c *Coordinator) confirmed(ctx context.Context, action ride.Action, r ride.Ride, hash common.Hash, sender string) *Receipt {
	view := NewRideView(r)
	if action == ride.Delete {
		view.Status = ride.Deleted
	}
	c.logger.InfoContext(ctx, "ride "+action.Target().String(),
		slog.Uint64("ride_id", r.ID),
		slog.String("tx_hash", hash.Hex()),
		slog.String("sender", sender),
	)
	return &Receipt{Ride: view, TxHash: hash.Hex()}
}

func (c *Coordinator) logFailedWrite(ctx context.Context, action string, rideID uint64, sender string, err error) {
	attrs := []any{
		slog.String("action", action),
		slog.Uint64("ride_id", rideID),
		slog.String("sender", sender),
		slog.Any("error", err),
	}
	if hash, ok := ledger.PendingTxHash(err); ok {
		c.logger.WarnContext(ctx, "ride write unconfirmed", append(attrs, slog.String("tx_hash", hash))...)
		return
	}
	c.logger.InfoContext(ctx, "ride write rejected", attrs...)
}
