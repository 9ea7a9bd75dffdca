package coordinator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rideledger-backend/geo"
	"github.com/semanticallynull/rideledger-backend/internal/apperr"
	"github.com/semanticallynull/rideledger-backend/ledger"
	"github.com/semanticallynull/rideledger-backend/ledger/ledgertest"
	"github.com/semanticallynull/rideledger-backend/ride"
	"github.com/semanticallynull/rideledger-backend/user"
	"github.com/semanticallynull/rideledger-backend/user/usertest"
)

const (
	riderA  = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	riderB  = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
	driverX = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	driverY = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
	free    = "0x1111111111111111111111111111111111111111"
)

type harness struct {
	coord  *Coordinator
	client *ledger.Client
	chain  *ledgertest.Chain
	geo    *geo.FakeService
}

func setup(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	chain := ledgertest.New(
		common.HexToAddress(riderA), common.HexToAddress(riderB),
		common.HexToAddress(driverX), common.HexToAddress(driverY),
		common.HexToAddress(free),
	)
	client, err := ledger.NewClient(chain, ledger.Config{
		ContractAddress: ledgertest.ContractAddress,
		ConfirmTimeout:  100 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
	}, logger)
	require.NoError(t, err)

	registry := user.NewRegistry(usertest.NewStore(), logger)
	ctx := context.Background()
	for name, reg := range map[string]struct {
		addr string
		role user.Role
	}{
		"alice": {riderA, user.Rider},
		"bella": {riderB, user.Rider},
		"xavi":  {driverX, user.Driver},
		"yuri":  {driverY, user.Driver},
	} {
		_, err := registry.Register(ctx, name, reg.addr, "pw", reg.role)
		require.NoError(t, err)
	}

	fake := geo.NewFakeService()
	return &harness{
		coord:  New(client, registry, fake, Config{}, logger),
		client: client,
		chain:  chain,
		geo:    fake,
	}
}

func (h *harness) create(t *testing.T) uint64 {
	t.Helper()
	rc, err := h.coord.CreateRide(context.Background(), CreateRequest{
		Pickup:   "A",
		Drop:     "B",
		Price:    "1.53",
		Distance: decimal.NewFromInt(15),
		Sender:   riderA,
	})
	require.NoError(t, err)
	return rc.Ride.RideID
}

func TestCreateThenAcceptScenario(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	rc, err := h.coord.CreateRide(ctx, CreateRequest{
		Pickup: "A", Drop: "B", Price: "1.53", Distance: decimal.NewFromInt(15), Sender: riderA,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rc.Ride.RideID)
	assert.Equal(t, "1.53", rc.Ride.Price)
	assert.Equal(t, "15.0", rc.Ride.Distance)
	assert.Equal(t, ride.Pending, rc.Ride.Status)
	assert.NotEmpty(t, rc.TxHash)

	history, err := h.coord.ListDriverHistory(ctx, driverX)
	require.NoError(t, err)
	assert.Empty(t, history)

	accepted, err := h.coord.AcceptRide(ctx, 1, driverX)
	require.NoError(t, err)
	assert.Equal(t, driverX, accepted.Ride.Driver)

	history, err = h.coord.ListDriverHistory(ctx, strings.ToLower(driverX))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uint64(1), history[0].RideID)
	assert.True(t, history[0].Accepted)
}

func TestCreateRidePricesFromDistance(t *testing.T) {
	h := setup(t)

	rc, err := h.coord.CreateRide(context.Background(), CreateRequest{
		Pickup: "A", Drop: "B", Distance: decimal.RequireFromString("15.3"), Sender: riderA,
	})

	require.NoError(t, err)
	assert.Equal(t, "1.53", rc.Ride.Price)
	assert.Equal(t, "15.0", rc.Ride.Distance)
}

func TestCreateRideRejectsBeforeLedger(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"driver sender", CreateRequest{Pickup: "A", Drop: "B", Price: "1.53", Distance: decimal.NewFromInt(15), Sender: driverX}, ErrWrongRole},
		{"unregistered", CreateRequest{Pickup: "A", Drop: "B", Price: "1.53", Distance: decimal.NewFromInt(15), Sender: free}, ErrUnregistered},
		{"missing drop", CreateRequest{Pickup: "A", Price: "1.53", Distance: decimal.NewFromInt(15), Sender: riderA}, ErrMissingField},
		{"zero distance", CreateRequest{Pickup: "A", Drop: "B", Price: "1.53", Sender: riderA}, nil},
		{"too precise", CreateRequest{Pickup: "A", Drop: "B", Price: "1.534", Distance: decimal.NewFromInt(15), Sender: riderA}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t)
			_, err := h.coord.CreateRide(context.Background(), tt.req)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Contains(t, []apperr.Kind{apperr.Validation, apperr.Forbidden}, apperr.KindOf(err))
			assert.Zero(t, h.chain.Sent())
		})
	}
}

func TestAcceptAcceptedRide(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	id := h.create(t)
	_, err := h.coord.AcceptRide(ctx, id, driverX)
	require.NoError(t, err)
	sent := h.chain.Sent()

	_, err = h.coord.AcceptRide(ctx, id, driverY)

	assert.ErrorIs(t, err, ride.ErrAlreadyAccepted)
	assert.Equal(t, sent, h.chain.Sent())
	r, err := h.coord.GetRide(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, driverX, r.Driver)
}

func TestAcceptRequiresDriver(t *testing.T) {
	h := setup(t)
	id := h.create(t)

	_, err := h.coord.AcceptRide(context.Background(), id, riderB)

	assert.ErrorIs(t, err, ErrWrongRole)
}

func TestCancel(t *testing.T) {
	t.Run("Pending", func(t *testing.T) {
		h := setup(t)
		ctx := context.Background()
		id := h.create(t)

		rc, err := h.coord.CancelRide(ctx, id, riderA)
		require.NoError(t, err)
		assert.True(t, rc.Ride.Cancelled)
		assert.True(t, rc.Ride.Status.Terminal())

		sent := h.chain.Sent()
		_, err = h.coord.AcceptRide(ctx, id, driverX)
		assert.ErrorIs(t, err, ride.ErrInvalidTransition)
		assert.ErrorIs(t, err, ride.ErrAlreadyCancelled)
		assert.Equal(t, sent, h.chain.Sent())
	})

	t.Run("Accepted", func(t *testing.T) {
		h := setup(t)
		ctx := context.Background()
		id := h.create(t)
		_, err := h.coord.AcceptRide(ctx, id, driverX)
		require.NoError(t, err)

		_, err = h.coord.CancelRide(ctx, id, riderA)
		assert.ErrorIs(t, err, ride.ErrAlreadyAccepted)

		r, err := h.coord.GetRide(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ride.Accepted, r.Status)
	})

	t.Run("Not Owner", func(t *testing.T) {
		h := setup(t)
		id := h.create(t)

		_, err := h.coord.CancelRide(context.Background(), id, riderB)
		assert.ErrorIs(t, err, ride.ErrNotOwner)
		assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	})
}

func TestCompleteRide(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	id := h.create(t)

	_, err := h.coord.CompleteRide(ctx, id, riderA)
	assert.ErrorIs(t, err, ride.ErrNotAccepted)

	_, err = h.coord.AcceptRide(ctx, id, driverX)
	require.NoError(t, err)
	rc, err := h.coord.CompleteRide(ctx, id, riderA)
	require.NoError(t, err)
	assert.Equal(t, ride.Completed, rc.Ride.Status)
	assert.False(t, rc.Ride.Cancelled)

	_, err = h.coord.CancelRide(ctx, id, riderA)
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)
	assert.ErrorIs(t, err, ride.ErrAlreadyTerminal)
}

func TestDeleteRide(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	id := h.create(t)

	rc, err := h.coord.DeleteRide(ctx, id, riderA)
	require.NoError(t, err)
	assert.Equal(t, ride.Deleted, rc.Ride.Status)

	_, err = h.coord.GetRide(ctx, id)
	assert.ErrorIs(t, err, ride.ErrNotFound)

	_, err = h.coord.DeleteRide(ctx, id, riderA)
	assert.ErrorIs(t, err, ride.ErrNotFound)
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	h := setup(t)
	id := h.create(t)

	drivers := []string{driverX, driverY}
	errs := make([]error, len(drivers))
	var wg sync.WaitGroup
	for i, d := range drivers {
		wg.Add(1)
		go func(i int, d string) {
			defer wg.Done()
			_, errs[i] = h.coord.AcceptRide(context.Background(), id, d)
		}(i, d)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, ride.ErrAlreadyAccepted)
	}
	assert.Equal(t, 1, winners)

	r, err := h.coord.GetRide(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, drivers, r.Driver)
}

func TestAcceptLostRaceSeenOnReread(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	id := h.create(t)

	// driverY's accept is mined between driverX's guard and driverX's write.
	h.chain.BeforeNextSend(func() {
		_, err := h.client.AcceptRide(ctx, id, driverY)
		require.NoError(t, err)
	})

	_, err := h.coord.AcceptRide(ctx, id, driverX)

	assert.ErrorIs(t, err, ride.ErrAlreadyAccepted)
	r, err := h.coord.GetRide(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, driverY, r.Driver)
}

func TestUnconfirmedAcceptIsNotAFailure(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	id := h.create(t)
	h.chain.HoldReceipts()

	_, err := h.coord.AcceptRide(ctx, id, driverX)

	assert.ErrorIs(t, err, ledger.ErrUnconfirmed)
	assert.Equal(t, apperr.Unconfirmed, apperr.KindOf(err))

	h.chain.Mine()
	r, err := h.coord.GetRide(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, driverX, r.Driver)
}

func TestAvailableRidesNeverIncludeTakenRides(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	taken := h.create(t)
	cancelled := h.create(t)
	done := h.create(t)
	open := h.create(t)

	_, err := h.coord.AcceptRide(ctx, taken, driverX)
	require.NoError(t, err)
	_, err = h.coord.CancelRide(ctx, cancelled, riderA)
	require.NoError(t, err)
	_, err = h.coord.AcceptRide(ctx, done, driverY)
	require.NoError(t, err)
	_, err = h.coord.CompleteRide(ctx, done, riderA)
	require.NoError(t, err)

	available, err := h.coord.ListAvailableRides(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, open, available[0].RideID)

	history, err := h.coord.ListRiderHistory(ctx, riderA)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, open, history[0].RideID, "newest first")
	for _, v := range history {
		assert.False(t, v.Completed && v.Cancelled)
	}
}

func TestQuoteRide(t *testing.T) {
	h := setup(t)
	h.geo.AddRoute("43.65,-79.38", "43.7,-79.4", "15.3 km")

	q, err := h.coord.QuoteRide(context.Background(), "43.65,-79.38", "43.7,-79.4")

	require.NoError(t, err)
	assert.Equal(t, "1.53", q.Price)
	assert.True(t, decimal.RequireFromString("15.3").Equal(q.DistanceKm))

	_, err = h.coord.QuoteRide(context.Background(), "nowhere", "else")
	assert.ErrorIs(t, err, geo.ErrNoResults)
}

func TestAddresses(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	unassigned, err := h.coord.UnassignedAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{free}, unassigned)

	assert.NoError(t, h.coord.ValidateAddress(ctx, free))
	assert.ErrorIs(t, h.coord.ValidateAddress(ctx, riderA), user.ErrDuplicateAddress)
	assert.ErrorIs(t, h.coord.ValidateAddress(ctx, "0x2222222222222222222222222222222222222222"), user.ErrUnknownAddress)
}

func TestGetBalance(t *testing.T) {
	h := setup(t)
	h.create(t)

	balance, err := h.coord.GetBalance(context.Background(), riderA)

	require.NoError(t, err)
	assert.Equal(t, "98.47", balance)
}
