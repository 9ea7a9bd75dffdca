package acceptance

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rideledger-backend/user"
)

func TestRideLifecycle(t *testing.T) {
	ts := NewTestServer(t)
	rider := ts.Register(t, "alice", riderA, user.Rider)
	driver := ts.Register(t, "xavi", driverX, user.Driver)

	w := ts.POST("/createRide", map[string]any{
		"pickupLocation": "Union Station",
		"dropLocation":   "Pearson Airport",
		"price":          1.53,
		"distance":       15,
		"senderAddress":  riderA,
	}, rider)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[receiptResponse](t, w)
	assert.Equal(t, uint64(1), created.Ride.RideID)
	assert.Equal(t, "1.53", created.Ride.Price)
	assert.Equal(t, "15.0", created.Ride.Distance)
	assert.Equal(t, "pending", created.Ride.Status)
	assert.Len(t, created.TransactionHash, 66)

	w = ts.GET("/balance/"+riderA, nil)
	assert.JSONEq(t, `{"balance":"98.47"}`, w.Body.String())

	w = ts.GET("/driverHistory/"+driverX, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]rideResponse](t, w))

	w = ts.POST("/acceptRide", map[string]any{"rideId": 1, "driverAddress": driverX}, driver)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decode[receiptResponse](t, w)
	assert.Equal(t, driverX, accepted.Ride.Driver)
	assert.True(t, accepted.Ride.IsAccepted)

	w = ts.GET("/driverHistory/"+strings.ToLower(driverX), nil)
	history := decode[[]rideResponse](t, w)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsAccepted)

	w = ts.POST("/completeRide", map[string]any{"rideId": 1}, rider)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", decode[receiptResponse](t, w).Ride.Status)

	w = ts.GET("/balance/"+driverX, nil)
	assert.JSONEq(t, `{"balance":"101.53"}`, w.Body.String())

	w = ts.GET("/rideHistory/"+riderA, nil)
	rides := decode[[]rideResponse](t, w)
	require.Len(t, rides, 1)
	assert.True(t, rides[0].IsCompleted)
	assert.False(t, rides[0].IsCancelled)
}

func TestCreateRidePricedFromDistance(t *testing.T) {
	ts := NewTestServer(t)
	rider := ts.Register(t, "alice", riderA, user.Rider)

	w := ts.POST("/createRide", map[string]any{
		"pickupLocation": "A",
		"dropLocation":   "B",
		"distance":       "15.3",
	}, rider)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "1.53", decode[receiptResponse](t, w).Ride.Price)
	assert.Equal(t, "1530000000000000000", ts.Chain.Escrow().String())
}

func TestWritesRequireMatchingToken(t *testing.T) {
	ts := NewTestServer(t)
	rider := ts.Register(t, "alice", riderA, user.Rider)
	ts.Register(t, "bella", riderB, user.Rider)
	id := ts.CreateRide(t, rider)
	sent := ts.Chain.Sent()

	t.Run("No Token", func(t *testing.T) {
		w := ts.POST("/cancelRide", map[string]any{"rideId": id}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Forged Token", func(t *testing.T) {
		w := ts.POST("/cancelRide", map[string]any{"rideId": id}, map[string]string{"Authorization": "Bearer abc.def.ghi"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Sender Mismatch", func(t *testing.T) {
		w := ts.POST("/cancelRide", map[string]any{"rideId": id, "senderAddress": riderB}, rider)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "SENDER_MISMATCH", decode[errorResponse](t, w).Code)
	})

	t.Run("Not Owner", func(t *testing.T) {
		w := ts.POST("/cancelRide", map[string]any{"rideId": id}, ts.Login(t, "bella"))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "NOT_OWNER", decode[errorResponse](t, w).Code)
	})

	t.Run("Rider Cannot Accept", func(t *testing.T) {
		w := ts.POST("/acceptRide", map[string]any{"rideId": id}, rider)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "WRONG_ROLE", decode[errorResponse](t, w).Code)
	})

	assert.Equal(t, sent, ts.Chain.Sent())
}

func TestTokenRoleCheckedBeforeRegistry(t *testing.T) {
	ts := NewTestServer(t)
	// Valid signature, but the address was never registered and the role is wrong for the write.
	headers := ts.Bearer(t, &user.User{Username: "ghost", Address: free, Role: user.Driver})

	w := ts.POST("/createRide", map[string]any{
		"pickupLocation": "A",
		"dropLocation":   "B",
		"price":          "1.53",
		"distance":       15,
	}, headers)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "WRONG_ROLE", decode[errorResponse](t, w).Code)
	assert.Zero(t, ts.Chain.Sent())
}

func TestRideConflicts(t *testing.T) {
	ts := NewTestServer(t)
	rider := ts.Register(t, "alice", riderA, user.Rider)
	x := ts.Register(t, "xavi", driverX, user.Driver)
	y := ts.Register(t, "yuri", driverY, user.Driver)
	id := ts.CreateRide(t, rider)

	w := ts.POST("/acceptRide", map[string]any{"rideId": id}, x)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.POST("/acceptRide", map[string]any{"rideId": id}, y)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_ACCEPTED", decode[errorResponse](t, w).Code)

	w = ts.POST("/cancelRide", map[string]any{"rideId": id}, rider)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_ACCEPTED", decode[errorResponse](t, w).Code)

	w = ts.GET(fmt.Sprintf("/rides/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	r := decode[rideResponse](t, w)
	assert.Equal(t, driverX, r.Driver)
	assert.Equal(t, "accepted", r.Status)
}

func TestCancelAndDelete(t *testing.T) {
	ts := NewTestServer(t)
	rider := ts.Register(t, "alice", riderA, user.Rider)
	driver := ts.Register(t, "xavi", driverX, user.Driver)

	cancelled := ts.CreateRide(t, rider)
	w := ts.POST("/cancelRide", map[string]any{"rideId": cancelled}, rider)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[receiptResponse](t, w).Ride.IsCancelled)

	w = ts.POST("/acceptRide", map[string]any{"rideId": cancelled}, driver)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[errorResponse](t, w).Code)

	deleted := ts.CreateRide(t, rider)
	w = ts.POST("/deleteRide", map[string]any{"rideId": deleted}, rider)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "deleted", decode[receiptResponse](t, w).Ride.Status)

	w = ts.GET(fmt.Sprintf("/rides/%d", deleted), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.GET("/balance/"+riderA, nil)
	assert.JSONEq(t, `{"balance":"100"}`, w.Body.String())
	assert.Zero(t, ts.Chain.Escrow().Sign())
}

func TestAvailableRides(t *testing.T) {
	ts := NewTestServer(t)
	rider := ts.Register(t, "alice", riderA, user.Rider)
	driver := ts.Register(t, "xavi", driverX, user.Driver)

	first := ts.CreateRide(t, rider)
	second := ts.CreateRide(t, rider)
	third := ts.CreateRide(t, rider)
	ts.POST("/acceptRide", map[string]any{"rideId": first}, driver)
	ts.POST("/cancelRide", map[string]any{"rideId": second}, rider)

	w := ts.GET("/getAvailableRides", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		AvailableRides []rideResponse `json:"availableRides"`
	}](t, w)
	require.Len(t, resp.AvailableRides, 1)
	assert.Equal(t, third, resp.AvailableRides[0].RideID)

	w = ts.GET("/rideHistory/"+riderA, nil)
	history := decode[[]rideResponse](t, w)
	require.Len(t, history, 3)
	assert.Equal(t, []uint64{third, second, first}, []uint64{history[0].RideID, history[1].RideID, history[2].RideID})
}

func TestUnconfirmedWriteIsAccepted(t *testing.T) {
	ts := NewTestServer(t)
	rider := ts.Register(t, "alice", riderA, user.Rider)
	driver := ts.Register(t, "xavi", driverX, user.Driver)
	id := ts.CreateRide(t, rider)

	ts.Chain.HoldReceipts()
	w := ts.POST("/acceptRide", map[string]any{"rideId": id}, driver)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decode[map[string]string](t, w)
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "UNCONFIRMED_SUBMISSION", resp["code"])
	assert.Len(t, resp["transactionHash"], 66)

	ts.Chain.Mine()
	w = ts.GET(fmt.Sprintf("/rides/%d", id), nil)
	assert.Equal(t, "accepted", decode[rideResponse](t, w).Status)
}

func TestReadEndpointsValidateInput(t *testing.T) {
	ts := NewTestServer(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/balance/0x123", http.StatusBadRequest},
		{"/rideHistory/not-an-address", http.StatusBadRequest},
		{"/driverHistory/0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", http.StatusBadRequest},
		{"/rides/abc", http.StatusNotFound},
		{"/rides/99", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := ts.GET(tt.path, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}
