package acceptance

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rideledger-backend/api"
	"github.com/semanticallynull/rideledger-backend/coordinator"
	"github.com/semanticallynull/rideledger-backend/geo"
	"github.com/semanticallynull/rideledger-backend/internal/auth"
	"github.com/semanticallynull/rideledger-backend/internal/o11y"
	"github.com/semanticallynull/rideledger-backend/ledger"
	"github.com/semanticallynull/rideledger-backend/ledger/ledgertest"
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

type TestServer struct {
	Router *gin.Engine
	Chain  *ledgertest.Chain
	Geo    *geo.FakeService
	Users  *usertest.Store
	Tokens *auth.Issuer
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)
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

	store := usertest.NewStore()
	registry := user.NewRegistry(store, logger)
	fake := geo.NewFakeService()
	coord := coordinator.New(client, registry, fake, coordinator.Config{}, logger)

	tokens, err := auth.NewIssuer(auth.Config{
		Secret:   "acceptance-secret",
		Issuer:   "rideledger",
		Audience: "rideledger-api",
		TTL:      time.Hour,
	})
	require.NoError(t, err)

	obs := &o11y.Observability{Logger: logger, Registry: prometheus.NewRegistry()}
	a, err := api.New(registry, coord, fake, tokens, obs, api.Config{
		MetricsUsername: "ops",
		MetricsPassword: "metrics-pw",
	})
	require.NoError(t, err)

	return &TestServer{
		Router: a.Router(),
		Chain:  chain,
		Geo:    fake,
		Users:  store,
		Tokens: tokens,
	}
}

// Bearer signs a token for u without going through /login.
func (ts *TestServer) Bearer(t *testing.T, u *user.User) map[string]string {
	t.Helper()
	token, _, err := ts.Tokens.Issue(u)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

// Helper methods for making requests
func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) POST(path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

// Register creates a user through the API and returns the bearer header for it.
func (ts *TestServer) Register(t *testing.T, username, address string, role user.Role) map[string]string {
	t.Helper()
	w := ts.POST("/register", map[string]string{
		"username":        username,
		"ethereumAddress": address,
		"password":        username + "-pw",
		"role":            string(role),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return ts.Login(t, username)
}

func (ts *TestServer) Login(t *testing.T, username string) map[string]string {
	t.Helper()
	w := ts.POST("/login", map[string]string{"username": username, "password": username + "-pw"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return map[string]string{"Authorization": "Bearer " + resp.Token}
}

// CreateRide posts a 1.53 ether, 15 km ride as the holder of headers and returns its id.
func (ts *TestServer) CreateRide(t *testing.T, headers map[string]string) uint64 {
	t.Helper()
	w := ts.POST("/createRide", map[string]any{
		"pickupLocation": "Union Station",
		"dropLocation":   "Pearson Airport",
		"price":          "1.53",
		"distance":       15,
	}, headers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp receiptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Ride.RideID
}

type rideResponse struct {
	RideID      uint64 `json:"rideId"`
	Rider       string `json:"rider"`
	Driver      string `json:"driver"`
	Price       string `json:"price"`
	Distance    string `json:"distance"`
	IsAccepted  bool   `json:"isAccepted"`
	IsCompleted bool   `json:"isCompleted"`
	IsCancelled bool   `json:"isCancelled"`
	Status      string `json:"status"`
}

type receiptResponse struct {
	Ride            rideResponse `json:"ride"`
	TransactionHash string       `json:"transactionHash"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
