// Package ledger is the client for the RideSharing contract: the authoritative record of every
// ride and of the escrowed fare.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/semanticallynull/rideledger-backend/internal/apperr"
	"github.com/semanticallynull/rideledger-backend/internal/ethaddr"
	"github.com/semanticallynull/rideledger-backend/money"
	"github.com/semanticallynull/rideledger-backend/ride"
)

const (
	DefaultGasLimit       = 500000
	DefaultConfirmTimeout = 30 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
)

type Config struct {
	ContractAddress common.Address
	// ABI defaults to the embedded RideSharing interface.
	ABI            *abi.ABI
	GasLimit       uint64
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Submission identifies a confirmed ride creation.
type Submission struct {
	RideID uint64
	TxHash common.Hash
}

type Client struct {
	backend Backend
	cfg     Config
	abi     abi.ABI
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewClient(backend Backend, cfg Config, logger *slog.Logger) (*Client, error) {
	var contract abi.ABI
	if cfg.ABI != nil {
		contract = *cfg.ABI
	} else {
		parsed, err := RideSharingABI()
		if err != nil {
			return nil, fmt.Errorf("parse embedded abi: %w", err)
		}
		contract = parsed
	}
	for _, m := range []string{methodCreate, methodAccept, methodComplete, methodCancel, methodDelete,
		methodRide, methodAvailable, methodByRider, methodByDriver} {
		if _, ok := contract.Methods[m]; !ok {
			return nil, fmt.Errorf("abi has no method %s", m)
		}
	}
	if _, ok := contract.Events[eventRideCreated]; !ok {
		return nil, fmt.Errorf("abi has no event %s", eventRideCreated)
	}

	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		backend: backend,
		cfg:     cfg,
		abi:     contract,
		logger:  logger,
		tracer:  otel.Tracer("ledger"),
	}, nil
}

// CreateRide escrows price (ether, at most two decimals) and records the ride. The distance is
// truncated to whole kilometres.
func (c *Client) CreateRide(ctx context.Context, pickup, drop, price string, distanceKm decimal.Decimal, sender string) (Submission, error) {
	from, err := ethaddr.Parse(sender)
	if err != nil {
		return Submission{}, err
	}
	amount, err := money.ParseAmount(price)
	if err != nil {
		return Submission{}, err
	}
	wei, err := money.ToBaseUnits(amount)
	if err != nil {
		return Submission{}, err
	}
	km, err := money.WholeKm(distanceKm)
	if err != nil {
		return Submission{}, err
	}

	data, err := c.abi.Pack(methodCreate, pickup, drop, wei, new(big.Int).SetUint64(km))
	if err != nil {
		return Submission{}, ErrLedger.Wrap(err)
	}

	receipt, err := c.transact(ctx, methodCreate, from, wei, data)
	if err != nil {
		return Submission{}, err
	}

	id, ok := c.createdRideID(receipt)
	if !ok {
		return Submission{}, ErrLedger.WithReason("no %s event in %s", eventRideCreated, receipt.TxHash.Hex())
	}
	return Submission{RideID: id, TxHash: receipt.TxHash}, nil
}

func (c *Client) createdRideID(receipt *types.Receipt) (uint64, bool) {
	ev := c.abi.Events[eventRideCreated]
	for _, l := range receipt.Logs {
		if l.Address != c.cfg.ContractAddress || len(l.Topics) < 2 || l.Topics[0] != ev.ID {
			continue
		}
		return l.Topics[1].Big().Uint64(), true
	}
	return 0, false
}

func (c *Client) AcceptRide(ctx context.Context, rideID uint64, sender string) (common.Hash, error) {
	return c.rideWrite(ctx, methodAccept, rideID, sender)
}

func (c *Client) CompleteRide(ctx context.Context, rideID uint64, sender string) (common.Hash, error) {
	return c.rideWrite(ctx, methodComplete, rideID, sender)
}

func (c *Client) CancelRide(ctx context.Context, rideID uint64, sender string) (common.Hash, error) {
	return c.rideWrite(ctx, methodCancel, rideID, sender)
}

func (c *Client) DeleteRide(ctx context.Context, rideID uint64, sender string) (common.Hash, error) {
	return c.rideWrite(ctx, methodDelete, rideID, sender)
}

func (c *Client) rideWrite(ctx context.Context, method string, rideID uint64, sender string) (common.Hash, error) {
	from, err := ethaddr.Parse(sender)
	if err != nil {
		return common.Hash{}, err
	}
	data, err := c.abi.Pack(method, new(big.Int).SetUint64(rideID))
	if err != nil {
		return common.Hash{}, ErrLedger.Wrap(err)
	}
	receipt, err := c.transact(ctx, method, from, nil, data)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// transact preflights the call, broadcasts it from the node-managed sender account and waits for
// its receipt. It returns only once the transaction is mined or the confirmation wait gives up.
func (c *Client) transact(ctx context.Context, method string, from common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "ledger."+method, trace.WithAttributes(
		attribute.String("ledger.sender", from.Hex()),
	))
	defer span.End()

	to := c.cfg.ContractAddress
	msg := ethereum.CallMsg{From: from, To: &to, Gas: c.cfg.GasLimit, Value: value, Data: data}
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		err = classify(err)
		c.record(span, method, outcomeRejected, err)
		return nil, err
	}

	hash, err := c.backend.SendTransaction(ctx, TxArgs{From: from, To: to, Gas: c.cfg.GasLimit, Value: value, Data: data})
	if err != nil {
		err = classify(err)
		c.record(span, method, outcomeRejected, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("ledger.tx_hash", hash.Hex()))
	c.logger.InfoContext(ctx, "ledger transaction submitted",
		slog.String("method", method),
		slog.String("tx_hash", hash.Hex()),
		slog.String("sender", from.Hex()),
	)

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		c.logger.WarnContext(ctx, "ledger transaction unconfirmed",
			slog.String("method", method),
			slog.String("tx_hash", hash.Hex()),
			slog.Duration("timeout", c.cfg.ConfirmTimeout),
		)
		c.record(span, method, outcomeUnconfirmed, err)
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := ErrLedger.WithReason("transaction %s reverted", hash.Hex())
		c.record(span, method, outcomeFailed, err)
		return nil, err
	}

	c.logger.InfoContext(ctx, "ledger transaction confirmed",
		slog.String("method", method),
		slog.String("tx_hash", hash.Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	c.record(span, method, outcomeConfirmed, nil)
	return receipt, nil
}

func (c *Client) record(span trace.Span, method, outcome string, err error) {
	transactionsTotal.WithLabelValues(method, outcome).Inc()
	span.SetAttributes(attribute.String("ledger.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}

// waitMined polls for the receipt until it appears, the confirmation timeout elapses or ctx is
// done. Poll failures are not fatal: the transaction is already broadcast.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			confirmationSeconds.Observe(time.Since(start).Seconds())
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			c.logger.DebugContext(ctx, "receipt poll failed", slog.String("tx_hash", hash.Hex()), slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil, ErrUnconfirmed.WithReason("%s", hash.Hex())
		case <-ticker.C:
		}
	}
}

// PendingTxHash returns the hash carried by an UnconfirmedSubmission.
func PendingTxHash(err error) (string, bool) {
	if !errors.Is(err, ErrUnconfirmed) {
		return "", false
	}
	return apperr.ReasonOf(err), true
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "ledger."+method)
	defer span.End()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, ErrLedger.Wrap(err)
	}
	to := c.cfg.ContractAddress
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, method)
		return nil, err
	}
	return out, nil
}

// GetRide reads one ride. Rides that never existed or were deleted report ride.ErrNotFound.
func (c *Client) GetRide(ctx context.Context, rideID uint64) (ride.Ride, error) {
	out, err := c.call(ctx, methodRide, new(big.Int).SetUint64(rideID))
	if err != nil {
		return ride.Ride{}, err
	}
	r, err := decodeRide(c.abi, out)
	if errors.Is(err, ride.ErrNotFound) {
		return ride.Ride{}, ride.ErrNotFound.WithReason("ride %d", rideID)
	}
	if err != nil {
		return ride.Ride{}, ErrLedger.Wrap(err)
	}
	return r, nil
}

// GetAvailableRides returns rides no driver has accepted that are not terminal, newest first.
func (c *Client) GetAvailableRides(ctx context.Context) ([]ride.Ride, error) {
	rides, err := c.list(ctx, methodAvailable)
	if err != nil {
		return nil, err
	}
	available := rides[:0]
	for _, r := range rides {
		if r.Available() {
			available = append(available, r)
		}
	}
	return available, nil
}

func (c *Client) GetRiderRides(ctx context.Context, rider string) ([]ride.Ride, error) {
	addr, err := ethaddr.Parse(rider)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, methodByRider, addr)
}

func (c *Client) GetDriverRides(ctx context.Context, driver string) ([]ride.Ride, error) {
	addr, err := ethaddr.Parse(driver)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, methodByDriver, addr)
}

func (c *Client) list(ctx context.Context, method string, args ...any) ([]ride.Ride, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	rides, err := decodeRides(c.abi, method, out)
	if err != nil {
		return nil, ErrLedger.Wrap(err)
	}
	return rides, nil
}

// GetBalance returns the account balance in wei.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := ethaddr.Parse(address)
	if err != nil {
		return nil, err
	}
	balance, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, ErrLedger.Wrap(err)
	}
	return balance, nil
}

// Accounts lists the node-managed accounts that may sign transactions.
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	accounts, err := c.backend.Accounts(ctx)
	if err != nil {
		return nil, ErrLedger.Wrap(err)
	}
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Hex())
	}
	return out, nil
}
