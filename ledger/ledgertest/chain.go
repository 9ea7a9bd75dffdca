// Package ledgertest provides an in-memory ledger backend that enforces the RideSharing
// contract rules, for tests that need a ledger without a node.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/semanticallynull/rideledger-backend/ledger"
)

// ContractAddress is where the simulated contract lives.
var ContractAddress = common.HexToAddress("0x8e2E905cAC14409e46D495008E32dEF5261A7B59")

// InitialBalance is what every account starts with: 100 ether.
var InitialBalance = new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))

// Chain implements ledger.Backend. Transactions are mined as soon as they are sent unless
// receipts are held.
type Chain struct {
	mu       sync.Mutex
	abi      abi.ABI
	accounts []common.Address
	balances map[common.Address]*big.Int
	state    *contractState
	receipts map[common.Hash]*types.Receipt
	held     map[common.Hash]*types.Receipt
	hold     bool
	block    uint64
	sent     int

	beforeSend []func()
	sendErr    error
}

var _ ledger.Backend = (*Chain)(nil)

// New returns a chain whose node manages accounts, each funded with InitialBalance.
func New(accounts ...common.Address) *Chain {
	contract, err := ledger.RideSharingABI()
	if err != nil {
		panic(err)
	}
	c := &Chain{
		abi:      contract,
		accounts: accounts,
		balances: map[common.Address]*big.Int{},
		state:    newContractState(),
		receipts: map[common.Hash]*types.Receipt{},
		held:     map[common.Hash]*types.Receipt{},
	}
	for _, a := range accounts {
		c.balances[a] = new(big.Int).Set(InitialBalance)
	}
	return c
}

// HoldReceipts keeps mined receipts hidden until Mine is called, as a congested node would.
func (c *Chain) HoldReceipts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = true
}

// Mine releases held receipts and stops holding new ones.
func (c *Chain) Mine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, r := range c.held {
		c.receipts[h] = r
	}
	c.held = map[common.Hash]*types.Receipt{}
	c.hold = false
}

// BeforeNextSend runs fn when the next transaction arrives, before it executes. It lets a test
// slip a competing transaction in between a caller's read and its write.
func (c *Chain) BeforeNextSend(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeSend = append(c.beforeSend, fn)
}

// FailNextSend makes the next SendTransaction return err without executing.
func (c *Chain) FailNextSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent reports how many transactions reached the node.
func (c *Chain) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Balance returns the balance of addr in wei.
func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return balanceOf(c.balances, addr)
}

// Escrow returns the wei held by the contract.
func (c *Chain) Escrow() *big.Int {
	return c.Balance(ContractAddress)
}

func (c *Chain) Accounts(context.Context) ([]common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Address(nil), c.accounts...), nil
}

func (c *Chain) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	return c.Balance(account), nil
}

// CallContract executes msg against a copy of the state and discards the result.
func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.To == nil || *msg.To != ContractAddress {
		return nil, nil
	}
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}

	balances := cloneBalances(c.balances)
	if err := transfer(balances, msg.From, ContractAddress, value); err != nil {
		return nil, err
	}
	out, _, err := c.run(c.state.clone(), balances, msg.From, value, msg.Data)
	return out, err
}

func (c *Chain) SendTransaction(_ context.Context, args ledger.TxArgs) (common.Hash, error) {
	c.mu.Lock()
	hooks := c.beforeSend
	c.beforeSend = nil
	sendErr := c.sendErr
	c.sendErr = nil
	c.mu.Unlock()

	if sendErr != nil {
		return common.Hash{}, sendErr
	}
	for _, fn := range hooks {
		fn()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.manages(args.From) {
		return common.Hash{}, fmt.Errorf("unknown account %s", args.From.Hex())
	}
	value := args.Value
	if value == nil {
		value = new(big.Int)
	}
	if balanceOf(c.balances, args.From).Cmp(value) < 0 {
		return common.Hash{}, errors.New("insufficient funds for gas * price + value")
	}

	c.sent++
	c.block++
	hash := crypto.Keccak256Hash(args.From.Bytes(), big.NewInt(int64(c.sent)).Bytes(), args.Data)
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		TxHash:      hash,
		GasUsed:     21000,
		BlockNumber: new(big.Int).SetUint64(c.block),
	}

	state := c.state.clone()
	balances := cloneBalances(c.balances)
	var logs []*types.Log
	err := transfer(balances, args.From, args.To, value)
	if err == nil && args.To == ContractAddress {
		_, logs, err = c.run(state, balances, args.From, value, args.Data)
	}
	if err == nil {
		c.state = state
		c.balances = balances
		receipt.Status = types.ReceiptStatusSuccessful
		for i, l := range logs {
			l.TxHash = hash
			l.BlockNumber = c.block
			l.Index = uint(i)
		}
		receipt.Logs = logs
	}

	if c.hold {
		c.held[hash] = receipt
	} else {
		c.receipts[hash] = receipt
	}
	return hash, nil
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *Chain) manages(addr common.Address) bool {
	for _, a := range c.accounts {
		if a == addr {
			return true
		}
	}
	return false
}

func balanceOf(balances map[common.Address]*big.Int, addr common.Address) *big.Int {
	if b, ok := balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func cloneBalances(in map[common.Address]*big.Int) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(in))
	for k, v := range in {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

func transfer(balances map[common.Address]*big.Int, from, to common.Address, value *big.Int) error {
	if value.Sign() == 0 {
		return nil
	}
	have := balanceOf(balances, from)
	if have.Cmp(value) < 0 {
		return errors.New("insufficient funds for transfer")
	}
	balances[from] = have.Sub(have, value)
	balances[to] = new(big.Int).Add(balanceOf(balances, to), value)
	return nil
}

// RevertError is a contract revert as a node reports it: the reason in the message and the
// ABI-encoded Error(string) payload as error data.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) ErrorCode() int {
	return 3
}

func (e *RevertError) ErrorData() interface{} {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(e.Reason)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func revert(reason string) error {
	return &RevertError{Reason: reason}
}
