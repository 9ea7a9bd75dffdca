package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// TxArgs is a transaction to be signed by the node that holds the sender's key.
type TxArgs struct {
	From  common.Address
	To    common.Address
	Gas   uint64
	Value *big.Int
	Data  []byte
}

// Backend is the subset of a node's JSON-RPC surface the client uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	// SendTransaction asks the node to sign and broadcast a transaction from one of its
	// managed accounts.
	SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error)
	// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Accounts(ctx context.Context) ([]common.Address, error)
}

// RPCBackend talks to a node over JSON-RPC.
type RPCBackend struct {
	rpc *rpc.Client
	*ethclient.Client
}

func Dial(ctx context.Context, url string) (*RPCBackend, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RPCBackend{
		rpc:    c,
		Client: ethclient.NewClient(c),
	}, nil
}

type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Gas   hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data"`
}

func (b *RPCBackend) SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	req := sendTxArgs{
		From: args.From,
		To:   args.To,
		Gas:  hexutil.Uint64(args.Gas),
		Data: args.Data,
	}
	if args.Value != nil && args.Value.Sign() > 0 {
		req.Value = (*hexutil.Big)(args.Value)
	}

	var hash common.Hash
	err := b.rpc.CallContext(ctx, &hash, "eth_sendTransaction", req)
	return hash, err
}

func (b *RPCBackend) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := b.rpc.CallContext(ctx, &accounts, "eth_accounts")
	return accounts, err
}
