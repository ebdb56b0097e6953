package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainBackend is the narrow view of an EVM chain the engine operates
// through. The production implementation is evm.Client; tests substitute
// an in-memory fake.
type ChainBackend interface {
	// RelayerAddress returns the address the backend signs transactions with
	RelayerAddress() common.Address

	// ChainID returns the chain ID transactions are signed for
	ChainID() *big.Int

	// NativeBalance returns the native token balance of an address
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	// GasPrice returns the current suggested gas price
	GasPrice(ctx context.Context) (*big.Int, error)

	// ReadContract executes a read-only contract call
	ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// SendTransaction signs and broadcasts a transaction from the relayer account
	SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error)

	// WaitForReceipt blocks until the transaction is mined or the timeout
	// elapses. A mined receipt is returned whether the transaction succeeded
	// or reverted; an error means it was not mined in time.
	WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error)

	// TransactionByHash returns a transaction and whether it is still pending
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)

	// TransactionReceipt returns the receipt of a mined transaction
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// Close releases the underlying connection
	Close()
}
