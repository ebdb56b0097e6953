package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Oracle reads token balances and allowances through raw eth_call selectors,
// avoiding ABI round-trips for the two hot read paths.
type Oracle struct {
	backend ChainBackend
}

// NewOracle creates an oracle over the given backend
func NewOracle(backend ChainBackend) *Oracle {
	return &Oracle{backend: backend}
}

// TokenBalance returns the ERC-20 balance of owner
func (o *Oracle) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	// ERC20 balanceOf(address) selector: 0x70a08231
	data := append(
		common.Hex2Bytes("70a08231"),
		common.LeftPadBytes(owner.Bytes(), 32)...,
	)

	result, err := o.backend.ReadContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid balance response length: %d", len(result))
	}

	return new(big.Int).SetBytes(result), nil
}

// Allowance returns the ERC-20 allowance granted by owner to spender
func (o *Oracle) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	// ERC20 allowance(address,address) selector: 0xdd62ed3e
	data := append(
		common.Hex2Bytes("dd62ed3e"),
		common.LeftPadBytes(owner.Bytes(), 32)...,
	)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)

	result, err := o.backend.ReadContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid allowance response length: %d", len(result))
	}

	return new(big.Int).SetBytes(result), nil
}

// NativeBalance returns the native token balance of an address
func (o *Oracle) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return o.backend.NativeBalance(ctx, addr)
}
