package evm

import (
	"fmt"
	"math/big"
)

// WrappedNativeABI is the deposit/withdraw interface shared by WETH-style
// wrapped native token contracts
const WrappedNativeABI = `[
	{
		"inputs": [],
		"name": "deposit",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "wad", "type": "uint256"}
		],
		"name": "withdraw",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var wrappedNativeABI = mustParseABI(WrappedNativeABI)

// DepositData encodes a deposit() call. The native amount to wrap travels as
// the transaction value.
func DepositData() ([]byte, error) {
	data, err := wrappedNativeABI.Pack("deposit")
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit call: %w", err)
	}
	return data, nil
}

// WithdrawData encodes a withdraw(wad) call unwrapping to native
func WithdrawData(amount *big.Int) ([]byte, error) {
	data, err := wrappedNativeABI.Pack("withdraw", amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack withdraw call: %w", err)
	}
	return data, nil
}
