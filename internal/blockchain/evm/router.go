package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapRouterABI is the ABI for the Uniswap V3 SwapRouter02 exactInputSingle
// function. SwapRouter02 takes no deadline inside the params struct.
const SwapRouterABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "address", "name": "recipient", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint256", "name": "amountOutMinimum", "type": "uint256"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IV3SwapRouter.ExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "exactInputSingle",
		"outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
		"stateMutability": "payable",
		"type": "function"
	}
]`

var swapRouterABI = mustParseABI(SwapRouterABI)

// ExactInputSingleParams holds the parameters for a single-pool exact-input swap
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int // pool fee tier (uint24), e.g. 500 or 3000
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int // 0 for no price limit
}

// ExactInputSingleData encodes an exactInputSingle call against SwapRouter02
func ExactInputSingleData(params ExactInputSingleParams) ([]byte, error) {
	if params.SqrtPriceLimitX96 == nil {
		params.SqrtPriceLimitX96 = big.NewInt(0)
	}
	data, err := swapRouterABI.Pack("exactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("failed to pack exactInputSingle call: %w", err)
	}
	return data, nil
}
