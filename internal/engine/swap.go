package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"tokenrelay/internal/amount"
	"tokenrelay/internal/blockchain/evm"
	"tokenrelay/internal/chains"
	"tokenrelay/internal/models"
)

// poolFeeTier picks the liquidity pool for a pair: stable-to-stable pairs
// use the 0.05% pool, everything else the 0.3% pool.
func poolFeeTier(a, b chains.Token) *big.Int {
	if a.Stable && b.Stable {
		return big.NewInt(500)
	}
	return big.NewInt(3000)
}

// swapLeg describes one swap of relayer-held tokens and its delivery
type swapLeg struct {
	fromToken chains.Token
	toToken   chains.Token // wrapped native when delivering native
	swapIn    *big.Int
	minOut    *big.Int
	recipient common.Address
	toNative  bool   // unwrap the output and forward native
	routeData []byte // optional raw router calldata overriding the default route
}

// executeSwap swaps an ERC-20 the user holds into another token. The full
// amount is pulled to the relayer first; the fee stays with the relayer in
// the input token and only the remainder is swapped.
func (e *Engine) executeSwap(ctx context.Context, rt *runtime, req *models.RelayRequest) (*models.RelayResult, error) {
	if !rt.chain.Supports(chains.FeatureSwap) {
		return nil, models.NewRelayError(models.ErrorKindUnsupported,
			"swaps are not enabled on "+rt.chain.Name)
	}

	fromToken, ok := rt.chain.Token(req.FromToken)
	if !ok {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			fmt.Sprintf("token %q is not supported on %s", req.FromToken, rt.chain.Name))
	}

	toNative := strings.EqualFold(req.ToToken, models.NativeToken)
	toToken := rt.chain.WrappedNative
	if !toNative {
		toToken, ok = rt.chain.Token(req.ToToken)
		if !ok {
			return nil, models.NewRelayError(models.ErrorKindValidation,
				fmt.Sprintf("token %q is not supported on %s", req.ToToken, rt.chain.Name))
		}
	}
	if fromToken.Address == toToken.Address {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"cannot swap a token to itself")
	}

	total, err := amount.ParseUnits(req.Amount, fromToken.Decimals)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation, err.Error(), err)
	}

	fee, swapIn, err := e.fees.Split(total, fromToken.Decimals, false)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation, err.Error(), err)
	}

	minOut, routeData, err := parseSwapOptions(req, toToken.Decimals)
	if err != nil {
		return nil, err
	}

	from := common.HexToAddress(req.From)

	if funded, err := e.checkFunds(ctx, rt, fromToken, from, total); funded != nil || err != nil {
		return funded, err
	}

	// Pull the full amount from the user
	pullData, err := evm.TransferFromData(from, rt.backend.RelayerAddress(), total)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to encode pull transaction", err)
	}
	_, pullTx, err := rt.tracker.SubmitAndWait(ctx, fromToken.Address, nil, pullData, "pull")
	if err != nil {
		return nil, err
	}

	result, err := e.swapAndDeliver(ctx, rt, swapLeg{
		fromToken: fromToken,
		toToken:   toToken,
		swapIn:    swapIn,
		minOut:    minOut,
		recipient: common.HexToAddress(req.To),
		toNative:  toNative,
		routeData: routeData,
	})
	if err != nil {
		e.alertPartialCompletion(rt, req, pullTx, err)
		return nil, err
	}

	result.FeeCharged = amount.FormatUnits(fee, fromToken.Decimals)
	return result, nil
}

// executeNativeSwap swaps pre-deposited native currency into a token. The
// user's deposit credit is consumed before any transaction is sent; a failure
// past that point is a reconciliation case, never an automatic refund.
func (e *Engine) executeNativeSwap(ctx context.Context, rt *runtime, req *models.RelayRequest) (*models.RelayResult, error) {
	if !rt.chain.Supports(chains.FeatureNativeSwap) {
		return nil, models.NewRelayError(models.ErrorKindUnsupported,
			"native swaps are not enabled on "+rt.chain.Name)
	}

	if strings.EqualFold(req.ToToken, models.NativeToken) {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"cannot swap native currency to itself")
	}
	toToken, ok := rt.chain.Token(req.ToToken)
	if !ok {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			fmt.Sprintf("token %q is not supported on %s", req.ToToken, rt.chain.Name))
	}

	// Native currency always has 18 decimals
	total, err := amount.ParseUnits(req.Amount, 18)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation, err.Error(), err)
	}

	fee, swapIn, err := e.fees.Split(total, 18, false)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation, err.Error(), err)
	}

	minOut, routeData, err := parseSwapOptions(req, toToken.Decimals)
	if err != nil {
		return nil, err
	}

	from := common.HexToAddress(req.From)
	key := creditKey(rt.chain.Name, from)

	if err := e.credits.Consume(ctx, key, total); err != nil {
		if errors.Is(err, ErrInsufficientCredit) {
			detail := fmt.Sprintf("deposit credit below requested %s; register a deposit first", req.Amount)
			if balance, balErr := e.credits.Balance(ctx, key); balErr == nil {
				detail = fmt.Sprintf("deposit credit %s below requested %s; register a deposit first",
					amount.FormatUnits(balance, 18), req.Amount)
			}
			return nil, models.NewRelayError(models.ErrorKindInsufficientBalance, detail)
		}
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to consume deposit credit", err)
	}

	// Credit is spent from here on; the fee portion stays with the relayer
	// as native and only swapIn is wrapped
	weth := rt.chain.WrappedNative
	wrapData, err := evm.DepositData()
	if err != nil {
		e.alertPartialCompletion(rt, req, common.Hash{}, err)
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to encode wrap transaction", err)
	}
	_, wrapTx, err := rt.tracker.SubmitAndWait(ctx, weth.Address, swapIn, wrapData, "wrap")
	if err != nil {
		e.alertPartialCompletion(rt, req, common.Hash{}, err)
		return nil, err
	}

	result, err := e.swapAndDeliver(ctx, rt, swapLeg{
		fromToken: weth,
		toToken:   toToken,
		swapIn:    swapIn,
		minOut:    minOut,
		recipient: common.HexToAddress(req.To),
		routeData: routeData,
	})
	if err != nil {
		e.alertPartialCompletion(rt, req, wrapTx, err)
		return nil, err
	}

	result.FeeCharged = amount.FormatUnits(fee, 18)
	return result, nil
}

// swapAndDeliver swaps relayer-held input tokens through the router and
// delivers the output. The amount out is measured as the receiving address's
// balance delta across the swap.
func (e *Engine) swapAndDeliver(ctx context.Context, rt *runtime, leg swapLeg) (*models.RelayResult, error) {
	if err := e.ensureRouterAllowance(ctx, rt, leg.fromToken, leg.swapIn); err != nil {
		return nil, err
	}

	// Output lands with the relayer when delivering native, directly with
	// the recipient otherwise
	swapRecipient := leg.recipient
	if leg.toNative {
		swapRecipient = rt.backend.RelayerAddress()
	}

	before, err := rt.oracle.TokenBalance(ctx, leg.toToken.Address, swapRecipient)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to read pre-swap balance", err)
	}

	callData := leg.routeData
	if len(callData) == 0 {
		callData, err = evm.ExactInputSingleData(evm.ExactInputSingleParams{
			TokenIn:          leg.fromToken.Address,
			TokenOut:         leg.toToken.Address,
			Fee:              poolFeeTier(leg.fromToken, leg.toToken),
			Recipient:        swapRecipient,
			AmountIn:         leg.swapIn,
			AmountOutMinimum: leg.minOut,
		})
		if err != nil {
			return nil, models.WrapRelayError(models.ErrorKindInternal,
				"failed to encode swap transaction", err)
		}
	}

	_, swapTx, err := rt.tracker.SubmitAndWait(ctx, rt.chain.Router, nil, callData, "swap")
	if err != nil {
		return nil, err
	}

	after, err := rt.oracle.TokenBalance(ctx, leg.toToken.Address, swapRecipient)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to read post-swap balance", err)
	}
	amountOut := new(big.Int).Sub(after, before)
	if amountOut.Sign() <= 0 {
		return nil, models.NewRelayError(models.ErrorKindInternal,
			"swap produced no measurable output")
	}

	if !leg.toNative {
		return &models.RelayResult{
			Success:     true,
			TxHash:      swapTx.Hex(),
			NetAmount:   amount.FormatUnits(amountOut, leg.toToken.Decimals),
			ExplorerURL: rt.chain.ExplorerTx(swapTx.Hex()),
		}, nil
	}

	// Unwrap the output and forward native to the recipient
	withdrawData, err := evm.WithdrawData(amountOut)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to encode unwrap transaction", err)
	}
	if _, _, err := rt.tracker.SubmitAndWait(ctx, leg.toToken.Address, nil, withdrawData, "unwrap"); err != nil {
		return nil, err
	}

	_, forwardTx, err := rt.tracker.SubmitAndWait(ctx, leg.recipient, amountOut, nil, "native delivery")
	if err != nil {
		return nil, err
	}

	return &models.RelayResult{
		Success:     true,
		TxHash:      forwardTx.Hex(),
		NetAmount:   amount.FormatUnits(amountOut, 18),
		ExplorerURL: rt.chain.ExplorerTx(forwardTx.Hex()),
	}, nil
}

// ensureRouterAllowance grants the router an unlimited allowance over the
// relayer's input tokens when the current allowance cannot cover amountIn
func (e *Engine) ensureRouterAllowance(ctx context.Context, rt *runtime, token chains.Token, amountIn *big.Int) error {
	allowance, err := rt.oracle.Allowance(ctx, token.Address, rt.backend.RelayerAddress(), rt.chain.Router)
	if err != nil {
		return models.WrapRelayError(models.ErrorKindInternal,
			"failed to read router allowance", err)
	}
	if allowance.Cmp(amountIn) >= 0 {
		return nil
	}

	data, err := evm.ApproveData(rt.chain.Router, evm.MaxApproval)
	if err != nil {
		return models.WrapRelayError(models.ErrorKindInternal,
			"failed to encode router approval", err)
	}
	_, _, err = rt.tracker.SubmitAndWait(ctx, token.Address, nil, data, "router approval")
	return err
}

// parseSwapOptions parses the optional minimum output and route calldata
func parseSwapOptions(req *models.RelayRequest, outDecimals int) (*big.Int, []byte, error) {
	minOut := big.NewInt(0)
	if req.MinAmountOut != "" {
		parsed, err := amount.ParseUnits(req.MinAmountOut, outDecimals)
		if err != nil {
			return nil, nil, models.WrapRelayError(models.ErrorKindValidation, err.Error(), err)
		}
		minOut = parsed
	}

	var routeData []byte
	if req.RouteData != "" {
		decoded, err := hexutil.Decode(req.RouteData)
		if err != nil {
			return nil, nil, models.WrapRelayError(models.ErrorKindValidation,
				"routeData must be 0x-prefixed hex", err)
		}
		routeData = decoded
	}

	return minOut, routeData, nil
}
