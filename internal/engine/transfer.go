package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"tokenrelay/internal/amount"
	"tokenrelay/internal/blockchain/evm"
	"tokenrelay/internal/chains"
	"tokenrelay/internal/models"
)

// executeTransfer moves tokens from the user to the recipient in two legs:
// transferFrom pulls the full amount to the relayer, then transfer pushes the
// net amount onward. The fee stays with the relayer in the transferred token.
func (e *Engine) executeTransfer(ctx context.Context, rt *runtime, req *models.RelayRequest) (*models.RelayResult, error) {
	if !rt.chain.Supports(chains.FeatureTransfer) {
		return nil, models.NewRelayError(models.ErrorKindUnsupported,
			"transfers are not enabled on "+rt.chain.Name)
	}

	token, ok := rt.chain.Token(req.Token)
	if !ok {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			fmt.Sprintf("token %q is not supported on %s", req.Token, rt.chain.Name))
	}

	total, err := amount.ParseUnits(req.Amount, token.Decimals)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation, err.Error(), err)
	}

	fee, net, err := e.fees.Split(total, token.Decimals, false)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation, err.Error(), err)
	}

	from := common.HexToAddress(req.From)
	to := common.HexToAddress(req.To)
	relayer := rt.backend.RelayerAddress()

	if funded, err := e.checkFunds(ctx, rt, token, from, total); funded != nil || err != nil {
		return funded, err
	}

	// Pull the full amount from the user
	pullData, err := evm.TransferFromData(from, relayer, total)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to encode pull transaction", err)
	}
	_, pullTx, err := rt.tracker.SubmitAndWait(ctx, token.Address, nil, pullData, "pull")
	if err != nil {
		return nil, err
	}

	// Push the net amount to the recipient
	pushData, err := evm.TransferData(to, net)
	if err != nil {
		e.alertPartialCompletion(rt, req, pullTx, err)
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to encode push transaction", err)
	}
	_, pushTx, err := rt.tracker.SubmitAndWait(ctx, token.Address, nil, pushData, "push")
	if err != nil {
		e.alertPartialCompletion(rt, req, pullTx, err)
		return nil, err
	}

	return &models.RelayResult{
		Success:     true,
		TxHash:      pushTx.Hex(),
		FeeCharged:  amount.FormatUnits(fee, token.Decimals),
		NetAmount:   amount.FormatUnits(net, token.Decimals),
		ExplorerURL: rt.chain.ExplorerTx(pushTx.Hex()),
	}, nil
}
