package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"tokenrelay/internal/models"
)

// Tracker submits relayer transactions and classifies their outcome. Every
// failure surfaces as a *models.RelayError so callers never leak raw
// provider errors to clients.
type Tracker struct {
	backend ChainBackend
	timeout time.Duration
	logger  *zap.Logger
}

// NewTracker creates a tracker that waits up to timeout for each receipt
func NewTracker(backend ChainBackend, timeout time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		backend: backend,
		timeout: timeout,
		logger:  logger,
	}
}

// SubmitAndWait sends a transaction and blocks until it is mined or the
// confirmation timeout elapses. The step name appears in logs and client
// error details.
func (t *Tracker) SubmitAndWait(ctx context.Context, to common.Address, value *big.Int, data []byte, step string) (*types.Receipt, common.Hash, error) {
	if value == nil {
		value = big.NewInt(0)
	}

	txHash, err := t.backend.SendTransaction(ctx, to, value, data)
	if err != nil {
		return nil, common.Hash{}, t.classifySendError(step, err)
	}

	receipt, err := t.backend.WaitForReceipt(ctx, txHash, t.timeout)
	if err != nil {
		t.logger.Warn("transaction not confirmed in time",
			zap.String("step", step),
			zap.String("tx_hash", txHash.Hex()),
			zap.Duration("timeout", t.timeout))
		return nil, txHash, models.WrapRelayError(models.ErrorKindTimeout,
			fmt.Sprintf("%s transaction %s not confirmed within %s", step, txHash.Hex(), t.timeout), err)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		t.logger.Warn("transaction reverted on-chain",
			zap.String("step", step),
			zap.String("tx_hash", txHash.Hex()),
			zap.Uint64("block_number", receipt.BlockNumber.Uint64()))
		return receipt, txHash, models.NewRelayError(models.ErrorKindReverted,
			fmt.Sprintf("%s transaction %s reverted on-chain", step, txHash.Hex()))
	}

	t.logger.Info("transaction confirmed",
		zap.String("step", step),
		zap.String("tx_hash", txHash.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.Uint64("block_number", receipt.BlockNumber.Uint64()))

	return receipt, txHash, nil
}

// classifySendError maps broadcast failures onto the error taxonomy. Gas
// estimation runs before broadcast, so a transaction that would revert fails
// here with an execution-reverted message.
func (t *Tracker) classifySendError(step string, err error) error {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "insufficient funds"):
		return models.WrapRelayError(models.ErrorKindRelayerGas,
			"relayer cannot cover gas for "+step+" transaction", err)
	case strings.Contains(msg, "execution reverted"):
		return models.WrapRelayError(models.ErrorKindReverted,
			step+" transaction would revert", err)
	case strings.Contains(msg, "nonce too low"):
		return models.WrapRelayError(models.ErrorKindInternal,
			"relayer nonce conflict on "+step+" transaction", err)
	default:
		return models.WrapRelayError(models.ErrorKindInternal,
			"failed to submit "+step+" transaction", err)
	}
}
