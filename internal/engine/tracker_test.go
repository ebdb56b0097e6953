package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"tokenrelay/internal/blockchain/evm"
	"tokenrelay/internal/models"
)

func TestClassifySendError(t *testing.T) {
	tr := NewTracker(newFakeBackend(), time.Second, zap.NewNop())

	cases := []struct {
		msg  string
		kind models.ErrorKind
	}{
		{"insufficient funds for gas * price + value", models.ErrorKindRelayerGas},
		{"execution reverted: STF", models.ErrorKindReverted},
		{"err: nonce too low: address 0x1000000000000000000000000000000000000001", models.ErrorKindInternal},
		{"connection refused", models.ErrorKindInternal},
	}
	for _, c := range cases {
		err := tr.classifySendError("pull", errors.New(c.msg))
		if got := models.KindOf(err); got != c.kind {
			t.Errorf("classifySendError(%q) = %s, want %s", c.msg, got, c.kind)
		}
	}
}

func TestSubmitAndWaitSendFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = errors.New("insufficient funds for gas * price + value")
	tr := NewTracker(backend, time.Second, zap.NewNop())

	_, _, err := tr.SubmitAndWait(context.Background(), recipientAddr, eth(1), nil, "native delivery")
	if models.KindOf(err) != models.ErrorKindRelayerGas {
		t.Errorf("expected RELAYER_INSUFFICIENT_GAS, got %v", err)
	}
}

func TestSubmitAndWaitNilValue(t *testing.T) {
	backend := newFakeBackend()
	backend.setToken(usdcAddr, relayerAddr, usdc(10))
	tr := NewTracker(backend, time.Second, zap.NewNop())

	data, err := evm.TransferData(recipientAddr, usdc(10))
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	receipt, _, err := tr.SubmitAndWait(context.Background(), usdcAddr, nil, data, "push")
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatal("expected a successful receipt")
	}
	if backend.sentAt(0).value.Sign() != 0 {
		t.Errorf("nil value must be sent as zero, got %s", backend.sentAt(0).value)
	}
}
