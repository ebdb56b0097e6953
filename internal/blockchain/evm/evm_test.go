package evm

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testRecipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSpender   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testTokenIn   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testTokenOut  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func selector(t *testing.T, data []byte) string {
	t.Helper()
	if len(data) < 4 {
		t.Fatalf("calldata too short: %d bytes", len(data))
	}
	return hex.EncodeToString(data[:4])
}

func word(data []byte, i int) []byte {
	return data[4+32*i : 4+32*(i+1)]
}

func TestTransferData(t *testing.T) {
	amount := big.NewInt(1_000_000)
	data, err := TransferData(testRecipient, amount)
	if err != nil {
		t.Fatalf("TransferData failed: %v", err)
	}

	if got := selector(t, data); got != "a9059cbb" {
		t.Errorf("wrong selector: %s", got)
	}
	if len(data) != 4+2*32 {
		t.Errorf("wrong calldata length: %d", len(data))
	}
	if got := common.BytesToAddress(word(data, 0)); got != testRecipient {
		t.Errorf("wrong recipient: %s", got.Hex())
	}
	if got := new(big.Int).SetBytes(word(data, 1)); got.Cmp(amount) != 0 {
		t.Errorf("wrong amount: %s", got)
	}
}

func TestTransferFromData(t *testing.T) {
	from := common.HexToAddress("0x3333333333333333333333333333333333333333")
	amount := big.NewInt(42)
	data, err := TransferFromData(from, testRecipient, amount)
	if err != nil {
		t.Fatalf("TransferFromData failed: %v", err)
	}

	if got := selector(t, data); got != "23b872dd" {
		t.Errorf("wrong selector: %s", got)
	}
	if len(data) != 4+3*32 {
		t.Errorf("wrong calldata length: %d", len(data))
	}
	if got := common.BytesToAddress(word(data, 0)); got != from {
		t.Errorf("wrong from: %s", got.Hex())
	}
	if got := common.BytesToAddress(word(data, 1)); got != testRecipient {
		t.Errorf("wrong to: %s", got.Hex())
	}
}

func TestApproveData(t *testing.T) {
	data, err := ApproveData(testSpender, MaxApproval)
	if err != nil {
		t.Fatalf("ApproveData failed: %v", err)
	}

	if got := selector(t, data); got != "095ea7b3" {
		t.Errorf("wrong selector: %s", got)
	}
	if len(data) != 4+2*32 {
		t.Errorf("wrong calldata length: %d", len(data))
	}

	allOnes := bytes.Repeat([]byte{0xff}, 32)
	if !bytes.Equal(word(data, 1), allOnes) {
		t.Errorf("unlimited approval not encoded as all ones: %x", word(data, 1))
	}
}

func TestMaxApproval(t *testing.T) {
	if MaxApproval.BitLen() != 256 {
		t.Errorf("expected 256-bit value, got %d bits", MaxApproval.BitLen())
	}
	// 2^256 - 1 must still fit a uint256
	overflow := new(big.Int).Add(MaxApproval, big.NewInt(1))
	if overflow.BitLen() != 257 {
		t.Errorf("unexpected bit length after increment: %d", overflow.BitLen())
	}
}

func TestExactInputSingleData(t *testing.T) {
	params := ExactInputSingleParams{
		TokenIn:          testTokenIn,
		TokenOut:         testTokenOut,
		Fee:              big.NewInt(3000),
		Recipient:        testRecipient,
		AmountIn:         big.NewInt(5_000_000),
		AmountOutMinimum: big.NewInt(1),
	}

	data, err := ExactInputSingleData(params)
	if err != nil {
		t.Fatalf("ExactInputSingleData failed: %v", err)
	}

	if got := selector(t, data); got != "04e45aaf" {
		t.Errorf("wrong selector: %s", got)
	}
	// Static tuple: 7 words inline after the selector
	if len(data) != 4+7*32 {
		t.Errorf("wrong calldata length: %d", len(data))
	}
	if got := common.BytesToAddress(word(data, 0)); got != testTokenIn {
		t.Errorf("wrong tokenIn: %s", got.Hex())
	}
	if got := common.BytesToAddress(word(data, 1)); got != testTokenOut {
		t.Errorf("wrong tokenOut: %s", got.Hex())
	}
	if got := new(big.Int).SetBytes(word(data, 2)); got.Int64() != 3000 {
		t.Errorf("wrong fee tier: %s", got)
	}
	if got := new(big.Int).SetBytes(word(data, 4)); got.Int64() != 5_000_000 {
		t.Errorf("wrong amountIn: %s", got)
	}
	if got := new(big.Int).SetBytes(word(data, 6)); got.Sign() != 0 {
		t.Errorf("expected zero sqrtPriceLimitX96, got %s", got)
	}
}

func TestDepositData(t *testing.T) {
	data, err := DepositData()
	if err != nil {
		t.Fatalf("DepositData failed: %v", err)
	}
	if got := hex.EncodeToString(data); got != "d0e30db0" {
		t.Errorf("wrong calldata: %s", got)
	}
}

func TestWithdrawData(t *testing.T) {
	amount := big.NewInt(7)
	data, err := WithdrawData(amount)
	if err != nil {
		t.Fatalf("WithdrawData failed: %v", err)
	}
	if got := selector(t, data); got != "2e1a7d4d" {
		t.Errorf("wrong selector: %s", got)
	}
	if len(data) != 4+32 {
		t.Errorf("wrong calldata length: %d", len(data))
	}
	if got := new(big.Int).SetBytes(word(data, 0)); got.Cmp(amount) != 0 {
		t.Errorf("wrong amount: %s", got)
	}
}
