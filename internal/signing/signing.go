// Package signing defines the canonical relay intent message and verifies
// user signatures over it.
package signing

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"tokenrelay/internal/models"
)

// intentPrefix versions the signed payload format
const intentPrefix = "tokenrelay/v1"

// IntentMessage builds the canonical signing payload for a relay request.
// The field order is fixed, addresses are lowercased, and absent optional
// fields serialize as empty values, so the service can rebuild the exact
// string a wallet signed.
func IntentMessage(req *models.RelayRequest) string {
	fields := []string{
		intentPrefix,
		"chain=" + strings.ToLower(req.Chain),
		"type=" + string(req.Kind),
		"from=" + strings.ToLower(req.From),
		"to=" + strings.ToLower(req.To),
		"token=" + req.Token,
		"fromToken=" + req.FromToken,
		"toToken=" + req.ToToken,
		"amount=" + req.Amount,
		"minAmountOut=" + req.MinAmountOut,
		"nonce=" + req.Nonce,
		"deadline=" + strconv.FormatInt(req.Deadline, 10),
	}
	return strings.Join(fields, "|")
}

// RecoverSigner recovers the address that produced an EIP-191 personal
// signature over message. Both 0/1 and 27/28 recovery id encodings are
// accepted.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("signature is not valid hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	if sig[64] >= 27 {
		sig[64] -= 27
	}

	hash := accounts.TextHash([]byte(message))

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// Verify checks that signature over message was produced by addr
func Verify(addr common.Address, message, signature string) error {
	recovered, err := RecoverSigner(message, signature)
	if err != nil {
		return err
	}
	if recovered != addr {
		return fmt.Errorf("signer mismatch: recovered %s, expected %s", recovered.Hex(), addr.Hex())
	}
	return nil
}
