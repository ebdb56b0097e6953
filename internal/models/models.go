package models

import "time"

// RelayKind identifies the requested relay operation
type RelayKind string

const (
	RelayKindTransfer RelayKind = "transfer"
	RelayKindSwap     RelayKind = "swap"
)

// NativeToken is the pseudo-symbol used in swap requests for the chain's
// native currency (ETH on Ethereum, not an ERC-20).
const NativeToken = "NATIVE"

// RelayRequest is a signed relay intent submitted by a user. Which fields
// are required depends on Kind: transfers use To and Token, swaps use
// FromToken and ToToken. Amount and MinAmountOut are decimal strings in
// token units, not base units.
type RelayRequest struct {
	Chain        string    `json:"chain"`
	Kind         RelayKind `json:"type"`
	From         string    `json:"from"`
	To           string    `json:"to,omitempty"`
	Token        string    `json:"token,omitempty"`
	FromToken    string    `json:"fromToken,omitempty"`
	ToToken      string    `json:"toToken,omitempty"`
	Amount       string    `json:"amount"`
	MinAmountOut string    `json:"minAmountOut,omitempty"`
	RouteData    string    `json:"routeData,omitempty"`
	Nonce        string    `json:"nonce,omitempty"`
	Deadline     int64     `json:"deadline"`
	Signature    string    `json:"signature"`
}

// RelayResult is the outcome of one relay attempt. On success TxHash carries
// the user-facing transaction (the push leg for transfers, the swap leg for
// swaps) and FeeCharged/NetAmount are decimal strings in the input token's
// units. APPROVAL_FUNDED results are neither success nor failure: Success is
// false, ErrorKind is ErrorKindApprovalFunded and FundingTxHash is set.
type RelayResult struct {
	Success       bool
	TxHash        string
	FeeCharged    string
	NetAmount     string
	ExplorerURL   string
	ErrorKind     ErrorKind
	Detail        string
	FundingTxHash string
}

// RelayStatus is the terminal state recorded for a relay attempt
type RelayStatus string

const (
	RelayStatusConfirmed      RelayStatus = "CONFIRMED"
	RelayStatusApprovalFunded RelayStatus = "APPROVAL_FUNDED"
	RelayStatusFailed         RelayStatus = "FAILED"
)

// RelayRecord is the persisted audit row for one relay attempt
type RelayRecord struct {
	ID        int64       `db:"id"`
	Chain     string      `db:"chain"`
	Kind      string      `db:"kind"`
	UserAddr  string      `db:"user_addr"`
	Recipient *string     `db:"recipient"`
	Token     *string     `db:"token"`
	Amount    string      `db:"amount"`
	Fee       *string     `db:"fee"`
	NetAmount *string     `db:"net_amount"`
	TxHash    *string     `db:"tx_hash"`
	Status    RelayStatus `db:"status"`
	ErrorKind *string     `db:"error_kind"`
	Detail    *string     `db:"detail"`
	CreatedAt time.Time   `db:"created_at"`
}
