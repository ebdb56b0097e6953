package api

import "time"

// ==================== Relay ====================

// RelayResponse is the outcome of a relay request. On success hash carries
// the user-facing transaction. APPROVAL_FUNDED responses set fundingTxHash
// so the caller can show the user their gas top-up.
type RelayResponse struct {
	Success       bool   `json:"success"`
	Hash          string `json:"hash,omitempty"`
	Fee           string `json:"fee,omitempty"`
	NetAmount     string `json:"netAmount,omitempty"`
	ExplorerURL   string `json:"explorerUrl,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
	FundingTxHash string `json:"fundingTxHash,omitempty"`
}

// ==================== Deposits ====================

// DepositRequest registers a native deposit transaction for swap credit
type DepositRequest struct {
	Chain  string `json:"chain"`
	From   string `json:"from"`
	TxHash string `json:"txHash"`
}

// DepositResponse confirms a credited deposit. Amounts are wei strings.
type DepositResponse struct {
	Success  bool   `json:"success"`
	Chain    string `json:"chain"`
	TxHash   string `json:"txHash"`
	Credited string `json:"credited"`
	Balance  string `json:"balance"`
}

// ==================== Fee Calculation ====================

// CalculateFeeRequest quotes the relay fee for an amount. Amount is a
// decimal string in token units.
type CalculateFeeRequest struct {
	Chain      string `json:"chain"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	CrossChain bool   `json:"crossChain,omitempty"`
}

// CalculateFeeResponse returns the fee split in token units
type CalculateFeeResponse struct {
	Fee       string `json:"fee"`
	NetAmount string `json:"netAmount"`
}

// ==================== Chains ====================

// TokenInfo describes one supported token
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// ChainInfo describes one supported chain and its capabilities
type ChainInfo struct {
	Name     string      `json:"name"`
	ChainID  int64       `json:"chainId"`
	Features []string    `json:"features"`
	Tokens   []TokenInfo `json:"tokens"`
	Router   string      `json:"router,omitempty"`
	Explorer string      `json:"explorer,omitempty"`
}

// ChainsResponse lists every configured chain
type ChainsResponse struct {
	Chains []ChainInfo `json:"chains"`
}

// ==================== Relay Health ====================

// ChainStatus reports the relayer's operational state on one chain
type ChainStatus struct {
	Chain          string   `json:"chain"`
	RelayerAddress string   `json:"relayerAddress"`
	NativeBalance  string   `json:"nativeBalanceWei"`
	GasOK          bool     `json:"gasOk"`
	QueueDepth     int      `json:"queueDepth"`
	QueueCapacity  int      `json:"queueCapacity"`
	Features       []string `json:"features"`
	Tokens         []string `json:"tokens"`
}

// RelayHealthResponse reports per-chain relayer state. LowBalance names the
// chains whose relayer sits below the alert threshold.
type RelayHealthResponse struct {
	Chains     []ChainStatus `json:"chains"`
	LowBalance []string      `json:"lowBalance"`
}

// ==================== Relay History ====================

// RelaySummary is one row of a user's relay history
type RelaySummary struct {
	Chain     string    `json:"chain"`
	Kind      string    `json:"type"`
	Recipient *string   `json:"to,omitempty"`
	Token     *string   `json:"token,omitempty"`
	Amount    string    `json:"amount"`
	Fee       *string   `json:"fee,omitempty"`
	NetAmount *string   `json:"netAmount,omitempty"`
	TxHash    *string   `json:"txHash,omitempty"`
	Status    string    `json:"status"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RelayHistoryResponse lists a user's past relays, newest first
type RelayHistoryResponse struct {
	Relays []RelaySummary `json:"relays"`
}

// ==================== Error Response ====================

// ErrorResponse is the body of every non-2xx response. Error carries the
// machine-readable classification, message the human-readable detail.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==================== Health Check ====================

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
