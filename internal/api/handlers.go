package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tokenrelay/internal/amount"
	"tokenrelay/internal/chains"
	"tokenrelay/internal/engine"
	"tokenrelay/internal/fees"
	"tokenrelay/internal/models"
	"tokenrelay/internal/ratelimit"
	"tokenrelay/internal/signing"
)

// RelayService is the engine surface the API depends on
type RelayService interface {
	Execute(ctx context.Context, req *models.RelayRequest) *models.RelayResult
	RegisterDeposit(ctx context.Context, chain, sender, txHash string) (*engine.DepositReceipt, error)
	Health(ctx context.Context) []engine.ChainHealth
}

// HistoryStore reads persisted relay history. It is nil when the service
// runs without a database.
type HistoryStore interface {
	GetRelaysByUser(ctx context.Context, userAddr string, limit, offset int) ([]models.RelayRecord, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service    RelayService
	registry   *chains.Registry
	limiter    *ratelimit.Limiter
	feeCalc    *fees.Calculator
	history    HistoryStore
	requireSig bool
	logger     *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	service RelayService,
	registry *chains.Registry,
	limiter *ratelimit.Limiter,
	feeCalc *fees.Calculator,
	history HistoryStore,
	requireSig bool,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		service:    service,
		registry:   registry,
		limiter:    limiter,
		feeCalc:    feeCalc,
		history:    history,
		requireSig: requireSig,
		logger:     logger,
	}
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	}
	respondJSON(w, http.StatusOK, response)
}

// ==================== Relay ====================

// HandleRelay handles POST /api/v1/relay
// Validates a signed relay intent and executes it on-chain
func (h *Handler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	var req models.RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "invalid request body")
		return
	}

	// Validate before touching the rate limit so malformed requests do not
	// consume the sender's quota
	if detail := h.validateRelay(&req); detail != "" {
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, detail)
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), strings.ToLower(req.From))
	if err != nil {
		h.logger.Error("Rate limiter failure", zap.Error(err))
		respondError(w, http.StatusInternalServerError, models.ErrorKindInternal, "rate limit check failed")
		return
	}
	if !allowed {
		respondError(w, http.StatusTooManyRequests, models.ErrorKindRateLimited,
			"too many relay requests for this address, retry later")
		return
	}

	if err := signing.Verify(common.HexToAddress(req.From), signing.IntentMessage(&req), req.Signature); err != nil {
		if h.requireSig {
			respondError(w, http.StatusBadRequest, models.ErrorKindValidation,
				"signature verification failed: "+err.Error())
			return
		}
		h.logger.Warn("Accepting relay with invalid signature",
			zap.String("from", req.From),
			zap.Error(err))
	}

	h.logger.Info("Executing relay",
		zap.String("chain", req.Chain),
		zap.String("type", string(req.Kind)),
		zap.String("from", req.From))

	result := h.service.Execute(r.Context(), &req)
	respondJSON(w, statusForResult(result), toRelayResponse(result))
}

// validateRelay checks request shape. An empty return means valid.
func (h *Handler) validateRelay(req *models.RelayRequest) string {
	if req.Chain == "" {
		return "chain is required"
	}
	if _, ok := h.registry.Get(req.Chain); !ok {
		return "unsupported chain " + req.Chain
	}

	switch req.Kind {
	case models.RelayKindTransfer:
		if req.Token == "" {
			return "token is required for transfers"
		}
	case models.RelayKindSwap:
		if req.FromToken == "" || req.ToToken == "" {
			return "fromToken and toToken are required for swaps"
		}
	default:
		return "type must be transfer or swap"
	}

	if !common.IsHexAddress(req.From) {
		return "from must be a valid address"
	}
	if !common.IsHexAddress(req.To) {
		return "to must be a valid address"
	}
	if req.Amount == "" {
		return "amount is required"
	}
	if req.Deadline <= 0 {
		return "deadline is required"
	}
	if req.Deadline < time.Now().Unix() {
		return "deadline has passed"
	}
	return ""
}

// ==================== Deposits ====================

// HandleDeposit handles POST /api/v1/relay/deposits
// Registers a mined native transfer to the relayer as swap credit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "invalid request body")
		return
	}

	// Validate request
	if req.Chain == "" {
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "chain is required")
		return
	}
	if req.From == "" {
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "from is required")
		return
	}
	if req.TxHash == "" {
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "txHash is required")
		return
	}

	receipt, err := h.service.RegisterDeposit(r.Context(), req.Chain, req.From, req.TxHash)
	if err != nil {
		kind := models.KindOf(err)
		h.logger.Warn("Deposit rejected",
			zap.String("chain", req.Chain),
			zap.String("tx_hash", req.TxHash),
			zap.Error(err))
		respondError(w, statusForKind(kind), kind, models.DetailOf(err))
		return
	}

	respondJSON(w, http.StatusOK, DepositResponse{
		Success:  true,
		Chain:    receipt.Chain,
		TxHash:   receipt.TxHash,
		Credited: receipt.Credited.String(),
		Balance:  receipt.Balance.String(),
	})
}

// ==================== Fee Calculation ====================

// HandleCalculateFee handles POST /api/v1/fees/calculate
// Quotes the relay fee for a given chain, token and amount
func (h *Handler) HandleCalculateFee(w http.ResponseWriter, r *http.Request) {
	var req CalculateFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "invalid request body")
		return
	}

	chain, ok := h.registry.Get(req.Chain)
	if !ok {
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "unsupported chain "+req.Chain)
		return
	}

	decimals := 18
	if !strings.EqualFold(req.Token, models.NativeToken) {
		token, ok := chain.Token(req.Token)
		if !ok {
			respondError(w, http.StatusBadRequest, models.ErrorKindValidation,
				"token "+req.Token+" is not supported on "+chain.Name)
			return
		}
		decimals = token.Decimals
	}

	units, err := amount.ParseUnits(req.Amount, decimals)
	if err != nil {
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "invalid amount: "+err.Error())
		return
	}

	fee, net, err := h.feeCalc.Split(units, decimals, req.CrossChain)
	if err != nil {
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, CalculateFeeResponse{
		Fee:       amount.FormatUnits(fee, decimals),
		NetAmount: amount.FormatUnits(net, decimals),
	})
}

// ==================== Chains ====================

// HandleChains handles GET /api/v1/chains
// Lists the configured chains, their tokens and features
func (h *Handler) HandleChains(w http.ResponseWriter, r *http.Request) {
	all := h.registry.All()

	infos := make([]ChainInfo, 0, len(all))
	for _, chain := range all {
		tokens := make([]TokenInfo, 0)
		for _, symbol := range chain.Tokens() {
			token, _ := chain.Token(symbol)
			tokens = append(tokens, TokenInfo{
				Symbol:   token.Symbol,
				Address:  token.Address.Hex(),
				Decimals: token.Decimals,
			})
		}

		info := ChainInfo{
			Name:     chain.Name,
			ChainID:  chain.ChainID.Int64(),
			Features: chain.Features(),
			Tokens:   tokens,
			Explorer: chain.ExplorerBaseURL,
		}
		if chain.Router != (common.Address{}) {
			info.Router = chain.Router.Hex()
		}
		infos = append(infos, info)
	}

	respondJSON(w, http.StatusOK, ChainsResponse{Chains: infos})
}

// ==================== Relay Health ====================

// HandleRelayHealth handles GET /api/v1/relay
// Reports the relayer's balance and queue state on every chain
func (h *Handler) HandleRelayHealth(w http.ResponseWriter, r *http.Request) {
	statuses := h.service.Health(r.Context())

	response := RelayHealthResponse{
		Chains:     make([]ChainStatus, 0, len(statuses)),
		LowBalance: make([]string, 0),
	}
	for _, s := range statuses {
		response.Chains = append(response.Chains, ChainStatus{
			Chain:          s.Chain,
			RelayerAddress: s.RelayerAddress,
			NativeBalance:  s.NativeBalance,
			GasOK:          s.GasOK,
			QueueDepth:     s.QueueDepth,
			QueueCapacity:  s.QueueCapacity,
			Features:       s.Features,
			Tokens:         s.Tokens,
		})
		if s.LowBalance {
			response.LowBalance = append(response.LowBalance, s.Chain)
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// ==================== Relay History ====================

// HandleRelayHistory handles GET /api/v1/relays/user/{address}
// Lists a user's past relays, newest first
func (h *Handler) HandleRelayHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusNotImplemented, models.ErrorKindUnsupported,
			"relay history requires a database")
		return
	}

	vars := mux.Vars(r)
	address := vars["address"]
	if !common.IsHexAddress(address) {
		respondError(w, http.StatusBadRequest, models.ErrorKindValidation, "invalid address "+address)
		return
	}

	// Parse pagination parameters (optional)
	limit := 50
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	records, err := h.history.GetRelaysByUser(r.Context(), strings.ToLower(address), limit, offset)
	if err != nil {
		h.logger.Error("Failed to get relay history",
			zap.String("address", address),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, models.ErrorKindInternal, "failed to load relay history")
		return
	}

	summaries := make([]RelaySummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, RelaySummary{
			Chain:     rec.Chain,
			Kind:      rec.Kind,
			Recipient: rec.Recipient,
			Token:     rec.Token,
			Amount:    rec.Amount,
			Fee:       rec.Fee,
			NetAmount: rec.NetAmount,
			TxHash:    rec.TxHash,
			Status:    string(rec.Status),
			Error:     rec.ErrorKind,
			CreatedAt: rec.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, RelayHistoryResponse{Relays: summaries})
}

// ==================== Helper Functions ====================

// toRelayResponse maps an engine result onto the wire shape
func toRelayResponse(res *models.RelayResult) RelayResponse {
	if res.Success {
		return RelayResponse{
			Success:     true,
			Hash:        res.TxHash,
			Fee:         res.FeeCharged,
			NetAmount:   res.NetAmount,
			ExplorerURL: res.ExplorerURL,
		}
	}
	return RelayResponse{
		Success:       false,
		Error:         string(res.ErrorKind),
		Message:       res.Detail,
		Fee:           res.FeeCharged,
		FundingTxHash: res.FundingTxHash,
	}
}

// statusForResult maps an engine result onto an HTTP status code
func statusForResult(res *models.RelayResult) int {
	if res.Success {
		return http.StatusOK
	}
	return statusForKind(res.ErrorKind)
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindApprovalFunded:
		return http.StatusAccepted
	case models.ErrorKindValidation, models.ErrorKindInsufficientBalance,
		models.ErrorKindInsufficientAllowance, models.ErrorKindUnsupported:
		return http.StatusBadRequest
	case models.ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case models.ErrorKindRelayerGas:
		return http.StatusServiceUnavailable
	case models.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log error but can't send response since headers already written
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, kind models.ErrorKind, message string) {
	respondJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error:   string(kind),
		Message: message,
	})
}
