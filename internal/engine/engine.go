package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"tokenrelay/internal/amount"
	"tokenrelay/internal/chains"
	"tokenrelay/internal/fees"
	"tokenrelay/internal/metric"
	"tokenrelay/internal/models"
)

const balancePollInterval = time.Minute

// AuditLog records completed relay attempts
type AuditLog interface {
	Record(ctx context.Context, rec *models.RelayRecord) error
}

// NopAudit discards audit records; used when no database is configured
type NopAudit struct{}

func (NopAudit) Record(context.Context, *models.RelayRecord) error { return nil }

// Stores bundles the persistence backends the engine needs
type Stores struct {
	Funding FundingStore
	Credits CreditStore
	Audit   AuditLog
}

// Config holds engine tuning parameters
type Config struct {
	QueueSize      int
	ConfirmTimeout time.Duration
}

// runtime is the per-chain execution context. One worker goroutine owns each
// runtime, so relayer transactions on a chain never race on the nonce.
type runtime struct {
	chain   *chains.Chain
	backend ChainBackend
	oracle  *Oracle
	tracker *Tracker
	jobs    chan *job
}

type job struct {
	req  *models.RelayRequest
	done chan *models.RelayResult
}

// Engine executes relay requests across all configured chains
type Engine struct {
	runtimes map[string]*runtime
	fees     *fees.Calculator
	funder   *Funder
	credits  CreditStore
	audit    AuditLog
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the engine over one backend per configured chain
func New(registry *chains.Registry, backends map[string]ChainBackend, feeCalc *fees.Calculator, stores Stores, cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if stores.Audit == nil {
		stores.Audit = NopAudit{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		runtimes: make(map[string]*runtime),
		fees:     feeCalc,
		funder:   NewFunder(stores.Funding, cfg.ConfirmTimeout, logger),
		credits:  stores.Credits,
		audit:    stores.Audit,
		logger:   logger.Named("engine"),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, chain := range registry.All() {
		backend, ok := backends[chain.Name]
		if !ok {
			cancel()
			return nil, fmt.Errorf("no backend configured for chain %s", chain.Name)
		}
		e.runtimes[chain.Name] = &runtime{
			chain:   chain,
			backend: backend,
			oracle:  NewOracle(backend),
			tracker: NewTracker(backend, cfg.ConfirmTimeout, logger.Named(chain.Name)),
			jobs:    make(chan *job, cfg.QueueSize),
		}
	}

	return e, nil
}

// Start launches one relay worker and one balance monitor per chain
func (e *Engine) Start() {
	for _, rt := range e.runtimes {
		e.wg.Add(2)
		go e.runWorker(rt)
		go e.runBalanceMonitor(rt)
	}
	e.logger.Info("relay engine started", zap.Int("chains", len(e.runtimes)))
}

// Shutdown stops the workers and closes chain connections
func (e *Engine) Shutdown(timeout time.Duration) error {
	e.logger.Info("shutting down relay engine")
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		for _, rt := range e.runtimes {
			rt.backend.Close()
		}
		e.logger.Info("relay engine stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for relay workers to stop")
	}
}

// Execute runs one relay request to completion. The returned result is never
// nil; failures are encoded in it rather than returned as errors.
func (e *Engine) Execute(ctx context.Context, req *models.RelayRequest) *models.RelayResult {
	rt, ok := e.runtime(req.Chain)
	if !ok {
		return failure(models.NewRelayError(models.ErrorKindValidation, "unknown chain "+req.Chain))
	}

	j := &job{req: req, done: make(chan *models.RelayResult, 1)}
	select {
	case rt.jobs <- j:
	default:
		return failure(models.NewRelayError(models.ErrorKindRateLimited,
			"relay queue full for chain "+rt.chain.Name+", retry later"))
	}

	select {
	case res := <-j.done:
		return res
	case <-ctx.Done():
		// The job keeps running on the engine context; only this caller
		// stops waiting for it.
		return failure(models.WrapRelayError(models.ErrorKindInternal,
			"request cancelled while relay was executing", ctx.Err()))
	}
}

func (e *Engine) runtime(chainName string) (*runtime, bool) {
	rt, ok := e.runtimes[strings.ToLower(chainName)]
	return rt, ok
}

func (e *Engine) runWorker(rt *runtime) {
	defer e.wg.Done()

	logger := e.logger.With(zap.String("chain", rt.chain.Name))
	logger.Info("relay worker started")

	for {
		select {
		case <-e.ctx.Done():
			logger.Info("relay worker stopped")
			return
		case j := <-rt.jobs:
			start := time.Now()
			res := e.executeJob(e.ctx, rt, j.req)

			outcome := "confirmed"
			if !res.Success {
				outcome = string(res.ErrorKind)
			}
			metric.RecordRelay(rt.chain.Name, string(j.req.Kind), outcome, time.Since(start))
			e.recordAudit(rt.chain.Name, j.req, res)

			j.done <- res
		}
	}
}

func (e *Engine) executeJob(ctx context.Context, rt *runtime, req *models.RelayRequest) *models.RelayResult {
	logger := e.logger.With(
		zap.String("chain", rt.chain.Name),
		zap.String("kind", string(req.Kind)),
		zap.String("from", req.From))
	logger.Info("executing relay")

	if err := e.preflightGas(ctx, rt); err != nil {
		return failure(err)
	}

	var (
		res *models.RelayResult
		err error
	)
	switch req.Kind {
	case models.RelayKindTransfer:
		res, err = e.executeTransfer(ctx, rt, req)
	case models.RelayKindSwap:
		if strings.EqualFold(req.FromToken, models.NativeToken) {
			res, err = e.executeNativeSwap(ctx, rt, req)
		} else {
			res, err = e.executeSwap(ctx, rt, req)
		}
	default:
		err = models.NewRelayError(models.ErrorKindValidation,
			fmt.Sprintf("unknown relay type %q", req.Kind))
	}
	if err != nil {
		logger.Warn("relay failed",
			zap.String("error_kind", string(models.KindOf(err))),
			zap.Error(err))
		return failure(err)
	}

	if res.Success {
		logger.Info("relay confirmed",
			zap.String("tx_hash", res.TxHash),
			zap.String("fee", res.FeeCharged),
			zap.String("net", res.NetAmount))
	}
	return res
}

// preflightGas rejects work when the relayer's native balance is below the
// chain's operating threshold
func (e *Engine) preflightGas(ctx context.Context, rt *runtime) error {
	balance, err := rt.backend.NativeBalance(ctx, rt.backend.RelayerAddress())
	if err != nil {
		return models.WrapRelayError(models.ErrorKindInternal,
			"failed to check relayer gas balance", err)
	}
	if balance.Cmp(rt.chain.GasThreshold) < 0 {
		return models.NewRelayError(models.ErrorKindRelayerGas,
			fmt.Sprintf("relayer gas balance on %s below operating threshold", rt.chain.Name))
	}
	return nil
}

// checkFunds verifies the user's token balance and relayer allowance cover
// the required amount. An allowance shortfall may turn into a gas
// sponsorship, returned as an APPROVAL_FUNDED result. A (nil, nil) return
// means the relay can proceed.
func (e *Engine) checkFunds(ctx context.Context, rt *runtime, token chains.Token, user common.Address, required *big.Int) (*models.RelayResult, error) {
	balance, err := rt.oracle.TokenBalance(ctx, token.Address, user)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to read token balance", err)
	}
	if balance.Cmp(required) < 0 {
		return nil, models.NewRelayError(models.ErrorKindInsufficientBalance,
			fmt.Sprintf("%s balance %s below required %s", token.Symbol,
				amount.FormatUnits(balance, token.Decimals),
				amount.FormatUnits(required, token.Decimals)))
	}

	allowance, err := rt.oracle.Allowance(ctx, token.Address, user, rt.backend.RelayerAddress())
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to read token allowance", err)
	}
	if allowance.Cmp(required) >= 0 {
		return nil, nil
	}

	shortfall := fmt.Sprintf("%s allowance %s below required %s; approve the relayer %s and resubmit",
		token.Symbol,
		amount.FormatUnits(allowance, token.Decimals),
		amount.FormatUnits(required, token.Decimals),
		rt.backend.RelayerAddress().Hex())

	fundingTx, err := e.funder.Fund(ctx, rt.chain, rt.backend, user, shortfall)
	if err != nil {
		return nil, err
	}

	return &models.RelayResult{
		Success:       false,
		ErrorKind:     models.ErrorKindApprovalFunded,
		Detail:        "gas sent for approval; approve the relayer " + rt.backend.RelayerAddress().Hex() + " and resubmit",
		FundingTxHash: fundingTx.Hex(),
	}, nil
}

// alertPartialCompletion flags relays that pulled user funds but failed a
// later step. These need manual reconciliation.
func (e *Engine) alertPartialCompletion(rt *runtime, req *models.RelayRequest, pullTx common.Hash, err error) {
	metric.RecordPartialCompletion(rt.chain.Name, string(req.Kind))

	fields := []zap.Field{
		zap.String("chain", rt.chain.Name),
		zap.String("kind", string(req.Kind)),
		zap.String("from", req.From),
		zap.String("amount", req.Amount),
		zap.Error(err),
	}
	if pullTx != (common.Hash{}) {
		fields = append(fields, zap.String("pull_tx", pullTx.Hex()))
	}
	e.logger.Error("relay failed after taking user funds, manual reconciliation required", fields...)
}

func (e *Engine) runBalanceMonitor(rt *runtime) {
	defer e.wg.Done()

	if balance := e.checkRelayerBalance(rt); balance != nil {
		e.logger.Info("relayer account ready",
			zap.String("chain", rt.chain.Name),
			zap.String("address", rt.backend.RelayerAddress().Hex()),
			zap.String("balance_wei", balance.String()))
	}

	ticker := time.NewTicker(balancePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.checkRelayerBalance(rt)
		}
	}
}

func (e *Engine) checkRelayerBalance(rt *runtime) *big.Int {
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()

	balance, err := rt.backend.NativeBalance(ctx, rt.backend.RelayerAddress())
	if err != nil {
		e.logger.Warn("failed to check relayer balance",
			zap.String("chain", rt.chain.Name),
			zap.Error(err))
		return nil
	}

	metric.RecordRelayerBalance(rt.chain.Name, balance)

	switch {
	case balance.Cmp(rt.chain.GasThreshold) < 0:
		e.logger.Error("relayer balance below gas threshold, relays will be rejected",
			zap.String("chain", rt.chain.Name),
			zap.String("balance_wei", balance.String()),
			zap.String("threshold_wei", rt.chain.GasThreshold.String()))
	case balance.Cmp(rt.chain.LowBalanceAlert) < 0:
		e.logger.Warn("relayer balance low",
			zap.String("chain", rt.chain.Name),
			zap.String("balance_wei", balance.String()),
			zap.String("alert_wei", rt.chain.LowBalanceAlert.String()))
	}
	return balance
}

// ChainHealth is a point-in-time snapshot of one chain's relay capacity
type ChainHealth struct {
	Chain          string
	RelayerAddress string
	NativeBalance  string
	GasOK          bool
	LowBalance     bool
	QueueDepth     int
	QueueCapacity  int
	Features       []string
	Tokens         []string
}

// Health reports per-chain relayer status, ordered by chain name
func (e *Engine) Health(ctx context.Context) []ChainHealth {
	names := make([]string, 0, len(e.runtimes))
	for n := range e.runtimes {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]ChainHealth, 0, len(names))
	for _, name := range names {
		rt := e.runtimes[name]
		h := ChainHealth{
			Chain:          rt.chain.Name,
			RelayerAddress: rt.backend.RelayerAddress().Hex(),
			QueueDepth:     len(rt.jobs),
			QueueCapacity:  cap(rt.jobs),
			Features:       rt.chain.Features(),
			Tokens:         rt.chain.Tokens(),
		}
		if balance, err := rt.backend.NativeBalance(ctx, rt.backend.RelayerAddress()); err == nil {
			h.NativeBalance = balance.String()
			h.GasOK = balance.Cmp(rt.chain.GasThreshold) >= 0
			h.LowBalance = balance.Cmp(rt.chain.LowBalanceAlert) < 0
			metric.RecordRelayerBalance(rt.chain.Name, balance)
		}
		out = append(out, h)
	}
	return out
}

// DepositReceipt reports a credited native deposit
type DepositReceipt struct {
	Chain    string
	TxHash   string
	Credited *big.Int
	Balance  *big.Int
}

// RegisterDeposit verifies a native transfer to the relayer and credits the
// sender for native-to-token swaps. The transaction must be mined and
// successful, sent by sender, pay the relayer a positive value, and must not
// have been credited before.
func (e *Engine) RegisterDeposit(ctx context.Context, chainName, sender, txHash string) (*DepositReceipt, error) {
	rt, ok := e.runtime(chainName)
	if !ok {
		return nil, models.NewRelayError(models.ErrorKindValidation, "unknown chain "+chainName)
	}
	if !rt.chain.Supports(chains.FeatureNativeSwap) {
		return nil, models.NewRelayError(models.ErrorKindUnsupported,
			"native swaps are not enabled on "+rt.chain.Name)
	}
	if !common.IsHexAddress(sender) {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"invalid sender address "+sender)
	}
	senderAddr := common.HexToAddress(sender)

	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"invalid deposit transaction hash "+txHash)
	}
	hash := common.BytesToHash(raw)

	tx, pending, err := rt.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation,
			"deposit transaction not found on "+rt.chain.Name, err)
	}
	if pending {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"deposit transaction not yet mined")
	}
	if tx.To() == nil || *tx.To() != rt.backend.RelayerAddress() {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"deposit was not sent to the relayer address")
	}
	if tx.Value() == nil || tx.Value().Sign() <= 0 {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"deposit transaction carries no value")
	}

	from, err := types.Sender(types.LatestSignerForChainID(rt.backend.ChainID()), tx)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation,
			"could not recover deposit sender", err)
	}
	if from != senderAddr {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"deposit was not sent by the claiming address")
	}

	receipt, err := rt.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, models.WrapRelayError(models.ErrorKindValidation,
			"deposit transaction receipt not available", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, models.NewRelayError(models.ErrorKindValidation,
			"deposit transaction reverted")
	}

	key := creditKey(rt.chain.Name, senderAddr)
	if err := e.credits.Add(ctx, key, tx.Value(), hash.Hex()); err != nil {
		if errors.Is(err, ErrDepositSeen) {
			return nil, models.NewRelayError(models.ErrorKindValidation,
				"deposit transaction already credited")
		}
		return nil, models.WrapRelayError(models.ErrorKindInternal,
			"failed to credit deposit", err)
	}

	balance, err := e.credits.Balance(ctx, key)
	if err != nil {
		balance = new(big.Int).Set(tx.Value())
	}

	metric.RecordDeposit(rt.chain.Name)
	e.logger.Info("native deposit credited",
		zap.String("chain", rt.chain.Name),
		zap.String("sender", senderAddr.Hex()),
		zap.String("amount_wei", tx.Value().String()),
		zap.String("tx_hash", hash.Hex()))

	return &DepositReceipt{
		Chain:    rt.chain.Name,
		TxHash:   hash.Hex(),
		Credited: new(big.Int).Set(tx.Value()),
		Balance:  balance,
	}, nil
}

func creditKey(chainName string, user common.Address) string {
	return chainName + ":" + strings.ToLower(user.Hex())
}

func (e *Engine) recordAudit(chainName string, req *models.RelayRequest, res *models.RelayResult) {
	status := models.RelayStatusConfirmed
	if !res.Success {
		if res.ErrorKind == models.ErrorKindApprovalFunded {
			status = models.RelayStatusApprovalFunded
		} else {
			status = models.RelayStatusFailed
		}
	}

	rec := &models.RelayRecord{
		Chain:    chainName,
		Kind:     string(req.Kind),
		UserAddr: strings.ToLower(req.From),
		Amount:   req.Amount,
		Status:   status,
	}
	if req.To != "" {
		rec.Recipient = strPtr(strings.ToLower(req.To))
	}
	token := req.Token
	if token == "" && req.FromToken != "" {
		token = req.FromToken + "->" + req.ToToken
	}
	if token != "" {
		rec.Token = strPtr(token)
	}
	if res.FeeCharged != "" {
		rec.Fee = strPtr(res.FeeCharged)
	}
	if res.NetAmount != "" {
		rec.NetAmount = strPtr(res.NetAmount)
	}
	txHash := res.TxHash
	if txHash == "" {
		txHash = res.FundingTxHash
	}
	if txHash != "" {
		rec.TxHash = strPtr(txHash)
	}
	if res.ErrorKind != "" {
		rec.ErrorKind = strPtr(string(res.ErrorKind))
	}
	if res.Detail != "" {
		rec.Detail = strPtr(res.Detail)
	}

	// Audit writes survive engine shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.audit.Record(ctx, rec); err != nil {
		e.logger.Error("failed to record relay audit", zap.Error(err))
	}
}

func failure(err error) *models.RelayResult {
	return &models.RelayResult{
		Success:   false,
		ErrorKind: models.KindOf(err),
		Detail:    models.DetailOf(err),
	}
}

func strPtr(s string) *string {
	return &s
}
