package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"tokenrelay/internal/chains"
	"tokenrelay/internal/metric"
	"tokenrelay/internal/models"
)

// FundingRecord tracks how often a user has been gas-sponsored on one chain
type FundingRecord struct {
	Count  int
	LastAt time.Time
}

// FundingStore persists gas sponsorship history. Keys are chain-scoped user
// addresses.
type FundingStore interface {
	// History returns the funding record for a key, or nil if never funded
	History(ctx context.Context, key string) (*FundingRecord, error)

	// Record registers one more funding at the given time
	Record(ctx context.Context, key string, at time.Time) error
}

// MemoryFundingStore is the in-process FundingStore used when no database is
// configured
type MemoryFundingStore struct {
	mu      sync.Mutex
	records map[string]FundingRecord
}

// NewMemoryFundingStore creates an empty in-memory funding store
func NewMemoryFundingStore() *MemoryFundingStore {
	return &MemoryFundingStore{records: make(map[string]FundingRecord)}
}

func (s *MemoryFundingStore) History(_ context.Context, key string) (*FundingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	copied := rec
	return &copied, nil
}

func (s *MemoryFundingStore) Record(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[key]
	rec.Count++
	rec.LastAt = at
	s.records[key] = rec
	return nil
}

// fundingCooldowns gates repeat sponsorships: the wait before the second
// funding is one hour, before the third two hours, and a full day after that.
var fundingCooldowns = []time.Duration{time.Hour, 2 * time.Hour, 24 * time.Hour}

// cooldownFor returns the wait required after the given number of fundings
func cooldownFor(count int) time.Duration {
	if count <= 0 {
		return 0
	}
	if count > len(fundingCooldowns) {
		count = len(fundingCooldowns)
	}
	return fundingCooldowns[count-1]
}

// sponsorshipGas is the gas limit of a plain native transfer
const sponsorshipGas = 21000

// Funder sends small native top-ups to users whose token allowance is too
// low, so they can pay for an approval transaction themselves.
type Funder struct {
	store  FundingStore
	wait   time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewFunder creates a funder. wait bounds how long a funding transaction may
// take to confirm.
func NewFunder(store FundingStore, wait time.Duration, logger *zap.Logger) *Funder {
	return &Funder{
		store:  store,
		wait:   wait,
		now:    time.Now,
		logger: logger.Named("funder"),
	}
}

func fundingKey(chainName string, user common.Address) string {
	return chainName + ":" + strings.ToLower(user.Hex())
}

// Fund decides whether user qualifies for a gas top-up on the given chain and
// sends it. On success it returns the funding transaction hash. When the user
// does not qualify, the returned error is a *models.RelayError with kind
// INSUFFICIENT_ALLOWANCE whose detail starts with shortfall.
func (f *Funder) Fund(ctx context.Context, chain *chains.Chain, backend ChainBackend, user common.Address, shortfall string) (common.Hash, error) {
	declined := func(reason string) (common.Hash, error) {
		detail := shortfall
		if reason != "" {
			detail = shortfall + "; " + reason
		}
		return common.Hash{}, models.NewRelayError(models.ErrorKindInsufficientAllowance, detail)
	}

	if chain.SponsorAmount == nil || chain.SponsorAmount.Sign() == 0 {
		return declined("")
	}

	userBalance, err := backend.NativeBalance(ctx, user)
	if err != nil {
		return common.Hash{}, models.WrapRelayError(models.ErrorKindInternal,
			"failed to check user balance for gas sponsorship", err)
	}
	if userBalance.Cmp(chain.SponsorThreshold) >= 0 {
		// User can already pay for the approval themselves
		return declined("")
	}

	key := fundingKey(chain.Name, user)
	rec, err := f.store.History(ctx, key)
	if err != nil {
		return common.Hash{}, models.WrapRelayError(models.ErrorKindInternal,
			"failed to read funding history", err)
	}
	if rec != nil {
		cooldown := cooldownFor(rec.Count)
		if since := f.now().Sub(rec.LastAt); since < cooldown {
			remaining := (cooldown - since).Round(time.Second)
			return declined(fmt.Sprintf("gas sponsorship available again in %s", remaining))
		}
	}

	// The relayer must cover the top-up plus its own gas for sending it
	gasPrice, err := backend.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, models.WrapRelayError(models.ErrorKindInternal,
			"failed to get gas price for sponsorship", err)
	}
	required := new(big.Int).Add(chain.SponsorAmount,
		new(big.Int).Mul(gasPrice, big.NewInt(sponsorshipGas)))

	relayerBalance, err := backend.NativeBalance(ctx, backend.RelayerAddress())
	if err != nil {
		return common.Hash{}, models.WrapRelayError(models.ErrorKindInternal,
			"failed to check relayer balance for sponsorship", err)
	}
	if relayerBalance.Cmp(required) < 0 {
		f.logger.Error("relayer cannot afford gas sponsorship",
			zap.String("chain", chain.Name),
			zap.String("relayer_balance", relayerBalance.String()),
			zap.String("required", required.String()))
		return declined("")
	}

	txHash, err := backend.SendTransaction(ctx, user, chain.SponsorAmount, nil)
	if err != nil {
		f.logger.Error("failed to send gas sponsorship",
			zap.String("chain", chain.Name),
			zap.String("user", user.Hex()),
			zap.Error(err))
		return declined("")
	}

	// Funding counts from broadcast, not from confirmation
	if err := f.store.Record(ctx, key, f.now()); err != nil {
		f.logger.Error("failed to record funding", zap.String("key", key), zap.Error(err))
	}

	receipt, err := backend.WaitForReceipt(ctx, txHash, f.wait)
	if err != nil {
		f.logger.Warn("gas sponsorship not confirmed in time, assuming in flight",
			zap.String("chain", chain.Name),
			zap.String("tx_hash", txHash.Hex()))
	} else if receipt.Status == types.ReceiptStatusFailed {
		f.logger.Error("gas sponsorship transaction reverted",
			zap.String("chain", chain.Name),
			zap.String("tx_hash", txHash.Hex()))
		return declined("")
	}

	metric.RecordFunding(chain.Name)
	f.logger.Info("gas sponsorship sent",
		zap.String("chain", chain.Name),
		zap.String("user", user.Hex()),
		zap.String("amount_wei", chain.SponsorAmount.String()),
		zap.String("tx_hash", txHash.Hex()))

	return txHash, nil
}
