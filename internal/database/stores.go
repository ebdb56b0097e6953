package database

import (
	"context"
	"math/big"
	"time"

	"tokenrelay/internal/engine"
	"tokenrelay/internal/models"
	"tokenrelay/internal/ratelimit"
)

// The adapters below back the engine's in-memory stores with Postgres so
// several relayer instances share rate limits, funding history and deposit
// credits.

// RateLimitStore implements ratelimit.Store on the database
type RateLimitStore struct {
	db *DB
}

func NewRateLimitStore(db *DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

func (s *RateLimitStore) Window(ctx context.Context, key string) (*ratelimit.Window, error) {
	row, err := s.db.GetRateWindow(ctx, key)
	if err != nil || row == nil {
		return nil, err
	}
	return &ratelimit.Window{Count: row.Count, WindowStart: row.WindowStart}, nil
}

func (s *RateLimitStore) SetWindow(ctx context.Context, key string, w ratelimit.Window) error {
	return s.db.UpsertRateWindow(ctx, key, w.Count, w.WindowStart)
}

// FundingStore implements engine.FundingStore on the database
type FundingStore struct {
	db *DB
}

func NewFundingStore(db *DB) *FundingStore {
	return &FundingStore{db: db}
}

func (s *FundingStore) History(ctx context.Context, key string) (*engine.FundingRecord, error) {
	row, err := s.db.GetFundingHistory(ctx, key)
	if err != nil || row == nil {
		return nil, err
	}
	return &engine.FundingRecord{Count: row.Count, LastAt: row.LastAt}, nil
}

func (s *FundingStore) Record(ctx context.Context, key string, at time.Time) error {
	return s.db.RecordFunding(ctx, key, at)
}

// CreditStore implements engine.CreditStore on the database
type CreditStore struct {
	db *DB
}

func NewCreditStore(db *DB) *CreditStore {
	return &CreditStore{db: db}
}

func (s *CreditStore) Balance(ctx context.Context, key string) (*big.Int, error) {
	return s.db.GetCreditBalance(ctx, key)
}

func (s *CreditStore) Add(ctx context.Context, key string, amount *big.Int, txHash string) error {
	credited, err := s.db.AddCredit(ctx, key, amount, txHash)
	if err != nil {
		return err
	}
	if !credited {
		return engine.ErrDepositSeen
	}
	return nil
}

func (s *CreditStore) Consume(ctx context.Context, key string, amount *big.Int) error {
	ok, err := s.db.ConsumeCredit(ctx, key, amount)
	if err != nil {
		return err
	}
	if !ok {
		return engine.ErrInsufficientCredit
	}
	return nil
}

// AuditLog implements engine.AuditLog on the database
type AuditLog struct {
	db *DB
}

func NewAuditLog(db *DB) *AuditLog {
	return &AuditLog{db: db}
}

func (a *AuditLog) Record(ctx context.Context, rec *models.RelayRecord) error {
	return a.db.InsertRelayRecord(ctx, rec)
}
