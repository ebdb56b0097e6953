package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"

	"tokenrelay/internal/models"
)

// ==================== Relay Audit Queries ====================

// InsertRelayRecord persists the outcome of one relay attempt
func (db *DB) InsertRelayRecord(ctx context.Context, rec *models.RelayRecord) error {
	query := `
		INSERT INTO relay_audit (
			chain, kind, user_addr, recipient, token, amount, fee,
			net_amount, tx_hash, status, error_kind, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`
	return db.QueryRowContext(
		ctx, query,
		rec.Chain,
		rec.Kind,
		rec.UserAddr,
		rec.Recipient,
		rec.Token,
		rec.Amount,
		rec.Fee,
		rec.NetAmount,
		rec.TxHash,
		rec.Status,
		rec.ErrorKind,
		rec.Detail,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// GetRelaysByUser retrieves the relay history for a user address, newest first
func (db *DB) GetRelaysByUser(ctx context.Context, userAddr string, limit, offset int) ([]models.RelayRecord, error) {
	var records []models.RelayRecord
	query := `
		SELECT id, chain, kind, user_addr, recipient, token, amount, fee,
		       net_amount, tx_hash, status, error_kind, detail, created_at
		FROM relay_audit
		WHERE user_addr = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := db.SelectContext(ctx, &records, query, userAddr, limit, offset)
	return records, err
}

// GetFailedRelaysWithTx retrieves failed relays that already moved user funds.
// These are the cases operators must reconcile by hand.
func (db *DB) GetFailedRelaysWithTx(ctx context.Context, chain string, limit int) ([]models.RelayRecord, error) {
	var records []models.RelayRecord
	query := `
		SELECT id, chain, kind, user_addr, recipient, token, amount, fee,
		       net_amount, tx_hash, status, error_kind, detail, created_at
		FROM relay_audit
		WHERE chain = $1 AND status = $2 AND tx_hash IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $3
	`
	err := db.SelectContext(ctx, &records, query, chain, models.RelayStatusFailed, limit)
	return records, err
}

// ==================== Rate Limit Queries ====================

// rateWindowRow mirrors one fixed-window counter
type rateWindowRow struct {
	Requester   string    `db:"requester"`
	Count       int       `db:"count"`
	WindowStart time.Time `db:"window_start"`
}

// GetRateWindow retrieves the current window for a requester, or nil if none
func (db *DB) GetRateWindow(ctx context.Context, requester string) (*rateWindowRow, error) {
	var row rateWindowRow
	query := `SELECT requester, count, window_start FROM rate_limit_windows WHERE requester = $1`
	err := db.GetContext(ctx, &row, query, requester)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertRateWindow stores the window state for a requester
func (db *DB) UpsertRateWindow(ctx context.Context, requester string, count int, windowStart time.Time) error {
	query := `
		INSERT INTO rate_limit_windows (requester, count, window_start)
		VALUES ($1, $2, $3)
		ON CONFLICT (requester) DO UPDATE
		SET count = EXCLUDED.count, window_start = EXCLUDED.window_start
	`
	_, err := db.ExecContext(ctx, query, requester, count, windowStart)
	return err
}

// DeleteExpiredRateWindows drops windows that started before the cutoff
func (db *DB) DeleteExpiredRateWindows(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM rate_limit_windows WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Funding History Queries ====================

// fundingRow mirrors one user's gas sponsorship history on one chain
type fundingRow struct {
	FundingKey string    `db:"funding_key"`
	Count      int       `db:"count"`
	LastAt     time.Time `db:"last_at"`
}

// GetFundingHistory retrieves the sponsorship history for a key, or nil if
// the user was never funded
func (db *DB) GetFundingHistory(ctx context.Context, fundingKey string) (*fundingRow, error) {
	var row fundingRow
	query := `SELECT funding_key, count, last_at FROM funding_history WHERE funding_key = $1`
	err := db.GetContext(ctx, &row, query, fundingKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// RecordFunding registers one more sponsorship for a key at the given time
func (db *DB) RecordFunding(ctx context.Context, fundingKey string, at time.Time) error {
	query := `
		INSERT INTO funding_history (funding_key, count, last_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (funding_key) DO UPDATE
		SET count = funding_history.count + 1, last_at = EXCLUDED.last_at
	`
	_, err := db.ExecContext(ctx, query, fundingKey, at)
	return err
}

// ==================== Native Credit Queries ====================

// GetCreditBalance retrieves the remaining deposit credit for a key.
// An unknown key has a zero balance.
func (db *DB) GetCreditBalance(ctx context.Context, creditKey string) (*big.Int, error) {
	var raw string
	query := `SELECT balance::text FROM native_credits WHERE credit_key = $1`
	err := db.GetContext(ctx, &raw, query, creditKey)
	if err == sql.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}

	balance, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid credit balance %q for %s", raw, creditKey)
	}
	return balance, nil
}

// AddCredit credits a verified deposit and returns whether the transaction
// hash was new. A repeated hash leaves the balance unchanged.
func (db *DB) AddCredit(ctx context.Context, creditKey string, amount *big.Int, txHash string) (bool, error) {
	credited := false
	err := db.InTransaction(func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO native_credit_txs (tx_hash, credit_key, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (tx_hash) DO NOTHING
		`, txHash, creditKey, amount.String())
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}

		credited = true
		_, err = tx.ExecContext(ctx, `
			INSERT INTO native_credits (credit_key, balance)
			VALUES ($1, $2)
			ON CONFLICT (credit_key) DO UPDATE
			SET balance = native_credits.balance + EXCLUDED.balance
		`, creditKey, amount.String())
		return err
	})
	return credited, err
}

// ConsumeCredit deducts amount from a key's balance and returns whether the
// balance was sufficient. The check and the deduction are one statement, so
// concurrent consumers cannot overdraw.
func (db *DB) ConsumeCredit(ctx context.Context, creditKey string, amount *big.Int) (bool, error) {
	query := `
		UPDATE native_credits
		SET balance = balance - $2::numeric
		WHERE credit_key = $1 AND balance >= $2::numeric
	`
	res, err := db.ExecContext(ctx, query, creditKey, amount.String())
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
