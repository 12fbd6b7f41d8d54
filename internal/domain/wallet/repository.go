package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines wallet data access. WithTx returns a copy bound to an
// open database transaction.
type Repository interface {
	WithTx(tx *sqlx.Tx) Repository
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Wallet, error)
	Credit(ctx context.Context, ownerID uuid.UUID, amount int64) (int64, error)
	Debit(ctx context.Context, ownerID uuid.UUID, amount int64) (int64, error)
}

type repository struct {
	ext sqlx.ExtContext
}

// NewRepository creates wallet repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{ext: db}
}

func (r *repository) WithTx(tx *sqlx.Tx) Repository {
	return &repository{ext: tx}
}

// GetByOwner returns the owner's wallet, creating it lazily with balance
// zero on first reference.
func (r *repository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Wallet, error) {
	if _, err := r.ext.ExecContext(ctx, `
		INSERT INTO wallets (owner_id, balance, status, verification_tier)
		VALUES ($1, 0, 'active', 0)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID); err != nil {
		return nil, err
	}

	var w Wallet
	err := sqlx.GetContext(ctx, r.ext, &w, `SELECT * FROM wallets WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Credit adds amount to the owner's balance as a single server-side
// increment; concurrent top-ups for the same owner cannot lose updates. The
// wallet is created lazily if the owner has none yet.
func (r *repository) Credit(ctx context.Context, ownerID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balance int64
	err := sqlx.GetContext(ctx, r.ext, &balance, `
		INSERT INTO wallets (owner_id, balance, status, verification_tier)
		VALUES ($1, $2, 'active', 0)
		ON CONFLICT (owner_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`, ownerID, amount)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit subtracts amount, refusing to go below zero. The balance guard in
// the WHERE clause makes concurrent debits race safely.
func (r *repository) Debit(ctx context.Context, ownerID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balance int64
	err := sqlx.GetContext(ctx, r.ext, &balance, `
		UPDATE wallets
		SET balance = balance - $2, updated_at = NOW()
		WHERE owner_id = $1 AND balance >= $2
		RETURNING balance
	`, ownerID, amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInsufficientFunds
		}
		return 0, err
	}
	return balance, nil
}
