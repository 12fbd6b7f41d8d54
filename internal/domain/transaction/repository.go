package transaction

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines transaction data access. WithTx returns a copy bound to
// an open database transaction so the settlement flow can commit the status
// transition and the wallet credit as one unit.
type Repository interface {
	WithTx(tx *sqlx.Tx) Repository
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	TransitionIfPending(ctx context.Context, id uuid.UUID, status Status, gatewayPaymentID string, gatewayPayload []byte) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Transaction, error)
}

type repository struct {
	ext sqlx.ExtContext
}

// NewRepository creates transaction repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{ext: db}
}

func (r *repository) WithTx(tx *sqlx.Tx) Repository {
	return &repository{ext: tx}
}

func (r *repository) Create(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (id, owner_id, amount, kind, status, gateway_order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.ext.ExecContext(ctx, query,
		t.ID,
		t.OwnerID,
		t.Amount,
		t.Kind,
		t.Status,
		t.GatewayOrderID,
		t.CreatedAt,
	)
	return err
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	query := `SELECT * FROM transactions WHERE id = $1`
	var t Transaction
	err := sqlx.GetContext(ctx, r.ext, &t, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// TransitionIfPending moves a pending transaction to a terminal state. The
// WHERE clause on the current status makes concurrent callbacks for the same
// transaction race safely: exactly one wins, the rest get ErrAlreadyTerminal.
func (r *repository) TransitionIfPending(ctx context.Context, id uuid.UUID, status Status, gatewayPaymentID string, gatewayPayload []byte) error {
	var query string
	switch status {
	case StatusCompleted:
		query = `
			UPDATE transactions
			SET status = $2, gateway_payment_id = $3, gateway_payload = $4, completed_at = NOW()
			WHERE id = $1 AND status = 'pending'`
	case StatusFailed:
		query = `
			UPDATE transactions
			SET status = $2, gateway_payment_id = $3, gateway_payload = $4
			WHERE id = $1 AND status = 'pending'`
	default:
		return errors.New("transition target must be a terminal status")
	}

	result, err := r.ext.ExecContext(ctx, query, id, status, gatewayPaymentID, gatewayPayload)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyTerminal
	}
	return nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	query := `
		SELECT * FROM transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var transactions []*Transaction
	err := sqlx.SelectContext(ctx, r.ext, &transactions, query, ownerID, limit, offset)
	return transactions, err
}
