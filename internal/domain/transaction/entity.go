package transaction

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/payments-api/internal/pkg/razorpay"
)

// Status represents transaction status
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Kind represents the transaction kind
type Kind string

const (
	KindDebit           Kind = "debit"
	KindCredit          Kind = "credit"
	KindRefund          Kind = "refund"
	KindConsultationFee Kind = "consultation_fee"
	KindPrescriptionFee Kind = "prescription_fee"
	KindLabFee          Kind = "lab_fee"
	KindWalletTopup     Kind = "wallet_topup"
)

// JSONRawMessage handles NULL json fields from DB
type JSONRawMessage []byte

func (j *JSONRawMessage) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", src)
	}
	return nil
}

func (j JSONRawMessage) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// Transaction represents one payment with the gateway. The id is supplied by
// the caller at initiation and doubles as the idempotency key for callback
// redeliveries.
type Transaction struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	OwnerID          uuid.UUID      `db:"owner_id" json:"owner_id"`
	Amount           int64          `db:"amount" json:"amount"`
	Kind             Kind           `db:"kind" json:"kind"`
	Status           Status         `db:"status" json:"status"`
	GatewayOrderID   sql.NullString `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID sql.NullString `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewayPayload   JSONRawMessage `db:"gateway_payload" json:"gateway_payload,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	CompletedAt      sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
}

// IsTerminal reports whether no further status transition is permitted
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// CreditsWallet reports whether completing this transaction credits the
// owner's wallet.
func (t *Transaction) CreditsWallet() bool {
	return t.Kind == KindWalletTopup
}

// MapGatewayStatus maps the gateway's authoritative payment status onto the
// local terminal status: only "captured" completes a transaction.
func MapGatewayStatus(gatewayStatus string) Status {
	if gatewayStatus == razorpay.PaymentStatusCaptured {
		return StatusCompleted
	}
	return StatusFailed
}
