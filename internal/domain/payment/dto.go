package payment

import (
	"github.com/google/uuid"

	"github.com/carebridge/payments-api/internal/domain/transaction"
)

// Callback is the inbound gateway callback, untrusted until the signature
// verifies.
type Callback struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
	TransactionID     string `json:"transaction_id" validate:"required,uuid"`
}

// SettlementResult reports the outcome of one verified callback
type SettlementResult struct {
	TransactionID     uuid.UUID          `json:"transaction_id"`
	TransactionStatus transaction.Status `json:"transaction_status"`
	PaymentStatus     string             `json:"payment_status"`
	PaymentMethod     string             `json:"payment_method"`
	Amount            int64              `json:"amount"`
	AlreadySettled    bool               `json:"already_settled"`
}

// InitiateRequest starts a new payment for the authenticated owner
type InitiateRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Kind   string `json:"kind" validate:"required,txn_kind"`
}

// InitiateResult carries what the client checkout needs
type InitiateResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	KeyID         string    `json:"key_id"`
}
