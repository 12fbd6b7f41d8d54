package wallet

import (
	"time"

	"github.com/google/uuid"
)

type WalletStatus string

const (
	StatusActive    WalletStatus = "active"
	StatusSuspended WalletStatus = "suspended"
)

// Wallet holds an owner's balance in the smallest currency unit. The balance
// is only ever changed through completed wallet_topup transactions (credit)
// or recorded spends, never written directly.
type Wallet struct {
	OwnerID          uuid.UUID    `db:"owner_id" json:"owner_id"`
	Balance          int64        `db:"balance" json:"balance"`
	Status           WalletStatus `db:"status" json:"status"`
	VerificationTier int          `db:"verification_tier" json:"verification_tier"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}
