package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// Discrepancy records a settlement whose transaction reached completed but
// whose wallet credit did not apply. Operators work the queue manually;
// nothing in the settlement flow retries these.
type Discrepancy struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}
