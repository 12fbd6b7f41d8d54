package payment

import "errors"

var (
	// ErrSignatureMismatch means the callback signature does not match the
	// HMAC under the configured webhook secret. Tampering or a
	// misconfigured secret; logged as a security event.
	ErrSignatureMismatch = errors.New("signature verification failed")

	// ErrGatewayUnavailable covers unreachable gateway, non-2xx responses
	// and malformed bodies. Transient: the gateway redelivers the callback.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrWalletSettlementFailed means the transaction committed completed
	// but the wallet credit did not apply (legacy two-step mode only). The
	// discrepancy is queued for operators; the completed status stands.
	ErrWalletSettlementFailed = errors.New("wallet settlement failed after transaction completed")

	ErrInvalidKind   = errors.New("invalid transaction kind")
	ErrInvalidAmount = errors.New("amount must be greater than zero")
)
