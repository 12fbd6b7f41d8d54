package operator

import "github.com/carebridge/payments-api/internal/domain/reconciliation"

// LoginRequest authenticates the shared operator account
type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the operator access token
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ResolveResult reports a manually settled discrepancy
type ResolveResult struct {
	Discrepancy reconciliation.Discrepancy `json:"discrepancy"`
	NewBalance  int64                      `json:"new_balance"`
}
