package operator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/carebridge/payments-api/internal/domain/reconciliation"
	"github.com/carebridge/payments-api/internal/domain/wallet"
	"github.com/carebridge/payments-api/internal/pkg/jwt"
)

// operatorID is the stable identity behind the shared operator account.
var operatorID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("carebridge:operator"))

// Service handles operator authentication and the reconciliation workflow
type Service struct {
	jwtService   *jwt.Service
	passwordHash string
	queue        reconciliation.Queue
	wallets      wallet.Repository
}

// NewService creates operator service
func NewService(jwtService *jwt.Service, passwordHash string, queue reconciliation.Queue, wallets wallet.Repository) *Service {
	return &Service{
		jwtService:   jwtService,
		passwordHash: passwordHash,
		queue:        queue,
		wallets:      wallets,
	}
}

// Login checks the password against the configured bcrypt hash and issues an
// operator token.
func (s *Service) Login(password string) (*LoginResponse, error) {
	if s.passwordHash == "" {
		return nil, ErrAccessDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		log.Warn().Bool("security_event", true).Msg("operator login rejected")
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtService.GenerateAccessToken(operatorID, jwt.RoleOperator)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.jwtService.GetAccessTTL().Seconds()),
	}, nil
}

// Discrepancies lists queued settlement discrepancies
func (s *Service) Discrepancies(ctx context.Context, limit int64) ([]reconciliation.Discrepancy, error) {
	return s.queue.List(ctx, limit)
}

// Resolve settles one discrepancy manually: the owner's wallet gets the
// missing credit and the entry leaves the queue. The queue entry is claimed
// first, so of two concurrent resolves only the one that removed the entry
// credits the wallet; the other sees not-found. If the credit then fails the
// entry is pushed back, keeping the money visible to operators.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (*ResolveResult, error) {
	d, err := s.queue.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	balance, err := s.wallets.Credit(ctx, d.OwnerID, d.Amount)
	if err != nil {
		requeued := *d
		requeued.Reason = fmt.Sprintf("%s; manual credit failed: %v", d.Reason, err)
		if pushErr := s.queue.Push(ctx, requeued); pushErr != nil {
			log.Error().Err(pushErr).Str("discrepancy_id", id.String()).Msg("failed to requeue discrepancy after credit failure")
		}
		return nil, err
	}

	log.Info().
		Str("discrepancy_id", id.String()).
		Str("transaction_id", d.TransactionID.String()).
		Str("owner_id", d.OwnerID.String()).
		Int64("amount", d.Amount).
		Int64("new_balance", balance).
		Msg("discrepancy resolved manually")

	return &ResolveResult{Discrepancy: *d, NewBalance: balance}, nil
}
