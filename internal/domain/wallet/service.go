package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, ownerID uuid.UUID) (*Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Spend debits the owner's wallet for an in-platform purchase
func (s *Service) Spend(ctx context.Context, ownerID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	w, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if w.Status == StatusSuspended {
		return 0, ErrWalletSuspended
	}

	balance, err := s.repo.Debit(ctx, ownerID, amount)
	if err != nil {
		return 0, err
	}
	log.Info().Str("owner_id", ownerID.String()).Int64("amount", amount).Int64("balance", balance).Msg("wallet spend applied")
	return balance, nil
}
