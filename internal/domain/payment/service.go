package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/payments-api/internal/domain/reconciliation"
	"github.com/carebridge/payments-api/internal/domain/transaction"
	"github.com/carebridge/payments-api/internal/domain/wallet"
	"github.com/carebridge/payments-api/internal/pkg/razorpay"
)

// Gateway is the payment provider's authenticated API
type Gateway interface {
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
}

// TxRunner runs a function inside one database transaction
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// Archiver stores verbatim gateway payloads for audit
type Archiver interface {
	StorePayload(ctx context.Context, transactionID string, payload []byte) error
}

// Config holds settlement behavior and the gateway credentials the service
// needs.
type Config struct {
	WebhookSecret string
	KeyID         string
	Currency      string
	// Atomic commits the status transition and the wallet credit in one
	// database transaction. The two-step mode is legacy behavior; it can
	// leave a completed transaction with an uncredited wallet, surfaced
	// via the reconciliation queue.
	Atomic bool
}

// Service owns the payment lifecycle: initiation and callback settlement.
// It is the only writer that moves a transaction to a terminal state.
type Service struct {
	txns     transaction.Repository
	wallets  wallet.Repository
	gateway  Gateway
	runner   TxRunner
	queue    reconciliation.Queue
	archiver Archiver // optional
	cfg      Config
}

// NewService creates the payment service
func NewService(txns transaction.Repository, wallets wallet.Repository, gateway Gateway, runner TxRunner, queue reconciliation.Queue, archiver Archiver, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Service{
		txns:     txns,
		wallets:  wallets,
		gateway:  gateway,
		runner:   runner,
		queue:    queue,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Initiate creates a pending transaction and the matching gateway order.
// The transaction id doubles as the gateway order receipt so the two sides
// can always be joined during disputes.
func (s *Service) Initiate(ctx context.Context, ownerID uuid.UUID, req InitiateRequest) (*InitiateResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	id := uuid.New()
	order, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		Amount:   req.Amount,
		Currency: s.cfg.Currency,
		Receipt:  id.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	t := &transaction.Transaction{
		ID:             id,
		OwnerID:        ownerID,
		Amount:         req.Amount,
		Kind:           transaction.Kind(req.Kind),
		Status:         transaction.StatusPending,
		GatewayOrderID: nullString(order.ID),
		CreatedAt:      time.Now(),
	}
	if err := s.txns.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	log.Info().
		Str("transaction_id", id.String()).
		Str("order_id", order.ID).
		Int64("amount", req.Amount).
		Str("kind", req.Kind).
		Msg("payment initiated")

	return &InitiateResult{
		TransactionID: id,
		OrderID:       order.ID,
		Amount:        req.Amount,
		Currency:      s.cfg.Currency,
		KeyID:         s.cfg.KeyID,
	}, nil
}

// Settle verifies one gateway callback and applies its balance effects
// exactly once. Redeliveries of an already-settled callback return the
// stored state unchanged.
func (s *Service) Settle(ctx context.Context, cb Callback) (*SettlementResult, error) {
	// Security boundary: nothing below runs on unverified input.
	if !razorpay.VerifySignature(cb.RazorpayOrderID, cb.RazorpayPaymentID, cb.RazorpaySignature, s.cfg.WebhookSecret) {
		log.Warn().
			Bool("security_event", true).
			Str("order_id", cb.RazorpayOrderID).
			Str("payment_id", cb.RazorpayPaymentID).
			Msg("callback signature mismatch")
		return nil, ErrSignatureMismatch
	}

	txnID, err := uuid.Parse(cb.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction id: %w", err)
	}

	// The gateway, not the callback body, is authoritative for status.
	p, err := s.gateway.FetchPayment(ctx, cb.RazorpayPaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	t, err := s.txns.GetByID(ctx, txnID)
	if err != nil {
		return nil, err
	}

	if t.IsTerminal() {
		return s.result(t, p, true), nil
	}

	if p.Amount != 0 && p.Amount != t.Amount {
		log.Warn().
			Str("transaction_id", txnID.String()).
			Int64("local_amount", t.Amount).
			Int64("captured_amount", p.Amount).
			Msg("captured amount differs from local transaction amount")
	}

	target := transaction.MapGatewayStatus(p.Status)
	creditsWallet := target == transaction.StatusCompleted && t.CreditsWallet()

	if s.cfg.Atomic {
		err = s.settleAtomic(ctx, t, target, creditsWallet, cb.RazorpayPaymentID, p.Raw)
	} else {
		err = s.settleTwoStep(ctx, t, target, creditsWallet, cb.RazorpayPaymentID, p.Raw)
	}
	if err != nil {
		if errors.Is(err, transaction.ErrAlreadyTerminal) {
			// Lost the race against a concurrent callback; the winner's
			// state is the answer.
			t, err = s.txns.GetByID(ctx, txnID)
			if err != nil {
				return nil, err
			}
			return s.result(t, p, true), nil
		}
		if errors.Is(err, ErrWalletSettlementFailed) {
			t.Status = target
			return s.result(t, p, false), err
		}
		return nil, err
	}

	t.Status = target
	s.archive(ctx, txnID, p.Raw)

	log.Info().
		Str("transaction_id", txnID.String()).
		Str("status", string(target)).
		Str("payment_status", p.Status).
		Int64("amount", t.Amount).
		Bool("wallet_credited", creditsWallet).
		Msg("settlement applied")

	return s.result(t, p, false), nil
}

func (s *Service) settleAtomic(ctx context.Context, t *transaction.Transaction, target transaction.Status, creditsWallet bool, paymentID string, payload []byte) error {
	return s.runner.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.txns.WithTx(tx).TransitionIfPending(ctx, t.ID, target, paymentID, payload); err != nil {
			return err
		}
		if creditsWallet {
			if _, err := s.wallets.WithTx(tx).Credit(ctx, t.OwnerID, t.Amount); err != nil {
				return fmt.Errorf("wallet credit: %w", err)
			}
		}
		return nil
	})
}

// settleTwoStep is the legacy ordering: the status commits first so a crash
// between the two writes leaves a recoverable state (completed transaction,
// uncredited wallet) rather than an unexplained credit.
func (s *Service) settleTwoStep(ctx context.Context, t *transaction.Transaction, target transaction.Status, creditsWallet bool, paymentID string, payload []byte) error {
	if err := s.txns.TransitionIfPending(ctx, t.ID, target, paymentID, payload); err != nil {
		return err
	}
	if !creditsWallet {
		return nil
	}

	if _, err := s.wallets.Credit(ctx, t.OwnerID, t.Amount); err != nil {
		d := reconciliation.Discrepancy{
			ID:            uuid.New(),
			TransactionID: t.ID,
			OwnerID:       t.OwnerID,
			Amount:        t.Amount,
			Reason:        fmt.Sprintf("wallet credit failed: %v", err),
			OccurredAt:    time.Now(),
		}
		if qErr := s.queue.Push(ctx, d); qErr != nil {
			log.Error().Err(qErr).Str("transaction_id", t.ID.String()).Msg("failed to enqueue reconciliation discrepancy")
		}
		log.Error().
			Err(err).
			Str("transaction_id", t.ID.String()).
			Str("owner_id", t.OwnerID.String()).
			Int64("amount", t.Amount).
			Msg("reconciliation discrepancy: transaction completed, wallet not credited")
		return fmt.Errorf("%w: %v", ErrWalletSettlementFailed, err)
	}
	return nil
}

func (s *Service) result(t *transaction.Transaction, p *razorpay.Payment, alreadySettled bool) *SettlementResult {
	return &SettlementResult{
		TransactionID:     t.ID,
		TransactionStatus: t.Status,
		PaymentStatus:     p.Status,
		PaymentMethod:     p.Method,
		Amount:            t.Amount,
		AlreadySettled:    alreadySettled,
	}
}

func (s *Service) archive(ctx context.Context, txnID uuid.UUID, payload []byte) {
	if s.archiver == nil || len(payload) == 0 {
		return
	}
	if err := s.archiver.StorePayload(ctx, txnID.String(), payload); err != nil {
		log.Warn().Err(err).Str("transaction_id", txnID.String()).Msg("failed to archive gateway payload")
	}
}
