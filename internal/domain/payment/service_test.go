package payment

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carebridge/payments-api/internal/domain/reconciliation"
	"github.com/carebridge/payments-api/internal/domain/transaction"
	"github.com/carebridge/payments-api/internal/domain/wallet"
	"github.com/carebridge/payments-api/internal/pkg/razorpay"
)

const testSecret = "test_webhook_secret"

type fakeTxnRepo struct {
	txns          map[uuid.UUID]*transaction.Transaction
	transitionErr error
	transitions   int
}

func newFakeTxnRepo() *fakeTxnRepo {
	return &fakeTxnRepo{txns: make(map[uuid.UUID]*transaction.Transaction)}
}

func (f *fakeTxnRepo) WithTx(tx *sqlx.Tx) transaction.Repository { return f }

func (f *fakeTxnRepo) Create(ctx context.Context, t *transaction.Transaction) error {
	cp := *t
	f.txns[t.ID] = &cp
	return nil
}

func (f *fakeTxnRepo) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, ok := f.txns[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTxnRepo) TransitionIfPending(ctx context.Context, id uuid.UUID, status transaction.Status, gatewayPaymentID string, payload []byte) error {
	if f.transitionErr != nil {
		if errors.Is(f.transitionErr, transaction.ErrAlreadyTerminal) {
			// Simulate losing the race: the winner already completed it.
			if t, ok := f.txns[id]; ok {
				t.Status = transaction.StatusCompleted
			}
		}
		return f.transitionErr
	}
	t, ok := f.txns[id]
	if !ok {
		return transaction.ErrNotFound
	}
	if t.IsTerminal() {
		return transaction.ErrAlreadyTerminal
	}
	t.Status = status
	t.GatewayPaymentID = sql.NullString{String: gatewayPaymentID, Valid: true}
	t.GatewayPayload = payload
	f.transitions++
	return nil
}

func (f *fakeTxnRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*transaction.Transaction, error) {
	return nil, nil
}

func (f *fakeTxnRepo) snapshot() map[uuid.UUID]transaction.Transaction {
	snap := make(map[uuid.UUID]transaction.Transaction, len(f.txns))
	for id, t := range f.txns {
		snap[id] = *t
	}
	return snap
}

func (f *fakeTxnRepo) restore(snap map[uuid.UUID]transaction.Transaction) {
	f.txns = make(map[uuid.UUID]*transaction.Transaction, len(snap))
	for id, t := range snap {
		cp := t
		f.txns[id] = &cp
	}
}

type fakeWalletRepo struct {
	balances  map[uuid.UUID]int64
	creditErr error
	credits   int
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{balances: make(map[uuid.UUID]int64)}
}

func (f *fakeWalletRepo) WithTx(tx *sqlx.Tx) wallet.Repository { return f }

func (f *fakeWalletRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*wallet.Wallet, error) {
	return &wallet.Wallet{OwnerID: ownerID, Balance: f.balances[ownerID], Status: wallet.StatusActive}, nil
}

func (f *fakeWalletRepo) Credit(ctx context.Context, ownerID uuid.UUID, amount int64) (int64, error) {
	if f.creditErr != nil {
		return 0, f.creditErr
	}
	if amount <= 0 {
		return 0, wallet.ErrInvalidAmount
	}
	f.balances[ownerID] += amount
	f.credits++
	return f.balances[ownerID], nil
}

func (f *fakeWalletRepo) Debit(ctx context.Context, ownerID uuid.UUID, amount int64) (int64, error) {
	if f.balances[ownerID] < amount {
		return 0, wallet.ErrInsufficientFunds
	}
	f.balances[ownerID] -= amount
	return f.balances[ownerID], nil
}

type fakeGateway struct {
	payment    *razorpay.Payment
	fetchErr   error
	fetchCalls int
	order      *razorpay.Order
	createErr  error
}

func (f *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.payment, nil
}

func (f *fakeGateway) CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.order, nil
}

// fakeRunner emulates transactional rollback by restoring the fakes to their
// pre-call state when the function errors.
type fakeRunner struct {
	txns    *fakeTxnRepo
	wallets *fakeWalletRepo
}

func (r *fakeRunner) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	txnSnap := r.txns.snapshot()
	balSnap := make(map[uuid.UUID]int64, len(r.wallets.balances))
	for id, b := range r.wallets.balances {
		balSnap[id] = b
	}
	credits := r.wallets.credits
	if err := fn(nil); err != nil {
		r.txns.restore(txnSnap)
		r.wallets.balances = balSnap
		r.wallets.credits = credits
		return err
	}
	return nil
}

type fakeQueue struct {
	pushed []reconciliation.Discrepancy
}

func (f *fakeQueue) Push(ctx context.Context, d reconciliation.Discrepancy) error {
	f.pushed = append(f.pushed, d)
	return nil
}

func (f *fakeQueue) List(ctx context.Context, limit int64) ([]reconciliation.Discrepancy, error) {
	return f.pushed, nil
}

func (f *fakeQueue) Resolve(ctx context.Context, id uuid.UUID) (*reconciliation.Discrepancy, error) {
	for i, d := range f.pushed {
		if d.ID == id {
			f.pushed = append(f.pushed[:i], f.pushed[i+1:]...)
			return &d, nil
		}
	}
	return nil, reconciliation.ErrDiscrepancyNotFound
}

type fakeArchiver struct {
	stored map[string][]byte
}

func (f *fakeArchiver) StorePayload(ctx context.Context, transactionID string, payload []byte) error {
	if f.stored == nil {
		f.stored = make(map[string][]byte)
	}
	f.stored[transactionID] = payload
	return nil
}

type testEnv struct {
	svc      *Service
	txns     *fakeTxnRepo
	wallets  *fakeWalletRepo
	gateway  *fakeGateway
	queue    *fakeQueue
	archiver *fakeArchiver
}

func newTestEnv(atomic bool) *testEnv {
	txns := newFakeTxnRepo()
	wallets := newFakeWalletRepo()
	gateway := &fakeGateway{}
	queue := &fakeQueue{}
	archiver := &fakeArchiver{}
	svc := NewService(txns, wallets, gateway, &fakeRunner{txns: txns, wallets: wallets}, queue, archiver, Config{
		WebhookSecret: testSecret,
		KeyID:         "rzp_test_key",
		Atomic:        atomic,
	})
	return &testEnv{svc: svc, txns: txns, wallets: wallets, gateway: gateway, queue: queue, archiver: archiver}
}

func (e *testEnv) seedPending(kind transaction.Kind, amount int64) *transaction.Transaction {
	t := &transaction.Transaction{
		ID:             uuid.New(),
		OwnerID:        uuid.New(),
		Amount:         amount,
		Kind:           kind,
		Status:         transaction.StatusPending,
		GatewayOrderID: sql.NullString{String: "order_test1", Valid: true},
		CreatedAt:      time.Now(),
	}
	e.txns.txns[t.ID] = t
	return t
}

func signedCallback(t *transaction.Transaction, paymentID string) Callback {
	orderID := t.GatewayOrderID.String
	return Callback{
		RazorpayOrderID:   orderID,
		RazorpayPaymentID: paymentID,
		RazorpaySignature: razorpay.GenerateSignature(orderID, paymentID, testSecret),
		TransactionID:     t.ID.String(),
	}
}

func capturedPayment(orderID string, amount int64) *razorpay.Payment {
	return &razorpay.Payment{
		ID:      "pay_test1",
		OrderID: orderID,
		Amount:  amount,
		Status:  razorpay.PaymentStatusCaptured,
		Method:  "upi",
		Raw:     []byte(`{"id":"pay_test1","status":"captured"}`),
	}
}

func TestSettleCapturedTopupCreditsWallet(t *testing.T) {
	env := newTestEnv(true)
	txn := env.seedPending(transaction.KindWalletTopup, 50000)
	env.gateway.payment = capturedPayment("order_test1", 50000)

	result, err := env.svc.Settle(context.Background(), signedCallback(txn, "pay_test1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TransactionStatus != transaction.StatusCompleted {
		t.Errorf("expected completed, got %s", result.TransactionStatus)
	}
	if result.AlreadySettled {
		t.Error("first settlement should not report already settled")
	}
	if env.wallets.credits != 1 {
		t.Errorf("expected exactly 1 wallet credit, got %d", env.wallets.credits)
	}
	if got := env.wallets.balances[txn.OwnerID]; got != 50000 {
		t.Errorf("expected balance 50000, got %d", got)
	}
	if _, ok := env.archiver.stored[txn.ID.String()]; !ok {
		t.Error("expected gateway payload archived")
	}
}

func TestSettleRedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(true)
	txn := env.seedPending(transaction.KindWalletTopup, 50000)
	env.gateway.payment = capturedPayment("order_test1", 50000)
	cb := signedCallback(txn, "pay_test1")

	if _, err := env.svc.Settle(context.Background(), cb); err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}
	result, err := env.svc.Settle(context.Background(), cb)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if !result.AlreadySettled {
		t.Error("redelivery should report already settled")
	}
	if result.TransactionStatus != transaction.StatusCompleted {
		t.Errorf("expected completed, got %s", result.TransactionStatus)
	}
	if env.wallets.credits != 1 {
		t.Errorf("redelivery must not credit again, got %d credits", env.wallets.credits)
	}
}

func TestSettleSignatureMismatchTouchesNothing(t *testing.T) {
	env := newTestEnv(true)
	txn := env.seedPending(transaction.KindWalletTopup, 50000)
	env.gateway.payment = capturedPayment("order_test1", 50000)

	cb := signedCallback(txn, "pay_test1")
	cb.RazorpaySignature = razorpay.GenerateSignature("order_test1", "pay_test1", "wrong_secret")

	_, err := env.svc.Settle(context.Background(), cb)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if env.gateway.fetchCalls != 0 {
		t.Error("gateway must not be called on signature mismatch")
	}
	if env.txns.txns[txn.ID].Status != transaction.StatusPending {
		t.Error("transaction must stay pending on signature mismatch")
	}
	if env.wallets.credits != 0 {
		t.Error("wallet must not be credited on signature mismatch")
	}
}

func TestSettleUnknownTransaction(t *testing.T) {
	env := newTestEnv(true)
	env.gateway.payment = capturedPayment("order_test1", 50000)

	cb := Callback{
		RazorpayOrderID:   "order_test1",
		RazorpayPaymentID: "pay_test1",
		RazorpaySignature: razorpay.GenerateSignature("order_test1", "pay_test1", testSecret),
		TransactionID:     uuid.New().String(),
	}
	_, err := env.svc.Settle(context.Background(), cb)
	if !errors.Is(err, transaction.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSettleNonCapturedPaymentFails(t *testing.T) {
	env := newTestEnv(true)
	txn := env.seedPending(transaction.KindWalletTopup, 50000)
	env.gateway.payment = &razorpay.Payment{
		ID:      "pay_test1",
		OrderID: "order_test1",
		Amount:  50000,
		Status:  razorpay.PaymentStatusFailed,
		Raw:     []byte(`{"status":"failed"}`),
	}

	result, err := env.svc.Settle(context.Background(), signedCallback(txn, "pay_test1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TransactionStatus != transaction.StatusFailed {
		t.Errorf("expected failed, got %s", result.TransactionStatus)
	}
	if env.wallets.credits != 0 {
		t.Error("failed payment must not credit the wallet")
	}
}

func TestSettleNonTopupDoesNotCreditWallet(t *testing.T) {
	env := newTestEnv(true)
	txn := env.seedPending(transaction.KindConsultationFee, 120000)
	env.gateway.payment = capturedPayment("order_test1", 120000)

	result, err := env.svc.Settle(context.Background(), signedCallback(txn, "pay_test1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TransactionStatus != transaction.StatusCompleted {
		t.Errorf("expected completed, got %s", result.TransactionStatus)
	}
	if env.wallets.credits != 0 {
		t.Error("consultation fee must not credit the wallet")
	}
}

func TestSettleGatewayUnavailableLeavesPending(t *testing.T) {
	env := newTestEnv(true)
	txn := env.seedPending(transaction.KindWalletTopup, 50000)
	env.gateway.fetchErr = errors.New("connection refused")

	_, err := env.svc.Settle(context.Background(), signedCallback(txn, "pay_test1"))
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if env.txns.txns[txn.ID].Status != transaction.StatusPending {
		t.Error("transaction must stay pending when gateway is unreachable")
	}
}

func TestSettleAtomicWalletFailureRollsBack(t *testing.T) {
	env := newTestEnv(true)
	txn := env.seedPending(transaction.KindWalletTopup, 50000)
	env.gateway.payment = capturedPayment("order_test1", 50000)
	env.wallets.creditErr = errors.New("wallet write failed")

	_, err := env.svc.Settle(context.Background(), signedCallback(txn, "pay_test1"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrWalletSettlementFailed) {
		t.Fatal("atomic mode must not surface a partial settlement")
	}
	if env.txns.txns[txn.ID].Status != transaction.StatusPending {
		t.Error("status transition must roll back with the failed credit")
	}
	if env.wallets.credits != 0 {
		t.Error("no credit should survive the rollback")
	}
}

func TestSettleTwoStepWalletFailureQueuesDiscrepancy(t *testing.T) {
	env := newTestEnv(false)
	txn := env.seedPending(transaction.KindWalletTopup, 50000)
	env.gateway.payment = capturedPayment("order_test1", 50000)
	env.wallets.creditErr = errors.New("wallet write failed")

	result, err := env.svc.Settle(context.Background(), signedCallback(txn, "pay_test1"))
	if !errors.Is(err, ErrWalletSettlementFailed) {
		t.Fatalf("expected ErrWalletSettlementFailed, got %v", err)
	}
	if result == nil {
		t.Fatal("partial settlement must still report the transaction state")
	}
	if result.TransactionStatus != transaction.StatusCompleted {
		t.Errorf("transaction status must stand at completed, got %s", result.TransactionStatus)
	}
	if env.txns.txns[txn.ID].Status != transaction.StatusCompleted {
		t.Error("stored transaction must remain completed")
	}
	if len(env.queue.pushed) != 1 {
		t.Fatalf("expected 1 queued discrepancy, got %d", len(env.queue.pushed))
	}
	d := env.queue.pushed[0]
	if d.TransactionID != txn.ID || d.OwnerID != txn.OwnerID || d.Amount != txn.Amount {
		t.Errorf("discrepancy does not match transaction: %+v", d)
	}
}

func TestSettleConcurrentLoserReturnsWinnerState(t *testing.T) {
	env := newTestEnv(true)
	txn := env.seedPending(transaction.KindWalletTopup, 50000)
	env.gateway.payment = capturedPayment("order_test1", 50000)
	env.txns.transitionErr = transaction.ErrAlreadyTerminal

	result, err := env.svc.Settle(context.Background(), signedCallback(txn, "pay_test1"))
	if err != nil {
		t.Fatalf("losing a settlement race must not error: %v", err)
	}
	if !result.AlreadySettled {
		t.Error("race loser should report already settled")
	}
	if env.wallets.credits != 0 {
		t.Error("race loser must not credit the wallet")
	}
}

func TestInitiateCreatesPendingTransaction(t *testing.T) {
	env := newTestEnv(true)
	env.gateway.order = &razorpay.Order{ID: "order_new1", Amount: 50000, Currency: "INR"}
	ownerID := uuid.New()

	result, err := env.svc.Initiate(context.Background(), ownerID, InitiateRequest{Amount: 50000, Kind: "wallet_topup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OrderID != "order_new1" {
		t.Errorf("expected gateway order id, got %s", result.OrderID)
	}
	if result.KeyID != "rzp_test_key" {
		t.Errorf("expected key id for checkout, got %s", result.KeyID)
	}
	if result.Currency != "INR" {
		t.Errorf("expected INR default, got %s", result.Currency)
	}

	stored, err := env.txns.GetByID(context.Background(), result.TransactionID)
	if err != nil {
		t.Fatalf("transaction not stored: %v", err)
	}
	if stored.Status != transaction.StatusPending {
		t.Errorf("expected pending, got %s", stored.Status)
	}
	if stored.OwnerID != ownerID {
		t.Error("owner mismatch")
	}
	if stored.GatewayOrderID.String != "order_new1" {
		t.Errorf("expected gateway order id stored, got %q", stored.GatewayOrderID.String)
	}
}

func TestInitiateGatewayDown(t *testing.T) {
	env := newTestEnv(true)
	env.gateway.createErr = errors.New("connection refused")

	_, err := env.svc.Initiate(context.Background(), uuid.New(), InitiateRequest{Amount: 50000, Kind: "wallet_topup"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if len(env.txns.txns) != 0 {
		t.Error("no transaction should be created when order creation fails")
	}
}

func TestInitiateRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(true)
	for _, amount := range []int64{0, -1} {
		if _, err := env.svc.Initiate(context.Background(), uuid.New(), InitiateRequest{Amount: amount, Kind: "wallet_topup"}); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}
