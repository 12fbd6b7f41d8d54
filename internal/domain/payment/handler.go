package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/payments-api/internal/domain/transaction"
	"github.com/carebridge/payments-api/internal/middleware"
	"github.com/carebridge/payments-api/internal/pkg/jwt"
	"github.com/carebridge/payments-api/internal/pkg/response"
	"github.com/carebridge/payments-api/internal/pkg/validator"
)

// webhookBodyLimit caps callback bodies; real gateway callbacks are a few
// hundred bytes.
const webhookBodyLimit = 64 << 10

// Handler handles payment HTTP requests
type Handler struct {
	service *Service
	txns    transaction.Repository
}

// NewHandler creates payment handler
func NewHandler(service *Service, txns transaction.Repository) *Handler {
	return &Handler{service: service, txns: txns}
}

// VerifyPayment handles POST /webhooks/razorpay/verify. The gateway
// redelivers on any non-2xx, so every failure class gets a distinct status
// for its logs while staying safe to retry.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	// Unauthenticated endpoint; cap the body well above any real callback.
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)

	var cb Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if details := validator.Validate(cb); details != nil {
		response.ValidationError(w, details)
		return
	}

	result, err := h.service.Settle(r.Context(), cb)
	if err != nil {
		switch {
		case errors.Is(err, ErrSignatureMismatch):
			response.Error(w, http.StatusUnauthorized, "SIGNATURE_MISMATCH", "callback signature verification failed")
		case errors.Is(err, transaction.ErrNotFound):
			response.NotFound(w, "transaction not found")
		case errors.Is(err, ErrGatewayUnavailable):
			response.BadGateway(w, "payment gateway unavailable, retry later")
		case errors.Is(err, ErrWalletSettlementFailed):
			// Partial failure: the transaction is completed but the wallet
			// was not credited. Distinct code so callers can tell this from
			// a full failure.
			response.ErrorWithDetails(w, http.StatusInternalServerError, "SETTLEMENT_INCOMPLETE",
				"transaction completed but wallet settlement failed", map[string]string{
					"transaction_id":     result.TransactionID.String(),
					"transaction_status": string(result.TransactionStatus),
				})
		default:
			log.Error().Err(err).Msg("settlement failed")
			response.InternalError(w)
		}
		return
	}

	response.OK(w, result)
}

// Initiate handles POST /payments/initiate
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetUserID(r.Context())
	if ownerID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	result, err := h.service.Initiate(r.Context(), ownerID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(w, "amount must be greater than zero")
		case errors.Is(err, ErrGatewayUnavailable):
			response.BadGateway(w, "payment gateway unavailable, retry later")
		default:
			log.Error().Err(err).Msg("payment initiation failed")
			response.InternalError(w)
		}
		return
	}

	response.Created(w, result)
}

// List handles GET /payments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetUserID(r.Context())
	if ownerID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	txns, err := h.txns.ListByOwner(r.Context(), ownerID, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list transactions")
		response.InternalError(w)
		return
	}
	if txns == nil {
		txns = []*transaction.Transaction{}
	}
	response.OK(w, txns)
}

// GetTransaction handles GET /payments/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}

	t, err := h.txns.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			response.NotFound(w, "transaction not found")
			return
		}
		response.InternalError(w)
		return
	}

	// Owners see their own transactions; operators see all.
	if middleware.GetRole(r.Context()) != jwt.RoleOperator && t.OwnerID != middleware.GetUserID(r.Context()) {
		response.Forbidden(w, "access denied")
		return
	}

	response.OK(w, t)
}

// Routes returns the authenticated payment router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/initiate", h.Initiate)
		r.Get("/", h.List)
		r.Get("/{id}", h.GetTransaction)
	})
	return r
}

// WebhookRoutes returns the webhook router (no auth, signature verification
// is the trust boundary)
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.WebhookCORSHandler())
	r.Post("/razorpay/verify", h.VerifyPayment)
	return r
}
