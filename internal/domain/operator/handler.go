package operator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/payments-api/internal/domain/reconciliation"
	"github.com/carebridge/payments-api/internal/middleware"
	"github.com/carebridge/payments-api/internal/pkg/response"
	"github.com/carebridge/payments-api/internal/pkg/validator"
)

// Handler handles operator HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates operator handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Login handles POST /operator/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	result, err := h.service.Login(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.Unauthorized(w, "invalid credentials")
		case errors.Is(err, ErrAccessDisabled):
			response.Forbidden(w, "operator access not configured")
		default:
			log.Error().Err(err).Msg("operator login failed")
			response.InternalError(w)
		}
		return
	}

	response.OK(w, result)
}

// ListDiscrepancies handles GET /operator/reconciliation
func (h *Handler) ListDiscrepancies(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	entries, err := h.service.Discrepancies(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list discrepancies")
		response.InternalError(w)
		return
	}
	if entries == nil {
		entries = []reconciliation.Discrepancy{}
	}
	response.OK(w, entries)
}

// ResolveDiscrepancy handles POST /operator/reconciliation/{id}/resolve
func (h *Handler) ResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid discrepancy id")
		return
	}

	result, err := h.service.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, reconciliation.ErrDiscrepancyNotFound) {
			response.NotFound(w, "discrepancy not found")
			return
		}
		log.Error().Err(err).Str("discrepancy_id", id.String()).Msg("failed to resolve discrepancy")
		response.InternalError(w)
		return
	}

	response.OK(w, result)
}

// Routes returns the operator router. Login is public; everything else
// requires an operator token.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireOperator)
		r.Get("/reconciliation", h.ListDiscrepancies)
		r.Post("/reconciliation/{id}/resolve", h.ResolveDiscrepancy)
	})
	return r
}
