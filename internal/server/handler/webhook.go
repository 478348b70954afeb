package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/verdictd/verdictd/internal/crypto"
	"github.com/verdictd/verdictd/internal/domain"
)

// signatureHeader carries the hex HMAC-SHA256 digest of the raw request body.
const signatureHeader = "X-Oracle-Signature"

// MarketSubmitter accepts a newly created market into the oracle.
type MarketSubmitter interface {
	Submit(ctx context.Context, market domain.Market) error
}

// WebhookHandler serves the inbound platform notifications. Payloads are
// authenticated with a shared-secret HMAC over the raw body; in production
// mode an invalid or missing signature rejects the request before parsing.
type WebhookHandler struct {
	verifier   *crypto.WebhookVerifier
	production bool
	submitter  MarketSubmitter
	requeuer   Requeuer
	store      domain.Store
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. With production false, requests
// without a signature pass through, which keeps local development workable.
func NewWebhookHandler(verifier *crypto.WebhookVerifier, production bool, submitter MarketSubmitter, requeuer Requeuer, store domain.Store, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		production: production,
		submitter:  submitter,
		requeuer:   requeuer,
		store:      store,
		logger:     logger,
	}
}

// readVerified reads the raw body and checks its signature. It returns nil
// and writes the error response itself when verification fails.
func (h *WebhookHandler) readVerified(w http.ResponseWriter, r *http.Request) []byte {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return nil
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		if h.production {
			writeError(w, http.StatusUnauthorized, "missing webhook signature")
			return nil
		}
		return body
	}

	if !h.verifier.Verify(body, signature) {
		h.logger.WarnContext(r.Context(), "handler: webhook signature mismatch",
			slog.String("path", r.URL.Path),
		)
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return nil
	}
	return body
}

// marketCreatedPayload is the body of POST /api/webhook/market-created.
type marketCreatedPayload struct {
	MarketID    string    `json:"marketId" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	SourceURL   string    `json:"sourceUrl"`
	Category    string    `json:"category"`
	Liquidity   float64   `json:"liquidity"`
	ExpiresAt   time.Time `json:"expiresAt" validate:"required"`
}

// MarketCreated ingests a new market and schedules its validation.
// POST /api/webhook/market-created
func (h *WebhookHandler) MarketCreated(w http.ResponseWriter, r *http.Request) {
	body := h.readVerified(w, r)
	if body == nil {
		return
	}

	var payload marketCreatedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	category := domain.MarketCategory(payload.Category)
	if !domain.ValidCategory(category) {
		category = domain.CategoryOther
	}

	market := domain.Market{
		ID:          payload.MarketID,
		Question:    payload.Title,
		Description: payload.Description,
		SourceURL:   payload.SourceURL,
		Category:    category,
		Liquidity:   payload.Liquidity,
		Status:      domain.StatusPendingValidation,
		ExpiresAt:   payload.ExpiresAt,
	}

	if err := h.submitter.Submit(r.Context(), market); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: market submit failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to accept market")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"marketId": market.ID,
		"status":   string(domain.StatusPendingValidation),
	})
}

// marketExpiredPayload is the body of POST /api/webhook/market-expired.
type marketExpiredPayload struct {
	MarketID string `json:"marketId" validate:"required"`
}

// MarketExpired schedules resolution for an expired market.
// POST /api/webhook/market-expired
func (h *WebhookHandler) MarketExpired(w http.ResponseWriter, r *http.Request) {
	body := h.readVerified(w, r)
	if body == nil {
		return
	}

	var payload marketExpiredPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	if _, err := h.store.Markets().GetByID(r.Context(), payload.MarketID); err != nil {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}

	if err := h.requeuer.Requeue(r.Context(), payload.MarketID); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: requeue failed",
			slog.String("market_id", payload.MarketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to schedule resolution")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"marketId": payload.MarketID,
		"status":   "scheduled",
	})
}
