package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/rules"
)

// validate checks inbound request bodies against their struct tags.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationService runs the full validation pipeline for one market.
type ValidationService interface {
	Run(ctx context.Context, market domain.Market) (domain.ValidationResult, error)
}

// ResolutionService runs the resolution pipeline, including the admin-forced
// path.
type ResolutionService interface {
	Run(ctx context.Context, market domain.Market) (domain.ResolutionResult, error)
	ForceResolve(ctx context.Context, market domain.Market, outcome domain.Outcome, admin, reason string) (domain.ResolutionResult, error)
}

// OracleHandler serves the validation and resolution trigger endpoints.
type OracleHandler struct {
	validator ValidationService
	resolver  ResolutionService
	rules     *rules.Engine
	store     domain.Store
	admins    AdminSet
	logger    *slog.Logger
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(validation ValidationService, resolution ResolutionService, rulesEngine *rules.Engine, store domain.Store, admins AdminSet, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		validator: validation,
		resolver:  resolution,
		rules:     rulesEngine,
		store:     store,
		admins:    admins,
		logger:    logger,
	}
}

// validateRequest is the body of POST /api/validate and /api/validate/quick.
type validateRequest struct {
	MarketID    string    `json:"marketId" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	SourceURL   string    `json:"sourceUrl"`
	Category    string    `json:"category" validate:"omitempty,oneof=crypto sports politics economy science entertainment other"`
	Liquidity   float64   `json:"liquidity" validate:"gte=0"`
	ExpiresAt   time.Time `json:"expiresAt" validate:"required"`
}

func (req validateRequest) market() domain.Market {
	category := domain.MarketCategory(req.Category)
	if !domain.ValidCategory(category) {
		category = domain.CategoryOther
	}
	return domain.Market{
		ID:          req.MarketID,
		Question:    req.Title,
		Description: req.Description,
		SourceURL:   req.SourceURL,
		Category:    category,
		Liquidity:   req.Liquidity,
		Status:      domain.StatusPendingValidation,
		ExpiresAt:   req.ExpiresAt,
	}
}

// Validate runs the full validation pipeline synchronously and returns the
// ValidationResult.
// POST /api/validate
func (h *OracleHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	market := req.market()
	if err := h.store.Markets().Upsert(r.Context(), market); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: upsert market failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store market")
		return
	}

	result, err := h.validator.Run(r.Context(), market)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: validation failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "validation failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ValidateQuick runs only the deterministic rule checks: no fetches, no
// search, no model calls. Useful as a cheap pre-check for market authors.
// POST /api/validate/quick
func (h *OracleHandler) ValidateQuick(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	result := h.rules.Evaluate(req.Title, req.Description, req.ExpiresAt, time.Now().UTC())
	writeJSON(w, http.StatusOK, result)
}

// resolveRequest is the optional body of POST /api/resolve/{marketId}.
type resolveRequest struct {
	ForcedResolution string `json:"forcedResolution" validate:"omitempty,oneof=yes no unresolvable"`
	AdminAddress     string `json:"adminAddress"`
	Reason           string `json:"reason"`
}

// Resolve triggers resolution for a market. With forcedResolution set, the
// caller must be an authorized admin; the decision bypasses the pipeline and
// is recorded as a manual override.
// POST /api/resolve/{marketId}
func (h *OracleHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("marketId")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}

	market, err := h.store.Markets().GetByID(r.Context(), marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load market")
		return
	}

	var result domain.ResolutionResult
	if req.ForcedResolution != "" {
		if !h.admins.Authorized(req.AdminAddress) {
			h.logger.WarnContext(r.Context(), "handler: unauthorized forced resolution",
				slog.String("market_id", marketID),
				slog.String("admin", req.AdminAddress),
			)
			writeError(w, http.StatusForbidden, "unauthorized admin address")
			return
		}
		result, err = h.resolver.ForceResolve(r.Context(), market,
			domain.Outcome(req.ForcedResolution), req.AdminAddress, req.Reason)
	} else {
		result, err = h.resolver.Run(r.Context(), market)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: resolution failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AdminSet is the set of addresses allowed to perform manual overrides.
// Lookup is case-insensitive so checksummed and lowercase hex forms match.
type AdminSet map[string]struct{}

// NewAdminSet builds an AdminSet from configured addresses.
func NewAdminSet(addresses []string) AdminSet {
	set := make(AdminSet, len(addresses))
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			set[a] = struct{}{}
		}
	}
	return set
}

// Authorized reports whether the address is in the set.
func (s AdminSet) Authorized(address string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(address))]
	return ok
}
