package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
)

// Requeuer re-submits a market to the work queue.
type Requeuer interface {
	Requeue(ctx context.Context, marketID string) error
}

// AdminHandler serves manual override endpoints. Every attempt, authorized or
// not, is written to the admin action audit table before any effect applies.
type AdminHandler struct {
	store    domain.Store
	admins   AdminSet
	ledger   domain.Ledger // optional, needed for freeze_market
	resolver ResolutionService
	requeuer Requeuer // optional
	emitter  *events.Emitter
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. ledger and requeuer may be nil;
// the corresponding actions then report an error.
func NewAdminHandler(store domain.Store, admins AdminSet, ledger domain.Ledger, resolver ResolutionService, requeuer Requeuer, emitter *events.Emitter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:    store,
		admins:   admins,
		ledger:   ledger,
		resolver: resolver,
		requeuer: requeuer,
		emitter:  emitter,
		logger:   logger,
	}
}

// adminActionRequest is the body of POST /api/admin/action.
type adminActionRequest struct {
	AdminAddress string `json:"adminAddress" validate:"required"`
	MarketID     string `json:"marketId" validate:"required"`
	ActionType   string `json:"actionType" validate:"required,oneof=override_status force_resolve freeze_market requeue"`
	Reason       string `json:"reason" validate:"required"`
	NewValue     string `json:"newValue"`
}

// Action performs a manual override of a market. Unauthorized callers get a
// 403, but the attempt still lands in the audit table.
// POST /api/admin/action
func (h *AdminHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	authorized := h.admins.Authorized(req.AdminAddress)

	var oldValue string
	market, err := h.store.Markets().GetByID(r.Context(), req.MarketID)
	switch {
	case err == nil:
		oldValue = string(market.Status)
	case errors.Is(err, domain.ErrNotFound):
		h.audit(r.Context(), req, oldValue, "market not found")
		writeError(w, http.StatusNotFound, "market not found")
		return
	default:
		writeError(w, http.StatusInternalServerError, "failed to load market")
		return
	}

	if !authorized {
		h.audit(r.Context(), req, oldValue, "denied: unauthorized")
		h.logger.WarnContext(r.Context(), "handler: unauthorized admin action",
			slog.String("admin", req.AdminAddress),
			slog.String("market_id", req.MarketID),
			slog.String("action", req.ActionType),
		)
		writeError(w, http.StatusForbidden, "unauthorized admin address")
		return
	}

	if err := h.apply(r.Context(), req, market); err != nil {
		h.audit(r.Context(), req, oldValue, "failed: "+err.Error())
		h.logger.ErrorContext(r.Context(), "handler: admin action failed",
			slog.String("admin", req.AdminAddress),
			slog.String("market_id", req.MarketID),
			slog.String("action", req.ActionType),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "admin action failed")
		return
	}

	h.audit(r.Context(), req, oldValue, "")
	h.emitter.Emit(r.Context(), domain.EventAdminAction, req.MarketID, map[string]any{
		"admin":  req.AdminAddress,
		"action": req.ActionType,
		"reason": req.Reason,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": req.MarketID,
		"action":   req.ActionType,
		"applied":  true,
	})
}

// apply executes the requested override.
func (h *AdminHandler) apply(ctx context.Context, req adminActionRequest, market domain.Market) error {
	switch domain.AdminActionType(req.ActionType) {
	case domain.AdminOverrideStatus:
		status := domain.MarketStatus(req.NewValue)
		switch status {
		case domain.StatusPendingValidation, domain.StatusActive, domain.StatusFlagged,
			domain.StatusRejected, domain.StatusPendingResolution, domain.StatusResolving,
			domain.StatusProposed, domain.StatusResolved, domain.StatusReview:
			return h.store.Markets().UpdateStatus(ctx, req.MarketID, status)
		}
		return domain.ErrInvalidMarket

	case domain.AdminForceResolve:
		outcome := domain.Outcome(req.NewValue)
		if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo && outcome != domain.OutcomeUnresolvable {
			return domain.ErrInvalidMarket
		}
		_, err := h.resolver.ForceResolve(ctx, market, outcome, req.AdminAddress, req.Reason)
		return err

	case domain.AdminFreezeMarket:
		if h.ledger == nil {
			return errors.New("ledger not configured")
		}
		if _, err := h.ledger.Freeze(ctx, req.MarketID, req.Reason); err != nil {
			return err
		}
		return h.store.Markets().UpdateStatus(ctx, req.MarketID, domain.StatusReview)

	case domain.AdminRequeue:
		if h.requeuer == nil {
			return errors.New("worker not running in this mode")
		}
		return h.requeuer.Requeue(ctx, req.MarketID)
	}
	return domain.ErrInvalidMarket
}

// audit records the attempt in the append-only admin action table. denial is
// folded into the stored new value so refused attempts remain visible.
func (h *AdminHandler) audit(ctx context.Context, req adminActionRequest, oldValue, failure string) {
	newValue := req.NewValue
	if failure != "" {
		newValue = failure
	}

	action := domain.AdminAction{
		ID:           uuid.NewString(),
		AdminAddress: req.AdminAddress,
		MarketID:     req.MarketID,
		Action:       domain.AdminActionType(req.ActionType),
		Reason:       req.Reason,
		OldValue:     oldValue,
		NewValue:     newValue,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.AdminActions().Insert(ctx, action); err != nil {
		h.logger.ErrorContext(ctx, "handler: audit insert failed",
			slog.String("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// ListActions returns the admin action audit trail, newest first.
// GET /api/admin/actions
func (h *AdminHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	actions, err := h.store.AdminActions().List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list admin actions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list admin actions")
		return
	}
	if actions == nil {
		actions = []domain.AdminAction{}
	}
	writeJSON(w, http.StatusOK, actions)
}
