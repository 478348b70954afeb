package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

// MarketHandler serves market read endpoints. Single-market reads go through
// the cache when one is configured; list queries always hit the store.
type MarketHandler struct {
	store  domain.Store
	cache  domain.MarketCache // optional
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler. cache may be nil.
func NewMarketHandler(store domain.Store, cache domain.MarketCache, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets filtered by status (default active).
// GET /api/markets?status=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.StatusActive
	}

	markets, err := h.store.Markets().ListByStatus(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.store.Markets().Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// marketDetail bundles a market with its latest validation and resolution
// results, when present.
type marketDetail struct {
	Market     domain.Market            `json:"market"`
	Validation *domain.ValidationResult `json:"validation,omitempty"`
	Resolution *domain.ResolutionResult `json:"resolution,omitempty"`
}

// GetMarket returns one market with its latest results.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	market, err := h.lookupMarket(r, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load market")
		return
	}

	detail := marketDetail{Market: market}
	if v, err := h.store.Validations().LatestByMarket(r.Context(), id); err == nil {
		detail.Validation = &v
	}
	if res, err := h.store.Resolutions().LatestByMarket(r.Context(), id); err == nil {
		detail.Resolution = &res
	}

	writeJSON(w, http.StatusOK, detail)
}

// ListPendingResolution returns expired markets awaiting resolution.
// GET /api/markets/pending/resolution
func (h *MarketHandler) ListPendingResolution(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.store.Markets().ListByStatus(r.Context(), domain.StatusPendingResolution, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pending resolution failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	// Include expired markets the poll loop has not picked up yet.
	expired, err := h.store.Markets().ListExpired(r.Context(), time.Now().UTC(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list expired failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	seen := make(map[string]bool, len(markets))
	for _, m := range markets {
		seen[m.ID] = true
	}
	for _, m := range expired {
		if !seen[m.ID] && (m.Status == domain.StatusActive || m.Status == domain.StatusFlagged) {
			markets = append(markets, m)
		}
	}

	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   int64(len(markets)),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// lookupMarket reads through the cache, falling back to the store and
// repopulating the cache on a miss.
func (h *MarketHandler) lookupMarket(r *http.Request, id string) (domain.Market, error) {
	if h.cache != nil {
		if m, err := h.cache.Get(r.Context(), id); err == nil {
			return m, nil
		}
	}

	market, err := h.store.Markets().GetByID(r.Context(), id)
	if err != nil {
		return domain.Market{}, err
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), market); err != nil {
			h.logger.WarnContext(r.Context(), "handler: cache set failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return market, nil
}
