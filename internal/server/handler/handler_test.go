package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/verdictd/verdictd/internal/crypto"
	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
	"github.com/verdictd/verdictd/internal/rules"
	"github.com/verdictd/verdictd/internal/store/memory"
)

var testLogger = slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

type stubValidation struct {
	result domain.ValidationResult
	err    error
	calls  int
}

func (s *stubValidation) Run(ctx context.Context, market domain.Market) (domain.ValidationResult, error) {
	s.calls++
	s.result.MarketID = market.ID
	return s.result, s.err
}

type stubResolution struct {
	result      domain.ResolutionResult
	err         error
	forcedCalls int
	runCalls    int
	lastAdmin   string
}

func (s *stubResolution) Run(ctx context.Context, market domain.Market) (domain.ResolutionResult, error) {
	s.runCalls++
	s.result.MarketID = market.ID
	return s.result, s.err
}

func (s *stubResolution) ForceResolve(ctx context.Context, market domain.Market, outcome domain.Outcome, admin, reason string) (domain.ResolutionResult, error) {
	s.forcedCalls++
	s.lastAdmin = admin
	s.result.MarketID = market.ID
	s.result.Outcome = outcome
	s.result.Forced = true
	return s.result, s.err
}

type stubRequeuer struct {
	ids []string
	err error
}

func (s *stubRequeuer) Requeue(ctx context.Context, marketID string) error {
	s.ids = append(s.ids, marketID)
	return s.err
}

type stubSubmitter struct {
	markets []domain.Market
	err     error
}

func (s *stubSubmitter) Submit(ctx context.Context, market domain.Market) error {
	s.markets = append(s.markets, market)
	return s.err
}

func seedMarket(t *testing.T, store domain.Store, id string, status domain.MarketStatus) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:        id,
		Question:  "Will bitcoin exceed $100,000 by December 31, 2026?",
		Category:  domain.CategoryCrypto,
		Status:    status,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if err := store.Markets().Upsert(context.Background(), m); err != nil {
		t.Fatalf("seed market: %v", err)
	}
	return m
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func TestValidateQuickRulesOnly(t *testing.T) {
	store := memory.New()
	h := NewOracleHandler(&stubValidation{}, &stubResolution{}, rules.NewEngine(rules.Config{}), store, NewAdminSet(nil), testLogger)

	body, _ := json.Marshal(map[string]any{
		"marketId":  "m1",
		"title":     "Will bitcoin exceed $100,000 by December 31, 2026?",
		"expiresAt": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/validate/quick", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ValidateQuick(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("success = false, want true")
	}
}

func TestValidateRejectsBadBody(t *testing.T) {
	store := memory.New()
	h := NewOracleHandler(&stubValidation{}, &stubResolution{}, rules.NewEngine(rules.Config{}), store, NewAdminSet(nil), testLogger)

	// Missing required title.
	body, _ := json.Marshal(map[string]any{
		"marketId":  "m1",
		"expiresAt": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Validate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success {
		t.Fatalf("success = true on invalid request")
	}
}

func TestValidatePersistsAndRuns(t *testing.T) {
	store := memory.New()
	validation := &stubValidation{result: domain.ValidationResult{Status: domain.ValidationApproved}}
	h := NewOracleHandler(validation, &stubResolution{}, rules.NewEngine(rules.Config{}), store, NewAdminSet(nil), testLogger)

	body, _ := json.Marshal(map[string]any{
		"marketId":  "m1",
		"title":     "Will bitcoin exceed $100,000 by December 31, 2026?",
		"category":  "crypto",
		"expiresAt": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Validate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if validation.calls != 1 {
		t.Fatalf("validation calls = %d, want 1", validation.calls)
	}
	if _, err := store.Markets().GetByID(context.Background(), "m1"); err != nil {
		t.Fatalf("market not persisted: %v", err)
	}
}

func TestResolveForcedRequiresAuthorizedAdmin(t *testing.T) {
	store := memory.New()
	seedMarket(t, store, "m1", domain.StatusPendingResolution)

	resolution := &stubResolution{}
	h := NewOracleHandler(&stubValidation{}, resolution, rules.NewEngine(rules.Config{}),
		store, NewAdminSet([]string{"0xAdmin"}), testLogger)

	body, _ := json.Marshal(map[string]any{
		"forcedResolution": "yes",
		"adminAddress":     "0xintruder",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/resolve/m1", bytes.NewReader(body))
	req.SetPathValue("marketId", "m1")
	rec := httptest.NewRecorder()

	h.Resolve(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if resolution.forcedCalls != 0 {
		t.Fatalf("forced resolution ran for unauthorized admin")
	}

	// Address matching is case-insensitive.
	body, _ = json.Marshal(map[string]any{
		"forcedResolution": "yes",
		"adminAddress":     "0xADMIN",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/resolve/m1", bytes.NewReader(body))
	req.SetPathValue("marketId", "m1")
	rec = httptest.NewRecorder()

	h.Resolve(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if resolution.forcedCalls != 1 {
		t.Fatalf("forced calls = %d, want 1", resolution.forcedCalls)
	}
	if resolution.lastAdmin != "0xADMIN" {
		t.Fatalf("admin = %q", resolution.lastAdmin)
	}
}

func TestResolveUnknownMarket(t *testing.T) {
	store := memory.New()
	h := NewOracleHandler(&stubValidation{}, &stubResolution{}, rules.NewEngine(rules.Config{}), store, NewAdminSet(nil), testLogger)

	req := httptest.NewRequest(http.MethodPost, "/api/resolve/ghost", nil)
	req.SetPathValue("marketId", "ghost")
	rec := httptest.NewRecorder()

	h.Resolve(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAdminActionDeniedStillAudited(t *testing.T) {
	store := memory.New()
	seedMarket(t, store, "m1", domain.StatusActive)
	emitter := events.NewEmitter(store.Events(), nil, testLogger)

	h := NewAdminHandler(store, NewAdminSet([]string{"0xadmin"}), nil, &stubResolution{}, nil, emitter, testLogger)

	body, _ := json.Marshal(map[string]any{
		"adminAddress": "0xintruder",
		"marketId":     "m1",
		"actionType":   "override_status",
		"reason":       "testing",
		"newValue":     "review",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/action", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Action(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	actions, err := store.AdminActions().List(context.Background(), domain.ListOpts{})
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(actions))
	}
	if actions[0].AdminAddress != "0xintruder" {
		t.Fatalf("audited admin = %q", actions[0].AdminAddress)
	}

	// Denied attempt must not have changed the market.
	m, err := store.Markets().GetByID(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if m.Status != domain.StatusActive {
		t.Fatalf("status = %q, want active", m.Status)
	}
}

func TestAdminOverrideStatusApplies(t *testing.T) {
	store := memory.New()
	seedMarket(t, store, "m1", domain.StatusActive)
	emitter := events.NewEmitter(store.Events(), nil, testLogger)

	h := NewAdminHandler(store, NewAdminSet([]string{"0xadmin"}), nil, &stubResolution{}, nil, emitter, testLogger)

	body, _ := json.Marshal(map[string]any{
		"adminAddress": "0xadmin",
		"marketId":     "m1",
		"actionType":   "override_status",
		"reason":       "manual correction",
		"newValue":     "review",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/action", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Action(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	m, err := store.Markets().GetByID(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if m.Status != domain.StatusReview {
		t.Fatalf("status = %q, want review", m.Status)
	}

	evts, err := store.Events().ListByMarket(context.Background(), "m1", domain.ListOpts{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	found := false
	for _, e := range evts {
		if e.Type == domain.EventAdminAction {
			found = true
		}
	}
	if !found {
		t.Fatalf("admin_action event not emitted")
	}
}

func TestWebhookMarketCreatedVerifiesSignature(t *testing.T) {
	store := memory.New()
	verifier := crypto.NewWebhookVerifier("topsecret")
	submitter := &stubSubmitter{}

	h := NewWebhookHandler(verifier, true, submitter, &stubRequeuer{}, store, testLogger)

	payload, _ := json.Marshal(map[string]any{
		"marketId":  "m1",
		"title":     "Will bitcoin exceed $100,000 by December 31, 2026?",
		"category":  "crypto",
		"expiresAt": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})

	// Missing signature is rejected in production mode.
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/market-created", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.MarketCreated(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d, want 401", rec.Code)
	}

	// Wrong signature is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/webhook/market-created", bytes.NewReader(payload))
	req.Header.Set(signatureHeader, "sha256=deadbeef")
	rec = httptest.NewRecorder()
	h.MarketCreated(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d, want 401", rec.Code)
	}

	// Valid signature is accepted and the market submitted.
	req = httptest.NewRequest(http.MethodPost, "/api/webhook/market-created", bytes.NewReader(payload))
	req.Header.Set(signatureHeader, verifier.Sign(payload))
	rec = httptest.NewRecorder()
	h.MarketCreated(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signed status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	if len(submitter.markets) != 1 || submitter.markets[0].ID != "m1" {
		t.Fatalf("submitted markets = %+v", submitter.markets)
	}
	if submitter.markets[0].Status != domain.StatusPendingValidation {
		t.Fatalf("status = %q, want pending_validation", submitter.markets[0].Status)
	}
}

func TestWebhookMarketExpiredRequeues(t *testing.T) {
	store := memory.New()
	seedMarket(t, store, "m1", domain.StatusActive)
	verifier := crypto.NewWebhookVerifier("topsecret")
	requeuer := &stubRequeuer{}

	h := NewWebhookHandler(verifier, true, &stubSubmitter{}, requeuer, store, testLogger)

	payload, _ := json.Marshal(map[string]any{"marketId": "m1"})
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/market-expired", bytes.NewReader(payload))
	req.Header.Set(signatureHeader, verifier.Sign(payload))
	rec := httptest.NewRecorder()

	h.MarketExpired(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	if len(requeuer.ids) != 1 || requeuer.ids[0] != "m1" {
		t.Fatalf("requeued = %v", requeuer.ids)
	}
}

func TestMarketHandlerGetAndList(t *testing.T) {
	store := memory.New()
	for i := 0; i < 3; i++ {
		seedMarket(t, store, fmt.Sprintf("m%d", i), domain.StatusActive)
	}
	seedMarket(t, store, "pending", domain.StatusPendingResolution)

	h := NewMarketHandler(store, nil, testLogger)

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	env := decodeEnvelope(t, rec)
	data, _ := json.Marshal(env.Data)
	var list listMarketsResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Markets) != 3 {
		t.Fatalf("active markets = %d, want 3", len(list.Markets))
	}
	if list.Total != 4 {
		t.Fatalf("total = %d, want 4", list.Total)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/markets/m0", nil)
	req.SetPathValue("id", "m0")
	rec = httptest.NewRecorder()
	h.GetMarket(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/markets/ghost", nil)
	req.SetPathValue("id", "ghost")
	rec = httptest.NewRecorder()
	h.GetMarket(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing market status = %d, want 404", rec.Code)
	}
}

func TestParseListOptsClampsLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/markets?limit=9999&offset=10", nil)
	opts := parseListOpts(req)
	if opts.Limit != 500 {
		t.Fatalf("limit = %d, want 500", opts.Limit)
	}
	if opts.Offset != 10 {
		t.Fatalf("offset = %d, want 10", opts.Offset)
	}
}
