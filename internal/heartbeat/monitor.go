// Package heartbeat implements the waiting-window state machine between
// "outcome proposed" and "finalized": periodic re-verification of the
// proposal against a stricter seal consensus and the governance vote, with
// escalation to human review on any disagreement.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
)

// Sealer re-runs consensus in unanimity mode over fresh evidence for a
// market whose outcome is under its waiting window.
type Sealer interface {
	Seal(ctx context.Context, market domain.Market, outcome domain.Outcome) (domain.ConsensusResult, error)
}

// Config tunes the monitor.
type Config struct {
	// Interval is how often each record is re-checked.
	Interval time.Duration
	// Window is how long a proposal must survive unchallenged before it is
	// finalized. Must exceed Interval so at least one check runs.
	Window time.Duration
}

// Monitor drives proposed outcomes through their waiting window. The
// in-memory map is a cache over the heartbeat store; Reload rebuilds it so
// a restart resumes markets mid-window.
type Monitor struct {
	cfg        Config
	store      domain.Store
	ledger     domain.Ledger
	governance domain.GovernanceSource
	sealer     Sealer
	emitter    *events.Emitter
	archive    domain.BlobWriter // optional escalation-report archive
	log        *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	records map[string]domain.HeartbeatRecord
}

func NewMonitor(cfg Config, store domain.Store, ledger domain.Ledger, governance domain.GovernanceSource, sealer Sealer, emitter *events.Emitter, archive domain.BlobWriter, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Window <= cfg.Interval {
		cfg.Window = 2 * time.Hour
	}
	return &Monitor{
		cfg:        cfg,
		store:      store,
		ledger:     ledger,
		governance: governance,
		sealer:     sealer,
		emitter:    emitter,
		archive:    archive,
		log:        logger.With("component", "heartbeat"),
		now:        func() time.Time { return time.Now().UTC() },
		records:    make(map[string]domain.HeartbeatRecord),
	}
}

// Track registers a freshly proposed outcome. The record is durable before
// it enters the in-memory cache. A market already tracked is a no-op: at
// most one active record per market.
func (m *Monitor) Track(ctx context.Context, marketID string, outcome domain.Outcome, confidence float64) error {
	m.mu.Lock()
	if _, exists := m.records[marketID]; exists {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	record := domain.HeartbeatRecord{
		MarketID:   marketID,
		Outcome:    outcome,
		Confidence: confidence,
		ProposedAt: m.now(),
		LastCheck:  m.now(),
	}
	if err := m.store.Heartbeats().Put(ctx, record); err != nil {
		return fmt.Errorf("heartbeat: track %s: %w", marketID, err)
	}

	m.mu.Lock()
	m.records[marketID] = record
	m.mu.Unlock()

	m.log.Info("tracking proposed outcome",
		"market_id", marketID, "outcome", string(outcome), "window", m.cfg.Window)
	return nil
}

// Reload rebuilds the in-memory cache from the store. Called once at
// startup so restarts resume markets mid-window instead of orphaning them.
func (m *Monitor) Reload(ctx context.Context) error {
	records, err := m.store.Heartbeats().List(ctx)
	if err != nil {
		return fmt.Errorf("heartbeat: reload: %w", err)
	}

	m.mu.Lock()
	m.records = make(map[string]domain.HeartbeatRecord, len(records))
	for _, r := range records {
		m.records[r.MarketID] = r
	}
	m.mu.Unlock()

	if len(records) > 0 {
		m.log.Info("resumed in-flight proposals", "count", len(records))
	}
	return nil
}

// Tracked returns how many proposals are currently in their window.
func (m *Monitor) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Run ticks until ctx is done. Each tick checks every due record.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick checks every record that is due. Exposed separately from Run so the
// orchestrator (and tests) can drive checks without wall-clock waits.
func (m *Monitor) Tick(ctx context.Context) {
	m.mu.Lock()
	due := make([]domain.HeartbeatRecord, 0, len(m.records))
	for _, r := range m.records {
		if r.Due(m.now(), m.cfg.Interval) || r.Elapsed(m.now()) >= m.cfg.Window {
			due = append(due, r)
		}
	}
	m.mu.Unlock()

	for _, record := range due {
		if ctx.Err() != nil {
			return
		}
		m.check(ctx, record)
	}
}

// check runs one heartbeat for one record: governance tally, seal consensus,
// then the transition decision. Escalation fires if and only if governance
// disagrees or the seal comes back uncertain; a record that survives the
// full window unchallenged finalizes.
func (m *Monitor) check(ctx context.Context, record domain.HeartbeatRecord) {
	market, err := m.store.Markets().GetByID(ctx, record.MarketID)
	if err != nil {
		m.log.Error("heartbeat load market", "market_id", record.MarketID, "error", err)
		return
	}

	// Without a governance source the tally stays unparticipated, which
	// never counts as disagreement.
	var tally domain.GovernanceTally
	if m.governance != nil {
		tally, err = m.governance.Tally(ctx, record.MarketID)
		if err != nil {
			// A governance outage is not disagreement. Skip this beat and try
			// again next interval rather than escalating on missing data.
			m.log.Warn("governance tally unavailable", "market_id", record.MarketID, "error", err)
			m.touch(ctx, record)
			return
		}
	}

	seal, err := m.sealer.Seal(ctx, market, record.Outcome)
	if err != nil {
		m.log.Warn("seal consensus unavailable", "market_id", record.MarketID, "error", err)
		m.touch(ctx, record)
		return
	}

	sealAgrees := seal.FinalVerdict != domain.AnswerUncertain &&
		outcomeMatches(seal.FinalVerdict, record.Outcome)

	switch {
	case !tally.Agrees() || !sealAgrees:
		m.escalate(ctx, market, record, tally, seal)
	case record.Elapsed(m.now()) >= m.cfg.Window:
		m.finalize(ctx, market, record)
	default:
		m.emitter.Emit(ctx, domain.EventHeartbeatOK, record.MarketID, map[string]any{
			"outcome":   string(record.Outcome),
			"elapsed":   record.Elapsed(m.now()).String(),
			"remaining": (m.cfg.Window - record.Elapsed(m.now())).String(),
		})
		m.touch(ctx, record)
	}
}

// touch advances LastCheck in both the store and the cache.
func (m *Monitor) touch(ctx context.Context, record domain.HeartbeatRecord) {
	record.LastCheck = m.now()
	if err := m.store.Heartbeats().Put(ctx, record); err != nil {
		m.log.Error("heartbeat persist", "market_id", record.MarketID, "error", err)
	}
	m.mu.Lock()
	m.records[record.MarketID] = record
	m.mu.Unlock()
}

// finalize submits the outcome to the ledger and retires the record.
func (m *Monitor) finalize(ctx context.Context, market domain.Market, record domain.HeartbeatRecord) {
	txRef, err := m.ledger.Finalize(ctx, record.MarketID, record.Outcome)
	if err != nil {
		// Leave the record in place; the next beat retries finalization.
		m.log.Error("finalize submission failed", "market_id", record.MarketID, "error", err)
		m.touch(ctx, record)
		return
	}

	if err := m.store.Markets().UpdateStatus(ctx, record.MarketID, domain.StatusResolved); err != nil {
		m.log.Error("finalize status update", "market_id", record.MarketID, "error", err)
	}
	m.retire(ctx, record.MarketID)

	m.emitter.Emit(ctx, domain.EventMarketFinalized, record.MarketID, map[string]any{
		"outcome":    string(record.Outcome),
		"confidence": record.Confidence,
		"tx_ref":     txRef,
	})
	m.log.Info("outcome finalized",
		"market_id", record.MarketID, "outcome", string(record.Outcome), "tx_ref", txRef)
}

// escalate parks the market in human review and reports what disagreed.
// No ledger call happens here: freezing or reversing a proposal is an
// operator decision taken through the admin surface, never automatic.
func (m *Monitor) escalate(ctx context.Context, market domain.Market, record domain.HeartbeatRecord, tally domain.GovernanceTally, seal domain.ConsensusResult) {
	report := domain.EscalationReport{
		MarketID:        record.MarketID,
		Outcome:         record.Outcome,
		Reason:          escalationReason(tally, seal),
		GovernanceAgree: tally.Agrees(),
		SealResult:      seal,
		ProposedAt:      record.ProposedAt,
		EscalatedAt:     m.now(),
	}

	if err := m.store.Markets().UpdateStatus(ctx, record.MarketID, domain.StatusReview); err != nil {
		m.log.Error("escalate status update", "market_id", record.MarketID, "error", err)
	}
	m.archiveReport(ctx, report)
	m.retire(ctx, record.MarketID)

	m.emitter.Emit(ctx, domain.EventMarketEscalated, record.MarketID, map[string]any{
		"outcome":          string(record.Outcome),
		"reason":           report.Reason,
		"governance_agree": report.GovernanceAgree,
		"seal_verdict":     string(seal.FinalVerdict),
	})
	m.log.Warn("market escalated",
		"market_id", record.MarketID, "reason", report.Reason)
}

// retire deletes the record from both halves; the market has left its window.
func (m *Monitor) retire(ctx context.Context, marketID string) {
	if err := m.store.Heartbeats().Delete(ctx, marketID); err != nil {
		m.log.Error("heartbeat delete", "market_id", marketID, "error", err)
	}
	m.mu.Lock()
	delete(m.records, marketID)
	m.mu.Unlock()
}

// archiveReport writes the full escalation report to object storage for the
// reviewer. Best effort: the event log still carries the summary.
func (m *Monitor) archiveReport(ctx context.Context, report domain.EscalationReport) {
	if m.archive == nil {
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		m.log.Error("encode escalation report", "market_id", report.MarketID, "error", err)
		return
	}
	key := fmt.Sprintf("escalations/%s/%s.json", report.MarketID, report.EscalatedAt.Format("20060102T150405Z"))
	if err := m.archive.Put(ctx, key, "application/json", data); err != nil {
		m.log.Warn("archive escalation report", "market_id", report.MarketID, "error", err)
	}
}

func escalationReason(tally domain.GovernanceTally, seal domain.ConsensusResult) string {
	switch {
	case !tally.Agrees() && seal.FinalVerdict == domain.AnswerUncertain:
		return "governance disagreement and seal consensus uncertainty"
	case !tally.Agrees():
		return fmt.Sprintf("governance disagreement: %.0f for vs %.0f against", tally.VotesFor, tally.VotesAgainst)
	default:
		return "seal consensus did not unanimously confirm the proposed outcome"
	}
}

func outcomeMatches(answer domain.Answer, outcome domain.Outcome) bool {
	switch answer {
	case domain.AnswerYes:
		return outcome == domain.OutcomeYes
	case domain.AnswerNo:
		return outcome == domain.OutcomeNo
	}
	return false
}
