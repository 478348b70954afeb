package domain

import "time"

// HeartbeatRecord tracks a market between "outcome proposed" and "finalized
// or escalated". Records are durable: the monitor's in-memory map is a cache
// over the store, so a restart resumes markets mid-window.
type HeartbeatRecord struct {
	MarketID   string
	Outcome    Outcome
	Confidence float64
	ProposedAt time.Time
	LastCheck  time.Time
}

// Elapsed returns the accumulated wall-clock time since the proposal.
func (r HeartbeatRecord) Elapsed(now time.Time) time.Duration {
	return now.Sub(r.ProposedAt)
}

// Due reports whether the record is due for another heartbeat check.
func (r HeartbeatRecord) Due(now time.Time, interval time.Duration) bool {
	return now.Sub(r.LastCheck) >= interval
}

// EscalationReport bundles everything a human reviewer needs when signals
// disagree during the waiting window. Reports are persisted and archived;
// escalation never reverses the proposal or freezes funds automatically.
type EscalationReport struct {
	MarketID        string
	Outcome         Outcome
	Reason          string
	GovernanceAgree bool
	SealResult      ConsensusResult
	ProposedAt      time.Time
	EscalatedAt     time.Time
}

// GovernanceTally is the stake-weighted vote on an AI-proposed outcome.
type GovernanceTally struct {
	VotesFor     float64
	VotesAgainst float64
	Participated bool // false when no holder has voted yet
}

// Agrees reports whether governance supports the proposal. An empty tally
// counts as agreement: silence does not block finalization.
func (t GovernanceTally) Agrees() bool {
	if !t.Participated {
		return true
	}
	return t.VotesFor >= t.VotesAgainst
}
