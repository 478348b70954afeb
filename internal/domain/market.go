package domain

import "time"

// MarketCategory classifies a market's subject area. Categories control which
// authoritative domains the evidence gatherer consults.
type MarketCategory string

const (
	CategoryCrypto        MarketCategory = "crypto"
	CategorySports        MarketCategory = "sports"
	CategoryPolitics      MarketCategory = "politics"
	CategoryEconomy       MarketCategory = "economy"
	CategoryScience       MarketCategory = "science"
	CategoryEntertainment MarketCategory = "entertainment"
	CategoryOther         MarketCategory = "other"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c MarketCategory) bool {
	switch c {
	case CategoryCrypto, CategorySports, CategoryPolitics, CategoryEconomy,
		CategoryScience, CategoryEntertainment, CategoryOther:
		return true
	}
	return false
}

// MarketStatus represents the lifecycle state of a market. Markets are never
// deleted, only status-transitioned.
type MarketStatus string

const (
	// StatusPendingValidation is the initial state after a market-created webhook.
	StatusPendingValidation MarketStatus = "pending_validation"
	// StatusActive means validation approved the market; it is trading.
	StatusActive MarketStatus = "active"
	// StatusFlagged means validation wants a human look before the market trades.
	StatusFlagged MarketStatus = "flagged"
	// StatusRejected is terminal; validation rejected the question.
	StatusRejected MarketStatus = "rejected"
	// StatusPendingResolution means the market has expired and awaits resolution.
	StatusPendingResolution MarketStatus = "pending_resolution"
	// StatusResolving means a resolution pipeline run is in flight.
	StatusResolving MarketStatus = "resolving"
	// StatusProposed means an outcome has been proposed and is sitting in its
	// heartbeat waiting window.
	StatusProposed MarketStatus = "proposed"
	// StatusResolved is terminal; the outcome was finalized on the ledger.
	StatusResolved MarketStatus = "resolved"
	// StatusReview requires a human: escalations and dead-lettered queue
	// entries land here.
	StatusReview MarketStatus = "review"
)

// Terminal reports whether the status is one the oracle will not transition
// out of on its own.
func (s MarketStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusResolved, StatusReview:
		return true
	}
	return false
}

// Market is a prediction-market question under oracle custody.
type Market struct {
	ID          string
	Question    string
	Description string
	SourceURL   string
	Category    MarketCategory
	Liquidity   float64 // staked liquidity in USD, drives queue priority
	Status      MarketStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UpdatedAt   time.Time
}

// Expired reports whether the market's resolution time has passed.
func (m Market) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}
