package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrRateLimited          = errors.New("rate limited")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidMarket        = errors.New("invalid market parameters")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrLockHeld             = errors.New("lock already held")
	ErrQueueClosed          = errors.New("queue closed")
	ErrInsufficientEvidence = errors.New("insufficient evidence")
	ErrContextDone          = errors.New("context cancelled")
)
