package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and registries return
// these (optionally wrapped) so services can branch on them with errors.Is.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store (or has lapsed)
// - ErrExpired: verification token has passed its expiry instant
// - ErrAlreadyUsed: verification token was consumed by another caller
// - ErrUnavailable: backing store or platform temporarily unavailable
//
// Policy file problems are reported as *policy.ValidationError instead.
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
