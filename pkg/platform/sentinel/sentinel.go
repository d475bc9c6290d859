package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist, or is tombstoned
// - ErrConflict: a scoped uniqueness constraint rejected the write
// - ErrExpired: challenge passed its deadline
// - ErrInvalidState: aggregate in wrong state for the requested transition
// - ErrUnavailable: store temporarily unreachable
//
// For bad input use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
