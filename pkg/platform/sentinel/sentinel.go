package sentinel

import "errors"

// Sentinel errors describe facts about stored resources. Stores return them
// (optionally wrapped) and services translate them into coded domain errors.
//
//   - ErrNotFound: record does not exist
//   - ErrConflict: a uniqueness constraint was hit (e.g. duplicate reference)
//   - ErrInvalidState: stored record cannot take the requested transition
//   - ErrExpired: ephemeral record (draft) outlived its TTL
//   - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")
	ErrUnavailable  = errors.New("unavailable")
)
