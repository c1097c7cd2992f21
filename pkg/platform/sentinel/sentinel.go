package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// - ErrNotFound: record or register does not exist in the backend
// - ErrConflict: a uniqueness constraint or duplicate title was observed
// - ErrUnavailable: the backend call failed at transport level or 5xx
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
