package sentinel

import "errors"

// Store-level facts. Stores return these (optionally wrapped) and services
// translate them into domain errors.
//   - ErrNotFound: no record matches the lookup key
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrUnavailable: the backing store could not be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
