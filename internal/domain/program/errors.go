package program

import "errors"

// ErrNotFound indicates a referenced patient, clinic, or examination does
// not exist. Lookup paths surface it instead of swallowing the miss, since a
// dangling reference points at an upstream data-integrity problem.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or state conflict reported by the store.
var ErrConflict = errors.New("conflict")
