package dao

import "errors"

// Common, reusable DAO errors.  Using sentinel variables allows callers to
// reliably detect error conditions via errors.Is/As instead of brittle string
// comparisons.

var (
	// ErrNotFound is returned when the requested entity does not exist in the
	// underlying storage, or exists for a different recipient.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID indicates that the supplied ID/key is empty or otherwise
	// invalid.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned when the caller attempts to persist a nil
	// pointer.
	ErrNilEntity = errors.New("dao: nil entity")

	// ErrDuplicateID is returned by Create when a row for the id (or the full
	// request id) already exists.
	ErrDuplicateID = errors.New("dao: duplicate id")

	// ErrAlreadyResolved is returned by UpdateStatus when the request is no
	// longer pending.
	ErrAlreadyResolved = errors.New("dao: already resolved")

	// ErrExpired is returned by UpdateStatus when the validity window of a
	// pending request has passed.
	ErrExpired = errors.New("dao: expired")
)
