package bplus

import "github.com/cockroachdb/errors"

var (
	// ErrDuplicateKey is returned by InsertRecord when the key is already
	// indexed. Nothing was modified.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidKeyLength means a key does not have the width of the index key.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrInvalidRecordLength means a payload does not have the record width.
	ErrInvalidRecordLength = errors.New("invalid record length")

	// ErrEntryNotFound is returned when a Rid or key cannot be resolved.
	// Rids go stale after splits; re-resolve through LowerBound.
	ErrEntryNotFound = errors.New("index entry not found")

	// ErrBadIndexFile is returned when page 0 is not an index header.
	ErrBadIndexFile = errors.New("not an index file")
)
