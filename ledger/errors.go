package ledger

import "errors"

var (
	// ErrInvalidBlockRange is returned when a block range ends before it
	// starts.
	ErrInvalidBlockRange = errors.New("invalid block range")

	// ErrInvalidKeyLength is returned when a serialized key or key image
	// does not have the expected 32 byte length.
	ErrInvalidKeyLength = errors.New("invalid key length")
)
