// Package keyimage tracks the spent status of a single owned output through
// its key image.
package keyimage

import (
	"errors"
	"fmt"

	"github.com/lightningnetwork/fogwallet/ledger"
)

// ErrConflictingSpend is returned when a key image is reported spent in a
// different block than the one already recorded.
var ErrConflictingSpend = errors.New("conflicting spend block for key image")

// SpentTracker records what is known about the spent status of one key
// image. A fresh tracker knows nothing: Unspent through block count 0.
//
// NOTE: SpentTracker is not safe for concurrent use.
type SpentTracker struct {
	keyImage ledger.KeyImage
	status   SpentStatus
}

// NewSpentTracker returns a tracker for keyImage in state Unspent(0).
func NewSpentTracker(keyImage ledger.KeyImage) *SpentTracker {
	return &SpentTracker{
		keyImage: keyImage,
		status:   Unspent{},
	}
}

// KeyImage returns the key image being tracked.
func (t *SpentTracker) KeyImage() ledger.KeyImage {
	return t.keyImage
}

// SpentStatus returns the current status.
func (t *SpentTracker) SpentStatus() SpentStatus {
	return t.status
}

// IsSpent returns true once the key image has been seen on the ledger.
func (t *SpentTracker) IsSpent() bool {
	_, ok := t.status.(Spent)
	return ok
}

// UpdateUnspent advances the known unspent block count to blockCount. The
// known count never moves backwards, and the update is ignored once the key
// image is spent.
func (t *SpentTracker) UpdateUnspent(blockCount uint64) {
	unspent, ok := t.status.(Unspent)
	if !ok {
		return
	}

	if blockCount > unspent.KnownUnspentBlockCount {
		t.status = Unspent{KnownUnspentBlockCount: blockCount}
	}
}

// MarkSpent records that the key image appeared in block. Marking the same
// block twice is a no-op. ErrConflictingSpend is returned, and the recorded
// spend kept, if a spend in another block was already recorded.
func (t *SpentTracker) MarkSpent(block ledger.BlockMetadata) error {
	if spent, ok := t.status.(Spent); ok {
		if spent.Block.Index != block.Index {
			return fmt.Errorf("%w %v: recorded %v, got %v",
				ErrConflictingSpend, t.keyImage, spent.Block,
				block)
		}

		// Keep a timestamp learned from either report.
		if spent.Block.Timestamp.IsNone() {
			t.status = Spent{Block: block}
		}

		return nil
	}

	t.status = Spent{Block: block}

	return nil
}

// Update applies a status reported by the key image service.
func (t *SpentTracker) Update(status SpentStatus) error {
	switch s := status.(type) {
	case Unspent:
		t.UpdateUnspent(s.KnownUnspentBlockCount)
		return nil

	case Spent:
		return t.MarkSpent(s.Block)

	default:
		return fmt.Errorf("unknown spent status %T", status)
	}
}

// Status returns whether the output was spent as of blockCount.
func (t *SpentTracker) Status(blockCount uint64) Status {
	return t.status.Status(blockCount)
}
