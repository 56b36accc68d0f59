package keyimage

import (
	"fmt"

	"github.com/lightningnetwork/fogwallet/ledger"
)

// Status is the answer to whether an output was spent as of a block count.
type Status uint8

const (
	// StatusUnknown means the recorded knowledge does not cover the
	// queried block count, or the spend happened at or after it.
	StatusUnknown Status = iota

	// StatusUnspent means the output is known not to have been spent
	// within the queried block count.
	StatusUnspent

	// StatusSpent means the output was spent in a block below the queried
	// block count.
	StatusSpent
)

// String returns a human readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusUnspent:
		return "unspent"
	case StatusSpent:
		return "spent"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// SpentStatus is what is known about whether a key image has appeared on the
// ledger. It is either Unspent or Spent.
type SpentStatus interface {
	// Status returns whether the output was spent as of blockCount.
	Status(blockCount uint64) Status

	fmt.Stringer

	isSpentStatus()
}

// Unspent records that the key image was not on the ledger within the first
// KnownUnspentBlockCount blocks.
type Unspent struct {
	KnownUnspentBlockCount uint64
}

// Status returns StatusUnspent if blockCount is covered by the known
// unspent range.
func (u Unspent) Status(blockCount uint64) Status {
	if blockCount <= u.KnownUnspentBlockCount {
		return StatusUnspent
	}

	return StatusUnknown
}

// String returns a human readable representation of the status.
func (u Unspent) String() string {
	return fmt.Sprintf("unspent(through block count %d)",
		u.KnownUnspentBlockCount)
}

func (Unspent) isSpentStatus() {}

// Spent records the block the key image appeared in.
type Spent struct {
	Block ledger.BlockMetadata
}

// Status returns StatusSpent if the spending block is below blockCount. A
// spend at or after blockCount does not make the output unspent as of
// blockCount, it only means the spend cannot be reported yet.
func (s Spent) Status(blockCount uint64) Status {
	if s.Block.Index < blockCount {
		return StatusSpent
	}

	return StatusUnknown
}

// String returns a human readable representation of the status.
func (s Spent) String() string {
	return fmt.Sprintf("spent(%v)", s.Block)
}

func (Spent) isSpentStatus() {}

// Compile-time checks to ensure both cases implement SpentStatus.
var (
	_ SpentStatus = Unspent{}
	_ SpentStatus = Spent{}
)
