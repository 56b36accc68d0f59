package ledger

import (
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// BlockMetadata identifies the block an output was received or spent in.
type BlockMetadata struct {
	// Index is the zero based index of the block in the ledger.
	Index uint64

	// Timestamp is the time the block was created at, if the ledger
	// service reported it.
	Timestamp fn.Option[time.Time]
}

// NewBlockMetadata returns the metadata for the block at index without a
// known timestamp.
func NewBlockMetadata(index uint64) BlockMetadata {
	return BlockMetadata{
		Index:     index,
		Timestamp: fn.None[time.Time](),
	}
}

// String returns a human readable representation of the block.
func (b BlockMetadata) String() string {
	return fn.ElimOption(
		b.Timestamp,
		func() string {
			return fmt.Sprintf("block(%d)", b.Index)
		},
		func(ts time.Time) string {
			return fmt.Sprintf("block(%d, %v)", b.Index,
				ts.UTC().Format(time.RFC3339))
		},
	)
}

// BlockRange is a half open range [Start, End) of block indices.
type BlockRange struct {
	Start uint64
	End   uint64
}

// NewBlockRange returns the range [start, end). An error is returned if end
// is below start.
func NewBlockRange(start, end uint64) (BlockRange, error) {
	if end < start {
		return BlockRange{}, fmt.Errorf("%w: [%d, %d)",
			ErrInvalidBlockRange, start, end)
	}

	return BlockRange{Start: start, End: end}, nil
}

// Len returns the number of blocks covered by the range.
func (r BlockRange) Len() uint64 {
	return r.End - r.Start
}

// Contains returns true if the block index falls within the range.
func (r BlockRange) Contains(index uint64) bool {
	return r.Start <= index && index < r.End
}

// String returns the range in interval notation.
func (r BlockRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}
