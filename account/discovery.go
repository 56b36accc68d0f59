package account

import (
	"cmp"
	"slices"

	"github.com/lightningnetwork/fogwallet/ledger"
)

// DiscoveryState is how far the account's outputs are known to have been
// found.
type DiscoveryState struct {
	// AllTxOutsFoundBlockCount is the number of blocks through which the
	// fog view service has returned all of the account's outputs.
	AllTxOutsFoundBlockCount uint64

	// UnscannedMissedRanges are block ranges the fog view service missed
	// and that have not yet been scanned with the view key. Outputs in
	// them may not have been found.
	UnscannedMissedRanges []ledger.BlockRange
}

// AdvanceAllTxOutsFound raises the found block count to blockCount. It never
// moves the count backwards and returns true if it changed.
func (d *DiscoveryState) AdvanceAllTxOutsFound(blockCount uint64) bool {
	if blockCount <= d.AllTxOutsFoundBlockCount {
		return false
	}
	d.AllTxOutsFoundBlockCount = blockCount

	return true
}

// AddMissedRanges records block ranges that still need to be scanned.
// Ranges already covered by recorded ones are absorbed, so reporting the
// same gap again doesn't grow the set.
func (d *DiscoveryState) AddMissedRanges(ranges ...ledger.BlockRange) {
	d.UnscannedMissedRanges = mergeRanges(
		append(slices.Clone(d.UnscannedMissedRanges), ranges...),
	)
}

// ReplaceMissedRanges replaces the set of unscanned ranges, which is how
// ranges are removed once they have been scanned.
func (d *DiscoveryState) ReplaceMissedRanges(ranges []ledger.BlockRange) {
	d.UnscannedMissedRanges = mergeRanges(slices.Clone(ranges))
}

// mergeRanges sorts ranges and joins the ones that overlap or touch. Empty
// ranges hide no blocks and are dropped.
func mergeRanges(ranges []ledger.BlockRange) []ledger.BlockRange {
	ranges = slices.DeleteFunc(ranges, func(r ledger.BlockRange) bool {
		return r.Len() == 0
	})
	if len(ranges) == 0 {
		return nil
	}

	slices.SortFunc(ranges, func(a, b ledger.BlockRange) int {
		return cmp.Compare(a.Start, b.Start)
	})

	merged := ranges[:1]
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		merged = append(merged, r)
	}

	return merged
}

// MarkScanned removes the scanned block ranges from the unscanned ones. An
// unscanned range only partly covered by a scanned range shrinks to what is
// left of it. It returns true if anything changed.
func (d *DiscoveryState) MarkScanned(scanned ...ledger.BlockRange) bool {
	remaining := d.UnscannedMissedRanges
	for _, s := range scanned {
		remaining = subtractRange(remaining, s)
	}

	if slices.Equal(remaining, d.UnscannedMissedRanges) {
		return false
	}
	d.UnscannedMissedRanges = remaining

	return true
}

// subtractRange returns what is left of ranges once s is removed from each of
// them.
func subtractRange(ranges []ledger.BlockRange,
	s ledger.BlockRange) []ledger.BlockRange {

	var remaining []ledger.BlockRange
	for _, r := range ranges {
		// No overlap.
		if s.End <= r.Start || r.End <= s.Start || s.Len() == 0 {
			remaining = append(remaining, r)
			continue
		}

		if r.Start < s.Start {
			remaining = append(remaining, ledger.BlockRange{
				Start: r.Start, End: s.Start,
			})
		}
		if s.End < r.End {
			remaining = append(remaining, ledger.BlockRange{
				Start: s.End, End: r.End,
			})
		}
	}

	return remaining
}

// FoundBlockCount returns the number of blocks through which all outputs are
// known to have been found: the fog view count, lowered to the start of any
// unscanned range below it.
func (d *DiscoveryState) FoundBlockCount() uint64 {
	found := d.AllTxOutsFoundBlockCount
	for _, r := range d.UnscannedMissedRanges {
		if r.Start < found {
			found = r.Start
		}
	}

	return found
}

// clone returns a deep copy of the state.
func (d *DiscoveryState) clone() DiscoveryState {
	return DiscoveryState{
		AllTxOutsFoundBlockCount: d.AllTxOutsFoundBlockCount,
		UnscannedMissedRanges:    slices.Clone(d.UnscannedMissedRanges),
	}
}
