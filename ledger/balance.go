package ledger

import (
	"fmt"
	"math/bits"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Balance is the set of unspent output values of an account as of a block
// count.
type Balance struct {
	// Values holds the value of each unspent output. The same value may
	// appear more than once.
	Values []uint64

	// BlockCount is the number of blocks the balance is valid for.
	BlockCount uint64
}

// NewBalance returns a Balance for the given values as of blockCount.
func NewBalance(values []uint64, blockCount uint64) Balance {
	return Balance{
		Values:     values,
		BlockCount: blockCount,
	}
}

// Amount returns the sum of all values as a 128-bit integer split into its
// high and low words. The sum of many 64-bit values can exceed 64 bits.
func (b Balance) Amount() (uint64, uint64) {
	var hi, lo uint64
	for _, v := range b.Values {
		var carry uint64
		lo, carry = bits.Add64(lo, v, 0)
		hi += carry
	}

	return hi, lo
}

// Total returns the sum of all values, or None if it does not fit into 64
// bits.
func (b Balance) Total() fn.Option[uint64] {
	hi, lo := b.Amount()
	if hi != 0 {
		return fn.None[uint64]()
	}

	return fn.Some(lo)
}

// String returns the balance and the block count it is valid as of.
func (b Balance) String() string {
	hi, lo := b.Amount()
	if hi == 0 {
		return fmt.Sprintf("%d (%d outputs) as of block count %d", lo,
			len(b.Values), b.BlockCount)
	}

	return fmt.Sprintf("%d*2^64+%d (%d outputs) as of block count %d",
		hi, lo, len(b.Values), b.BlockCount)
}

// AccountActivity is the list of outputs owned by an account as of a block
// count, along with the blocks they were received and spent in.
type AccountActivity struct {
	// TxOuts is ordered the same way the outputs were added to the
	// account.
	TxOuts []OwnedTxOut

	// BlockCount is the number of blocks the activity is valid for.
	BlockCount uint64
}

// NewAccountActivity returns an AccountActivity for txOuts as of blockCount.
func NewAccountActivity(txOuts []OwnedTxOut,
	blockCount uint64) AccountActivity {

	return AccountActivity{
		TxOuts:     txOuts,
		BlockCount: blockCount,
	}
}

// Spent returns the outputs that were spent as of the activity's block
// count.
func (a AccountActivity) Spent() []OwnedTxOut {
	return fn.Filter(a.TxOuts, OwnedTxOut.IsSpent)
}

// Unspent returns the outputs that were unspent as of the activity's block
// count.
func (a AccountActivity) Unspent() []OwnedTxOut {
	return fn.Filter(a.TxOuts, func(o OwnedTxOut) bool {
		return !o.IsSpent()
	})
}
