package receipt

import (
	"fmt"

	"github.com/lightningnetwork/fogwallet/ledger"
)

// ReceivedStatus is the verdict on a receipt: Received, NotReceived or
// TombstoneExceeded.
type ReceivedStatus interface {
	fmt.Stringer

	isReceivedStatus()
}

// Received means the output was found, the receipt matches it and its
// confirmation number is valid.
type Received struct {
	Block ledger.BlockMetadata
}

// String returns a human readable representation of the status.
func (r Received) String() string {
	return fmt.Sprintf("received(%v)", r.Block)
}

func (Received) isReceivedStatus() {}

// NotReceived means the output was not found within the first
// KnownNotReceivedBlockCount blocks, but the payment may still arrive.
type NotReceived struct {
	KnownNotReceivedBlockCount uint64
}

// String returns a human readable representation of the status.
func (n NotReceived) String() string {
	return fmt.Sprintf("not received(through block count %d)",
		n.KnownNotReceivedBlockCount)
}

func (NotReceived) isReceivedStatus() {}

// TombstoneExceeded means the ledger is known past the receipt's tombstone
// block without the output appearing. The payment will never arrive.
type TombstoneExceeded struct{}

// String returns a human readable representation of the status.
func (TombstoneExceeded) String() string {
	return "tombstone exceeded"
}

func (TombstoneExceeded) isReceivedStatus() {}

// Compile-time checks to ensure every verdict implements ReceivedStatus.
var (
	_ ReceivedStatus = Received{}
	_ ReceivedStatus = NotReceived{}
	_ ReceivedStatus = TombstoneExceeded{}
)
