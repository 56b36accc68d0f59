package account

import (
	"github.com/lightningnetwork/fogwallet/keyimage"
	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// TxOutTracker pairs an owned output with what is known about its spent
// status.
type TxOutTracker struct {
	knownTxOut ledger.KnownTxOut

	keyImageTracker *keyimage.SpentTracker
}

// NewTxOutTracker returns a tracker for txOut that knows nothing about its
// spent status yet.
func NewTxOutTracker(txOut ledger.KnownTxOut) *TxOutTracker {
	return &TxOutTracker{
		knownTxOut:      txOut,
		keyImageTracker: keyimage.NewSpentTracker(txOut.KeyImage),
	}
}

// KnownTxOut returns the tracked output.
func (t *TxOutTracker) KnownTxOut() ledger.KnownTxOut {
	return t.knownTxOut
}

// KeyImageTracker returns the spent tracker of the output's key image.
func (t *TxOutTracker) KeyImageTracker() *keyimage.SpentTracker {
	return t.keyImageTracker
}

// SpentStatus returns what is currently known about the output's spent
// status.
func (t *TxOutTracker) SpentStatus() keyimage.SpentStatus {
	return t.keyImageTracker.SpentStatus()
}

// IsSpent returns true once the output is known to be spent.
func (t *TxOutTracker) IsSpent() bool {
	return t.keyImageTracker.IsSpent()
}

// Received returns true if the output was received in one of the first
// blockCount blocks.
func (t *TxOutTracker) Received(blockCount uint64) bool {
	return t.knownTxOut.Block.Index < blockCount
}

// Spent returns true if the output was spent in one of the first blockCount
// blocks.
func (t *TxOutTracker) Spent(blockCount uint64) bool {
	return t.keyImageTracker.Status(blockCount) == keyimage.StatusSpent
}

// ReceivedAndUnspent returns true if the output counts towards the balance
// as of blockCount.
func (t *TxOutTracker) ReceivedAndUnspent(blockCount uint64) bool {
	return t.Received(blockCount) && !t.Spent(blockCount)
}

// NetValue returns the value the output contributes to the balance as of
// blockCount.
func (t *TxOutTracker) NetValue(blockCount uint64) uint64 {
	if t.ReceivedAndUnspent(blockCount) {
		return t.knownTxOut.Value
	}

	return 0
}

// ownedTxOut returns the output as seen at blockCount, or None if it had not
// been received yet.
func (t *TxOutTracker) ownedTxOut(blockCount uint64) fn.Option[ledger.OwnedTxOut] {
	if !t.Received(blockCount) {
		return fn.None[ledger.OwnedTxOut]()
	}

	spentBlock := fn.None[ledger.BlockMetadata]()
	spent, ok := t.SpentStatus().(keyimage.Spent)
	if ok && spent.Block.Index < blockCount {
		spentBlock = fn.Some(spent.Block)
	}

	return fn.Some(ledger.OwnedTxOut{
		KnownTxOut:    t.knownTxOut,
		ReceivedBlock: t.knownTxOut.Block,
		SpentBlock:    spentBlock,
	})
}
