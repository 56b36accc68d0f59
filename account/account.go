// Package account reconciles what the fog services and local view key
// scanning report about an account into balances, activity and receipt
// verdicts that are guaranteed to be complete.
package account

import (
	"errors"
	"fmt"
	"slices"

	"github.com/lightningnetwork/fogwallet/fogurl"
	"github.com/lightningnetwork/fogwallet/keyimage"
	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/lightningnetwork/fogwallet/receipt"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrNilVerifier is returned when an account is created without a
// confirmation verifier.
var ErrNilVerifier = errors.New("confirmation verifier required")

// ErrMissingSpentStatus is returned for a key image update that carries no
// spent status.
var ErrMissingSpentStatus = errors.New("key image update without spent " +
	"status")

// Account holds every output found for an account key along with how far
// the ledger has been searched for them.
//
// NOTE: Account does no locking. It must be owned by a single writer, and
// reads must not run concurrently with writes.
type Account struct {
	key      *fogAccountKey
	verifier receipt.ConfirmationVerifier

	trackers  []*TxOutTracker
	discovery DiscoveryState
}

// New creates an empty account for key. Receipt confirmation numbers will be
// checked with verifier. The key must be provisioned with a fog report URL,
// otherwise ErrFogRequired is returned.
func New(key AccountKey, verifier receipt.ConfirmationVerifier) (*Account,
	error) {

	if verifier == nil {
		return nil, ErrNilVerifier
	}

	fogKey, err := newFogAccountKey(key)
	if err != nil {
		return nil, err
	}

	return &Account{
		key:      fogKey,
		verifier: verifier,
	}, nil
}

// PublicAddress returns the public address of the account key.
func (a *Account) PublicAddress() ledger.PublicAddress {
	return a.key.PublicAddress
}

// FogReportURL returns the parsed fog report URL of the account key.
func (a *Account) FogReportURL() *fogurl.URL {
	return a.key.fogReportURL
}

// AddTxOuts starts tracking newly found outputs, all of them with unknown
// spent status. Outputs are not deduplicated: callers must not add an output
// twice.
func (a *Account) AddTxOuts(txOuts []ledger.KnownTxOut) {
	for _, txOut := range txOuts {
		log.Debugf("Tracking %v", txOut)
		a.trackers = append(a.trackers, NewTxOutTracker(txOut))
	}
}

// Trackers returns the trackers of all known outputs in the order they were
// added.
func (a *Account) Trackers() []*TxOutTracker {
	return slices.Clone(a.trackers)
}

// DiscoveryState returns a copy of the discovery state.
func (a *Account) DiscoveryState() DiscoveryState {
	return a.discovery.clone()
}

// AdvanceAllTxOutsFound records that the fog view service has returned all
// outputs within the first blockCount blocks.
func (a *Account) AdvanceAllTxOutsFound(blockCount uint64) {
	if a.discovery.AdvanceAllTxOutsFound(blockCount) {
		log.Tracef("All txouts found through block count %d",
			blockCount)
	}
}

// AddMissedRanges records block ranges that fog missed and that have not
// been scanned locally.
func (a *Account) AddMissedRanges(ranges ...ledger.BlockRange) {
	if len(ranges) == 0 {
		return
	}

	log.Debugf("Adding unscanned missed block ranges %v", ranges)
	a.discovery.AddMissedRanges(ranges...)
}

// ReplaceMissedRanges sets the block ranges that are still unscanned.
func (a *Account) ReplaceMissedRanges(ranges []ledger.BlockRange) {
	log.Debugf("Unscanned missed block ranges now %v", ranges)
	a.discovery.ReplaceMissedRanges(ranges)
}

// MarkRangesScanned records that the given block ranges have been scanned
// with the view key, removing them from the unscanned ranges.
func (a *Account) MarkRangesScanned(ranges ...ledger.BlockRange) {
	if a.discovery.MarkScanned(ranges...) {
		log.Debugf("Scanned %v, unscanned missed block ranges now %v",
			ranges, a.discovery.UnscannedMissedRanges)
	}
}

// KeyImageUpdate is a spent status reported for a key image.
type KeyImageUpdate struct {
	KeyImage ledger.KeyImage
	Status   keyimage.SpentStatus
}

// UpdateKeyImages applies spent statuses to the outputs with the matching
// key images. Updates for unknown key images are ignored. Updates without a
// status (ErrMissingSpentStatus) and conflicting spend reports
// (keyimage.ErrConflictingSpend) are skipped and returned as a joined error
// after all other updates have been applied.
func (a *Account) UpdateKeyImages(updates []KeyImageUpdate) error {
	var errs []error
	for _, update := range updates {
		if update.Status == nil {
			log.Warnf("Ignoring update of key image %v without "+
				"spent status", update.KeyImage)
			errs = append(errs, fmt.Errorf("%w: %v",
				ErrMissingSpentStatus, update.KeyImage))

			continue
		}

		for _, tracker := range a.trackers {
			kiTracker := tracker.KeyImageTracker()
			if kiTracker.KeyImage() != update.KeyImage {
				continue
			}

			if err := kiTracker.Update(update.Status); err != nil {
				log.Warnf("Ignoring spent status %v: %v",
					update.Status, err)
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// KeyImageQuery is a key image whose spent status is still being checked,
// together with the block count through which it is known to be unspent.
type KeyImageQuery struct {
	KeyImage               ledger.KeyImage
	KnownUnspentBlockCount uint64
}

// UnspentKeyImages returns the key images of all outputs not yet known to be
// spent, which are the ones the key image service has to keep checking.
func (a *Account) UnspentKeyImages() []KeyImageQuery {
	var queries []KeyImageQuery
	for _, tracker := range a.trackers {
		unspent, ok := tracker.SpentStatus().(keyimage.Unspent)
		if !ok {
			continue
		}

		queries = append(queries, KeyImageQuery{
			KeyImage:               tracker.KnownTxOut().KeyImage,
			KnownUnspentBlockCount: unspent.KnownUnspentBlockCount,
		})
	}

	return queries
}

// AllTxOutsFoundBlockCount returns the number of blocks through which every
// output of the account has been found, taking unscanned ranges into
// account.
func (a *Account) AllTxOutsFoundBlockCount() uint64 {
	return a.discovery.FoundBlockCount()
}

// KnowableBlockCount returns the number of blocks for which both the set of
// owned outputs and their spent statuses are completely known. Every
// snapshot is bounded by it.
func (a *Account) KnowableBlockCount() uint64 {
	knowable := a.discovery.FoundBlockCount()
	for _, tracker := range a.trackers {
		unspent, ok := tracker.SpentStatus().(keyimage.Unspent)
		if ok {
			knowable = min(knowable, unspent.KnownUnspentBlockCount)
		}
	}

	return knowable
}

// CachedBalance returns the balance as of the knowable block count.
func (a *Account) CachedBalance() ledger.Balance {
	return a.balance(a.KnowableBlockCount())
}

// CachedBalanceAt returns the balance as of blockCount, or None if that is
// past the knowable block count.
func (a *Account) CachedBalanceAt(blockCount uint64) fn.Option[ledger.Balance] {
	if blockCount > a.KnowableBlockCount() {
		return fn.None[ledger.Balance]()
	}

	return fn.Some(a.balance(blockCount))
}

func (a *Account) balance(blockCount uint64) ledger.Balance {
	values := fn.Map(
		a.receivedAndUnspent(blockCount),
		func(t ledger.KnownTxOut) uint64 {
			return t.Value
		},
	)

	return ledger.NewBalance(values, blockCount)
}

// CachedActivity returns the account activity as of the knowable block
// count.
func (a *Account) CachedActivity() ledger.AccountActivity {
	return a.activity(a.KnowableBlockCount())
}

// CachedActivityAt returns the account activity as of blockCount, or None if
// that is past the knowable block count.
func (a *Account) CachedActivityAt(
	blockCount uint64) fn.Option[ledger.AccountActivity] {

	if blockCount > a.KnowableBlockCount() {
		return fn.None[ledger.AccountActivity]()
	}

	return fn.Some(a.activity(blockCount))
}

func (a *Account) activity(blockCount uint64) ledger.AccountActivity {
	var txOuts []ledger.OwnedTxOut
	for _, tracker := range a.trackers {
		tracker.ownedTxOut(blockCount).WhenSome(
			func(o ledger.OwnedTxOut) {
				txOuts = append(txOuts, o)
			},
		)
	}

	return ledger.NewAccountActivity(txOuts, blockCount)
}

// OwnedTxOuts returns the outputs received as of the knowable block count.
func (a *Account) OwnedTxOuts() []ledger.KnownTxOut {
	txOuts, _ := a.OwnedTxOutsAndBlockCount()
	return txOuts
}

// OwnedTxOutsAndBlockCount returns the outputs received as of the knowable
// block count, along with that block count.
func (a *Account) OwnedTxOutsAndBlockCount() ([]ledger.KnownTxOut, uint64) {
	blockCount := a.KnowableBlockCount()
	received := fn.Filter(a.trackers, func(t *TxOutTracker) bool {
		return t.Received(blockCount)
	})

	return fn.Map(received, (*TxOutTracker).KnownTxOut), blockCount
}

// UnspentTxOuts returns the outputs received and not spent as of the
// knowable block count.
func (a *Account) UnspentTxOuts() []ledger.KnownTxOut {
	txOuts, _ := a.UnspentTxOutsAndBlockCount()
	return txOuts
}

// UnspentTxOutsAndBlockCount returns the outputs received and not spent as
// of the knowable block count, along with that block count.
func (a *Account) UnspentTxOutsAndBlockCount() ([]ledger.KnownTxOut,
	uint64) {

	blockCount := a.KnowableBlockCount()
	return a.receivedAndUnspent(blockCount), blockCount
}

// ReceivedAndUnspentTxOutsAt returns the outputs received and not spent as
// of blockCount, or None if that is past the knowable block count.
func (a *Account) ReceivedAndUnspentTxOutsAt(
	blockCount uint64) fn.Option[[]ledger.KnownTxOut] {

	if blockCount > a.KnowableBlockCount() {
		return fn.None[[]ledger.KnownTxOut]()
	}

	return fn.Some(a.receivedAndUnspent(blockCount))
}

func (a *Account) receivedAndUnspent(blockCount uint64) []ledger.KnownTxOut {
	unspent := fn.Filter(a.trackers, func(t *TxOutTracker) bool {
		return t.ReceivedAndUnspent(blockCount)
	})

	return fn.Map(unspent, (*TxOutTracker).KnownTxOut)
}

// CachedReceivedStatus checks whether the payment described by r has been
// received. An owned output with the receipt's public key must match the
// receipt and its confirmation number must validate, otherwise an
// *receipt.InvalidInputError is returned. Without such an output the verdict
// depends on whether the ledger has been searched past the tombstone block.
func (a *Account) CachedReceivedStatus(
	r *receipt.Receipt) fn.Result[receipt.ReceivedStatus] {

	log.Debugf("Checking received status of %v", r)

	txOut, err := a.ownedTxOut(r).Unpack()
	if err != nil {
		return fn.Err[receipt.ReceivedStatus](err)
	}

	return fn.ElimOption(
		txOut,
		func() fn.Result[receipt.ReceivedStatus] {
			found := a.AllTxOutsFoundBlockCount()
			if r.TombstoneBlockIndex <= found {
				return fn.Ok[receipt.ReceivedStatus](
					receipt.TombstoneExceeded{},
				)
			}

			return fn.Ok[receipt.ReceivedStatus](
				receipt.NotReceived{
					KnownNotReceivedBlockCount: found,
				},
			)
		},
		func(t ledger.KnownTxOut) fn.Result[receipt.ReceivedStatus] {
			return fn.Ok[receipt.ReceivedStatus](
				receipt.Received{Block: t.Block},
			)
		},
	)
}

// ownedTxOut returns the owned output described by r after checking that r
// is valid for it, or None if no output with the receipt's public key has
// been found.
func (a *Account) ownedTxOut(
	r *receipt.Receipt) fn.Result[fn.Option[ledger.KnownTxOut]] {

	if n := len(a.trackers); n > 0 {
		log.Tracef("Last received txout: %v",
			a.trackers[n-1].KnownTxOut().PublicKey)
	}

	// Finding the output first proves it belongs to this account, no
	// matter whether it came from fog view or view key scanning.
	var tracker *TxOutTracker
	for _, t := range a.trackers {
		if t.KnownTxOut().PublicKey == r.TxOutPublicKey {
			tracker = t
			break
		}
	}
	if tracker == nil {
		return fn.Ok(fn.None[ledger.KnownTxOut]())
	}
	txOut := tracker.KnownTxOut()

	// The receipt must describe the output as it is on the ledger. The
	// confirmation number and tombstone block are not part of the ledger
	// and are checked separately.
	if !r.MatchesTxOut(txOut) {
		return fn.Err[fn.Option[ledger.KnownTxOut]](
			receipt.NewInvalidInputError(
				receipt.ReasonMismatch,
				"receipt data doesn't match the txout %v "+
					"found in the ledger", txOut.PublicKey,
			),
		)
	}

	// A valid confirmation number proves the sender of the receipt
	// created the output we received.
	if !r.ValidateConfirmationNumber(a.verifier, a.key.ViewPrivateKey) {
		return fn.Err[fn.Option[ledger.KnownTxOut]](
			receipt.NewInvalidInputError(
				receipt.ReasonInvalidConfirmation,
				"confirmation number for txout %v is invalid",
				txOut.PublicKey,
			),
		)
	}

	return fn.Ok(fn.Some(txOut))
}

// String returns a summary of the account state for log lines.
func (a *Account) String() string {
	return fmt.Sprintf("account(txouts=%d, found=%d, knowable=%d)",
		len(a.trackers), a.AllTxOutsFoundBlockCount(),
		a.KnowableBlockCount())
}
