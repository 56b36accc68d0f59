// Package acctsync serializes the updates arriving from fog and from local
// scanning into a single account, persisting each one and notifying
// subscribers about the resulting state.
package acctsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/fogwallet/account"
	"github.com/lightningnetwork/fogwallet/accountdb"
	"github.com/lightningnetwork/fogwallet/keyimage"
	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/lightningnetwork/fogwallet/lnutils"
	"github.com/lightningnetwork/fogwallet/receipt"
	"github.com/lightningnetwork/fogwallet/subscribe"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSessionShuttingDown is returned for writes submitted while the
	// session is stopping.
	ErrSessionShuttingDown = errors.New("account session shutting down")

	// ErrNoAccount is returned when a session is created without an
	// account.
	ErrNoAccount = errors.New("account required")
)

// Write kinds used as metric labels and in log lines.
const (
	writeFogView      = "fog_view"
	writeKeyImages    = "key_images"
	writeScanResult   = "scan_result"
	writeMissedRanges = "missed_ranges"
)

// Store persists the changes made by each write.
type Store interface {
	// Commit atomically writes an update.
	Commit(u *accountdb.Update) error
}

// Config holds the dependencies of a Session.
type Config struct {
	// Account is the account the session owns. It must not be used
	// directly once the session has been created.
	Account *account.Account

	// Store persists every applied write. If nil the account is only kept
	// in memory.
	Store Store

	// Clock timestamps snapshot updates. Defaults to the system clock.
	Clock clock.Clock

	// QueueSize is the number of snapshot updates buffered per
	// subscriber before its queue grows.
	QueueSize int

	// SnapshotTicker, if set, makes the session republish its current
	// snapshot on every tick even when nothing was written, so that
	// subscribers see a fresh timestamp and the gauges are refreshed.
	SnapshotTicker ticker.Ticker
}

// FogViewUpdate is the result of one fog view search.
type FogViewUpdate struct {
	// TxOuts are the outputs fog returned. Outputs already tracked are
	// ignored.
	TxOuts []ledger.KnownTxOut

	// MissedRanges are block ranges fog reported it could not search.
	MissedRanges []ledger.BlockRange

	// AllTxOutsFoundBlockCount is the number of blocks through which fog
	// has returned all of the account's outputs.
	AllTxOutsFoundBlockCount uint64
}

// ScanResult is the result of scanning missed block ranges with the view key.
type ScanResult struct {
	// TxOuts are the outputs found while scanning. Outputs already
	// tracked are ignored.
	TxOuts []ledger.KnownTxOut

	// ScannedRanges are the block ranges that were completely scanned.
	ScannedRanges []ledger.BlockRange
}

// SnapshotUpdate describes the account after a write was applied.
type SnapshotUpdate struct {
	// KnowableBlockCount is the number of blocks the balance is complete
	// for.
	KnowableBlockCount uint64

	// AllTxOutsFoundBlockCount is the found block count after missed range
	// reduction.
	AllTxOutsFoundBlockCount uint64

	// Balance is the balance as of KnowableBlockCount.
	Balance ledger.Balance

	// NumTxOuts is the number of tracked outputs.
	NumTxOuts int

	// NumUnscannedRanges is the number of missed ranges still to scan.
	NumUnscannedRanges int

	// Timestamp is when the write was applied.
	Timestamp time.Time
}

// applyFunc mutates the account and returns what has to be persisted.
type applyFunc func(acct *account.Account) *accountdb.Update

// writeRequest is a write waiting for the write handler.
type writeRequest struct {
	kind    string
	apply   applyFunc
	errChan chan error
}

// Session owns an account. Writes are applied one at a time by a single
// goroutine while reads may run concurrently with each other.
type Session struct {
	started atomic.Bool
	stopped atomic.Bool

	cfg *Config

	// mu guards acct. Writes take the write lock, reads the read lock.
	mu   sync.RWMutex
	acct *account.Account

	// pending holds the writes applied to acct that the store hasn't
	// accepted yet. They are committed together with the next write so
	// that the store never holds a later write without the earlier ones.
	// Only the write handler touches it.
	pending accountdb.Update

	writes   chan *writeRequest
	notifier *subscribe.Server[SnapshotUpdate]

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewSession creates a session for the account in cfg.
func NewSession(cfg *Config) (*Session, error) {
	if cfg.Account == nil {
		return nil, ErrNoAccount
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	initPrometheusMetrics()

	return &Session{
		cfg:      cfg,
		acct:     cfg.Account,
		writes:   make(chan *writeRequest),
		notifier: subscribe.NewServer[SnapshotUpdate](cfg.QueueSize),
		quit:     make(chan struct{}),
	}, nil
}

// Start starts the write handler and the notification server.
func (s *Session) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	log.Infof("Starting session for %v", s.acct)

	if err := s.notifier.Start(); err != nil {
		return err
	}

	s.mu.RLock()
	s.updateMetrics(s.snapshot())
	s.mu.RUnlock()

	s.wg.Add(1)
	go s.writeHandler()

	return nil
}

// Stop stops the session. Writes still waiting to be applied fail with
// ErrSessionShuttingDown.
func (s *Session) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	log.Info("Stopping session")

	close(s.quit)
	s.wg.Wait()

	return s.notifier.Stop()
}

// Subscribe returns a client that receives a SnapshotUpdate after every
// applied write.
func (s *Session) Subscribe() (*subscribe.Client[SnapshotUpdate], error) {
	return s.notifier.Subscribe()
}

// ApplyFogView applies the result of a fog view search.
func (s *Session) ApplyFogView(ctx context.Context, update FogViewUpdate) error {
	log.DebugS(ctx, "Applying fog view update",
		"num_txouts", len(update.TxOuts),
		"num_missed_ranges", len(update.MissedRanges),
		"found_block_count", update.AllTxOutsFoundBlockCount)

	return s.submit(ctx, writeFogView,
		func(acct *account.Account) *accountdb.Update {
			txOuts := newTxOuts(ctx, acct, update.TxOuts)
			acct.AddTxOuts(txOuts)
			acct.AddMissedRanges(update.MissedRanges...)
			acct.AdvanceAllTxOutsFound(
				update.AllTxOutsFoundBlockCount,
			)

			return &accountdb.Update{
				TxOuts:    txOuts,
				Discovery: fn.Some(acct.DiscoveryState()),
			}
		},
	)
}

// ApplyKeyImageStatuses applies spent statuses reported by the key image
// service. Reports conflicting with an already recorded spend are logged and
// otherwise ignored.
func (s *Session) ApplyKeyImageStatuses(ctx context.Context,
	updates []account.KeyImageUpdate) error {

	log.DebugS(ctx, "Applying key image statuses",
		"num_updates", len(updates))
	log.Tracef("Key image statuses: %v", lnutils.NewLogClosure(
		func() string {
			statuses := fn.Map(updates,
				func(u account.KeyImageUpdate) string {
					return fmt.Sprintf("%v=%v", u.KeyImage,
						u.Status)
				},
			)

			return strings.Join(statuses, ", ")
		},
	))

	return s.submit(ctx, writeKeyImages,
		func(acct *account.Account) *accountdb.Update {
			err := acct.UpdateKeyImages(updates)
			if err != nil {
				conflicts, invalid := countRejected(err)
				prometheusConflictingSpends.Add(
					float64(conflicts),
				)

				log.Warnf("Ignored %d conflicting spend "+
					"reports and %d invalid updates: %v",
					conflicts, invalid, err)
			}

			return &accountdb.Update{
				SpentStatuses: resultingStatuses(acct, updates),
			}
		},
	)
}

// ApplyScanResult applies the result of scanning missed block ranges.
func (s *Session) ApplyScanResult(ctx context.Context, result ScanResult) error {
	log.DebugS(ctx, "Applying scan result",
		"num_txouts", len(result.TxOuts),
		"num_scanned_ranges", len(result.ScannedRanges))

	return s.submit(ctx, writeScanResult,
		func(acct *account.Account) *accountdb.Update {
			txOuts := newTxOuts(ctx, acct, result.TxOuts)
			acct.AddTxOuts(txOuts)
			acct.MarkRangesScanned(result.ScannedRanges...)

			return &accountdb.Update{
				TxOuts:    txOuts,
				Discovery: fn.Some(acct.DiscoveryState()),
			}
		},
	)
}

// ReplaceMissedRanges sets the block ranges that are still unscanned.
func (s *Session) ReplaceMissedRanges(ctx context.Context,
	ranges []ledger.BlockRange) error {

	return s.submit(ctx, writeMissedRanges,
		func(acct *account.Account) *accountdb.Update {
			acct.ReplaceMissedRanges(ranges)

			return &accountdb.Update{
				Discovery: fn.Some(acct.DiscoveryState()),
			}
		},
	)
}

// ApplyAll submits writes concurrently and waits for all of them. The writes
// are still applied one at a time, in no particular order. The first error
// cancels the context passed to the remaining writes.
func (s *Session) ApplyAll(ctx context.Context,
	writes ...func(context.Context) error) error {

	g, gCtx := errgroup.WithContext(ctx)
	for _, write := range writes {
		g.Go(func() error {
			return write(gCtx)
		})
	}

	return g.Wait()
}

// submit hands a write to the write handler and waits for it to be applied.
// If ctx is cancelled after the write was handed over, it may still be
// applied.
func (s *Session) submit(ctx context.Context, kind string,
	apply applyFunc) error {

	req := &writeRequest{
		kind:    kind,
		apply:   apply,
		errChan: make(chan error, 1),
	}

	select {
	case s.writes <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrSessionShuttingDown
	}

	select {
	case err := <-req.errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrSessionShuttingDown
	}
}

// writeHandler applies writes one at a time.
//
// NOTE: MUST be run as a goroutine.
func (s *Session) writeHandler() {
	defer s.wg.Done()

	var ticks <-chan time.Time
	if s.cfg.SnapshotTicker != nil {
		s.cfg.SnapshotTicker.Resume()
		defer s.cfg.SnapshotTicker.Stop()

		ticks = s.cfg.SnapshotTicker.Ticks()
	}

	for {
		select {
		case req := <-s.writes:
			req.errChan <- s.applyWrite(req)

		case <-ticks:
			s.publishSnapshot()

		case <-s.quit:
			return
		}
	}
}

// publishSnapshot sends the current snapshot to subscribers without
// applying a write.
func (s *Session) publishSnapshot() {
	s.mu.RLock()
	snapshot := s.snapshot()
	s.mu.RUnlock()

	s.updateMetrics(snapshot)

	if err := s.notifier.SendUpdate(snapshot); err != nil {
		log.Debugf("Periodic snapshot not sent: %v", err)
	}
}

// applyWrite applies and persists a single write, then notifies subscribers.
func (s *Session) applyWrite(req *writeRequest) error {
	timer := prometheus.NewTimer(prometheusWriteDuration)
	defer timer.ObserveDuration()

	s.mu.Lock()
	update := req.apply(s.acct)

	var err error
	if s.cfg.Store != nil {
		s.pending.Merge(update)

		commitErr := s.cfg.Store.Commit(&s.pending)
		if commitErr != nil {
			err = fmt.Errorf("unable to persist %s write: %w",
				req.kind, commitErr)
		} else {
			s.pending = accountdb.Update{}
		}
	}

	snapshot := s.snapshot()
	s.mu.Unlock()

	prometheusWrites.WithLabelValues(req.kind).Inc()
	s.updateMetrics(snapshot)

	log.Tracef("Applied %s write: %v", req.kind,
		lnutils.SpewLogClosure(update))

	if err != nil {
		log.Errorf("Account state not persisted, retrying %d txouts "+
			"and %d spent statuses with the next write: %v",
			len(s.pending.TxOuts), len(s.pending.SpentStatuses), err)
	}

	if sendErr := s.notifier.SendUpdate(snapshot); sendErr != nil {
		log.Debugf("Snapshot update not sent: %v", sendErr)
	}

	return err
}

// snapshot describes the current account state.
//
// NOTE: mu must be held.
func (s *Session) snapshot() SnapshotUpdate {
	discovery := s.acct.DiscoveryState()

	return SnapshotUpdate{
		KnowableBlockCount:       s.acct.KnowableBlockCount(),
		AllTxOutsFoundBlockCount: s.acct.AllTxOutsFoundBlockCount(),
		Balance:                  s.acct.CachedBalance(),
		NumTxOuts:                len(s.acct.Trackers()),
		NumUnscannedRanges:       len(discovery.UnscannedMissedRanges),
		Timestamp:                s.cfg.Clock.Now(),
	}
}

func (s *Session) updateMetrics(snapshot SnapshotUpdate) {
	prometheusKnowableBlockCount.Set(float64(snapshot.KnowableBlockCount))
	prometheusFoundBlockCount.Set(
		float64(snapshot.AllTxOutsFoundBlockCount),
	)
	prometheusTrackedTxOuts.Set(float64(snapshot.NumTxOuts))
	prometheusUnscannedRanges.Set(float64(snapshot.NumUnscannedRanges))
}

// newTxOuts returns the outputs of txOuts that acct doesn't track yet, each
// one only once.
func newTxOuts(ctx context.Context, acct *account.Account,
	txOuts []ledger.KnownTxOut) []ledger.KnownTxOut {

	seen := make(map[ledger.PublicKey]struct{})
	for _, tracker := range acct.Trackers() {
		seen[tracker.KnownTxOut().PublicKey] = struct{}{}
	}

	var fresh []ledger.KnownTxOut
	for _, txOut := range txOuts {
		if _, ok := seen[txOut.PublicKey]; ok {
			log.TraceS(ctx, "Skipping known txout",
				lnutils.LogKey("pubkey", txOut.PublicKey))
			continue
		}
		seen[txOut.PublicKey] = struct{}{}
		fresh = append(fresh, txOut)
	}

	return fresh
}

// countRejected splits the error returned by Account.UpdateKeyImages into
// conflicting spend reports and otherwise invalid updates.
func countRejected(err error) (int, int) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	var conflicts, invalid int
	for _, e := range errs {
		if errors.Is(e, keyimage.ErrConflictingSpend) {
			conflicts++
		} else {
			invalid++
		}
	}

	return conflicts, invalid
}

// resultingStatuses returns the spent status each updated key image ended up
// with, which may differ from the reported one.
func resultingStatuses(acct *account.Account,
	updates []account.KeyImageUpdate) []account.KeyImageUpdate {

	updated := make(map[ledger.KeyImage]struct{}, len(updates))
	for _, update := range updates {
		updated[update.KeyImage] = struct{}{}
	}

	var statuses []account.KeyImageUpdate
	for _, tracker := range acct.Trackers() {
		keyImage := tracker.KnownTxOut().KeyImage
		if _, ok := updated[keyImage]; !ok {
			continue
		}

		statuses = append(statuses, account.KeyImageUpdate{
			KeyImage: keyImage,
			Status:   tracker.SpentStatus(),
		})
	}

	return statuses
}

// KnowableBlockCount returns the number of blocks for which the account
// state is complete.
func (s *Session) KnowableBlockCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.KnowableBlockCount()
}

// Snapshot returns the current account state.
func (s *Session) Snapshot() SnapshotUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot()
}

// Balance returns the balance as of the knowable block count.
func (s *Session) Balance() ledger.Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.CachedBalance()
}

// BalanceAt returns the balance as of blockCount, or None if that is past
// the knowable block count.
func (s *Session) BalanceAt(blockCount uint64) fn.Option[ledger.Balance] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.CachedBalanceAt(blockCount)
}

// Activity returns the account activity as of the knowable block count.
func (s *Session) Activity() ledger.AccountActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.CachedActivity()
}

// ActivityAt returns the account activity as of blockCount, or None if that
// is past the knowable block count.
func (s *Session) ActivityAt(
	blockCount uint64) fn.Option[ledger.AccountActivity] {

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.CachedActivityAt(blockCount)
}

// ReceivedStatus checks whether the payment described by r was received.
func (s *Session) ReceivedStatus(
	r *receipt.Receipt) fn.Result[receipt.ReceivedStatus] {

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.CachedReceivedStatus(r)
}

// UnspentTxOuts returns the outputs received and not spent as of the
// knowable block count, along with that block count.
func (s *Session) UnspentTxOuts() ([]ledger.KnownTxOut, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.UnspentTxOutsAndBlockCount()
}

// OwnedTxOuts returns the outputs received as of the knowable block count,
// along with that block count.
func (s *Session) OwnedTxOuts() ([]ledger.KnownTxOut, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.OwnedTxOutsAndBlockCount()
}

// UnspentKeyImages returns the key images the key image service still has
// to check.
func (s *Session) UnspentKeyImages() []account.KeyImageQuery {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acct.UnspentKeyImages()
}

// SpentStatus returns the spent status of the output with keyImage, or None
// if no such output is tracked.
func (s *Session) SpentStatus(
	keyImage ledger.KeyImage) fn.Option[keyimage.SpentStatus] {

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tracker := range s.acct.Trackers() {
		if tracker.KnownTxOut().KeyImage == keyImage {
			return fn.Some(tracker.SpentStatus())
		}
	}

	return fn.None[keyimage.SpentStatus]()
}
