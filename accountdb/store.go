// Package accountdb persists the state of an account so that it can be
// restored without asking the fog services for everything again.
package accountdb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lightningnetwork/fogwallet/account"
	"github.com/lightningnetwork/fogwallet/keyimage"
	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/lightningnetwork/fogwallet/receipt"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
)

var (
	// txOutBucket houses every output found for the account, keyed by a
	// big endian sequence number so that iteration follows the order the
	// outputs were found in.
	txOutBucket = []byte("txouts")

	// spentStatusBucket maps key images to the last known spent status of
	// the output they belong to.
	spentStatusBucket = []byte("spent-statuses")

	// discoveryBucket houses the discovery state under discoveryStateKey.
	discoveryBucket = []byte("discovery")

	discoveryStateKey = []byte("state")

	// ErrCorruptedStore indicates that the on-disk bucketing structure
	// has altered since the store was initialized, or that a stored record
	// could not be decoded.
	ErrCorruptedStore = errors.New("account store has been corrupted")
)

// Update is everything that changed in an account after one write. It is
// committed in a single transaction.
type Update struct {
	// TxOuts are newly found outputs.
	TxOuts []ledger.KnownTxOut

	// SpentStatuses are the resulting spent statuses of the outputs whose
	// key images were updated.
	SpentStatuses []account.KeyImageUpdate

	// Discovery is the new discovery state, if it changed.
	Discovery fn.Option[account.DiscoveryState]
}

// IsEmpty returns true if committing the update would be a no-op.
func (u *Update) IsEmpty() bool {
	return len(u.TxOuts) == 0 && len(u.SpentStatuses) == 0 &&
		u.Discovery.IsNone()
}

// Merge folds next into u so that committing u applies both updates in
// order. Spent statuses of next override earlier ones for the same key image
// and its discovery state, if any, replaces the one of u.
func (u *Update) Merge(next *Update) {
	u.TxOuts = append(u.TxOuts, next.TxOuts...)
	u.SpentStatuses = append(u.SpentStatuses, next.SpentStatuses...)

	if next.Discovery.IsSome() {
		u.Discovery = next.Discovery
	}
}

// Store persists account state in a kvdb backend.
type Store struct {
	db kvdb.Backend
}

// NewStore returns a store backed by db, creating its buckets if needed.
func NewStore(db kvdb.Backend) (*Store, error) {
	s := &Store{db: db}
	if err := s.initBuckets(); err != nil {
		return nil, err
	}

	return s, nil
}

// initBuckets ensures that the buckets used by the store exist so that we
// can assume their existence afterwards.
func (s *Store) initBuckets() error {
	return kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		for _, bucket := range [][]byte{
			txOutBucket, spentStatusBucket, discoveryBucket,
		} {
			if _, err := tx.CreateTopLevelBucket(bucket); err != nil {
				return err
			}
		}

		return nil
	})
}

// Commit atomically writes an update.
func (s *Store) Commit(u *Update) error {
	if u.IsEmpty() {
		return nil
	}

	log.Tracef("Committing %d txouts and %d spent statuses", len(u.TxOuts),
		len(u.SpentStatuses))

	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		if err := putTxOuts(tx, u.TxOuts); err != nil {
			return err
		}
		if err := putSpentStatuses(tx, u.SpentStatuses); err != nil {
			return err
		}

		return fn.MapOptionZ(u.Discovery,
			func(d account.DiscoveryState) error {
				return putDiscoveryState(tx, &d)
			},
		)
	}, func() {})
}

func putTxOuts(tx kvdb.RwTx, txOuts []ledger.KnownTxOut) error {
	if len(txOuts) == 0 {
		return nil
	}

	bucket := tx.ReadWriteBucket(txOutBucket)
	if bucket == nil {
		return ErrCorruptedStore
	}

	for i := range txOuts {
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}

		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)

		var b bytes.Buffer
		if err := serializeTxOut(&b, &txOuts[i]); err != nil {
			return err
		}
		if err := bucket.Put(key[:], b.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

func putSpentStatuses(tx kvdb.RwTx, updates []account.KeyImageUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	bucket := tx.ReadWriteBucket(spentStatusBucket)
	if bucket == nil {
		return ErrCorruptedStore
	}

	for _, update := range updates {
		var b bytes.Buffer
		if err := serializeSpentStatus(&b, update.Status); err != nil {
			return err
		}

		err := bucket.Put(update.KeyImage[:], b.Bytes())
		if err != nil {
			return err
		}
	}

	return nil
}

func putDiscoveryState(tx kvdb.RwTx, d *account.DiscoveryState) error {
	bucket := tx.ReadWriteBucket(discoveryBucket)
	if bucket == nil {
		return ErrCorruptedStore
	}

	var b bytes.Buffer
	if err := serializeDiscoveryState(&b, d); err != nil {
		return err
	}

	return bucket.Put(discoveryStateKey, b.Bytes())
}

// FetchTxOuts returns all stored outputs in the order they were committed.
func (s *Store) FetchTxOuts() ([]ledger.KnownTxOut, error) {
	var txOuts []ledger.KnownTxOut
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(txOutBucket)
		if bucket == nil {
			return ErrCorruptedStore
		}

		return bucket.ForEach(func(k, v []byte) error {
			txOut, err := deserializeTxOut(bytes.NewReader(v))
			if err != nil {
				return fmt.Errorf("%w: txout %x: %v",
					ErrCorruptedStore, k, err)
			}
			txOuts = append(txOuts, txOut)

			return nil
		})
	}, func() {
		txOuts = nil
	})
	if err != nil {
		return nil, err
	}

	return txOuts, nil
}

// FetchSpentStatuses returns the stored spent status of every key image.
func (s *Store) FetchSpentStatuses() (map[ledger.KeyImage]keyimage.SpentStatus,
	error) {

	var statuses map[ledger.KeyImage]keyimage.SpentStatus
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(spentStatusBucket)
		if bucket == nil {
			return ErrCorruptedStore
		}

		return bucket.ForEach(func(k, v []byte) error {
			keyImage, err := ledger.KeyImageFromBytes(k)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptedStore,
					err)
			}

			status, err := deserializeSpentStatus(
				bytes.NewReader(v),
			)
			if err != nil {
				return fmt.Errorf("%w: spent status of %v: %v",
					ErrCorruptedStore, keyImage, err)
			}
			statuses[keyImage] = status

			return nil
		})
	}, func() {
		statuses = make(map[ledger.KeyImage]keyimage.SpentStatus)
	})
	if err != nil {
		return nil, err
	}

	return statuses, nil
}

// FetchDiscoveryState returns the stored discovery state. An empty state is
// returned if none was committed yet.
func (s *Store) FetchDiscoveryState() (account.DiscoveryState, error) {
	var d account.DiscoveryState
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(discoveryBucket)
		if bucket == nil {
			return ErrCorruptedStore
		}

		v := bucket.Get(discoveryStateKey)
		if v == nil {
			return nil
		}

		var err error
		d, err = deserializeDiscoveryState(bytes.NewReader(v))
		if err != nil {
			return fmt.Errorf("%w: discovery state: %v",
				ErrCorruptedStore, err)
		}

		return nil
	}, func() {
		d = account.DiscoveryState{}
	})

	return d, err
}

// LoadAccount creates an account for key and restores the stored state into
// it.
func (s *Store) LoadAccount(key account.AccountKey,
	verifier receipt.ConfirmationVerifier) (*account.Account, error) {

	acct, err := account.New(key, verifier)
	if err != nil {
		return nil, err
	}

	txOuts, err := s.FetchTxOuts()
	if err != nil {
		return nil, err
	}
	statuses, err := s.FetchSpentStatuses()
	if err != nil {
		return nil, err
	}
	discovery, err := s.FetchDiscoveryState()
	if err != nil {
		return nil, err
	}

	acct.AddTxOuts(txOuts)

	updates := make([]account.KeyImageUpdate, 0, len(statuses))
	for _, txOut := range txOuts {
		status, ok := statuses[txOut.KeyImage]
		if !ok {
			continue
		}
		updates = append(updates, account.KeyImageUpdate{
			KeyImage: txOut.KeyImage,
			Status:   status,
		})
	}

	// Stored statuses were already reconciled, so a conflict means the
	// store doesn't match what was committed.
	if err := acct.UpdateKeyImages(updates); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedStore, err)
	}

	acct.AdvanceAllTxOutsFound(discovery.AllTxOutsFoundBlockCount)
	acct.ReplaceMissedRanges(discovery.UnscannedMissedRanges)

	log.Infof("Restored %v", acct)

	return acct, nil
}
