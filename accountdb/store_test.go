package accountdb

import (
	"bytes"
	"testing"
	"time"

	"github.com/lightningnetwork/fogwallet/account"
	"github.com/lightningnetwork/fogwallet/keyimage"
	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/lightningnetwork/fogwallet/receipt"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/stretchr/testify/require"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyConfirmation([32]byte, ledger.PublicKey,
	receipt.ConfirmationNumber) bool {

	return true
}

var testKey = account.AccountKey{
	ViewPrivateKey: [32]byte{1},
	FogReportURL:   "fog://fog.example.com",
	PublicAddress: ledger.PublicAddress{
		FogReportURL: "fog://fog.example.com",
	},
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, cleanup, err := kvdb.GetTestBackend(t.TempDir(), "accountdb")
	require.NoError(t, err)
	t.Cleanup(cleanup)

	store, err := NewStore(db)
	require.NoError(t, err)

	return store
}

func testTxOut(id byte, value, blockIndex uint64) ledger.KnownTxOut {
	return ledger.KnownTxOut{
		PublicKey:   ledger.PublicKey{id, 1},
		Commitment:  ledger.Commitment{id, 2},
		MaskedValue: value + 1,
		Value:       value,
		KeyImage:    ledger.KeyImage{id, 3},
		Block:       ledger.NewBlockMetadata(blockIndex),
	}
}

// TestCodecs checks that every record kind decodes to what was encoded.
func TestCodecs(t *testing.T) {
	t.Parallel()

	stamp := time.Unix(0, 1_700_000_000_000_000_000)

	txOuts := []ledger.KnownTxOut{testTxOut(1, 10, 5), testTxOut(2, 20, 6)}
	txOuts[1].Block.Timestamp = fn.Some(stamp)
	for _, txOut := range txOuts {
		var b bytes.Buffer
		require.NoError(t, serializeTxOut(&b, &txOut))

		decoded, err := deserializeTxOut(&b)
		require.NoError(t, err)
		require.Equal(t, txOut, decoded)
	}

	statuses := []keyimage.SpentStatus{
		keyimage.Unspent{KnownUnspentBlockCount: 42},
		keyimage.Spent{Block: ledger.NewBlockMetadata(7)},
		keyimage.Spent{Block: ledger.BlockMetadata{
			Index: 8, Timestamp: fn.Some(stamp),
		}},
	}
	for _, status := range statuses {
		var b bytes.Buffer
		require.NoError(t, serializeSpentStatus(&b, status))

		decoded, err := deserializeSpentStatus(&b)
		require.NoError(t, err)
		require.Equal(t, status, decoded)
	}

	discovery := account.DiscoveryState{
		AllTxOutsFoundBlockCount: 99,
		UnscannedMissedRanges: []ledger.BlockRange{
			{Start: 1, End: 4}, {Start: 50, End: 60},
		},
	}
	var b bytes.Buffer
	require.NoError(t, serializeDiscoveryState(&b, &discovery))
	decoded, err := deserializeDiscoveryState(&b)
	require.NoError(t, err)
	require.Equal(t, discovery, decoded)
}

// TestStoreRoundTrip checks that a restored account has the same knowable
// block count, balance and activity as the one that was persisted.
func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	// An empty store restores an empty account.
	empty, err := store.LoadAccount(testKey, acceptAllVerifier{})
	require.NoError(t, err)
	require.Empty(t, empty.Trackers())
	require.Zero(t, empty.KnowableBlockCount())

	acct, err := account.New(testKey, acceptAllVerifier{})
	require.NoError(t, err)

	a, b, c := testTxOut(1, 100, 3), testTxOut(2, 200, 9),
		testTxOut(3, 300, 12)
	statuses := []account.KeyImageUpdate{
		{
			KeyImage: a.KeyImage,
			Status:   keyimage.Spent{Block: ledger.NewBlockMetadata(10)},
		},
		{
			KeyImage: b.KeyImage,
			Status:   keyimage.Unspent{KnownUnspentBlockCount: 30},
		},
	}

	acct.AddTxOuts([]ledger.KnownTxOut{a, b, c})
	acct.AdvanceAllTxOutsFound(25)
	acct.AddMissedRanges(ledger.BlockRange{Start: 20, End: 22})
	require.NoError(t, acct.UpdateKeyImages(statuses))

	// Commit in two steps to check that later outputs are appended.
	err = store.Commit(&Update{TxOuts: []ledger.KnownTxOut{a, b}})
	require.NoError(t, err)
	err = store.Commit(&Update{
		TxOuts:        []ledger.KnownTxOut{c},
		SpentStatuses: statuses,
		Discovery:     fn.Some(acct.DiscoveryState()),
	})
	require.NoError(t, err)

	// Empty updates are allowed.
	require.NoError(t, store.Commit(&Update{}))

	restored, err := store.LoadAccount(testKey, acceptAllVerifier{})
	require.NoError(t, err)

	require.Equal(t, acct.OwnedTxOuts(), restored.OwnedTxOuts())
	require.Equal(t, acct.DiscoveryState(), restored.DiscoveryState())
	require.Equal(t, acct.KnowableBlockCount(),
		restored.KnowableBlockCount())
	require.Equal(t, acct.CachedBalance(), restored.CachedBalance())
	require.Equal(t, acct.CachedActivity(), restored.CachedActivity())

	// c has no stored status so its count is zero, which bounds the
	// whole account.
	require.Zero(t, restored.KnowableBlockCount())

	// Overwriting a status replaces the old one.
	cUnspent := account.KeyImageUpdate{
		KeyImage: c.KeyImage,
		Status:   keyimage.Unspent{KnownUnspentBlockCount: 18},
	}
	err = store.Commit(&Update{
		SpentStatuses: []account.KeyImageUpdate{cUnspent},
	})
	require.NoError(t, err)

	restored, err = store.LoadAccount(testKey, acceptAllVerifier{})
	require.NoError(t, err)
	require.Equal(t, uint64(18), restored.KnowableBlockCount())
	require.Equal(t, ledger.NewBalance([]uint64{200, 300}, 18),
		restored.CachedBalance())
}

// TestUpdateMerge checks that committing merged updates restores the same
// account as committing them one by one.
func TestUpdateMerge(t *testing.T) {
	t.Parallel()

	a, b := testTxOut(1, 100, 3), testTxOut(2, 200, 9)
	first := &Update{
		TxOuts: []ledger.KnownTxOut{a},
		SpentStatuses: []account.KeyImageUpdate{{
			KeyImage: a.KeyImage,
			Status:   keyimage.Unspent{KnownUnspentBlockCount: 5},
		}},
		Discovery: fn.Some(account.DiscoveryState{
			AllTxOutsFoundBlockCount: 10,
		}),
	}
	second := &Update{
		TxOuts: []ledger.KnownTxOut{b},
		SpentStatuses: []account.KeyImageUpdate{
			{
				KeyImage: a.KeyImage,
				Status: keyimage.Unspent{
					KnownUnspentBlockCount: 12,
				},
			},
			{
				KeyImage: b.KeyImage,
				Status: keyimage.Unspent{
					KnownUnspentBlockCount: 12,
				},
			},
		},
	}
	third := &Update{
		Discovery: fn.Some(account.DiscoveryState{
			AllTxOutsFoundBlockCount: 12,
		}),
	}

	var merged Update
	require.True(t, merged.IsEmpty())
	for _, u := range []*Update{first, second, third} {
		merged.Merge(u)
	}
	require.Len(t, merged.TxOuts, 2)
	require.Equal(t, third.Discovery, merged.Discovery)

	store := newTestStore(t)
	require.NoError(t, store.Commit(&merged))

	restored, err := store.LoadAccount(testKey, acceptAllVerifier{})
	require.NoError(t, err)
	require.Equal(t, uint64(12), restored.AllTxOutsFoundBlockCount())
	require.Equal(t, uint64(12), restored.KnowableBlockCount())
	require.Equal(t, ledger.NewBalance([]uint64{100, 200}, 12),
		restored.CachedBalance())
}

// TestStoreCorruption checks that undecodable records are reported as
// corruption.
func TestStoreCorruption(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	err := kvdb.Update(store.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(spentStatusBucket)
		return bucket.Put(bytes.Repeat([]byte{1}, 32), []byte{0xff})
	}, func() {})
	require.NoError(t, err)

	_, err = store.FetchSpentStatuses()
	require.ErrorIs(t, err, ErrCorruptedStore)

	_, err = store.LoadAccount(testKey, acceptAllVerifier{})
	require.ErrorIs(t, err, ErrCorruptedStore)
}

// TestStoreMissingBucket checks that a store whose buckets were removed
// reports corruption rather than silently returning nothing.
func TestStoreMissingBucket(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	err := kvdb.Update(store.db, func(tx kvdb.RwTx) error {
		return tx.DeleteTopLevelBucket(txOutBucket)
	}, func() {})
	require.NoError(t, err)

	_, err = store.FetchTxOuts()
	require.ErrorIs(t, err, ErrCorruptedStore)

	err = store.Commit(&Update{
		TxOuts: []ledger.KnownTxOut{testTxOut(1, 1, 1)},
	})
	require.ErrorIs(t, err, ErrCorruptedStore)
}
