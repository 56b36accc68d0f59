package account

import (
	"testing"

	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/lightningnetwork/fogwallet/receipt"
	"github.com/stretchr/testify/require"
)

// mockVerifier accepts the confirmation numbers it was told about.
type mockVerifier struct {
	valid map[receipt.ConfirmationNumber]struct{}
}

func newMockVerifier(valid ...receipt.ConfirmationNumber) *mockVerifier {
	m := &mockVerifier{
		valid: make(map[receipt.ConfirmationNumber]struct{}),
	}
	for _, c := range valid {
		m.valid[c] = struct{}{}
	}

	return m
}

func (m *mockVerifier) VerifyConfirmation(_ [32]byte, _ ledger.PublicKey,
	confirmation receipt.ConfirmationNumber) bool {

	_, ok := m.valid[confirmation]
	return ok
}

var testKey = AccountKey{
	ViewPrivateKey:  [32]byte{1},
	SpendPrivateKey: [32]byte{2},
	FogReportURL:    "fog://fog.example.com",
	FogReportID:     "",
	PublicAddress: ledger.PublicAddress{
		ViewPublicKey:  [32]byte{3},
		SpendPublicKey: [32]byte{4},
		FogReportURL:   "fog://fog.example.com",
	},
}

// validConfirmation is accepted by the verifier of newTestAccount.
var validConfirmation = receipt.ConfirmationNumber{0xcc}

func newTestAccount(t testing.TB) *Account {
	t.Helper()

	acct, err := New(testKey, newMockVerifier(validConfirmation))
	require.NoError(t, err)

	return acct
}

// newTestTxOut returns an output with distinct keys derived from id.
func newTestTxOut(id byte, value, blockIndex uint64) ledger.KnownTxOut {
	return ledger.KnownTxOut{
		PublicKey:   ledger.PublicKey{id, 0xaa},
		Commitment:  ledger.Commitment{id, 0xbb},
		MaskedValue: value ^ 0xffff,
		Value:       value,
		KeyImage:    ledger.KeyImage{id, 0xdd},
		Block:       ledger.NewBlockMetadata(blockIndex),
	}
}

// receiptFor returns a receipt that matches txOut.
func receiptFor(txOut ledger.KnownTxOut, tombstone uint64) *receipt.Receipt {
	return &receipt.Receipt{
		TxOutPublicKey:      txOut.PublicKey,
		Commitment:          txOut.Commitment,
		MaskedValue:         txOut.MaskedValue,
		ConfirmationNumber:  validConfirmation,
		TombstoneBlockIndex: tombstone,
	}
}
