package receipt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/stretchr/testify/require"
)

type mockVerifier struct {
	valid bool

	gotViewKey [32]byte
	gotPubKey  ledger.PublicKey
}

func (m *mockVerifier) VerifyConfirmation(viewPrivateKey [32]byte,
	txOutPublicKey ledger.PublicKey, _ ConfirmationNumber) bool {

	m.gotViewKey = viewPrivateKey
	m.gotPubKey = txOutPublicKey

	return m.valid
}

// TestMatchesTxOut checks that every ledger recorded field takes part in the
// comparison.
func TestMatchesTxOut(t *testing.T) {
	t.Parallel()

	txOut := ledger.KnownTxOut{
		PublicKey:   ledger.PublicKey{1},
		Commitment:  ledger.Commitment{2},
		MaskedValue: 3,
		Value:       500,
	}
	r := &Receipt{
		TxOutPublicKey:      ledger.PublicKey{1},
		Commitment:          ledger.Commitment{2},
		MaskedValue:         3,
		ConfirmationNumber:  ConfirmationNumber{9},
		TombstoneBlockIndex: 100,
	}
	require.True(t, r.MatchesTxOut(txOut))

	badKey := *r
	badKey.TxOutPublicKey = ledger.PublicKey{4}
	require.False(t, badKey.MatchesTxOut(txOut))

	badCommitment := *r
	badCommitment.Commitment = ledger.Commitment{4}
	require.False(t, badCommitment.MatchesTxOut(txOut))

	badValue := *r
	badValue.MaskedValue = 4
	require.False(t, badValue.MatchesTxOut(txOut))
}

// TestValidateConfirmationNumber checks the verifier receives the receipt's
// output key and the account's view key.
func TestValidateConfirmationNumber(t *testing.T) {
	t.Parallel()

	r := &Receipt{TxOutPublicKey: ledger.PublicKey{7}}
	viewKey := [32]byte{8}

	verifier := &mockVerifier{valid: true}
	require.True(t, r.ValidateConfirmationNumber(verifier, viewKey))
	require.Equal(t, viewKey, verifier.gotViewKey)
	require.Equal(t, r.TxOutPublicKey, verifier.gotPubKey)

	verifier.valid = false
	require.False(t, r.ValidateConfirmationNumber(verifier, viewKey))
}

// TestInvalidInputErrorIs checks that both failure reasons can be told apart
// with errors.Is, also when wrapped.
func TestInvalidInputErrorIs(t *testing.T) {
	t.Parallel()

	mismatch := NewInvalidInputError(ReasonMismatch, "pubkey %d", 1)
	wrapped := fmt.Errorf("checking receipt: %w", mismatch)

	require.ErrorIs(t, wrapped, ErrReceiptMismatch)
	require.False(t, errors.Is(wrapped, ErrInvalidConfirmation))
	require.Equal(t, "receipt mismatch: pubkey 1", mismatch.Error())

	invalid := NewInvalidInputError(ReasonInvalidConfirmation, "bad")
	require.ErrorIs(t, invalid, ErrInvalidConfirmation)
	require.False(t, errors.Is(invalid, ErrReceiptMismatch))

	var inputErr *InvalidInputError
	require.ErrorAs(t, wrapped, &inputErr)
	require.Equal(t, ReasonMismatch, inputErr.Reason)
}
