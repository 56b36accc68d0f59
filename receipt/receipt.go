// Package receipt holds the payment receipts senders hand to recipients and
// the verdicts produced when checking them against an account.
package receipt

import (
	"errors"
	"fmt"

	"github.com/lightningnetwork/fogwallet/ledger"
)

// ConfirmationNumberSize is the length of a confirmation number.
const ConfirmationNumberSize = 32

// ConfirmationNumber proves that the sender of a receipt created the output
// it describes.
type ConfirmationNumber [ConfirmationNumberSize]byte

// Receipt is a sender's claim that a payment to the account was submitted.
// None of its fields are trusted until checked against an owned output.
type Receipt struct {
	// TxOutPublicKey is the public key of the output the payment created.
	TxOutPublicKey ledger.PublicKey

	// Commitment is the value commitment of that output.
	Commitment ledger.Commitment

	// MaskedValue is the masked value of that output.
	MaskedValue uint64

	// ConfirmationNumber is checked against the recipient's view key.
	ConfirmationNumber ConfirmationNumber

	// TombstoneBlockIndex is the first block index at which the payment
	// transaction can no longer be included in the ledger.
	TombstoneBlockIndex uint64
}

// MatchesTxOut returns true if the receipt describes txOut: the public key,
// commitment and masked value all match. The confirmation number and the
// tombstone block are not recorded on the ledger and are not compared.
func (r *Receipt) MatchesTxOut(txOut ledger.KnownTxOut) bool {
	return r.TxOutPublicKey == txOut.PublicKey &&
		r.Commitment == txOut.Commitment &&
		r.MaskedValue == txOut.MaskedValue
}

// ConfirmationVerifier checks confirmation numbers. It is implemented by the
// key management layer, which owns the cryptography involved.
type ConfirmationVerifier interface {
	// VerifyConfirmation returns true if confirmation was produced by
	// the creator of the output with public key txOutPublicKey for the
	// account holding viewPrivateKey.
	VerifyConfirmation(viewPrivateKey [32]byte,
		txOutPublicKey ledger.PublicKey,
		confirmation ConfirmationNumber) bool
}

// ValidateConfirmationNumber checks the receipt's confirmation number with
// verifier for the given view private key.
func (r *Receipt) ValidateConfirmationNumber(verifier ConfirmationVerifier,
	viewPrivateKey [32]byte) bool {

	return verifier.VerifyConfirmation(
		viewPrivateKey, r.TxOutPublicKey, r.ConfirmationNumber,
	)
}

// String returns the receipt's output key and tombstone for log lines.
func (r *Receipt) String() string {
	return fmt.Sprintf("receipt(pubkey=%v, tombstone=%d)",
		r.TxOutPublicKey, r.TombstoneBlockIndex)
}

// Reason tells apart the ways a receipt can fail validation.
type Reason uint8

const (
	// ReasonMismatch means the receipt does not describe the owned
	// output with the same public key.
	ReasonMismatch Reason = iota + 1

	// ReasonInvalidConfirmation means the confirmation number does not
	// validate for the account.
	ReasonInvalidConfirmation
)

// String returns a human readable reason.
func (r Reason) String() string {
	switch r {
	case ReasonMismatch:
		return "receipt mismatch"
	case ReasonInvalidConfirmation:
		return "invalid confirmation number"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

var (
	// ErrReceiptMismatch matches, via errors.Is, every InvalidInputError
	// with ReasonMismatch.
	ErrReceiptMismatch = &InvalidInputError{Reason: ReasonMismatch}

	// ErrInvalidConfirmation matches, via errors.Is, every
	// InvalidInputError with ReasonInvalidConfirmation.
	ErrInvalidConfirmation = &InvalidInputError{
		Reason: ReasonInvalidConfirmation,
	}
)

// InvalidInputError is returned when a receipt fails validation against the
// output it claims to describe.
type InvalidInputError struct {
	Reason Reason
	Msg    string
}

// Error returns the error message.
func (e *InvalidInputError) Error() string {
	if e.Msg == "" {
		return e.Reason.String()
	}

	return fmt.Sprintf("%v: %v", e.Reason, e.Msg)
}

// Is reports whether target is an InvalidInputError with the same reason.
func (e *InvalidInputError) Is(target error) bool {
	var other *InvalidInputError
	if !errors.As(target, &other) {
		return false
	}

	return e.Reason == other.Reason
}

// NewInvalidInputError returns an InvalidInputError for reason.
func NewInvalidInputError(reason Reason, format string,
	args ...any) *InvalidInputError {

	return &InvalidInputError{
		Reason: reason,
		Msg:    fmt.Sprintf(format, args...),
	}
}
