package ledger

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// KeySize is the length of a compressed ristretto point, which is the
// encoding used for output public keys, key images and commitments.
const KeySize = 32

// PublicKey is the compressed public key of a ledger output.
type PublicKey [KeySize]byte

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: public key is %d bytes",
			ErrInvalidKeyLength, len(b))
	}
	copy(k[:], b)

	return k, nil
}

// String returns the base64 encoding of the key, which is how outputs are
// referred to by the fog services.
func (k PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// KeyImage is the spend identifier of an output. It is revealed on the
// ledger when, and only when, the output is spent.
type KeyImage [KeySize]byte

// KeyImageFromBytes copies b into a KeyImage.
func KeyImageFromBytes(b []byte) (KeyImage, error) {
	var k KeyImage
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: key image is %d bytes",
			ErrInvalidKeyLength, len(b))
	}
	copy(k[:], b)

	return k, nil
}

// String returns the hex encoding of the key image.
func (k KeyImage) String() string {
	return hex.EncodeToString(k[:])
}

// Commitment is the compressed Pedersen commitment to an output's value.
type Commitment [KeySize]byte

// KnownTxOut is a ledger output that has been found to belong to the
// account, together with the values recovered while matching it.
type KnownTxOut struct {
	// PublicKey is the output's one-time public key.
	PublicKey PublicKey

	// Commitment is the on-ledger commitment to the value.
	Commitment Commitment

	// MaskedValue is the value as it appears on the ledger, masked with
	// the shared secret.
	MaskedValue uint64

	// Value is the unmasked value of the output.
	Value uint64

	// KeyImage is the key image that will appear on the ledger when the
	// output is spent.
	KeyImage KeyImage

	// Block is the block the output was received in.
	Block BlockMetadata
}

// String returns a short description of the output used in log lines.
func (t KnownTxOut) String() string {
	return fmt.Sprintf("txout(pubkey=%v, value=%d, %v)", t.PublicKey,
		t.Value, t.Block)
}

// OwnedTxOut is a KnownTxOut as seen at a particular block count: the block
// it was received in and, if the spend happened before that block count,
// the block it was spent in.
type OwnedTxOut struct {
	KnownTxOut

	// ReceivedBlock is the block the output was received in.
	ReceivedBlock BlockMetadata

	// SpentBlock is the block the output was spent in. It is only set if
	// the spend happened before the block count of the snapshot the
	// OwnedTxOut belongs to.
	SpentBlock fn.Option[BlockMetadata]
}

// IsSpent returns true if the output was spent as of the snapshot.
func (o OwnedTxOut) IsSpent() bool {
	return o.SpentBlock.IsSome()
}

// PublicAddress is the public half of an account key. It is what senders
// use to address payments to the account.
type PublicAddress struct {
	ViewPublicKey  [KeySize]byte
	SpendPublicKey [KeySize]byte

	// FogReportURL is the fog report server that senders use to fetch
	// the account's fog public key. Empty for accounts without fog.
	FogReportURL string

	// FogReportID selects the report at FogReportURL.
	FogReportID string

	// FogAuthoritySig is the signature over the fog authority.
	FogAuthoritySig []byte
}

// HasFog returns true if the address is configured with a fog report
// server.
func (p PublicAddress) HasFog() bool {
	return p.FogReportURL != ""
}
