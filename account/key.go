package account

import (
	"errors"
	"fmt"

	"github.com/lightningnetwork/fogwallet/fogurl"
	"github.com/lightningnetwork/fogwallet/ledger"
)

// ErrFogRequired is returned when an account is created from a key that is
// not provisioned with a fog report server. Outputs of such accounts can only
// be found by scanning the whole ledger, which is not supported.
var ErrFogRequired = errors.New("accounts without fog urls are not " +
	"currently supported")

// AccountKey is the private key material of an account as handed over by the
// key management layer.
type AccountKey struct {
	// ViewPrivateKey is used to check confirmation numbers.
	ViewPrivateKey [ledger.KeySize]byte

	// SpendPrivateKey is never used by the account itself, it is kept so
	// the owner of the account has a single handle to the key material.
	SpendPrivateKey [ledger.KeySize]byte

	// FogReportURL is the fog report server senders use to encrypt the
	// fog hint of outputs sent to this account.
	FogReportURL string

	// FogReportID selects the report at FogReportURL.
	FogReportID string

	// FogAuthoritySPKI is the subject public key info of the fog
	// authority.
	FogAuthoritySPKI []byte

	// PublicAddress is the derived public address of the key.
	PublicAddress ledger.PublicAddress
}

// fogAccountKey is an AccountKey that has been checked to carry a valid fog
// report URL.
type fogAccountKey struct {
	AccountKey

	fogReportURL *fogurl.URL
}

// newFogAccountKey checks that key is provisioned with fog.
func newFogAccountKey(key AccountKey) (*fogAccountKey, error) {
	if key.FogReportURL == "" {
		return nil, ErrFogRequired
	}

	reportURL, err := fogurl.Parse(fogurl.FogScheme, key.FogReportURL)
	if err != nil {
		return nil, fmt.Errorf("invalid fog report url: %w", err)
	}

	return &fogAccountKey{
		AccountKey:   key,
		fogReportURL: reportURL,
	}, nil
}
