package acctcfg

import (
	"fmt"

	"github.com/lightningnetwork/fogwallet/fogurl"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Fog holds the addresses of the fog services the account is synced from.
//
//nolint:lll
type Fog struct {
	ViewURL      string `long:"viewurl" description:"The fog view service used to find the account's outputs (fog:// or insecure-fog://)."`
	LedgerURL    string `long:"ledgerurl" description:"The fog ledger service used to check key images (fog:// or insecure-fog://)."`
	ConsensusURL string `long:"consensusurl" description:"The consensus node transactions are submitted to (mc:// or insecure-mc://)."`
}

// DefaultFog returns an empty fog configuration. The service addresses have
// to be provided by the user.
func DefaultFog() *Fog {
	return &Fog{}
}

// Endpoints are the parsed fog service addresses a session syncs from.
type Endpoints struct {
	// View is the fog view service.
	View *fogurl.URL

	// Ledger is the fog ledger service.
	Ledger *fogurl.URL

	// Consensus is the consensus node, if one was configured.
	Consensus fn.Option[*fogurl.URL]
}

// Endpoints parses the configured service addresses.
func (f *Fog) Endpoints() (*Endpoints, error) {
	if f.ViewURL == "" {
		return nil, fmt.Errorf("fog view url must be set")
	}
	view, err := fogurl.Parse(fogurl.FogScheme, f.ViewURL)
	if err != nil {
		return nil, fmt.Errorf("invalid fog view url: %w", err)
	}

	if f.LedgerURL == "" {
		return nil, fmt.Errorf("fog ledger url must be set")
	}
	ledgerURL, err := fogurl.Parse(fogurl.FogScheme, f.LedgerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid fog ledger url: %w", err)
	}

	endpoints := &Endpoints{
		View:      view,
		Ledger:    ledgerURL,
		Consensus: fn.None[*fogurl.URL](),
	}
	if f.ConsensusURL != "" {
		consensus, err := fogurl.Parse(
			fogurl.ConsensusScheme, f.ConsensusURL,
		)
		if err != nil {
			return nil, fmt.Errorf("invalid consensus url: %w", err)
		}
		endpoints.Consensus = fn.Some(consensus)
	}

	return endpoints, nil
}

// Validate checks that every fog service address parses.
func (f *Fog) Validate() error {
	_, err := f.Endpoints()
	return err
}

var _ Validator = (*Fog)(nil)
