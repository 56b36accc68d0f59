// Package fogurl parses the URLs of the fog and consensus services an account
// is provisioned with.
package fogurl

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrUnparsable is returned when a string is not a URL.
	ErrUnparsable = errors.New("could not parse url")

	// ErrUnknownScheme is returned when a URL does not use one of the
	// expected schemes.
	ErrUnknownScheme = errors.New("unrecognized scheme")

	// ErrInvalidHost is returned when a URL has no host.
	ErrInvalidHost = errors.New("invalid host")
)

// Scheme is a pair of URL schemes for a service, one for TLS and one for
// plaintext connections, with the ports used when a URL omits one.
type Scheme struct {
	Secure   string
	Insecure string

	DefaultSecurePort   int
	DefaultInsecurePort int
}

var (
	// FogScheme is used by the fog view, ledger and report services.
	FogScheme = Scheme{
		Secure:              "fog",
		Insecure:            "insecure-fog",
		DefaultSecurePort:   443,
		DefaultInsecurePort: 3225,
	}

	// ConsensusScheme is used by consensus validator nodes.
	ConsensusScheme = Scheme{
		Secure:              "mc",
		Insecure:            "insecure-mc",
		DefaultSecurePort:   443,
		DefaultInsecurePort: 3223,
	}

	// httpScheme is used for URLs not tied to a service scheme.
	httpScheme = Scheme{
		Secure:              "https",
		Insecure:            "http",
		DefaultSecurePort:   443,
		DefaultInsecurePort: 80,
	}
)

// URL is a parsed service URL.
type URL struct {
	url *url.URL

	host   string
	port   int
	useTLS bool
}

// Parse parses s, which must use one of scheme's two schemes.
func Parse(scheme Scheme, s string) (*URL, error) {
	u, err := parse(s)
	if err != nil {
		return nil, err
	}

	var useTLS bool
	switch u.Scheme {
	case scheme.Secure:
		useTLS = true

	case scheme.Insecure:
		useTLS = false

	default:
		return nil, fmt.Errorf("%w: %v, expected one of [%q, %q]",
			ErrUnknownScheme, s, scheme.Secure, scheme.Insecure)
	}

	return newURL(u, scheme, useTLS)
}

// ParseAny parses s regardless of its scheme. TLS is used if useTLS says
// so; otherwise it is used unless the scheme is "http".
func ParseAny(s string, useTLS fn.Option[bool]) (*URL, error) {
	u, err := parse(s)
	if err != nil {
		return nil, err
	}

	tls := useTLS.UnwrapOrFunc(func() bool {
		return u.Scheme != httpScheme.Insecure
	})

	return newURL(u, httpScheme, tls)
}

func parse(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrUnparsable, s, err)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHost, s)
	}

	return u, nil
}

func newURL(u *url.URL, scheme Scheme, useTLS bool) (*URL, error) {
	port := scheme.DefaultInsecurePort
	if useTLS {
		port = scheme.DefaultSecurePort
	}

	if rawPort := u.Port(); rawPort != "" {
		p, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid port %q",
				ErrUnparsable, rawPort)
		}
		port = int(p)
	}

	return &URL{
		url:    u,
		host:   u.Hostname(),
		port:   port,
		useTLS: useTLS,
	}, nil
}

// Host returns the host name without the port.
func (u *URL) Host() string {
	return u.host
}

// Port returns the explicit port, or the scheme's default.
func (u *URL) Port() int {
	return u.port
}

// UseTLS returns true if connections to the service use TLS.
func (u *URL) UseTLS() bool {
	return u.useTLS
}

// Address returns host:port.
func (u *URL) Address() string {
	return net.JoinHostPort(u.host, strconv.Itoa(u.port))
}

// ResponderID is the identity attested by the service's enclave, which is
// its host:port.
func (u *URL) ResponderID() string {
	return u.Address()
}

// HTTPBasedURL returns the URL rewritten to http or https, keeping the port
// unless it is the default port of the new scheme.
func (u *URL) HTTPBasedURL() *url.URL {
	httpURL := *u.url
	httpURL.Scheme = httpScheme.Insecure
	if u.useTLS {
		httpURL.Scheme = httpScheme.Secure
	}

	if u.url.Port() == "" {
		switch {
		case !u.useTLS && u.port == httpScheme.DefaultInsecurePort:
		case u.useTLS && u.port == httpScheme.DefaultSecurePort:
		default:
			httpURL.Host = u.Address()
		}
	}

	return &httpURL
}

// String returns the URL as it was parsed.
func (u *URL) String() string {
	return u.url.String()
}
