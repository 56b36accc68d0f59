package acctcfg

import (
	"fmt"
	"net"
)

// DefaultPrometheusListen is the default address the metrics exporter
// listens on.
const DefaultPrometheusListen = "127.0.0.1:8989"

// Prometheus configures the Prometheus exporter.
//
//nolint:lll
type Prometheus struct {
	// Enable indicates whether to export account metrics.
	Enable bool `long:"enable" description:"Enable Prometheus exporting of account metrics."`

	// Listen is the address the exporter listens on.
	Listen string `long:"listen" description:"The interface and port Prometheus metrics are served on."`
}

// DefaultPrometheus returns the default exporter configuration, which is
// disabled.
func DefaultPrometheus() *Prometheus {
	return &Prometheus{
		Listen: DefaultPrometheusListen,
	}
}

// Enabled returns whether or not Prometheus exporting is enabled.
func (p *Prometheus) Enabled() bool {
	return p.Enable
}

// Validate checks the listen address when exporting is enabled.
func (p *Prometheus) Validate() error {
	if !p.Enable {
		return nil
	}

	if _, _, err := net.SplitHostPort(p.Listen); err != nil {
		return fmt.Errorf("invalid prometheus listen address %v: %w",
			p.Listen, err)
	}

	return nil
}

var _ Validator = (*Prometheus)(nil)
