// Package monitoring serves the process's Prometheus metrics over HTTP.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath is the path metrics are served on.
const MetricsPath = "/metrics"

// readHeaderTimeout bounds how long a scraper may take to send its request
// headers.
const readHeaderTimeout = 10 * time.Second

// Exporter serves the metrics of a Prometheus registry.
type Exporter struct {
	listen   string
	gatherer prometheus.Gatherer

	started sync.Once
	stopped sync.Once

	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// NewExporter returns an exporter that serves the metrics of gatherer on
// listen. A nil gatherer selects the default registry, which is where the
// account metrics are registered.
func NewExporter(listen string, gatherer prometheus.Gatherer) *Exporter {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Exporter{
		listen:   listen,
		gatherer: gatherer,
	}
}

// Start starts listening and serving metrics.
func (e *Exporter) Start() error {
	var startErr error
	e.started.Do(func() {
		listener, err := net.Listen("tcp", e.listen)
		if err != nil {
			startErr = fmt.Errorf("unable to listen on %v: %w",
				e.listen, err)
			return
		}
		e.listener = listener

		mux := http.NewServeMux()
		mux.Handle(MetricsPath, promhttp.HandlerFor(
			e.gatherer, promhttp.HandlerOpts{},
		))
		e.server = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		}

		log.Infof("Prometheus exporter started on %v%v", e.Addr(),
			MetricsPath)

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()

			err := e.server.Serve(listener)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Prometheus exporter failed: %v", err)
			}
		}()
	})

	return startErr
}

// Addr returns the address the exporter listens on, which is only known
// after Start when listening on port 0.
func (e *Exporter) Addr() string {
	if e.listener == nil {
		return e.listen
	}

	return e.listener.Addr().String()
}

// Stop shuts the exporter down, waiting for in flight scrapes up to the
// deadline of ctx.
func (e *Exporter) Stop(ctx context.Context) error {
	var stopErr error
	e.stopped.Do(func() {
		if e.server == nil {
			return
		}

		log.Info("Prometheus exporter shutting down")

		stopErr = e.server.Shutdown(ctx)
		e.wg.Wait()
	})

	return stopErr
}
