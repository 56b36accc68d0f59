package acctcfg

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightningnetwork/fogwallet/account"
	"github.com/lightningnetwork/fogwallet/accountdb"
	"github.com/lightningnetwork/fogwallet/acctsync"
	"github.com/lightningnetwork/fogwallet/monitoring"
	"github.com/lightningnetwork/fogwallet/receipt"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/lightningnetwork/lnd/ticker"
)

// SyncContext is a running account session along with the resources it was
// built from.
type SyncContext struct {
	// Session is the started account session.
	Session *acctsync.Session

	// Fog holds the fog services the session's updates are fetched from.
	Fog *Endpoints

	db       kvdb.Backend
	exporter fn.Option[*monitoring.Exporter]
}

// OpenSession opens the account database, restores the account of key from
// it and starts a session around it. The Prometheus exporter is started too
// if it is enabled.
func (c *Config) OpenSession(key account.AccountKey,
	verifier receipt.ConfirmationVerifier) (*SyncContext, error) {

	db, err := c.DB.GetBackend(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("unable to open account db: %w", err)
	}

	sc, err := c.openSession(db, key, verifier)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return sc, nil
}

func (c *Config) openSession(db kvdb.Backend, key account.AccountKey,
	verifier receipt.ConfirmationVerifier) (*SyncContext, error) {

	endpoints, err := c.Fog.Endpoints()
	if err != nil {
		return nil, err
	}

	store, err := accountdb.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("unable to init account store: %w", err)
	}

	acct, err := store.LoadAccount(key, verifier)
	if err != nil {
		return nil, fmt.Errorf("unable to load account: %w", err)
	}

	sessionCfg := &acctsync.Config{
		Account:   acct,
		Store:     store,
		QueueSize: c.NotificationQueueSize,
	}
	if c.SnapshotInterval > 0 {
		sessionCfg.SnapshotTicker = ticker.New(c.SnapshotInterval)
	}

	session, err := acctsync.NewSession(sessionCfg)
	if err != nil {
		return nil, err
	}
	if err := session.Start(); err != nil {
		return nil, err
	}

	exporter := fn.None[*monitoring.Exporter]()
	if c.Prometheus.Enabled() {
		e := monitoring.NewExporter(c.Prometheus.Listen, nil)
		if err := e.Start(); err != nil {
			_ = session.Stop()
			return nil, err
		}
		exporter = fn.Some(e)
	}

	return &SyncContext{
		Session:  session,
		Fog:      endpoints,
		db:       db,
		exporter: exporter,
	}, nil
}

// Close stops the session and the exporter and closes the database.
func (s *SyncContext) Close(ctx context.Context) error {
	var errs []error

	s.exporter.WhenSome(func(e *monitoring.Exporter) {
		errs = append(errs, e.Stop(ctx))
	})
	errs = append(errs, s.Session.Stop(), s.db.Close())

	return errors.Join(errs...)
}
