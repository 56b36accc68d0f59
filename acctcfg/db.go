package acctcfg

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	// DefaultDBFilename is the name of the account database file inside
	// the data directory.
	DefaultDBFilename = "account.db"

	boltBackend = "bolt"
)

// Bolt holds the bbolt specific database options.
//
//nolint:lll
type Bolt struct {
	NoFreelistSync bool          `long:"nofreelistsync" description:"Whether the database's free list should not be synced to disk."`
	DBTimeout      time.Duration `long:"dbtimeout" description:"Specify the timeout value used when opening the database."`
}

// DB holds the database configuration.
//
//nolint:lll
type DB struct {
	Backend string `long:"backend" description:"The selected database backend." choice:"bolt"`

	Bolt *Bolt `group:"bolt" namespace:"bolt" description:"Bolt settings."`
}

// DefaultDB returns the default database configuration.
func DefaultDB() *DB {
	return &DB{
		Backend: boltBackend,
		Bolt: &Bolt{
			NoFreelistSync: true,
			DBTimeout:      kvdb.DefaultDBTimeout,
		},
	}
}

// Validate validates the DB config.
func (db *DB) Validate() error {
	switch db.Backend {
	case boltBackend:
		if db.Bolt.DBTimeout <= 0 {
			return fmt.Errorf("invalid bolt db timeout: %v",
				db.Bolt.DBTimeout)
		}

	default:
		return fmt.Errorf("unknown backend, must be \"%v\"",
			boltBackend)
	}

	return nil
}

// GetBackend opens the account database inside dataDir, creating it if it
// doesn't exist yet.
func (db *DB) GetBackend(dataDir string) (kvdb.Backend, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBFilename)
	log.Infof("Opening %v database at %v", db.Backend, dbPath)

	return kvdb.Create(
		kvdb.BoltBackendName, dbPath, db.Bolt.NoFreelistSync,
		db.Bolt.DBTimeout, false,
	)
}

// Compile-time constraint to ensure DB implements the Validator interface.
var _ Validator = (*DB)(nil)
