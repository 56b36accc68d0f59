package acctcfg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/fogwallet/account"
	"github.com/lightningnetwork/fogwallet/acctsync"
	"github.com/lightningnetwork/fogwallet/keyimage"
	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/lightningnetwork/fogwallet/receipt"
	"github.com/stretchr/testify/require"
)

func fogArgs(appDir string) []string {
	return []string{
		"--appdir=" + appDir,
		"--fog.viewurl=fog://view.example.com",
		"--fog.ledgerurl=insecure-fog://ledger.example.com:3225",
	}
}

// TestLoadConfig checks defaults, the app dir relative paths and argument
// parsing.
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	appDir := t.TempDir()
	args := append(fogArgs(appDir), "--debuglevel=debug,SYNC=trace")

	cfg, err := LoadConfig(args)
	require.NoError(t, err)

	require.Equal(t, appDir, cfg.AppDir)
	require.Equal(t, filepath.Join(appDir, defaultDataDirname), cfg.DataDir)
	require.Equal(t, filepath.Join(appDir, defaultLogDirname), cfg.LogDir)
	require.Equal(t, "debug,SYNC=trace", cfg.DebugLevel)
	require.Equal(t, "fog://view.example.com", cfg.Fog.ViewURL)
	require.Equal(t, boltBackend, cfg.DB.Backend)
	require.False(t, cfg.Prometheus.Enabled())
	require.Equal(t, DefaultSnapshotInterval, cfg.SnapshotInterval)
}

// TestLoadConfigFile checks that the config file is read from the app dir
// and that command line options take precedence over it.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	appDir := t.TempDir()
	conf := `[Application Options]
debuglevel=warn
notificationqueuesize=5

[fog]
fog.viewurl=fog://from-file.example.com
fog.ledgerurl=fog://ledger-from-file.example.com

[prometheus]
prometheus.enable=true
prometheus.listen=127.0.0.1:9999
`
	err := os.WriteFile(
		filepath.Join(appDir, DefaultConfigFilename), []byte(conf), 0600,
	)
	require.NoError(t, err)

	cfg, err := LoadConfig([]string{
		"--appdir=" + appDir,
		"--fog.viewurl=fog://from-args.example.com",
	})
	require.NoError(t, err)

	require.Equal(t, "warn", cfg.DebugLevel)
	require.Equal(t, 5, cfg.NotificationQueueSize)
	require.Equal(t, "fog://from-args.example.com", cfg.Fog.ViewURL)
	require.Equal(t, "fog://ledger-from-file.example.com",
		cfg.Fog.LedgerURL)
	require.True(t, cfg.Prometheus.Enabled())
	require.Equal(t, "127.0.0.1:9999", cfg.Prometheus.Listen)
}

// TestValidateConfig checks that invalid settings are rejected.
func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(cfg *Config)
	}{
		{
			name: "missing view url",
			modify: func(cfg *Config) {
				cfg.Fog.ViewURL = ""
			},
		},
		{
			name: "wrong view url scheme",
			modify: func(cfg *Config) {
				cfg.Fog.ViewURL = "mc://node.example.com"
			},
		},
		{
			name: "wrong consensus url scheme",
			modify: func(cfg *Config) {
				cfg.Fog.ConsensusURL = "fog://view.example.com"
			},
		},
		{
			name: "queue size",
			modify: func(cfg *Config) {
				cfg.NotificationQueueSize = 0
			},
		},
		{
			name: "negative snapshot interval",
			modify: func(cfg *Config) {
				cfg.SnapshotInterval = -time.Second
			},
		},
		{
			name: "db timeout",
			modify: func(cfg *Config) {
				cfg.DB.Bolt.DBTimeout = 0
			},
		},
		{
			name: "unknown backend",
			modify: func(cfg *Config) {
				cfg.DB.Backend = "etcd"
			},
		},
		{
			name: "log compressor",
			modify: func(cfg *Config) {
				cfg.Log.File.Compressor = "lz4"
			},
		},
		{
			name: "prometheus listen",
			modify: func(cfg *Config) {
				cfg.Prometheus.Enable = true
				cfg.Prometheus.Listen = "nowhere"
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Fog.ViewURL = "fog://view.example.com"
			cfg.Fog.LedgerURL = "fog://ledger.example.com"

			_, err := ValidateConfig(cfg)
			require.NoError(t, err)

			cfg = DefaultConfig()
			cfg.Fog.ViewURL = "fog://view.example.com"
			cfg.Fog.LedgerURL = "fog://ledger.example.com"
			test.modify(&cfg)

			_, err = ValidateConfig(cfg)
			require.Error(t, err)
		})
	}
}

// TestFogEndpoints checks that the configured service addresses are parsed
// into the endpoints a session syncs from.
func TestFogEndpoints(t *testing.T) {
	t.Parallel()

	fog := &Fog{
		ViewURL:      "fog://view.example.com",
		LedgerURL:    "fog://ledger.example.com:3225",
		ConsensusURL: "insecure-mc://node.example.com",
	}
	endpoints, err := fog.Endpoints()
	require.NoError(t, err)

	require.Equal(t, "view.example.com", endpoints.View.Host())
	require.Equal(t, 3225, endpoints.Ledger.Port())
	consensus, err := endpoints.Consensus.UnwrapOrErr(
		errors.New("no consensus url"),
	)
	require.NoError(t, err)
	require.Equal(t, "node.example.com", consensus.Host())
	require.False(t, consensus.UseTLS())

	fog.LedgerURL = ""
	_, err = fog.Endpoints()
	require.Error(t, err)
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("FOGWALLET_TEST_DIR", "/tmp/fog")

	require.Empty(t, CleanAndExpandPath(""))
	require.Equal(t, "/tmp/fog/data", CleanAndExpandPath(
		"$FOGWALLET_TEST_DIR/./data/",
	))
}

// TestInitLogging checks that the debug level reaches the subsystem
// loggers and that the log file is written.
func TestInitLogging(t *testing.T) {
	appDir := t.TempDir()
	cfg, err := LoadConfig(append(
		fogArgs(appDir), "--debuglevel=info,SYNC=trace",
		"--logging.console.disable",
	))
	require.NoError(t, err)

	loggers, err := cfg.InitLogging()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, loggers.Rotator.Close())

		// Leave the package loggers the way other tests expect them.
		DisableLog()
		acctsync.DisableLog()
	})

	subLoggers := loggers.Manager.SubLoggers()
	require.Equal(t, btclog.LevelTrace, subLoggers[acctsync.Subsystem].Level())
	require.Equal(t, btclog.LevelInfo, subLoggers[Subsystem].Level())

	log.Infof("log file test line")
	_, err = os.Stat(filepath.Join(cfg.LogDir, defaultLogFilename))
	require.NoError(t, err)

	cfg.DebugLevel = "loud"
	_, err = cfg.InitLogging()
	require.Error(t, err)
}

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyConfirmation([32]byte, ledger.PublicKey,
	receipt.ConfirmationNumber) bool {

	return true
}

// TestOpenSession checks that account state survives closing and reopening
// the session.
func TestOpenSession(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(fogArgs(t.TempDir()))
	require.NoError(t, err)

	key := account.AccountKey{
		FogReportURL: "fog://report.example.com",
	}
	txOut := ledger.KnownTxOut{
		PublicKey: ledger.PublicKey{1},
		KeyImage:  ledger.KeyImage{2},
		Value:     1000,
		Block:     ledger.NewBlockMetadata(3),
	}
	ctx := context.Background()

	sc, err := cfg.OpenSession(key, acceptAllVerifier{})
	require.NoError(t, err)

	require.Equal(t, "view.example.com", sc.Fog.View.Host())
	require.True(t, sc.Fog.View.UseTLS())
	require.Equal(t, "ledger.example.com", sc.Fog.Ledger.Host())
	require.False(t, sc.Fog.Ledger.UseTLS())
	require.True(t, sc.Fog.Consensus.IsNone())

	err = sc.Session.ApplyFogView(ctx, acctsync.FogViewUpdate{
		TxOuts:                   []ledger.KnownTxOut{txOut},
		AllTxOutsFoundBlockCount: 10,
	})
	require.NoError(t, err)
	err = sc.Session.ApplyKeyImageStatuses(ctx, []account.KeyImageUpdate{{
		KeyImage: txOut.KeyImage,
		Status:   keyimage.Unspent{KnownUnspentBlockCount: 10},
	}})
	require.NoError(t, err)
	require.NoError(t, sc.Close(ctx))

	sc, err = cfg.OpenSession(key, acceptAllVerifier{})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, sc.Close(ctx))
	}()

	require.Equal(t, uint64(10), sc.Session.KnowableBlockCount())
	require.Equal(t, ledger.NewBalance([]uint64{1000}, 10),
		sc.Session.Balance())

	// A key without fog can't be synced.
	otherCfg, err := LoadConfig(fogArgs(t.TempDir()))
	require.NoError(t, err)
	_, err = otherCfg.OpenSession(account.AccountKey{}, acceptAllVerifier{})
	require.ErrorIs(t, err, account.ErrFogRequired)
}
