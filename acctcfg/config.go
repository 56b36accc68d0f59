// Package acctcfg holds the configuration of an account sync process and
// turns it into the logging, database and metrics setup it describes.
package acctcfg

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/fogwallet/account"
	"github.com/lightningnetwork/fogwallet/accountdb"
	"github.com/lightningnetwork/fogwallet/acctsync"
	"github.com/lightningnetwork/fogwallet/build"
	"github.com/lightningnetwork/fogwallet/monitoring"
	"github.com/lightningnetwork/fogwallet/subscribe"
)

const (
	// DefaultConfigFilename is the name of the config file inside the
	// application directory.
	DefaultConfigFilename = "fogwallet.conf"

	defaultDataDirname = "data"
	defaultLogDirname  = "logs"
	defaultLogFilename = "fogwallet.log"
	defaultLogLevel    = "info"

	// DefaultSnapshotInterval is how often an idle session republishes
	// its snapshot.
	DefaultSnapshotInterval = time.Minute
)

var (
	// DefaultAppDir is the default directory holding the config file,
	// data and logs.
	DefaultAppDir = btcutil.AppDataDir("fogwallet", false)

	// DefaultConfigFile is the default path of the config file.
	DefaultConfigFile = filepath.Join(DefaultAppDir, DefaultConfigFilename)
)

// Validator is a generic interface for validating sub configurations.
type Validator interface {
	// Validate returns an error if a particular configuration is invalid.
	Validate() error
}

// Validate checks each of the validators in turn and returns the first
// error.
func Validate(validators ...Validator) error {
	for _, validator := range validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Config is the configuration of an account sync process.
//
//nolint:lll
type Config struct {
	AppDir     string `long:"appdir" description:"The base directory that contains the config file, data and logs."`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file."`
	DataDir    string `short:"b" long:"datadir" description:"The directory to store the account database within."`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems."`

	NotificationQueueSize int `long:"notificationqueuesize" description:"The number of snapshot updates buffered for each subscriber before its queue grows."`

	SnapshotInterval time.Duration `long:"snapshotinterval" description:"How often the current account snapshot is republished to subscribers even without new data. Set to 0 to disable."`

	Log *build.LogConfig `group:"logging" namespace:"logging"`

	Fog *Fog `group:"fog" namespace:"fog"`

	DB *DB `group:"db" namespace:"db"`

	Prometheus *Prometheus `group:"prometheus" namespace:"prometheus"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		AppDir:                DefaultAppDir,
		ConfigFile:            DefaultConfigFile,
		DataDir:               filepath.Join(DefaultAppDir, defaultDataDirname),
		LogDir:                filepath.Join(DefaultAppDir, defaultLogDirname),
		DebugLevel:            defaultLogLevel,
		NotificationQueueSize: subscribe.DefaultQueueSize,
		SnapshotInterval:      DefaultSnapshotInterval,
		Log:                   build.DefaultLogConfig(),
		Fog:                   DefaultFog(),
		DB:                    DefaultDB(),
		Prometheus:            DefaultPrometheus(),
	}
}

// LoadConfig initializes and parses the config using a config file and the
// given command line arguments.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig(args []string) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.NewParser(&preCfg, flags.Default).ParseArgs(
		args,
	); err != nil {
		return nil, err
	}

	// A custom app dir moves the default config file along with it.
	appDir := CleanAndExpandPath(preCfg.AppDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if appDir != DefaultAppDir && configFilePath == DefaultConfigFile {
		configFilePath = filepath.Join(appDir, DefaultConfigFilename)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	parser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(parser).ParseFile(configFilePath)
	if err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	cleanCfg, err := ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Warn about a missing config file only after everything else went
	// fine.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return cleanCfg, nil
}

// ValidateConfig checks the given configuration to be sane and normalizes
// all file system paths. The cleaned up config is returned on success.
func ValidateConfig(cfg Config) (*Config, error) {
	// Paths that were left at their defaults follow a custom app dir.
	appDir := CleanAndExpandPath(cfg.AppDir)
	if appDir != DefaultAppDir {
		if cfg.DataDir == filepath.Join(DefaultAppDir, defaultDataDirname) {
			cfg.DataDir = filepath.Join(appDir, defaultDataDirname)
		}
		if cfg.LogDir == filepath.Join(DefaultAppDir, defaultLogDirname) {
			cfg.LogDir = filepath.Join(appDir, defaultLogDirname)
		}
	}

	cfg.AppDir = appDir
	cfg.ConfigFile = CleanAndExpandPath(cfg.ConfigFile)
	cfg.DataDir = CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)

	if cfg.NotificationQueueSize <= 0 {
		return nil, fmt.Errorf("notification queue size must be "+
			"positive, got %d", cfg.NotificationQueueSize)
	}
	if cfg.SnapshotInterval < 0 {
		return nil, fmt.Errorf("snapshot interval must not be "+
			"negative, got %v", cfg.SnapshotInterval)
	}

	err := Validate(cfg.Log, cfg.Fog, cfg.DB, cfg.Prometheus)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// Loggers is the logging setup derived from a Config.
type Loggers struct {
	// Manager owns every subsystem logger.
	Manager *build.SubLoggerManager

	// Rotator writes the log file. It must be closed on shutdown.
	Rotator *build.RotatingLogWriter
}

// InitLogging creates the log handler described by the config, registers
// the logger of every subsystem with it and applies the debug level.
func (c *Config) InitLogging() (*Loggers, error) {
	rotator := build.NewRotatingLogWriter()
	if !c.Log.File.Disable {
		logFile := filepath.Join(c.LogDir, defaultLogFilename)
		if err := rotator.InitLogRotator(c.Log.File, logFile); err != nil {
			return nil, fmt.Errorf("unable to init log rotator: %w",
				err)
		}
	}

	manager := build.NewSubLoggerManager(
		build.NewDefaultHandler(c.Log, rotator),
	)
	SetupLoggers(manager)

	err := build.ParseAndSetDebugLevels(c.DebugLevel, manager)
	if err != nil {
		_ = rotator.Close()
		return nil, err
	}

	return &Loggers{
		Manager: manager,
		Rotator: rotator,
	}, nil
}

// SetupLoggers registers the logger of every subsystem with manager.
func SetupLoggers(manager *build.SubLoggerManager) {
	manager.RegisterSubLogger(Subsystem, UseLogger)
	manager.RegisterSubLogger(account.Subsystem, account.UseLogger)
	manager.RegisterSubLogger(accountdb.Subsystem, accountdb.UseLogger)
	manager.RegisterSubLogger(acctsync.Subsystem, acctsync.UseLogger)
	manager.RegisterSubLogger(subscribe.Subsystem, subscribe.UseLogger)
	manager.RegisterSubLogger(monitoring.Subsystem, monitoring.UseLogger)
}
