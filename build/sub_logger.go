package build

import (
	"sync"

	"github.com/btcsuite/btclog/v2"
)

// SubLoggerManager creates subsystem loggers from a single handler and keeps
// track of them so their levels can be changed at runtime.
type SubLoggerManager struct {
	handler btclog.Handler

	loggers SubLoggers
	mu      sync.Mutex
}

// Compile-time check to ensure SubLoggerManager satisfies the
// LeveledSubLogger interface.
var _ LeveledSubLogger = (*SubLoggerManager)(nil)

// NewSubLoggerManager returns a manager creating loggers that write to
// handler.
func NewSubLoggerManager(handler btclog.Handler) *SubLoggerManager {
	return &SubLoggerManager{
		handler: handler,
		loggers: make(SubLoggers),
	}
}

// GenSubLogger returns the logger for subsystem, creating it on first use.
// Its signature matches the genSubLogger argument of NewSubLogger.
func (m *SubLoggerManager) GenSubLogger(subsystem string) btclog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, ok := m.loggers[subsystem]; ok {
		return logger
	}

	logger := btclog.NewSLogger(m.handler.SubSystem(subsystem))
	m.loggers[subsystem] = logger

	return logger
}

// RegisterSubLogger creates the logger for subsystem and hands it to
// useLogger, which is typically a package's UseLogger function.
func (m *SubLoggerManager) RegisterSubLogger(subsystem string,
	useLogger func(btclog.Logger)) {

	useLogger(NewSubLogger(subsystem, m.GenSubLogger))
}

// SubLoggers returns all currently registered subsystem loggers for this log
// writer.
//
// NOTE: This is part of the LeveledSubLogger interface.
func (m *SubLoggerManager) SubLoggers() SubLoggers {
	m.mu.Lock()
	defer m.mu.Unlock()

	loggers := make(SubLoggers, len(m.loggers))
	for k, v := range m.loggers {
		loggers[k] = v
	}

	return loggers
}

// SupportedSubsystems returns a sorted string slice of all keys in the
// subsystems map, corresponding to the names of the subsystems.
//
// NOTE: This is part of the LeveledSubLogger interface.
func (m *SubLoggerManager) SupportedSubsystems() []string {
	return m.SubLoggers().sortedKeys()
}

// SetLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
//
// NOTE: This is part of the LeveledSubLogger interface.
func (m *SubLoggerManager) SetLogLevel(subsystemID string, logLevel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger, ok := m.loggers[subsystemID]
	if !ok {
		return
	}

	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level.
//
// NOTE: This is part of the LeveledSubLogger interface.
func (m *SubLoggerManager) SetLogLevels(logLevel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	level, _ := btclog.LevelFromString(logLevel)
	for _, logger := range m.loggers {
		logger.SetLevel(level)
	}
}
