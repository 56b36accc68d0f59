package build

import (
	"io"
	"os"

	"github.com/btcsuite/btclog/v2"
)

// NewDefaultHandler returns the log handler used for all subsystem loggers.
// It writes to stdout and the rotating log file unless either is disabled
// in cfg. Console options take precedence, as both destinations share one
// handler.
func NewDefaultHandler(cfg *LogConfig, rotator *RotatingLogWriter) btclog.Handler {
	var (
		writers []io.Writer
		opts    []btclog.HandlerOption
	)
	if !cfg.Console.Disable {
		writers = append(writers, os.Stdout)
		opts = cfg.Console.HandlerOptions()
	}
	if !cfg.File.Disable && rotator != nil {
		writers = append(writers, rotator)
		if cfg.Console.Disable {
			opts = cfg.File.HandlerOptions()
		}
	}

	return btclog.NewDefaultHandler(io.MultiWriter(writers...), opts...)
}
