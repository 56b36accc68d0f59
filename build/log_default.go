//go:build !stdlog && !nolog

package build

import "os"

// LoggingType is a log type that writes to stdout and, once one has been
// attached, a rotating log file.
const LoggingType = LogTypeDefault

// LogLevel is the level development loggers are created with.
const LogLevel = "info"

// Write writes the byte slice to stdout.
func (w *LogWriter) Write(b []byte) (int, error) {
	return os.Stdout.Write(b)
}
