//go:build stdlog

package build

import "os"

// LoggingType is a log type that only writes to stdout.
const LoggingType = LogTypeStdOut

// LogLevel is the level development loggers are created with. Builds using
// stdlog are used to debug unit tests, so everything is logged.
const LogLevel = "trace"

// Write writes the provided byte slice to stdout.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	return len(b), nil
}
