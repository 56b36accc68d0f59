//go:build nolog

package build

// LoggingType is a log type that writes nothing.
const LoggingType = LogTypeNone

// LogLevel is unused for nolog builds.
const LogLevel = "off"

// Write is a noop.
func (w *LogWriter) Write(b []byte) (int, error) {
	return len(b), nil
}
