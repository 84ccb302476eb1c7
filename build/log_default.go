//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

import "os"

// LoggingType is a log type that writes to stderr and, if present, the
// configured log file.
const LoggingType = LogTypeDefault

// Write writes the provided byte slice to stderr and the file sink.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stderr.Write(b)
	if w.File != nil {
		if _, err := w.File.Write(b); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}
