//go:build stdlog
// +build stdlog

package build

import "os"

// LoggingType is a log type that writes to stdout instead of stderr.
const LoggingType = LogTypeStdOut

// Write sends every log line to stdout, so it shows up in the output of the
// command under test. The log file, if any, still gets its copy.
func (w *LogWriter) Write(b []byte) (int, error) {
	_, _ = os.Stdout.Write(b)
	if w.File == nil {
		return len(b), nil
	}

	return w.File.Write(b)
}
