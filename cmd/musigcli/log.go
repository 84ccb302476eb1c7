package main

import (
	"path/filepath"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/musig2/build"
	"github.com/lightningnetwork/musig2/coordinator"
	"github.com/lightningnetwork/musig2/musig2"
	"github.com/lightningnetwork/musig2/musigwire"
)

const (
	// Subsystem defines the logging code for the command line tool.
	Subsystem = "MCLI"

	defaultLogFilename = "musigcli.log"
)

// log is the logger of the command line tool. It's replaced by setupLoggers
// once the debug level is known.
var log = btclog.Disabled

// setupLoggers hooks every package up to one handler and applies the debug
// level of the config. The handler writes to stderr and, if a log directory is
// configured, to a rotating log file. The returned writer is nil when there's
// no log file, otherwise it must be closed on shutdown.
func setupLoggers(cfg *config) (*build.RotatingLogWriter, error) {
	var logFile *build.RotatingLogWriter
	logWriter := &build.LogWriter{}
	if cfg.LogDir != "" {
		logFile = build.NewRotatingLogWriter()
		err := logFile.InitLogRotator(
			cfg.fileLoggerConfig(),
			filepath.Join(cfg.LogDir, defaultLogFilename),
		)
		if err != nil {
			return nil, err
		}
		logWriter.File = logFile
	}

	logMgr := build.NewSubLoggerManager(
		btclog.NewDefaultHandler(logWriter),
	)

	logMgr.AddLogger(Subsystem, func(l btclog.Logger) {
		log = l
	})
	logMgr.AddLogger(musig2.Subsystem, musig2.UseLogger)
	logMgr.AddLogger(musigwire.Subsystem, musigwire.UseLogger)
	logMgr.AddLogger(coordinator.Subsystem, coordinator.UseLogger)

	err := build.ParseAndSetDebugLevels(cfg.DebugLevel, logMgr)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}

		return nil, err
	}

	return logFile, nil
}
