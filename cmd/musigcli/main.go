// Copyright (C) 2015-2022 The Lightning Network Developers

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/musig2/build"
	"github.com/urfave/cli"
)

const (
	defaultConfigFilename = "musigcli.conf"

	// metaConfig is the key of the loaded config in the app's metadata.
	metaConfig = "config"

	// metaLogFile is the key of the rotating log file in the app's
	// metadata.
	metaLogFile = "logfile"
)

var (
	defaultAppDir     = btcutil.AppDataDir("musigcli", false)
	defaultConfigFile = filepath.Join(defaultAppDir, defaultConfigFilename)
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[musigcli] %v\n", err)
	os.Exit(1)
}

// newApp assembles the command line application. It's kept apart from main so
// tests can run it with their own writer.
func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "musigcli"
	app.Usage = "create and check musig2 multi-signatures"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:      "configfile",
			Value:     defaultConfigFile,
			Usage:     "The path to the config file.",
			TakesFile: true,
		},
		cli.StringFlag{
			Name: "debuglevel",
			Usage: "Logging level for all subsystems {trace, " +
				"debug, info, warn, error, critical, off} or " +
				"subsystem=level pairs.",
		},
		cli.StringFlag{
			Name: "logdir",
			Usage: "The directory to write the rotating log file " +
				"to.",
			TakesFile: true,
		},
		cli.StringSliceFlag{
			Name: "keytweak",
			Usage: "A 32 byte hex scalar added to the aggregate " +
				"key, may be repeated. Replaces the tweaks of " +
				"the config file.",
		},
		cli.StringSliceFlag{
			Name: "noncetweak",
			Usage: "A 32 byte hex scalar added to the aggregate " +
				"nonce, may be repeated. Replaces the tweaks " +
				"of the config file.",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return fmt.Errorf("unable to load config: %w", err)
		}

		logFile, err := setupLoggers(cfg)
		if err != nil {
			return err
		}

		if ctx.App.Metadata == nil {
			ctx.App.Metadata = make(map[string]interface{})
		}
		ctx.App.Metadata[metaConfig] = cfg
		if logFile != nil {
			ctx.App.Metadata[metaLogFile] = logFile
		}

		log.DebugS(context.Background(), "Config loaded",
			"deployment", build.Deployment,
			"key_tweaks", len(cfg.KeyTweaks),
			"nonce_tweaks", len(cfg.NonceTweaks),
			"log_dir", cfg.LogDir)

		return nil
	}
	app.After = func(ctx *cli.Context) error {
		logFile, ok := ctx.App.Metadata[metaLogFile].(
			*build.RotatingLogWriter)
		if !ok {
			return nil
		}

		return logFile.Close()
	}
	app.Commands = []cli.Command{
		keyGenCommand,
		nonceGenCommand,
		aggregateCommand,
		sessionCommand,
		signCommand,
		combineCommand,
		verifyCommand,
	}

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}
