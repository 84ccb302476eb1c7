package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/musig2/build"
	"github.com/lightningnetwork/musig2/musig2"
	"github.com/urfave/cli"
)

// config holds the settings that can be stored in the config file. Values
// given on the command line take precedence.
type config struct {
	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical, off} or subsystem=level pairs"`

	KeyTweaks []string `long:"keytweak" description:"A 32 byte hex scalar added to the aggregate key, may be repeated"`

	NonceTweaks []string `long:"noncetweak" description:"A 32 byte hex scalar added to the aggregate nonce, may be repeated"`

	LogDir         string `long:"logdir" description:"Directory to write the rotating log file to, no log file is written if empty"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	LogCompressor  string `long:"logcompressor" description:"Compression algorithm to use when rotating logs" choice:"gzip" choice:"zstd"`
}

// defaultConfig returns the config used when neither a config file nor a
// flag sets a value.
func defaultConfig() *config {
	return &config{
		DebugLevel:     build.LogLevel,
		MaxLogFiles:    build.DefaultMaxLogFiles,
		MaxLogFileSize: build.DefaultMaxLogFileSize,
		LogCompressor:  build.Gzip,
	}
}

// loadConfig reads the config file named by --configfile, if it exists, and
// applies the global flags on top of it.
func loadConfig(ctx *cli.Context) (*config, error) {
	cfg := defaultConfig()

	err := flags.IniParse(ctx.GlobalString("configfile"), cfg)
	switch {
	// A missing config file is fine, the defaults are used.
	case errors.Is(err, os.ErrNotExist):

	case err != nil:
		return nil, err
	}

	if ctx.GlobalIsSet("debuglevel") {
		cfg.DebugLevel = ctx.GlobalString("debuglevel")
	}
	if ctx.GlobalIsSet("logdir") {
		cfg.LogDir = ctx.GlobalString("logdir")
	}
	if ctx.GlobalIsSet("keytweak") {
		cfg.KeyTweaks = ctx.GlobalStringSlice("keytweak")
	}
	if ctx.GlobalIsSet("noncetweak") {
		cfg.NonceTweaks = ctx.GlobalStringSlice("noncetweak")
	}
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if err := cfg.fileLoggerConfig().Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// fileLoggerConfig returns the options of the rotating log file.
func (c *config) fileLoggerConfig() *build.FileLoggerConfig {
	return &build.FileLoggerConfig{
		Compressor:     c.LogCompressor,
		MaxLogFiles:    c.MaxLogFiles,
		MaxLogFileSize: c.MaxLogFileSize,
	}
}

// cleanAndExpandPath expands a leading ~ to the home directory of the current
// user and cleans the result.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// sessionOptions decodes the configured tweaks into session options.
func (c *config) sessionOptions() ([]musig2.SessionOption, error) {
	keyTweaks, err := decodeHexList("key tweak", c.KeyTweaks)
	if err != nil {
		return nil, err
	}
	nonceTweaks, err := decodeHexList("nonce tweak", c.NonceTweaks)
	if err != nil {
		return nil, err
	}

	return []musig2.SessionOption{
		musig2.WithKeyTweaks(keyTweaks...),
		musig2.WithNonceTweaks(nonceTweaks...),
	}, nil
}

// getConfig returns the config loaded before the command ran.
func getConfig(ctx *cli.Context) *config {
	if cfg, ok := ctx.App.Metadata[metaConfig].(*config); ok {
		return cfg
	}

	return defaultConfig()
}

// decodeHexList decodes every entry of a list of hex strings.
func decodeHexList(item string, list []string) ([][]byte, error) {
	out := make([][]byte, 0, len(list))
	for i, s := range list {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("unable to decode %s %d: %w",
				item, i, err)
		}
		out = append(out, b)
	}

	return out, nil
}
