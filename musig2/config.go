// Copyright 2013-2022 The btcsuite developers

package musig2

// Config enumerates the tweaks that are applied while building a session.
// Both lists default to empty.
type Config struct {
	// KeyTweaks is the ordered list of 32 byte scalars added to the
	// aggregate public key. Every tweak is applied to the even-y version
	// of the key produced by the previous round.
	KeyTweaks [][]byte

	// NonceTweaks is the ordered list of 32 byte scalars added to the
	// final aggregate nonce R, using the same even-y rules as KeyTweaks.
	NonceTweaks [][]byte
}

// DefaultConfig returns a config without any tweaks.
func DefaultConfig() *Config {
	return &Config{}
}

// SessionOption is a functional option argument that allows callers to modify
// the way a session is built.
type SessionOption func(*Config)

// WithKeyTweaks appends the given tweaks to the list of key tweaks.
func WithKeyTweaks(tweaks ...[]byte) SessionOption {
	return func(c *Config) {
		c.KeyTweaks = append(c.KeyTweaks, tweaks...)
	}
}

// WithNonceTweaks appends the given tweaks to the list of nonce tweaks.
func WithNonceTweaks(tweaks ...[]byte) SessionOption {
	return func(c *Config) {
		c.NonceTweaks = append(c.NonceTweaks, tweaks...)
	}
}

// WithConfig replaces the whole config, for callers that load it from
// elsewhere.
func WithConfig(cfg Config) SessionOption {
	return func(c *Config) {
		*c = cfg
	}
}

// buildConfig applies the options on top of the default config. The tweak
// slices are copied so later changes by the caller can't leak into a session.
func buildConfig(opts []SessionOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	out := Config{
		KeyTweaks:   make([][]byte, 0, len(cfg.KeyTweaks)),
		NonceTweaks: make([][]byte, 0, len(cfg.NonceTweaks)),
	}
	for _, t := range cfg.KeyTweaks {
		out.KeyTweaks = append(out.KeyTweaks, append([]byte(nil), t...))
	}
	for _, t := range cfg.NonceTweaks {
		out.NonceTweaks = append(
			out.NonceTweaks, append([]byte(nil), t...),
		)
	}

	return out
}
