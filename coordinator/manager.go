package coordinator

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/lightningnetwork/musig2/lnutils"
	"github.com/lightningnetwork/musig2/musig2"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRoundTimeout is the default time a round may stay open
	// before PruneExpired drops it.
	DefaultRoundTimeout = 10 * time.Minute

	// DefaultPruneInterval is how often a started manager looks for
	// expired rounds.
	DefaultPruneInterval = time.Minute
)

// RoundID identifies a signing round tracked by the manager.
type RoundID [sha256.Size]byte

// String returns the hex encoding of the round ID.
func (r RoundID) String() string {
	return fmt.Sprintf("%x", r[:])
}

// Config houses the dependencies of the Manager.
type Config struct {
	// Clock is used to time out rounds.
	Clock clock.Clock

	// RoundTimeout is the maximum age of a round before PruneExpired
	// removes it. Zero disables expiry.
	RoundTimeout time.Duration

	// Rand is the source of the random part of round IDs.
	Rand io.Reader

	// PruneTicker drives PruneExpired once the manager is started.
	PruneTicker ticker.Ticker
}

// DefaultConfig returns a config with the system clock, crypto/rand, the
// default round timeout and a prune ticker firing every
// DefaultPruneInterval.
func DefaultConfig() *Config {
	return &Config{
		Clock:        clock.NewDefaultClock(),
		RoundTimeout: DefaultRoundTimeout,
		Rand:         rand.Reader,
		PruneTicker:  ticker.New(DefaultPruneInterval),
	}
}

// signerKey is an x-only public key used as a map key.
type signerKey [musig2.PubKeySize]byte

// round is the state of one signing round.
type round struct {
	id      RoundID
	keys    []signerKey
	signers map[signerKey]struct{}
	msg     []byte
	opts    []musig2.SessionOption
	created time.Time

	nonces      map[signerKey][]byte
	partialSigs map[signerKey]*musig2.PartialSignature

	// session is set once every signer has registered its nonce.
	session fn.Option[*musig2.Session]
}

// pubKeys returns the keys of the round in creation order.
func (r *round) pubKeys() [][]byte {
	keys := make([][]byte, len(r.keys))
	for i := range r.keys {
		keys[i] = append([]byte(nil), r.keys[i][:]...)
	}

	return keys
}

// Manager tracks signing rounds in memory: it collects the public nonces of
// every signer, builds the session once they're all in, collects the partial
// signatures and finally combines them. It's safe for concurrent use.
type Manager struct {
	started sync.Once
	stopped sync.Once

	cfg *Config

	mu     sync.Mutex
	rounds map[RoundID]*round

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewManager creates a new round manager. Missing config fields are filled
// in from DefaultConfig.
func NewManager(cfg *Config) *Manager {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	if cfg.Rand == nil {
		cfg.Rand = defaults.Rand
	}
	if cfg.PruneTicker == nil {
		cfg.PruneTicker = defaults.PruneTicker
	}

	return &Manager{
		cfg:    cfg,
		rounds: make(map[RoundID]*round),
		quit:   make(chan struct{}),
	}
}

// Start launches the goroutine that prunes expired rounds on every tick of
// the prune ticker. A manager that's never started only prunes when
// PruneExpired is called.
func (m *Manager) Start() error {
	m.started.Do(func() {
		log.Info("Round manager starting")

		m.wg.Add(1)
		go m.pruneHandler()
	})

	return nil
}

// Stop halts the prune goroutine and waits for it to exit. Rounds are kept.
func (m *Manager) Stop() error {
	m.stopped.Do(func() {
		log.Info("Round manager shutting down...")
		defer log.Debug("Round manager shutdown complete")

		close(m.quit)
		m.wg.Wait()
	})

	return nil
}

// pruneHandler drops expired rounds each time the prune ticker fires.
//
// NOTE: This must be run as a goroutine.
func (m *Manager) pruneHandler() {
	defer m.wg.Done()

	m.cfg.PruneTicker.Resume()
	defer m.cfg.PruneTicker.Stop()

	for {
		select {
		case <-m.cfg.PruneTicker.Ticks():
			pruned := m.PruneExpired()
			if pruned == 0 {
				continue
			}

			log.InfoS(context.Background(), "Pruned expired rounds",
				slog.Int("num_pruned", pruned),
				slog.Int("num_open", m.NumRounds()))

		case <-m.quit:
			return
		}
	}
}

// toSignerKey checks the length of an x-only key and converts it.
func toSignerKey(pubKey []byte) (signerKey, error) {
	var k signerKey
	if len(pubKey) != musig2.PubKeySize {
		return k, fmt.Errorf("%w: public key must be %d bytes, got %d",
			musig2.ErrInvalidByteSize, musig2.PubKeySize,
			len(pubKey))
	}
	copy(k[:], pubKey)

	return k, nil
}

// NewRound starts a round for the given signers and message. The keys are
// validated by aggregating them with the key tweaks of opts, and every signer
// may only appear once.
func (m *Manager) NewRound(pubKeys [][]byte, msg []byte,
	opts ...musig2.SessionOption) (RoundID, error) {

	var id RoundID

	r := &round{
		keys:        make([]signerKey, 0, len(pubKeys)),
		signers:     make(map[signerKey]struct{}, len(pubKeys)),
		msg:         append([]byte(nil), msg...),
		opts:        opts,
		nonces:      make(map[signerKey][]byte, len(pubKeys)),
		partialSigs: make(map[signerKey]*musig2.PartialSignature),
		session:     fn.None[*musig2.Session](),
	}
	for _, pk := range pubKeys {
		k, err := toSignerKey(pk)
		if err != nil {
			return id, err
		}
		if _, ok := r.signers[k]; ok {
			return id, fmt.Errorf("%w: %x", ErrDuplicateSigner, pk)
		}

		r.signers[k] = struct{}{}
		r.keys = append(r.keys, k)
	}

	keyCtx, err := musig2.NewKeyContext(pubKeys, opts...)
	if err != nil {
		return id, fmt.Errorf("unable to aggregate keys: %w", err)
	}

	// The ID commits to the key and message, plus some randomness so
	// repeated rounds over the same message don't collide.
	var entropy [32]byte
	if _, err := io.ReadFull(m.cfg.Rand, entropy[:]); err != nil {
		return id, fmt.Errorf("unable to read round entropy: %w", err)
	}

	h := sha256.New()
	h.Write(keyCtx.PubKey())
	h.Write(msg)
	h.Write(entropy[:])
	copy(id[:], h.Sum(nil))

	r.id = id
	r.created = m.cfg.Clock.Now()

	m.mu.Lock()
	m.rounds[id] = r
	m.mu.Unlock()

	log.InfoS(context.Background(), "Started signing round",
		btclog.Hex6("round_id", id[:]),
		lnutils.LogKey("agg_key", keyCtx.PubKey()),
		slog.Int("num_signers", len(pubKeys)))

	return id, nil
}

// fetchRound returns the round with the given ID. The caller must hold the
// mutex.
func (m *Manager) fetchRound(id RoundID) (*round, error) {
	r, ok := m.rounds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownRound, id)
	}

	return r, nil
}

// RegisterNonce records the public nonce of one signer. Once every signer has
// registered, the session is built and true is returned.
func (m *Manager) RegisterNonce(id RoundID, pubKey,
	pubNonce []byte) (bool, error) {

	k, err := toSignerKey(pubKey)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.fetchRound(id)
	if err != nil {
		return false, err
	}
	if _, ok := r.signers[k]; !ok {
		return false, fmt.Errorf("%w: %x", ErrUnknownSigner, pubKey)
	}
	if _, ok := r.nonces[k]; ok {
		return false, fmt.Errorf("%w: %x", ErrNonceAlreadyRegistered,
			pubKey)
	}

	r.nonces[k] = append([]byte(nil), pubNonce...)

	log.DebugS(context.Background(), "Registered nonce",
		btclog.Hex6("round_id", id[:]),
		lnutils.LogKey("signer", pubKey),
		slog.Int("have", len(r.nonces)),
		slog.Int("want", len(r.keys)))

	if len(r.nonces) < len(r.keys) {
		return false, nil
	}

	pubNonces := make([][]byte, len(r.keys))
	for i, key := range r.keys {
		pubNonces[i] = r.nonces[key]
	}

	session, err := musig2.NewSession(
		r.pubKeys(), pubNonces, r.msg, r.opts...,
	)
	if err != nil {
		// The last nonce is what broke the session, so we drop it and
		// let the signer try again.
		delete(r.nonces, k)

		return false, fmt.Errorf("unable to build session: %w", err)
	}
	r.session = fn.Some(session)

	log.InfoS(context.Background(), "Session ready",
		btclog.Hex6("round_id", id[:]),
		lnutils.LogKey("final_nonce", session.FinalNonce()))

	return true, nil
}

// Session returns the session of a round, once all nonces are in.
func (m *Manager) Session(id RoundID) (*musig2.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.fetchRound(id)
	if err != nil {
		return nil, err
	}

	return r.session.UnwrapOrErr(ErrSessionNotReady)
}

// RegisterPartialSig records the partial signature of one signer. It returns
// true once every signer has sent one. A signature made over a nonce other
// than the registered one is rejected right away, everything else is only
// checked when the round is finalized.
func (m *Manager) RegisterPartialSig(id RoundID,
	sig *musig2.PartialSignature) (bool, error) {

	if sig == nil {
		return false, fmt.Errorf("nil partial signature")
	}
	k := signerKey(sig.PubKey)

	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.fetchRound(id)
	if err != nil {
		return false, err
	}
	if r.session.IsNone() {
		return false, ErrSessionNotReady
	}
	if _, ok := r.signers[k]; !ok {
		return false, fmt.Errorf("%w: %x", ErrUnknownSigner, k[:])
	}
	if _, ok := r.partialSigs[k]; ok {
		return false, fmt.Errorf("%w: second partial signature "+
			"from %x", ErrDuplicateSigner, k[:])
	}
	if !bytes.Equal(sig.PubNonce, r.nonces[k]) {
		log.WarnS(context.Background(), "Partial signature over "+
			"foreign nonce", nil,
			btclog.Hex6("round_id", id[:]),
			lnutils.LogKey("signer", k[:]))

		return false, fmt.Errorf("%w: signer %x", ErrNonceMismatch,
			k[:])
	}

	sigCopy := *sig
	sigCopy.PubNonce = append([]byte(nil), sig.PubNonce...)
	r.partialSigs[k] = &sigCopy

	log.DebugS(context.Background(), "Registered partial signature",
		btclog.Hex6("round_id", id[:]),
		lnutils.LogKey("signer", k[:]),
		slog.Int("have", len(r.partialSigs)),
		slog.Int("want", len(r.keys)))

	return len(r.partialSigs) == len(r.keys), nil
}

// Finalize verifies every partial signature of the round concurrently. If
// any of them is invalid, an *ErrInvalidSigners naming the culprits is
// returned and the round is kept until Cleanup or expiry. Otherwise the
// signatures are combined, the result is verified and the round is removed.
func (m *Manager) Finalize(ctx context.Context, id RoundID) ([]byte, error) {
	m.mu.Lock()
	r, err := m.fetchRound(id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	session, err := r.session.UnwrapOrErr(ErrSessionNotReady)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if len(r.partialSigs) < len(r.keys) {
		have := len(r.partialSigs)
		m.mu.Unlock()

		return nil, fmt.Errorf("%w: have %d of %d",
			ErrMissingPartialSigs, have, len(r.keys))
	}

	sigs := make([]*musig2.PartialSignature, len(r.keys))
	for i, key := range r.keys {
		sigs[i] = r.partialSigs[key]
	}
	m.mu.Unlock()

	// Each partial signature is checked on its own goroutine, and the
	// results are written to their own slot.
	valid := make([]bool, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	for i, sig := range sigs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			ok, err := musig2.VerifyPartialSig(session, sig)
			if err != nil {
				return fmt.Errorf("partial signature of %x: %w",
					sig.PubKey[:], err)
			}
			valid[i] = ok

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var invalid [][]byte
	for i, ok := range valid {
		if !ok {
			invalid = append(invalid, sigs[i].PubKey[:])
		}
	}
	if len(invalid) > 0 {
		log.WarnS(ctx, "Round has invalid partial signatures", nil,
			btclog.Hex6("round_id", id[:]),
			slog.Int("num_invalid", len(invalid)))

		return nil, &ErrInvalidSigners{Keys: invalid}
	}

	finalSig, err := musig2.CombineSigs(session, sigs)
	if err != nil {
		return nil, err
	}

	ok, err := musig2.VerifySig(session, finalSig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("combined signature of round %v is "+
			"invalid", id)
	}

	m.Cleanup(id)

	log.InfoS(ctx, "Round finalized",
		btclog.Hex6("round_id", id[:]),
		btclog.Hex("sig", finalSig))

	return finalSig, nil
}

// Cleanup removes a round. Removing an unknown round is a no-op.
func (m *Manager) Cleanup(id RoundID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rounds, id)
}

// PruneExpired removes every round older than the configured timeout and
// returns the number of rounds removed.
func (m *Manager) PruneExpired() int {
	if m.cfg.RoundTimeout == 0 {
		return 0
	}

	now := m.cfg.Clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int
	for id, r := range m.rounds {
		if now.Sub(r.created) < m.cfg.RoundTimeout {
			continue
		}

		delete(m.rounds, id)
		pruned++

		log.DebugS(context.Background(), "Pruned expired round",
			btclog.Hex6("round_id", id[:]))
	}

	return pruned
}

// NumRounds returns the number of rounds currently tracked.
func (m *Manager) NumRounds() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.rounds)
}
