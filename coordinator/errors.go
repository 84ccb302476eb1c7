package coordinator

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownRound is returned when a round ID isn't tracked by the
	// manager, either because it never existed or because it was
	// finalized, cleaned up or expired.
	ErrUnknownRound = errors.New("unknown signing round")

	// ErrDuplicateSigner is returned when a key shows up twice in a round,
	// or a signer sends a second partial signature.
	ErrDuplicateSigner = errors.New("duplicate signer")

	// ErrUnknownSigner is returned when a nonce or partial signature comes
	// from a key that isn't part of the round.
	ErrUnknownSigner = errors.New("signer not part of round")

	// ErrNonceAlreadyRegistered is returned when a signer registers a
	// second nonce for the same round.
	ErrNonceAlreadyRegistered = errors.New("nonce already registered")

	// ErrSessionNotReady is returned when the session of a round is
	// requested before every signer registered its nonce.
	ErrSessionNotReady = errors.New("session not ready, nonces missing")

	// ErrMissingPartialSigs is returned when a round is finalized before
	// every signer sent its partial signature.
	ErrMissingPartialSigs = errors.New("partial signatures missing")

	// ErrNonceMismatch is returned when a partial signature carries a
	// public nonce other than the one its signer registered for the
	// round.
	ErrNonceMismatch = errors.New("partial signature nonce doesn't " +
		"match registered nonce")
)

// ErrInvalidSigners is returned by Finalize when one or more partial
// signatures don't verify. Keys holds the x-only keys of the culprits, in the
// order the round was created with.
type ErrInvalidSigners struct {
	Keys [][]byte
}

// Error returns a human readable list of the failed signers.
func (e *ErrInvalidSigners) Error() string {
	keys := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		keys[i] = hex.EncodeToString(k)
	}

	return fmt.Sprintf("invalid partial signatures from %d signer(s): %s",
		len(e.Keys), strings.Join(keys, ", "))
}
