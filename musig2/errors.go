// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrInvalidByteSize is returned when a fixed length input such as a
	// public key, secret key, tweak or signature has the wrong length.
	ErrInvalidByteSize = errors.New("invalid byte size")

	// ErrInvalidNonceSize is returned when a public nonce blob can't be
	// split into exactly two x-only or two compressed points.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrNonceSizeMismatch is returned when the public nonces of a
	// session don't all share the same encoding.
	ErrNonceSizeMismatch = errors.New("nonce size mismatch")

	// ErrScalarOutOfRange is returned when a scalar is zero or not below
	// the curve order where a nonzero field element is required.
	ErrScalarOutOfRange = errors.New("scalar out of range")

	// ErrInvalidPoint is returned when an x coordinate can't be lifted to
	// a curve point, or when an addition or multiplication produced the
	// point at infinity.
	ErrInvalidPoint = errors.New("invalid point")

	// ErrKeyNotInSession is returned when a signer's public key isn't part
	// of the aggregated key set of a session.
	ErrKeyNotInSession = errors.New("key not in session")

	// ErrNonceNotInSession is returned when the public nonce of a secret
	// nonce isn't one of the nonces a session was built from.
	ErrNonceNotInSession = errors.New("nonce not in session")
)

// KeyError is returned by key aggregation to point out the key that caused
// the failure. Index is the position of the key in the list passed in by the
// caller.
type KeyError struct {
	Index int
	Key   []byte
	Err   error
}

// Error returns a human readable description of the failed key.
func (k *KeyError) Error() string {
	return fmt.Sprintf("key %d (%x): %v", k.Index, k.Key, k.Err)
}

// Unwrap returns the underlying error kind so callers can match it with
// errors.Is.
func (k *KeyError) Unwrap() error {
	return k.Err
}

// errSize wraps ErrInvalidByteSize with the name of the offending item.
func errSize(item string, got, want int) error {
	return fmt.Errorf("%w: %s must be %d bytes, got %d",
		ErrInvalidByteSize, item, want, got)
}

// errPoint wraps ErrInvalidPoint with the hex of the bytes that failed.
func errPoint(item string, b []byte) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidPoint, item,
		hex.EncodeToString(b))
}

// errScalarRange wraps ErrScalarOutOfRange with the name of the scalar.
func errScalarRange(item string) error {
	return fmt.Errorf("%w: %s must be in [1, N-1]", ErrScalarOutOfRange,
		item)
}
