// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ScalarSize is the size of a serialized scalar mod N.
const ScalarSize = 32

// hashToScalar computes the tagged hash of the given messages and reduces the
// resulting 32 bytes modulo the curve order.
func hashToScalar(tag []byte, msgs ...[]byte) btcec.ModNScalar {
	h := chainhash.TaggedHash(tag, msgs...)

	var s btcec.ModNScalar
	s.SetByteSlice(h[:])

	return s
}

// powModN returns base^exp mod N using square and multiply.
func powModN(base *btcec.ModNScalar, exp uint64) btcec.ModNScalar {
	var result btcec.ModNScalar
	result.SetInt(1)

	b := *base
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(&b)
		}
		b.Square()
		exp >>= 1
	}

	return result
}

// parityFactor returns N-1 if odd is true and 1 otherwise.
func parityFactor(odd bool) btcec.ModNScalar {
	var p btcec.ModNScalar
	p.SetInt(1)
	if odd {
		p.Negate()
	}

	return p
}

// parseScalar parses a 32 byte big-endian scalar that must already be a
// nonzero element of the field, as is required for signature values.
func parseScalar(item string, b []byte) (btcec.ModNScalar, error) {
	var s btcec.ModNScalar
	if len(b) != ScalarSize {
		return s, errSize(item, len(b), ScalarSize)
	}

	var buf [ScalarSize]byte
	copy(buf[:], b)
	if overflow := s.SetBytes(&buf); overflow != 0 {
		return s, errScalarRange(item)
	}
	if s.IsZero() {
		return s, errScalarRange(item)
	}

	return s, nil
}

// parseSecret parses a 32 byte secret, either a signing key or one of the
// components of a secret nonce. Unlike parseScalar the value is reduced
// modulo N first, but the result must still be nonzero.
func parseSecret(item string, b []byte) (btcec.ModNScalar, error) {
	var s btcec.ModNScalar
	if len(b) != ScalarSize {
		return s, errSize(item, len(b), ScalarSize)
	}

	s.SetByteSlice(b)
	if s.IsZero() {
		return s, errScalarRange(item)
	}

	return s, nil
}

// scalarBytes serializes a scalar as 32 big-endian bytes.
func scalarBytes(s *btcec.ModNScalar) []byte {
	b := s.Bytes()
	return b[:]
}
