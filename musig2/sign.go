// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// PartialSigSize is the size of a serialized partial signature from
	// a session with x-only nonces: s || pubkey || pubnonce.
	PartialSigSize = ScalarSize + PubKeySize + PubNonceSize

	// PartialSigCompressedSize is the size of a serialized partial
	// signature from a session with compressed nonces.
	PartialSigCompressedSize = ScalarSize + PubKeySize +
		PubNonceCompressedSize
)

// PartialSignature is one signer's contribution to the final signature,
// together with the public key and public nonce needed to verify it.
type PartialSignature struct {
	// S is the partial signature scalar.
	S btcec.ModNScalar

	// PubKey is the x-only public key of the signer.
	PubKey [PubKeySize]byte

	// PubNonce is the public nonce of the signer, in the encoding used by
	// the session.
	PubNonce []byte
}

// Bytes serializes the partial signature as s || pubkey || pubnonce.
func (p *PartialSignature) Bytes() []byte {
	b := make([]byte, 0, ScalarSize+PubKeySize+len(p.PubNonce))
	b = append(b, scalarBytes(&p.S)...)
	b = append(b, p.PubKey[:]...)
	b = append(b, p.PubNonce...)

	return b
}

// Encode writes the serialized partial signature to the passed io.Writer.
func (p *PartialSignature) Encode(w io.Writer) error {
	_, err := w.Write(p.Bytes())
	return err
}

// ParsePartialSig parses a serialized partial signature. It must be
// PartialSigSize or PartialSigCompressedSize bytes, and s must be a nonzero
// scalar below N.
func ParsePartialSig(b []byte) (*PartialSignature, error) {
	if len(b) != PartialSigSize && len(b) != PartialSigCompressedSize {
		return nil, fmt.Errorf("%w: partial signature must be %d or "+
			"%d bytes, got %d", ErrInvalidByteSize, PartialSigSize,
			PartialSigCompressedSize, len(b))
	}

	s, err := parseScalar("partial signature", b[:ScalarSize])
	if err != nil {
		return nil, err
	}

	sig := &PartialSignature{
		S:        s,
		PubNonce: append([]byte(nil), b[ScalarSize+PubKeySize:]...),
	}
	copy(sig.PubKey[:], b[ScalarSize:ScalarSize+PubKeySize])

	return sig, nil
}

// SignOption is a functional option argument that allows callers to modify the
// way we generate musig2 partial signatures.
type SignOption func(*signOptions)

// signOptions houses the set of functional options that can be used to modify
// the method used to generate the musig2 partial signature.
type signOptions struct {
	// fastSign determines if we'll skip the check at the end of the
	// routine where we attempt to verify the produced signature.
	fastSign bool
}

// defaultSignOptions returns the default set of signing operations.
func defaultSignOptions() *signOptions {
	return &signOptions{}
}

// WithFastSign forces signing to skip the extra verification step at the end.
// Performance sensitive applications may opt to use this option to speed up
// the signing operation.
func WithFastSign() SignOption {
	return func(o *signOptions) {
		o.fastSign = true
	}
}

// Sign generates a musig2 partial signature for the session, using the
// signer's 32 byte secret key and 64 byte secret nonce:
//   - sk' = g_Q * state_Q * sk
//   - r_j' = g_R * state_R * r_j
//   - s = e*a*sk' + r_1' + b*r_2'
//
// where a is the signer's key coefficient and g_Q, g_R are the parities of the
// final aggregate key and final nonce. The secret key and, for sessions with
// x-only nonces, the secret nonces are first mapped to their even-y versions.
//
// The public nonce of the secret nonce must be one of the session's nonces,
// and the secret nonce must never be used again after this call.
func Sign(session *Session, secKey, secNonce []byte,
	signOpts ...SignOption) (*PartialSignature, error) {

	opts := defaultSignOptions()
	for _, option := range signOpts {
		option(opts)
	}

	sk, pubKey, err := SecretToKeyPair(secKey)
	if err != nil {
		return nil, err
	}
	defer sk.Zero()

	a, err := session.Coefficient(pubKey[:])
	if err != nil {
		return nil, err
	}

	k, err := parseSecNonce(secNonce)
	if err != nil {
		return nil, err
	}
	defer func() {
		for j := range k {
			k[j].Zero()
		}
	}()

	// An x-only public nonce stands for the point with the even y, so the
	// matching secret is the one that produces it.
	nonceSize := session.NonceSize()
	if nonceSize == XOnlyPointSize {
		for j := range k {
			r := mulBase(&k[j])
			if hasOddY(&r) {
				k[j].Negate()
			}
		}
	}
	pubNonce := pubNonceFromScalars(&k, nonceSize)
	if !session.containsNonce(pubNonce) {
		log.Warnf("Public nonce %x of key %x isn't part of the "+
			"session", pubNonce, pubKey[:])

		return nil, fmt.Errorf("%w: %x", ErrNonceNotInSession,
			pubNonce)
	}

	// Before we sign below, we'll multiply by the parity factors so the
	// key and nonces match the even-y versions of the final key and
	// nonce:
	//  * d = g_Q * state_Q * d'
	//  * k_j = g_R * state_R * k_j'
	keyState := session.KeyState()
	keyFactor := keyState.signFactor()
	sk.Mul(&keyFactor)

	nonceState := session.NonceState()
	nonceFactor := nonceState.signFactor()

	// With everything in place we can finally generate our partial
	// signature as: s = e*a*d + sum(b^j * k_j) mod n.
	var s btcec.ModNScalar
	s.Mul2(&session.challenge, &a).Mul(&sk)
	for j := range k {
		coeff := powModN(&session.nonceCoeff, uint64(j))
		k[j].Mul(&nonceFactor).Mul(&coeff)
		s.Add(&k[j])
	}

	sig := &PartialSignature{
		S:        s,
		PubKey:   pubKey,
		PubNonce: pubNonce,
	}

	log.Debugf("Created partial signature for key %x", pubKey[:])

	// If we're not in fast sign mode, then we'll also validate our partial
	// signature.
	if !opts.fastSign {
		valid, err := VerifyPartialSig(session, sig)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, fmt.Errorf("produced an invalid partial " +
				"signature")
		}
	}

	return sig, nil
}

// containsNonce reports whether the session was built with the given public
// nonce.
func (s *Session) containsNonce(pubNonce []byte) bool {
	for _, n := range s.pubNonces {
		if bytes.Equal(n, pubNonce) {
			return true
		}
	}

	return false
}
