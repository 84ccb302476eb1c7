// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// VerifyPartialSig checks a partial signature against the public key and
// public nonce it carries:
//   - s_i*G == g_R*state_R*(R_{i,1} + b*R_{i,2}) + e*a_i*g_Q*state_Q*P_i
//
// An invalid signature is reported as false with a nil error. An error is
// only returned for input that can't be checked at all: a nil signature, a
// nonce in a different encoding than the session's, a nonce or key that can't
// be lifted, or a key that isn't part of the session.
func VerifyPartialSig(session *Session, sig *PartialSignature) (bool, error) {
	if sig == nil {
		return false, fmt.Errorf("nil partial signature")
	}

	nonceSize := session.NonceSize()
	if len(sig.PubNonce) != NonceRounds*nonceSize {
		return false, fmt.Errorf("%w: partial signature nonce is %d "+
			"bytes, session uses %d", ErrNonceSizeMismatch,
			len(sig.PubNonce), NonceRounds*nonceSize)
	}

	a, err := session.Coefficient(sig.PubKey[:])
	if err != nil {
		return false, err
	}

	pubNonce, err := parsePubNonce(sig.PubNonce, nonceSize)
	if err != nil {
		return false, err
	}
	signKey, err := liftX(sig.PubKey[:]).Unpack()
	if err != nil {
		return false, err
	}

	// We'll perform a similar aggregation and blinding operation as was
	// done for the aggregate nonce: R' = R_1' + b*R_2', and then map it
	// the same way the final nonce was mapped to even y.
	var pubNonceJ btcec.JacobianPoint
	for j := range pubNonce {
		coeff := powModN(&session.nonceCoeff, uint64(j))
		term := mulPoint(&coeff, &pubNonce[j])
		pubNonceJ = addPoints(&pubNonceJ, &term)
	}
	nonceState := session.NonceState()
	nonceFactor := nonceState.signFactor()
	pubNonceJ = mulPoint(&nonceFactor, &pubNonceJ)

	// Next we build the key factor e*a*g_Q*state_Q.
	keyState := session.KeyState()
	keyFactor := keyState.signFactor()
	keyFactor.Mul(&a).Mul(&session.challenge)

	// In the final set, we'll check that: s*G == R' + e*a*g*P.
	sG := mulBase(&sig.S)
	eP := mulPoint(&keyFactor, &signKey)
	rP := addPoints(&pubNonceJ, &eP)

	valid := pointsEqual(&sG, &rP)
	if !valid {
		log.Debugf("Partial signature of key %x is invalid",
			sig.PubKey[:])
	}

	return valid, nil
}

// VerifySig checks a final signature against the session's aggregate key,
// using the session's challenge:
//   - s*G == R + e*Q
//
// where R is lifted from the first 32 bytes of the signature and Q is the
// aggregate key, both with even y. Signatures with the wrong length are an
// error, everything else is reported as a boolean.
func VerifySig(session *Session, sig []byte) (bool, error) {
	if len(sig) != SignatureSize {
		return false, errSize("signature", len(sig), SignatureSize)
	}

	// The challenge commits to R, so a signature over another nonce can't
	// verify under this session.
	if !bytes.Equal(sig[:XOnlyPointSize], session.FinalNonce()) {
		return false, nil
	}

	r, err := liftX(sig[:XOnlyPointSize]).Unpack()
	if err != nil {
		return false, nil
	}

	var s btcec.ModNScalar
	var sBytes [ScalarSize]byte
	copy(sBytes[:], sig[XOnlyPointSize:])
	if overflow := s.SetBytes(&sBytes); overflow != 0 {
		return false, nil
	}

	q, err := liftX(session.AggregateKey()).Unpack()
	if err != nil {
		return false, err
	}

	sG := mulBase(&s)
	eQ := mulPoint(&session.challenge, &q)
	rQ := addPoints(&r, &eQ)

	return pointsEqual(&sG, &rQ), nil
}

// VerifySchnorr is a plain BIP-340 verifier that doesn't need a session: it
// recomputes the challenge from the signature, the x-only public key and the
// message, which may have any length.
func VerifySchnorr(pubKey, msg, sig []byte) (bool, error) {
	if len(pubKey) != PubKeySize {
		return false, errSize("public key", len(pubKey), PubKeySize)
	}
	if len(sig) != SignatureSize {
		return false, errSize("signature", len(sig), SignatureSize)
	}

	p, err := liftX(pubKey).Unpack()
	if err != nil {
		return false, nil
	}

	var s btcec.ModNScalar
	var sBytes [ScalarSize]byte
	copy(sBytes[:], sig[XOnlyPointSize:])
	if overflow := s.SetBytes(&sBytes); overflow != 0 {
		return false, nil
	}

	var challengeMsg bytes.Buffer
	challengeMsg.Write(sig[:XOnlyPointSize])
	challengeMsg.Write(pubKey)
	challengeMsg.Write(msg)
	e := hashToScalar(ChallengeHashTag, challengeMsg.Bytes())

	// R = s*G - e*P
	e.Negate()
	sG := mulBase(&s)
	eP := mulPoint(&e, &p)
	r := addPoints(&sG, &eP)

	if isInfinity(&r) || hasOddY(&r) {
		return false, nil
	}

	return bytes.Equal(xOnlyBytes(&r), sig[:XOnlyPointSize]), nil
}
