// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// SignatureSize is the size of a final BIP-340 signature: R.x || s.
const SignatureSize = 64

// CombineSigs combines the partial signatures of a session into the final
// 64 byte signature R || s, where:
//   - s = sum(s_i) + e*g_Q*tweak_Q + g_R*tweak_R
//
// The two correction terms account for the key and nonce tweaks. Both are
// zero for an untweaked session.
func CombineSigs(session *Session,
	partialSigs []*PartialSignature) ([]byte, error) {

	scalars := make([]btcec.ModNScalar, len(partialSigs))
	for i, sig := range partialSigs {
		if sig == nil {
			return nil, fmt.Errorf("partial signature %d is nil", i)
		}
		if sig.S.IsZero() {
			return nil, fmt.Errorf("partial signature %d: %w", i,
				errScalarRange("s"))
		}
		scalars[i] = sig.S
	}

	return combineScalars(session, scalars), nil
}

// CombineScalars is like CombineSigs, but takes the raw 32 byte partial
// signature scalars. Every scalar must be nonzero and below N.
func CombineScalars(session *Session, partialSigs [][]byte) ([]byte, error) {
	scalars := make([]btcec.ModNScalar, len(partialSigs))
	for i, b := range partialSigs {
		s, err := parseScalar(fmt.Sprintf("partial signature %d", i), b)
		if err != nil {
			return nil, err
		}
		scalars[i] = s
	}

	return combineScalars(session, scalars), nil
}

func combineScalars(session *Session, scalars []btcec.ModNScalar) []byte {
	var combinedSig btcec.ModNScalar
	for i := range scalars {
		combinedSig.Add(&scalars[i])
	}

	// If the key was tweaked, the signers only signed for the untweaked
	// part of it, so we add e*g*tweak at the very end:
	//  * s = s + e*g*tweak
	keyState := session.KeyState()
	keyCorrection := keyState.tweakCorrection()
	keyCorrection.Mul(&session.challenge)
	combinedSig.Add(&keyCorrection)

	// Same for the nonce tweaks, which don't get multiplied by e.
	nonceState := session.NonceState()
	nonceCorrection := nonceState.tweakCorrection()
	combinedSig.Add(&nonceCorrection)

	sig := make([]byte, 0, SignatureSize)
	sig = append(sig, session.FinalNonce()...)
	sig = append(sig, scalarBytes(&combinedSig)...)

	log.Debugf("Combined %d partial signatures into %x", len(scalars), sig)

	return sig
}
