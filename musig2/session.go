// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/musig2/lnutils"
)

var (
	// NonceBlindTag is that tag used to construct the value b, which
	// blinds the second public nonce of each party.
	NonceBlindTag = []byte("MuSig/noncecoef")

	// ChallengeHashTag is the tag used to construct the challenge hash.
	ChallengeHashTag = []byte("BIP0340/challenge")
)

// Session is everything the signers, the combiner and the verifier need for
// one signing round: the key set, the aggregate nonce, the message and the
// values derived from them. A session is never modified after NewSession
// returns, so it can be shared between goroutines without locking.
type Session struct {
	cfg Config

	keys *KeyContext

	nonces    *NonceAggregate
	pubNonces [][]byte

	msg []byte

	// nonceCoeff is b, the coefficient of the second aggregate nonce.
	nonceCoeff btcec.ModNScalar

	// internalNonce is R = R_1 + b*R_2 before nonce tweaks.
	internalNonce btcec.JacobianPoint

	// nonceState is the tweak accumulator of R. Its point is the final
	// nonce whose x coordinate ends up in the signature.
	nonceState PointState

	// challenge is e = H(tag=BIP0340/challenge, R || Q || m) mod n.
	challenge btcec.ModNScalar
}

// NewSession builds the signing session for the given x-only public keys,
// public nonces and message:
//   - Q: the aggregate of the keys, with the key tweaks applied
//   - b = H(tag=MuSig/noncecoef, aggnonce || Q || m) mod n
//   - R = R_1 + b*R_2, with the nonce tweaks applied
//   - e = H(tag=BIP0340/challenge, R || Q || m) mod n
//
// Keys and nonces may be passed in any order. Either a complete session is
// returned, or an error.
func NewSession(pubKeys, pubNonces [][]byte, msg []byte,
	opts ...SessionOption) (*Session, error) {

	cfg := buildConfig(opts)

	keyCtx, err := newKeyContext(pubKeys, cfg.KeyTweaks)
	if err != nil {
		return nil, err
	}

	nonceTweaks, err := ParseTweaks(cfg.NonceTweaks)
	if err != nil {
		return nil, fmt.Errorf("nonce tweaks: %w", err)
	}

	nonces, err := AggregateNonces(pubNonces)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:       cfg,
		keys:      keyCtx,
		nonces:    nonces,
		pubNonces: make([][]byte, len(pubNonces)),
		msg:       append([]byte(nil), msg...),
	}
	for i, n := range pubNonces {
		s.pubNonces[i] = append([]byte(nil), n...)
	}

	// Next we'll compute the value b, that blinds our second public
	// nonce:
	//  * b = h(tag=NonceBlindTag, aggNonce || Q || m).
	var nonceMsgBuf bytes.Buffer
	nonceMsgBuf.Write(nonces.Bytes())
	nonceMsgBuf.Write(keyCtx.PubKey())
	nonceMsgBuf.Write(msg)
	s.nonceCoeff = hashToScalar(NonceBlindTag, nonceMsgBuf.Bytes())

	// With our nonce blinding value, we'll now combine both the
	// aggregate nonces:
	//  * R = sum(b^j * R_j)
	for j := 0; j < NonceRounds; j++ {
		coeff := powModN(&s.nonceCoeff, uint64(j))
		rj := nonces.Point(j)
		term := mulPoint(&coeff, &rj)
		s.internalNonce = addPoints(&s.internalNonce, &term)
	}
	if isInfinity(&s.internalNonce) {
		return nil, fmt.Errorf("%w: signing nonce is the point at "+
			"infinity", ErrInvalidPoint)
	}
	s.internalNonce = toAffine(&s.internalNonce)

	s.nonceState, err = ApplyTweaks(&s.internalNonce, nonceTweaks)
	if err != nil {
		return nil, fmt.Errorf("unable to tweak signing nonce: %w", err)
	}

	// Next we'll create the challenge hash that commits to the final
	// nonce, combined public key and also the message:
	//  * e = H(tag=ChallengeHashTag, R || Q || m) mod n
	var challengeMsg bytes.Buffer
	challengeMsg.Write(s.nonceState.XOnly())
	challengeMsg.Write(keyCtx.PubKey())
	challengeMsg.Write(msg)
	s.challenge = hashToScalar(ChallengeHashTag, challengeMsg.Bytes())

	log.Debugf("Created session for %d signers, aggregate key %x, "+
		"final nonce %x", keyCtx.NumKeys(), keyCtx.PubKey(),
		s.nonceState.XOnly())
	log.Tracef("Session key state: %v",
		lnutils.SpewLogClosure(s.keys.state))

	return s, nil
}

// Config returns a copy of the tweak configuration the session was built
// with.
func (s *Session) Config() Config {
	return buildConfig([]SessionOption{WithConfig(s.cfg)})
}

// PubKeys returns the sorted key set of the session.
func (s *Session) PubKeys() [][]byte {
	return s.keys.Keys()
}

// NumSigners returns the number of keys in the session, counting
// duplicates.
func (s *Session) NumSigners() int {
	return s.keys.NumKeys()
}

// Coefficient returns the key aggregation coefficient of pubKey.
func (s *Session) Coefficient(pubKey []byte) (btcec.ModNScalar, error) {
	return s.keys.Coefficient(pubKey)
}

// HasKey reports whether pubKey is part of the session's key set.
func (s *Session) HasKey(pubKey []byte) bool {
	_, err := s.keys.Coefficient(pubKey)
	return err == nil
}

// AggregateKey returns the x-only aggregate key, after key tweaks.
func (s *Session) AggregateKey() []byte {
	return s.keys.PubKey()
}

// InternalKey returns the compressed aggregate key before key tweaks.
func (s *Session) InternalKey() []byte {
	return s.keys.InternalKey()
}

// KeyState returns a copy of the tweak accumulator of the aggregate key.
func (s *Session) KeyState() PointState {
	return s.keys.KeyState()
}

// PubNonces returns the public nonces the session was built from, in the
// order they were passed in.
func (s *Session) PubNonces() [][]byte {
	nonces := make([][]byte, len(s.pubNonces))
	for i := range s.pubNonces {
		nonces[i] = append([]byte(nil), s.pubNonces[i]...)
	}

	return nonces
}

// NonceSize returns the per-point encoding size of the public nonces.
func (s *Session) NonceSize() int {
	return s.nonces.NonceSize()
}

// AggregateNonce returns the two aggregate nonces as x-only points.
func (s *Session) AggregateNonce() []byte {
	return s.nonces.Bytes()
}

// NonceCoefficient returns b serialized as 32 bytes.
func (s *Session) NonceCoefficient() []byte {
	return scalarBytes(&s.nonceCoeff)
}

// InternalNonce returns the compressed signing nonce before nonce tweaks.
func (s *Session) InternalNonce() []byte {
	return compressedBytes(&s.internalNonce)
}

// NonceState returns a copy of the tweak accumulator of the signing nonce.
func (s *Session) NonceState() PointState {
	return s.nonceState
}

// FinalNonce returns the x coordinate of the final signing nonce R, which is
// the first half of the final signature.
func (s *Session) FinalNonce() []byte {
	return s.nonceState.XOnly()
}

// Challenge returns e serialized as 32 bytes.
func (s *Session) Challenge() []byte {
	return scalarBytes(&s.challenge)
}

// Message returns the message being signed.
func (s *Session) Message() []byte {
	return append([]byte(nil), s.msg...)
}
