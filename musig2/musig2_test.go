// Copyright 2013-2022 The btcsuite developers

package musig2

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testMsg = "Hello world!"

// testSigner is a signer with a deterministic key and nonce, derived from a
// name the same way across test runs.
type testSigner struct {
	secKey []byte
	pubKey []byte
	nonces *Nonces
}

// newTestSigner derives the signer's secret as sha256(name), and its nonce
// seed as sha256(secret) || sha256(sha256(secret)).
func newTestSigner(t require.TestingT, name []byte) *testSigner {
	secret := sha256.Sum256(name)

	_, pubKey, err := SecretToKeyPair(secret[:])
	require.NoError(t, err)

	n1 := sha256.Sum256(secret[:])
	n2 := sha256.Sum256(n1[:])

	var seed [SecNonceSize]byte
	copy(seed[:], n1[:])
	copy(seed[ScalarSize:], n2[:])

	nonces, err := GenNonces(WithNonceSeed(seed))
	require.NoError(t, err)

	return &testSigner{
		secKey: secret[:],
		pubKey: pubKey[:],
		nonces: nonces,
	}
}

type testSignerSet []*testSigner

func newTestSignerSet(t require.TestingT, names ...string) testSignerSet {
	signers := make(testSignerSet, len(names))
	for i, name := range names {
		signers[i] = newTestSigner(t, []byte(name))
	}

	return signers
}

func (s testSignerSet) pubKeys() [][]byte {
	keys := make([][]byte, len(s))
	for i, signer := range s {
		keys[i] = signer.pubKey
	}

	return keys
}

func (s testSignerSet) pubNonces() [][]byte {
	nonces := make([][]byte, len(s))
	for i, signer := range s {
		nonces[i] = signer.nonces.PubNonce[:]
	}

	return nonces
}

// signAll creates a partial signature for every signer of the set.
func (s testSignerSet) signAll(t require.TestingT,
	session *Session) []*PartialSignature {

	sigs := make([]*PartialSignature, len(s))
	for i, signer := range s {
		sig, err := Sign(
			session, signer.secKey, signer.nonces.SecNonce[:],
		)
		require.NoError(t, err)
		sigs[i] = sig
	}

	return sigs
}

func mustHex(t require.TestingT, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

// tweakFromString returns sha256(s), used as a 32 byte tweak.
func tweakFromString(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

// TestMuSig2Vector checks a fixed three party signing session against
// values computed with an independent implementation.
func TestMuSig2Vector(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob", "carol")

	require.Equal(
		t, "9997a497d964fc1a62885b05a51166a65a90df00492c8d7cf61d6acc"+
			"f54803be", hex.EncodeToString(signers[0].pubKey),
	)
	require.Equal(
		t, "a81ef990e7db9689ea7ae26ac4fdffef5f32350f04179d5080e239934"+
			"d1a056f9620e498c4182049995f4173184fe677bc5ee6b2933df0"+
			"edc5ac6be28cf13339",
		hex.EncodeToString(signers[0].nonces.PubNonce[:]),
	)

	testCases := []struct {
		name    string
		opts    []SessionOption
		aggKey  string
		aggSig  string
		partial []string
	}{
		{
			name: "no tweaks",
			aggKey: "77a1f7e09c5a54f40f73ee35c6b7edeae46c91d14ac60" +
				"4943b47d6dcbd02ecec",
			aggSig: "3f127e4915db67e11cf99608982976cb9f56fc4d49bdaf" +
				"8e1d904711537b2cafba2c9a6f76fc77134a7ccdf2ab6e6e" +
				"b9afa219a1270b641661889a7f0b86fdf8",
			partial: []string{
				"cf905abb7475ab819d818979458bdbd31ac22cb98ba1d6d" +
					"9559103c9b811ed50",
				"02757c33e786af86ed237af99e0be2a26e589f190c32bd8" +
					"db8b088c3d094b421",
				"e826c3801b001c0abfd7c97fc7d6b042e1362ab53e7f6fe" +
					"b13196c7e53169dc8",
			},
		},
		{
			name: "key tweaks",
			opts: []SessionOption{WithKeyTweaks(
				tweakFromString("tweak1"),
				tweakFromString("tweak2"),
			)},
			aggKey: "395680951830fd70d2b7d9e0bf0eedfee396eccf64173a" +
				"a2a1e70df37a8fb56d",
			aggSig: "7c65500220a7170b3a2c8fff69084a6e1b115b91042bca" +
				"e671b476a5c7bfd9069c5b3e344c6676716d2c67bcd4cc99" +
				"318014cbf9608c8c116a906eb1d842971a",
		},
		{
			name: "nonce tweak",
			opts: []SessionOption{WithNonceTweaks(
				tweakFromString("tweak1"),
			)},
			aggKey: "77a1f7e09c5a54f40f73ee35c6b7edeae46c91d14ac60" +
				"4943b47d6dcbd02ecec",
			aggSig: "7bff9db8a0cbeeade63ba37535a94dec0f02b6ff5ad36a" +
				"3d00d257a9e7b93e8d57bfa5988951576476c1b330b67bca" +
				"bbd7419063c97d908d3c121137445fcb93",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			session, err := NewSession(
				signers.pubKeys(), signers.pubNonces(),
				[]byte(testMsg), tc.opts...,
			)
			require.NoError(t, err)
			require.Equal(
				t, tc.aggKey,
				hex.EncodeToString(session.AggregateKey()),
			)

			sigs := signers.signAll(t, session)
			for i, p := range tc.partial {
				require.Equal(
					t, p, hex.EncodeToString(
						scalarBytes(&sigs[i].S),
					), "partial sig %d", i,
				)
			}

			finalSig, err := CombineSigs(session, sigs)
			require.NoError(t, err)
			require.Equal(
				t, tc.aggSig, hex.EncodeToString(finalSig),
			)

			valid, err := VerifySig(session, finalSig)
			require.NoError(t, err)
			require.True(t, valid)

			// A stock BIP-340 verifier must accept the signature
			// under the published aggregate key.
			valid, err = VerifySchnorr(
				session.AggregateKey(), []byte(testMsg),
				finalSig,
			)
			require.NoError(t, err)
			require.True(t, valid)
		})
	}
}

// TestMuSig2SignRoundTrip checks that for random signer sets of up to ten
// signers, with and without tweaks, the combined signature verifies.
func TestMuSig2SignRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		numSigners := rapid.IntRange(1, 10).Draw(t, "numSigners")
		numKeyTweaks := rapid.IntRange(0, 3).Draw(t, "numKeyTweaks")
		numNonceTweaks := rapid.IntRange(0, 2).Draw(t, "numNonceTweaks")
		seed := rapid.SliceOfN(rapid.Byte(), 8, 8).Draw(t, "seed")
		msg := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "msg")

		signers := make(testSignerSet, numSigners)
		for i := range signers {
			signers[i] = newTestSigner(
				t, []byte(fmt.Sprintf("%x-%d", seed, i)),
			)
		}

		var opts []SessionOption
		for i := 0; i < numKeyTweaks; i++ {
			opts = append(opts, WithKeyTweaks(tweakFromString(
				fmt.Sprintf("%x-key-%d", seed, i),
			)))
		}
		for i := 0; i < numNonceTweaks; i++ {
			opts = append(opts, WithNonceTweaks(tweakFromString(
				fmt.Sprintf("%x-nonce-%d", seed, i),
			)))
		}

		session, err := NewSession(
			signers.pubKeys(), signers.pubNonces(), msg, opts...,
		)
		require.NoError(t, err)

		sigs := signers.signAll(t, session)
		for _, sig := range sigs {
			valid, err := VerifyPartialSig(session, sig)
			require.NoError(t, err)
			require.True(t, valid)
		}

		finalSig, err := CombineSigs(session, sigs)
		require.NoError(t, err)

		valid, err := VerifySig(session, finalSig)
		require.NoError(t, err)
		require.True(t, valid, "session: %v", spew.Sdump(
			DisplayHex(session),
		))

		valid, err = VerifySchnorr(session.AggregateKey(), msg, finalSig)
		require.NoError(t, err)
		require.True(t, valid)
	})
}

// TestMuSig2BIP340Compat checks the combined signature against the btcec
// BIP-340 verifier, which only accepts 32 byte messages.
func TestMuSig2BIP340Compat(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob", "carol", "dave")
	msg := sha256.Sum256([]byte(testMsg))

	session, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), msg[:],
		WithKeyTweaks(tweakFromString("taproot")),
	)
	require.NoError(t, err)

	finalSig, err := CombineSigs(session, signers.signAll(t, session))
	require.NoError(t, err)

	sig, err := schnorr.ParseSignature(finalSig)
	require.NoError(t, err)
	aggKey, err := schnorr.ParsePubKey(session.AggregateKey())
	require.NoError(t, err)

	require.True(t, sig.Verify(msg[:], aggKey))
}

// TestMuSig2CorruptPartialSig makes sure a single corrupted partial
// signature is pinned on its signer and breaks the combined signature.
func TestMuSig2CorruptPartialSig(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob", "carol")
	session, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
	)
	require.NoError(t, err)

	sigs := signers.signAll(t, session)

	// Flip one bit of bob's serialized signature and parse it back.
	raw := sigs[1].Bytes()
	raw[7] ^= 0x01
	corrupted, err := ParsePartialSig(raw)
	require.NoError(t, err)
	sigs[1] = corrupted

	for i, sig := range sigs {
		valid, err := VerifyPartialSig(session, sig)
		require.NoError(t, err)
		require.Equal(t, i != 1, valid, "signer %d", i)
	}

	finalSig, err := CombineSigs(session, sigs)
	require.NoError(t, err)

	valid, err := VerifySig(session, finalSig)
	require.NoError(t, err)
	require.False(t, valid)
}

// TestMuSig2CompressedNonces runs a session where the signers publish their
// nonces with the compressed encoding.
func TestMuSig2CompressedNonces(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob", "carol")

	pubNonces := make([][]byte, len(signers))
	for i, signer := range signers {
		nonce, err := CompressedPubNonceFromSecret(
			signer.nonces.SecNonce[:],
		)
		require.NoError(t, err)
		pubNonces[i] = nonce
	}

	session, err := NewSession(
		signers.pubKeys(), pubNonces, []byte(testMsg),
		WithKeyTweaks(tweakFromString("tweak1")),
	)
	require.NoError(t, err)
	require.Equal(t, CompressedPointSize, session.NonceSize())

	sigs := signers.signAll(t, session)
	for i, sig := range sigs {
		require.Equal(t, pubNonces[i], sig.PubNonce)
		require.Len(t, sig.Bytes(), PartialSigCompressedSize)
	}

	finalSig, err := CombineSigs(session, sigs)
	require.NoError(t, err)

	valid, err := VerifySig(session, finalSig)
	require.NoError(t, err)
	require.True(t, valid)
}

// TestMuSig2InfinityNonce checks that a signer who cancels out the nonces of
// another one doesn't make the session fail. The signature is invalid, but
// every step runs to completion.
func TestMuSig2InfinityNonce(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "mallory")

	aliceNonce, err := CompressedPubNonceFromSecret(
		signers[0].nonces.SecNonce[:],
	)
	require.NoError(t, err)

	// Mallory publishes the negation of alice's nonces and uses the
	// negated secrets to sign.
	malloryNonce := append([]byte(nil), aliceNonce...)
	malloryNonce[0] ^= 0x01
	malloryNonce[CompressedPointSize] ^= 0x01

	k, err := parseSecNonce(signers[0].nonces.SecNonce[:])
	require.NoError(t, err)
	var mallorySecNonce [SecNonceSize]byte
	for j := range k {
		k[j].Negate()
		k[j].PutBytesUnchecked(mallorySecNonce[j*ScalarSize:])
	}

	session, err := NewSession(
		signers.pubKeys(), [][]byte{aliceNonce, malloryNonce},
		[]byte(testMsg),
	)
	require.NoError(t, err)

	g := generator()
	for j := 0; j < NonceRounds; j++ {
		p := session.nonces.Point(j)
		require.True(t, pointsEqual(&g, &p))
	}

	aliceSig, err := Sign(
		session, signers[0].secKey, signers[0].nonces.SecNonce[:],
	)
	require.NoError(t, err)
	mallorySig, err := Sign(
		session, signers[1].secKey, mallorySecNonce[:],
	)
	require.NoError(t, err)

	finalSig, err := CombineSigs(
		session, []*PartialSignature{aliceSig, mallorySig},
	)
	require.NoError(t, err)

	valid, err := VerifySig(session, finalSig)
	require.NoError(t, err)
	require.False(t, valid)
}

// TestMuSig2ConcurrentSigning signs from many goroutines against one shared
// session.
func TestMuSig2ConcurrentSigning(t *testing.T) {
	t.Parallel()

	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("signer-%d", i)
	}
	signers := newTestSignerSet(t, names...)

	session, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
	)
	require.NoError(t, err)

	sigs := make([]*PartialSignature, len(signers))
	errs := make([]error, len(signers))

	var wg sync.WaitGroup
	for i, signer := range signers {
		wg.Add(1)
		go func(i int, signer *testSigner) {
			defer wg.Done()

			sigs[i], errs[i] = Sign(
				session, signer.secKey,
				signer.nonces.SecNonce[:],
			)
		}(i, signer)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	finalSig, err := CombineSigs(session, sigs)
	require.NoError(t, err)

	valid, err := VerifySig(session, finalSig)
	require.NoError(t, err)
	require.True(t, valid)
}

// TestSignErrors covers the input validation of Sign.
func TestSignErrors(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob")
	outsider := newTestSigner(t, []byte("eve"))

	session, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
	)
	require.NoError(t, err)

	_, err = Sign(session, outsider.secKey, outsider.nonces.SecNonce[:])
	require.ErrorIs(t, err, ErrKeyNotInSession)

	_, err = Sign(session, signers[0].secKey[:31], nil)
	require.ErrorIs(t, err, ErrInvalidByteSize)

	_, err = Sign(
		session, make([]byte, ScalarSize),
		signers[0].nonces.SecNonce[:],
	)
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	_, err = Sign(session, signers[0].secKey, make([]byte, SecNonceSize))
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	_, err = Sign(session, signers[0].secKey, make([]byte, 10))
	require.ErrorIs(t, err, ErrInvalidByteSize)

	// A nonce the session wasn't built from can't produce a usable
	// signature, with or without the final check.
	fresh, err := GenNonces()
	require.NoError(t, err)
	_, err = Sign(session, signers[0].secKey, fresh.SecNonce[:])
	require.ErrorIs(t, err, ErrNonceNotInSession)
	_, err = Sign(
		session, signers[0].secKey, fresh.SecNonce[:], WithFastSign(),
	)
	require.ErrorIs(t, err, ErrNonceNotInSession)
}

// TestCombineAndVerifyErrors covers malformed input to the combiner and the
// verifiers.
func TestCombineAndVerifyErrors(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob")
	session, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
	)
	require.NoError(t, err)

	// A scalar of N or above is rejected.
	over := mustHex(
		t, "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8c"+
			"d0364141",
	)
	_, err = CombineScalars(session, [][]byte{over})
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	_, err = CombineScalars(session, [][]byte{make([]byte, ScalarSize)})
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	_, err = CombineScalars(session, [][]byte{{0x01}})
	require.ErrorIs(t, err, ErrInvalidByteSize)

	_, err = ParsePartialSig(make([]byte, PartialSigSize-1))
	require.ErrorIs(t, err, ErrInvalidByteSize)

	raw := make([]byte, PartialSigSize)
	copy(raw, over)
	_, err = ParsePartialSig(raw)
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	// The raw scalar path gives the same signature as the structured
	// one.
	sigs := signers.signAll(t, session)
	scalars := make([][]byte, len(sigs))
	for i, sig := range sigs {
		scalars[i] = sig.Bytes()[:ScalarSize]
	}
	fromScalars, err := CombineScalars(session, scalars)
	require.NoError(t, err)
	fromSigs, err := CombineSigs(session, sigs)
	require.NoError(t, err)
	require.Equal(t, fromSigs, fromScalars)

	// Malformed signatures are an error, invalid ones are just false.
	_, err = VerifySig(session, fromSigs[:63])
	require.ErrorIs(t, err, ErrInvalidByteSize)

	bad := append([]byte(nil), fromSigs...)
	bad[63] ^= 0x01
	valid, err := VerifySig(session, bad)
	require.NoError(t, err)
	require.False(t, valid)

	valid, err = VerifySchnorr(session.AggregateKey(), []byte("other"),
		fromSigs)
	require.NoError(t, err)
	require.False(t, valid)

	// A partial signature in the wrong nonce encoding can't be checked.
	sigs[0].PubNonce = append(sigs[0].PubNonce, 0x00, 0x00)
	_, err = VerifyPartialSig(session, sigs[0])
	require.ErrorIs(t, err, ErrNonceSizeMismatch)
}

// TestSessionDeterminism checks that building a session twice, with the keys
// and nonces in a different order, yields the same values.
func TestSessionDeterminism(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob", "carol", "dave")
	tweaks := []SessionOption{WithKeyTweaks(
		tweakFromString("a"), tweakFromString("b"),
	)}

	s1, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
		tweaks...,
	)
	require.NoError(t, err)

	reversed := make(testSignerSet, len(signers))
	for i := range signers {
		reversed[len(signers)-1-i] = signers[i]
	}
	s2, err := NewSession(
		reversed.pubKeys(), reversed.pubNonces(), []byte(testMsg),
		tweaks...,
	)
	require.NoError(t, err)

	d1, d2 := DisplayHex(s1), DisplayHex(s2)
	delete(d1, "pub_nonces")
	delete(d2, "pub_nonces")
	require.Equal(t, d1, d2)

	// Swapping the tweak order changes the key.
	s3, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
		WithKeyTweaks(tweakFromString("b"), tweakFromString("a")),
	)
	require.NoError(t, err)
	require.NotEqual(t, s1.AggregateKey(), s3.AggregateKey())
}

// TestSessionTweakNeutrality checks that an empty tweak list is the identity.
func TestSessionTweakNeutrality(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob", "carol")

	plain, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
	)
	require.NoError(t, err)
	empty, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
		WithConfig(Config{KeyTweaks: [][]byte{}}),
	)
	require.NoError(t, err)

	keyState := empty.KeyState()
	require.True(t, keyState.Tweak.IsZero())
	var one btcec.ModNScalar
	one.SetInt(1)
	require.True(t, keyState.State.Equals(&one))

	s1, err := CombineSigs(plain, signers.signAll(t, plain))
	require.NoError(t, err)
	s2, err := CombineSigs(empty, signers.signAll(t, empty))
	require.NoError(t, err)
	require.Equal(t, s1, s2)
}

// TestDisplayHex spot checks the debug rendering of a session.
func TestDisplayHex(t *testing.T) {
	t.Parallel()

	signers := newTestSignerSet(t, "alice", "bob", "carol")
	session, err := NewSession(
		signers.pubKeys(), signers.pubNonces(), []byte(testMsg),
	)
	require.NoError(t, err)

	d := DisplayHex(session)
	require.Equal(
		t, "9da91e53f72d4cb2bde3e7e94d65bc568e328a14a42dd9590042f1a3e"+
			"480606f34a431e4b7a7f9cd795ac91fe7a91a2543846a06b0771fb"+
			"bd38ab8e8a7196dd7", d["group_nonce"],
	)
	require.Equal(
		t, "6bcc378c4e82f231e05a1c33beb3e32af666b8b26c6e03ca77f895442"+
			"6e289cf", d["nonce_coeff"],
	)
	require.Equal(
		t, "cfa3b5c0002d644af275fe7ddcbcf93507ff00a1588c196dfed16e663"+
			"1984f63", d["challenge"],
	)
	require.Equal(t, hex.EncodeToString([]byte(testMsg)), d["message"])
	require.Equal(t, "32", d["nonce_encoding"])
}
