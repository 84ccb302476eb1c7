package musigwire

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/lightningnetwork/musig2/musig2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// genNonce draws a public nonce in one of the two encodings.
func genNonce() *rapid.Generator[[]byte] {
	return rapid.Custom(func(t *rapid.T) []byte {
		size := rapid.SampledFrom([]int{
			musig2.PubNonceSize, musig2.PubNonceCompressedSize,
		}).Draw(t, "nonceSize")

		return rapid.SliceOfN(rapid.Byte(), size, size).Draw(t, "nonce")
	})
}

// genPartialSig draws a partial signature. Only the scalar has to be valid
// for the wire encoding.
func genPartialSig() *rapid.Generator[*musig2.PartialSignature] {
	return rapid.Custom(func(t *rapid.T) *musig2.PartialSignature {
		seed := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "s")
		s := sha256.Sum256(seed)

		sig := &musig2.PartialSignature{
			PubNonce: genNonce().Draw(t, "pubNonce"),
		}
		sig.S.SetByteSlice(s[:])
		copy(
			sig.PubKey[:],
			rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "pubKey"),
		)

		return sig
	})
}

func genSessionID(t *rapid.T) SessionID {
	var id SessionID
	copy(id[:], rapid.SliceOfN(
		rapid.Byte(), SessionIDSize, SessionIDSize,
	).Draw(t, "sessionID"))

	return id
}

// tlvStub returns a record that writes b as is under the given type.
func tlvStub(typ tlv.Type, b []byte) tlv.Record {
	return tlv.MakeStaticRecord(
		typ, nil, uint64(len(b)), tlv.StubEncoder(b), nil,
	)
}

// roundTrip writes msg with WriteMessage and reads it back.
func roundTrip(t require.TestingT, msg Message) Message {
	var buf bytes.Buffer
	n, err := WriteMessage(&buf, msg)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)

	return decoded
}

// TestMessageRoundTrip checks that every message decodes to what was
// encoded.
func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	t.Run("nonce", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			msg, err := NewNonceMsg(
				genSessionID(t), genNonce().Draw(t, "nonce"),
			)
			require.NoError(t, err)

			require.Equal(t, msg, roundTrip(t, msg))
		})
	})

	t.Run("partial sig", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			msg := NewPartialSigMsg(
				genSessionID(t), genPartialSig().Draw(t, "sig"),
			)

			decoded, ok := roundTrip(t, msg).(*PartialSigMsg)
			require.True(t, ok)
			require.Equal(t, msg.SessionID, decoded.SessionID)
			require.Equal(
				t, msg.PartialSig.Bytes(),
				decoded.PartialSig.Bytes(),
			)
		})
	})

	t.Run("final sig", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			sig := rapid.SliceOfN(
				rapid.Byte(), musig2.SignatureSize,
				musig2.SignatureSize,
			).Draw(t, "sig")

			msg, err := NewFinalSigMsg(genSessionID(t), sig)
			require.NoError(t, err)

			require.Equal(t, msg, roundTrip(t, msg))
		})
	})
}

// TestPartialSigMsgVerifies sends a real partial signature over the wire and
// verifies it on the other end.
func TestPartialSigMsgVerifies(t *testing.T) {
	t.Parallel()

	secret := sha256.Sum256([]byte("alice"))
	_, pubKey, err := musig2.SecretToKeyPair(secret[:])
	require.NoError(t, err)

	nonces, err := musig2.GenNonces()
	require.NoError(t, err)

	msg := []byte("Hello world!")
	session, err := musig2.NewSession(
		[][]byte{pubKey[:]}, [][]byte{nonces.PubNonce[:]}, msg,
	)
	require.NoError(t, err)

	sig, err := musig2.Sign(session, secret[:], nonces.SecNonce[:])
	require.NoError(t, err)

	id := NewSessionID(session.AggregateKey(), msg)
	require.NotEqual(t, id, NewSessionID(session.AggregateKey(), nil))

	decoded, ok := roundTrip(t, NewPartialSigMsg(id, sig)).(*PartialSigMsg)
	require.True(t, ok)

	valid, err := musig2.VerifyPartialSig(
		session, &decoded.PartialSig.PartialSignature,
	)
	require.NoError(t, err)
	require.True(t, valid)
}

// TestMessageDecodeErrors covers malformed payloads.
func TestMessageDecodeErrors(t *testing.T) {
	t.Parallel()

	var id SessionID
	id[0] = 0x01

	// A nonce message without the nonce record.
	var buf bytes.Buffer
	require.NoError(t, encodeStream(&buf, id.Record()))

	var nonceMsg NonceMsg
	err := nonceMsg.Decode(bytes.NewReader(buf.Bytes()))
	var missing *ErrMissingRecord
	require.ErrorAs(t, err, &missing)
	require.Equal(t, PubNonceRecordType, missing.Type)

	// A nonce record with a length that's neither encoding.
	bad := PubNonce(make([]byte, 65))
	buf.Reset()
	require.NoError(t, encodeStream(&buf, id.Record(), tlvStub(
		PubNonceRecordType, bad,
	)))
	require.Error(t, nonceMsg.Decode(bytes.NewReader(buf.Bytes())))

	// A partial signature whose scalar is zero.
	zeroSig := &musig2.PartialSignature{
		PubNonce: make([]byte, musig2.PubNonceSize),
	}
	buf.Reset()
	require.NoError(t, encodeStream(&buf, id.Record(), tlvStub(
		PartialSigRecordType, zeroSig.Bytes(),
	)))
	var sigMsg PartialSigMsg
	err = sigMsg.Decode(bytes.NewReader(buf.Bytes()))
	require.ErrorIs(t, err, musig2.ErrScalarOutOfRange)

	// Unknown message types are rejected.
	_, err = ReadMessage(bytes.NewReader([]byte{0x00, 0x63}))
	var unknown *UnknownMessage
	require.ErrorAs(t, err, &unknown)

	// A truncated type is an error.
	_, err = ReadMessage(bytes.NewReader([]byte{0x00}))
	require.Error(t, err)
}

// TestWriteMessageCleansUp makes sure nothing is left in the buffer when a
// message fails to encode.
func TestWriteMessageCleansUp(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.WriteString("prefix")

	msg := &NonceMsg{PubNonce: make(PubNonce, 10)}
	n, err := WriteMessage(&buf, msg)
	require.Error(t, err)
	require.Zero(t, n)
	require.Equal(t, "prefix", buf.String())

	_, err = NewNonceMsg(SessionID{}, make([]byte, 10))
	require.ErrorIs(t, err, musig2.ErrInvalidNonceSize)

	_, err = NewFinalSigMsg(SessionID{}, make([]byte, 63))
	require.ErrorIs(t, err, musig2.ErrInvalidByteSize)
}

// TestPartialSigScalar checks that the scalar survives the wire unchanged.
func TestPartialSigScalar(t *testing.T) {
	t.Parallel()

	var s btcec.ModNScalar
	s.SetInt(42)

	sig := &musig2.PartialSignature{
		S:        s,
		PubNonce: make([]byte, musig2.PubNonceCompressedSize),
	}
	decoded, ok := roundTrip(
		t, NewPartialSigMsg(SessionID{}, sig),
	).(*PartialSigMsg)
	require.True(t, ok)
	require.True(t, decoded.PartialSig.S.Equals(&s))
	require.Len(t, decoded.PartialSig.PubNonce, musig2.PubNonceCompressedSize)
}
