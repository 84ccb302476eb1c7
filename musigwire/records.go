package musigwire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/lightningnetwork/musig2/musig2"
)

const (
	// SessionIDRecordType is the TLV type used to encode the ID of the
	// signing round a message belongs to.
	SessionIDRecordType tlv.Type = 0

	// PubNonceRecordType is the TLV type used to encode a public nonce.
	PubNonceRecordType tlv.Type = 2

	// PartialSigRecordType is the TLV type used to encode a partial
	// signature together with the signer's key and nonce.
	PartialSigRecordType tlv.Type = 4

	// FinalSigRecordType is the TLV type used to encode a final 64 byte
	// signature.
	FinalSigRecordType tlv.Type = 6
)

// SessionIDSize is the size of a session ID.
const SessionIDSize = 32

// SessionIDTag is the tag of the hash that derives a session ID.
var SessionIDTag = []byte("MuSig/sessionid")

// SessionID identifies one signing round between a set of signers.
type SessionID [SessionIDSize]byte

// NewSessionID derives the session ID of a round from the aggregate key and
// the message. Every signer of a session computes the same ID without having
// to agree on one first.
func NewSessionID(aggKey, msg []byte) SessionID {
	return SessionID(*chainhash.TaggedHash(SessionIDTag, aggKey, msg))
}

// Record returns a TLV record that can be used to encode/decode the session
// ID from a given TLV stream.
func (s *SessionID) Record() tlv.Record {
	return tlv.MakePrimitiveRecord(
		SessionIDRecordType, (*[SessionIDSize]byte)(s),
	)
}

// PubNonce is a musig2 public nonce, either two x-only points or two
// compressed points.
type PubNonce []byte

// Record returns a TLV record that can be used to encode/decode the public
// nonce from a given TLV stream.
func (n *PubNonce) Record() tlv.Record {
	return tlv.MakeDynamicRecord(
		PubNonceRecordType, n, func() uint64 {
			return uint64(len(*n))
		}, pubNonceEncoder, pubNonceDecoder,
	)
}

// validPubNonceLen reports whether l is the length of a public nonce in one of
// the two supported encodings.
func validPubNonceLen(l uint64) bool {
	return l == musig2.PubNonceSize || l == musig2.PubNonceCompressedSize
}

// pubNonceEncoder is a custom TLV encoder for the PubNonce type.
func pubNonceEncoder(w io.Writer, val interface{}, _ *[8]byte) error {
	if v, ok := val.(*PubNonce); ok && validPubNonceLen(uint64(len(*v))) {
		_, err := w.Write(*v)
		return err
	}

	return tlv.NewTypeForEncodingErr(val, "musigwire.PubNonce")
}

// pubNonceDecoder is a custom TLV decoder for the PubNonce record.
func pubNonceDecoder(r io.Reader, val interface{}, _ *[8]byte,
	l uint64) error {

	if v, ok := val.(*PubNonce); ok && validPubNonceLen(l) {
		nonce := make([]byte, l)
		if _, err := io.ReadFull(r, nonce); err != nil {
			return err
		}

		*v = nonce
		return nil
	}

	return tlv.NewTypeForDecodingErr(
		val, "musigwire.PubNonce", l, musig2.PubNonceSize,
	)
}

// PartialSig is a partial signature as it travels between signers: the
// scalar, the signer's x-only key and its public nonce.
type PartialSig struct {
	musig2.PartialSignature
}

// NewPartialSig wraps a partial signature for the wire.
func NewPartialSig(sig *musig2.PartialSignature) PartialSig {
	return PartialSig{
		PartialSignature: *sig,
	}
}

// Record returns a TLV record that can be used to encode/decode the partial
// signature from a given TLV stream.
func (p *PartialSig) Record() tlv.Record {
	return tlv.MakeDynamicRecord(
		PartialSigRecordType, p, func() uint64 {
			return uint64(musig2.ScalarSize + musig2.PubKeySize +
				len(p.PubNonce))
		}, partialSigEncoder, partialSigDecoder,
	)
}

// partialSigEncoder encodes a partial signature as:
// s {32} || pubkey {32} || pubnonce {64 or 66}.
func partialSigEncoder(w io.Writer, val interface{}, _ *[8]byte) error {
	if v, ok := val.(*PartialSig); ok {
		if !validPubNonceLen(uint64(len(v.PubNonce))) {
			return tlv.NewTypeForEncodingErr(
				val, "musigwire.PartialSig",
			)
		}

		return v.PartialSignature.Encode(w)
	}

	return tlv.NewTypeForEncodingErr(val, "musigwire.PartialSig")
}

// partialSigDecoder decodes a partial signature of either length.
func partialSigDecoder(r io.Reader, val interface{}, _ *[8]byte,
	l uint64) error {

	v, ok := val.(*PartialSig)
	if !ok || (l != musig2.PartialSigSize &&
		l != musig2.PartialSigCompressedSize) {

		return tlv.NewTypeForDecodingErr(
			val, "musigwire.PartialSig", l, musig2.PartialSigSize,
		)
	}

	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}

	sig, err := musig2.ParsePartialSig(b)
	if err != nil {
		return err
	}

	*v = NewPartialSig(sig)

	return nil
}

// FinalSig is a complete 64 byte BIP-340 signature.
type FinalSig [musig2.SignatureSize]byte

// Record returns a TLV record that can be used to encode/decode the final
// signature from a given TLV stream.
func (f *FinalSig) Record() tlv.Record {
	return tlv.MakePrimitiveRecord(
		FinalSigRecordType, (*[musig2.SignatureSize]byte)(f),
	)
}
