package musigwire

import (
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
	"github.com/lightningnetwork/musig2/musig2"
)

// ErrMissingRecord is returned when a decoded message lacks one of its
// mandatory records.
type ErrMissingRecord struct {
	Msg  MessageType
	Type tlv.Type
}

// Error returns a human readable description of the missing record.
func (e *ErrMissingRecord) Error() string {
	return fmt.Sprintf("%v message is missing record type %d", e.Msg,
		e.Type)
}

// decodeStream decodes r with the given records and checks that every one of
// them was present.
func decodeStream(r io.Reader, msgType MessageType,
	records ...tlv.Record) error {

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	typeMap, err := stream.DecodeWithParsedTypesP2P(r)
	if err != nil {
		return err
	}

	for _, record := range records {
		if val, ok := typeMap[record.Type()]; !ok || val != nil {
			return &ErrMissingRecord{
				Msg:  msgType,
				Type: record.Type(),
			}
		}
	}

	return nil
}

// encodeStream encodes the given records to w.
func encodeStream(w io.Writer, records ...tlv.Record) error {
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// NonceMsg publishes a signer's public nonce for a round.
type NonceMsg struct {
	// SessionID is the round the nonce is for.
	SessionID SessionID

	// PubNonce is the public nonce of the sender.
	PubNonce PubNonce
}

// A compile-time check to ensure NonceMsg implements the Message interface.
var _ Message = (*NonceMsg)(nil)

// NewNonceMsg creates a nonce message, checking the nonce length.
func NewNonceMsg(id SessionID, pubNonce []byte) (*NonceMsg, error) {
	if !validPubNonceLen(uint64(len(pubNonce))) {
		return nil, fmt.Errorf("%w: public nonce is %d bytes",
			musig2.ErrInvalidNonceSize, len(pubNonce))
	}

	return &NonceMsg{
		SessionID: id,
		PubNonce:  append(PubNonce(nil), pubNonce...),
	}, nil
}

// Encode serializes the target NonceMsg into the passed io.Writer.
//
// This is part of the musigwire.Message interface.
func (n *NonceMsg) Encode(w io.Writer) error {
	return encodeStream(w, n.SessionID.Record(), n.PubNonce.Record())
}

// Decode deserializes a serialized NonceMsg stored in the passed io.Reader.
//
// This is part of the musigwire.Message interface.
func (n *NonceMsg) Decode(r io.Reader) error {
	return decodeStream(
		r, n.MsgType(), n.SessionID.Record(), n.PubNonce.Record(),
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the musigwire.Message interface.
func (n *NonceMsg) MsgType() MessageType {
	return MsgNonce
}

// PartialSigMsg carries a signer's partial signature for a round.
type PartialSigMsg struct {
	// SessionID is the round the signature is for.
	SessionID SessionID

	// PartialSig is the sender's partial signature.
	PartialSig PartialSig
}

// A compile-time check to ensure PartialSigMsg implements the Message
// interface.
var _ Message = (*PartialSigMsg)(nil)

// NewPartialSigMsg creates a partial signature message.
func NewPartialSigMsg(id SessionID,
	sig *musig2.PartialSignature) *PartialSigMsg {

	return &PartialSigMsg{
		SessionID:  id,
		PartialSig: NewPartialSig(sig),
	}
}

// Encode serializes the target PartialSigMsg into the passed io.Writer.
//
// This is part of the musigwire.Message interface.
func (p *PartialSigMsg) Encode(w io.Writer) error {
	return encodeStream(w, p.SessionID.Record(), p.PartialSig.Record())
}

// Decode deserializes a serialized PartialSigMsg stored in the passed
// io.Reader.
//
// This is part of the musigwire.Message interface.
func (p *PartialSigMsg) Decode(r io.Reader) error {
	return decodeStream(
		r, p.MsgType(), p.SessionID.Record(), p.PartialSig.Record(),
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the musigwire.Message interface.
func (p *PartialSigMsg) MsgType() MessageType {
	return MsgPartialSig
}

// FinalSigMsg announces the combined signature of a round.
type FinalSigMsg struct {
	// SessionID is the round the signature completes.
	SessionID SessionID

	// Sig is the final BIP-340 signature.
	Sig FinalSig
}

// A compile-time check to ensure FinalSigMsg implements the Message
// interface.
var _ Message = (*FinalSigMsg)(nil)

// NewFinalSigMsg creates a final signature message, checking the signature
// length.
func NewFinalSigMsg(id SessionID, sig []byte) (*FinalSigMsg, error) {
	if len(sig) != musig2.SignatureSize {
		return nil, fmt.Errorf("%w: signature is %d bytes, expected %d",
			musig2.ErrInvalidByteSize, len(sig),
			musig2.SignatureSize)
	}

	msg := &FinalSigMsg{
		SessionID: id,
	}
	copy(msg.Sig[:], sig)

	return msg, nil
}

// Encode serializes the target FinalSigMsg into the passed io.Writer.
//
// This is part of the musigwire.Message interface.
func (f *FinalSigMsg) Encode(w io.Writer) error {
	return encodeStream(w, f.SessionID.Record(), f.Sig.Record())
}

// Decode deserializes a serialized FinalSigMsg stored in the passed
// io.Reader.
//
// This is part of the musigwire.Message interface.
func (f *FinalSigMsg) Decode(r io.Reader) error {
	return decodeStream(r, f.MsgType(), f.SessionID.Record(), f.Sig.Record())
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the musigwire.Message interface.
func (f *FinalSigMsg) MsgType() MessageType {
	return MsgFinalSig
}
