// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// code derived from https://github .com/btcsuite/btcd/blob/master/wire/message.go
// Copyright (C) 2015-2022 The Lightning Network Developers

package musigwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMsgBody is the largest payload any message is allowed to have.
const MaxMsgBody = 65533

// MessageType is the unique 2 byte big-endian integer that indicates the type
// of message on the wire.
type MessageType uint16

// The message types exchanged during a signing round.
const (
	MsgNonce      MessageType = 1
	MsgPartialSig MessageType = 2
	MsgFinalSig   MessageType = 3
)

// String return the string representation of message type.
func (t MessageType) String() string {
	switch t {
	case MsgNonce:
		return "Nonce"
	case MsgPartialSig:
		return "PartialSig"
	case MsgFinalSig:
		return "FinalSig"
	default:
		return "<unknown>"
	}
}

// ErrorEncodeMessage is used when failed to encode the message payload.
func ErrorEncodeMessage(err error) error {
	return fmt.Errorf("failed to encode message to buffer, got %w", err)
}

// ErrorPayloadTooLarge is used when the payload size exceeds the
// MaxMsgBody.
func ErrorPayloadTooLarge(size int) error {
	return fmt.Errorf(
		"message payload is too large - encoded %d bytes, "+
			"but maximum message payload is %d bytes",
		size, MaxMsgBody,
	)
}

// UnknownMessage is an implementation of the error interface that allows the
// creation of an error in response to an unknown message.
type UnknownMessage struct {
	messageType MessageType
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unable to parse message of unknown type: %v",
		u.messageType)
}

// Message is a message exchanged between the signers of a round.
type Message interface {
	// Decode reads the bytes stream and converts it to the object.
	Decode(io.Reader) error

	// Encode converts object to the bytes stream and write it into the
	// writer.
	Encode(io.Writer) error

	// MsgType returns the type of the message.
	MsgType() MessageType
}

// makeEmptyMessage creates a new empty message of the proper concrete type
// based on the passed message type.
func makeEmptyMessage(msgType MessageType) (Message, error) {
	var msg Message

	switch msgType {
	case MsgNonce:
		msg = &NonceMsg{}
	case MsgPartialSig:
		msg = &PartialSigMsg{}
	case MsgFinalSig:
		msg = &FinalSigMsg{}
	default:
		return nil, &UnknownMessage{msgType}
	}

	return msg, nil
}

// WriteMessage writes a Message to a buffer including the message type and
// returns the number of bytes written. If any error is encountered, the
// buffer is reset to its original state, so either all or none of the message
// bytes are written.
//
// NOTE: this method is not concurrent safe.
func WriteMessage(buf *bytes.Buffer, msg Message) (int, error) {
	oldByteSize := buf.Len()

	cleanBrokenBytes := func(b *bytes.Buffer) int {
		b.Truncate(oldByteSize)
		return 0
	}

	var mType [2]byte
	binary.BigEndian.PutUint16(mType[:], uint16(msg.MsgType()))
	msgTypeBytes, _ := buf.Write(mType[:])

	if err := msg.Encode(buf); err != nil {
		return cleanBrokenBytes(buf), ErrorEncodeMessage(err)
	}

	lenp := buf.Len() - oldByteSize - msgTypeBytes
	if lenp > MaxMsgBody {
		return cleanBrokenBytes(buf), ErrorPayloadTooLarge(lenp)
	}

	log.Tracef("Wrote %v message of %d bytes", msg.MsgType(), lenp)

	return buf.Len() - oldByteSize, nil
}

// ReadMessage reads, validates, and parses a message from r. A TLV stream
// carries no length of its own, so the message body runs until the end of r.
func ReadMessage(r io.Reader) (Message, error) {
	// First, we'll read out the first two bytes of the message so we can
	// create the proper empty message.
	var mType [2]byte
	if _, err := io.ReadFull(r, mType[:]); err != nil {
		return nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(mType[:]))

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}

	// The payload is read in full first so a bogus record length can't
	// make us allocate more than the maximum body size.
	payload, err := io.ReadAll(io.LimitReader(r, MaxMsgBody+1))
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxMsgBody {
		return nil, ErrorPayloadTooLarge(len(payload))
	}

	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("unable to decode %v message: %w",
			msgType, err)
	}

	log.Tracef("Read %v message of %d bytes", msgType, len(payload))

	return msg, nil
}
