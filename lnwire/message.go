package lnwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType is the unique 2 byte big-endian integer that indicates the
// type of message on the wire. Messages are framed as a 2 byte big-endian
// total length, the 2 byte type, then the type-specific body.
type MessageType uint16

// The defined message types of the channel update protocol.
const (
	MsgError             MessageType = 17
	MsgOpenChannel       MessageType = 32
	MsgOpenAnchor        MessageType = 33
	MsgOpenCommitSig     MessageType = 34
	MsgOpenComplete      MessageType = 35
	MsgCloseClearing     MessageType = 38
	MsgCloseSignature    MessageType = 39
	MsgUpdateAddHTLC     MessageType = 128
	MsgUpdateFulfillHTLC MessageType = 130
	MsgUpdateFailHTLC    MessageType = 131
	MsgUpdateCommit      MessageType = 132
	MsgUpdateRevocation  MessageType = 133
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgError:
		return "Error"
	case MsgOpenChannel:
		return "OpenChannel"
	case MsgOpenAnchor:
		return "OpenAnchor"
	case MsgOpenCommitSig:
		return "OpenCommitSig"
	case MsgOpenComplete:
		return "OpenComplete"
	case MsgCloseClearing:
		return "CloseClearing"
	case MsgCloseSignature:
		return "CloseSignature"
	case MsgUpdateAddHTLC:
		return "UpdateAddHTLC"
	case MsgUpdateFulfillHTLC:
		return "UpdateFulfillHTLC"
	case MsgUpdateFailHTLC:
		return "UpdateFailHTLC"
	case MsgUpdateCommit:
		return "UpdateCommit"
	case MsgUpdateRevocation:
		return "UpdateRevocation"
	default:
		return "<unknown>"
	}
}

// UnknownMessage is an implementation of the error interface that is
// returned in response to a message of unknown type on the wire.
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

// Serializable is an interface which defines a wire serializable object.
type Serializable interface {
	// Decode reads the bytes stream and converts it to the object.
	Decode(io.Reader, uint32) error

	// Encode converts object to the bytes stream and writes it into the
	// buffer.
	Encode(*bytes.Buffer, uint32) error
}

// Message is an interface that defines a channel protocol message. The
// interface is general in order to allow implementing types full control
// over the representation of their data.
type Message interface {
	Serializable
	MsgType() MessageType
}

// makeEmptyMessage creates a new empty message of the proper concrete type
// based on the passed message type.
func makeEmptyMessage(msgType MessageType) (Message, error) {
	var msg Message

	switch msgType {
	case MsgError:
		msg = &Error{}
	case MsgOpenChannel:
		msg = &OpenChannel{}
	case MsgOpenAnchor:
		msg = &OpenAnchor{}
	case MsgOpenCommitSig:
		msg = &OpenCommitSig{}
	case MsgOpenComplete:
		msg = &OpenComplete{}
	case MsgCloseClearing:
		msg = &CloseClearing{}
	case MsgCloseSignature:
		msg = &CloseSignature{}
	case MsgUpdateAddHTLC:
		msg = &UpdateAddHTLC{}
	case MsgUpdateFulfillHTLC:
		msg = &UpdateFulfillHTLC{}
	case MsgUpdateFailHTLC:
		msg = &UpdateFailHTLC{}
	case MsgUpdateCommit:
		msg = &UpdateCommit{}
	case MsgUpdateRevocation:
		msg = &UpdateRevocation{}
	default:
		return nil, &UnknownMessage{msgType}
	}

	return msg, nil
}

// WriteMessage writes a Message to the passed buffer, prepending the 2 byte
// length of type plus body and the 2 byte message type. The buffer is
// restored to its original state if any error is encountered, so either all
// or none of the message bytes are written.
func WriteMessage(buf *bytes.Buffer, msg Message, pver uint32) (int, error) {
	oldByteSize := buf.Len()

	cleanBrokenBytes := func(b *bytes.Buffer) int {
		b.Truncate(oldByteSize)
		return 0
	}

	// Encode the type and body into a scratch buffer first so the final
	// length is known up front.
	var body bytes.Buffer
	var mType [2]byte
	binary.BigEndian.PutUint16(mType[:], uint16(msg.MsgType()))
	if _, err := body.Write(mType[:]); err != nil {
		return cleanBrokenBytes(buf), err
	}

	if err := msg.Encode(&body, pver); err != nil {
		return cleanBrokenBytes(buf), fmt.Errorf("failed to encode "+
			"message to buffer, got %w", err)
	}

	if body.Len()-2 > MaxMsgBody {
		return cleanBrokenBytes(buf), fmt.Errorf("message payload is "+
			"too large - encoded %d bytes, but maximum message "+
			"payload is %d bytes", body.Len()-2, MaxMsgBody)
	}

	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(body.Len()))
	if _, err := buf.Write(length[:]); err != nil {
		return cleanBrokenBytes(buf), err
	}

	if _, err := buf.Write(body.Bytes()); err != nil {
		return cleanBrokenBytes(buf), err
	}

	return buf.Len() - oldByteSize, nil
}

// ReadMessage reads, validates, and parses the next message from r. The
// whole declared frame must be consumed by the decoded message, otherwise
// the message is rejected as malformed.
func ReadMessage(r io.Reader, pver uint32) (Message, error) {
	var length [2]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}

	frameLen := binary.BigEndian.Uint16(length[:])
	if frameLen < 2 {
		return nil, fmt.Errorf("frame of %d bytes too short for "+
			"message type", frameLen)
	}

	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(frame[:2]))
	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}

	bodyReader := bytes.NewReader(frame[2:])
	if err := msg.Decode(bodyReader, pver); err != nil {
		return nil, err
	}

	if bodyReader.Len() != 0 {
		return nil, fmt.Errorf("message %v left %d trailing bytes in "+
			"frame", msgType, bodyReader.Len())
	}

	return msg, nil
}
