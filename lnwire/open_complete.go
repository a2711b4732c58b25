package lnwire

import (
	"bytes"
	"io"
)

// OpenComplete signals that the sender has seen the anchor reach its
// required depth and considers the channel open. Once both sides have sent
// and received one, the channel enters normal operation.
type OpenComplete struct {
}

// A compile time check to ensure OpenComplete implements the lnwire.Message
// interface.
var _ Message = (*OpenComplete)(nil)

// Decode deserializes a serialized OpenComplete message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (o *OpenComplete) Decode(r io.Reader, pver uint32) error {
	return nil
}

// Encode serializes the target OpenComplete into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (o *OpenComplete) Encode(w *bytes.Buffer, pver uint32) error {
	return nil
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (o *OpenComplete) MsgType() MessageType {
	return MsgOpenComplete
}
