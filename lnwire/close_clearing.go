package lnwire

import (
	"bytes"
	"io"
)

// CloseClearing begins the cooperative close of a channel. The sender
// commits to the script its close output must pay to, and implicitly
// promises to add no further HTLCs. Once both sides have sent one and all
// in-flight HTLCs have drained, close fee negotiation begins.
type CloseClearing struct {
	// ScriptPubkey is the script the sender wants its final balance
	// paid to.
	ScriptPubkey DeliveryScript
}

// A compile time check to ensure CloseClearing implements the
// lnwire.Message interface.
var _ Message = (*CloseClearing)(nil)

// Decode deserializes a serialized CloseClearing message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *CloseClearing) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r, &c.ScriptPubkey)
}

// Encode serializes the target CloseClearing into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *CloseClearing) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w, c.ScriptPubkey)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *CloseClearing) MsgType() MessageType {
	return MsgCloseClearing
}
