package lnwire

import (
	"bytes"
	"io"
)

// UpdateCommit is sent to commit to all staged changes on the receiver's
// commitment. The attached signature covers the receiver's new commitment
// transaction, which both sides can construct independently thanks to the
// canonical transaction ordering. An UpdateCommit which includes no changes
// is a protocol violation.
type UpdateCommit struct {
	// CommitSig is the sender's signature for the receiver's new
	// commitment transaction.
	CommitSig Sig
}

// A compile time check to ensure UpdateCommit implements the lnwire.Message
// interface.
var _ Message = (*UpdateCommit)(nil)

// Decode deserializes a serialized UpdateCommit message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (u *UpdateCommit) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r, &u.CommitSig)
}

// Encode serializes the target UpdateCommit into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (u *UpdateCommit) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w, u.CommitSig)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (u *UpdateCommit) MsgType() MessageType {
	return MsgUpdateCommit
}
