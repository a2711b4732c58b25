package lnwire

import (
	"bytes"
	"io"
)

// UpdateFailHTLC is sent to remove an HTLC the counterparty offered without
// settling it, refunding the offering side. The removal lands in the
// unacked changeset for the receiver's commitment.
type UpdateFailHTLC struct {
	// ID is the identifier the offering side assigned to the HTLC being
	// failed.
	ID uint64

	// Reason is an opaque failure payload passed back toward the payment
	// origin. The engine never interprets it.
	Reason OpaqueReason
}

// A compile time check to ensure UpdateFailHTLC implements the
// lnwire.Message interface.
var _ Message = (*UpdateFailHTLC)(nil)

// Decode deserializes a serialized UpdateFailHTLC message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (u *UpdateFailHTLC) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&u.ID,
		&u.Reason,
	)
}

// Encode serializes the target UpdateFailHTLC into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (u *UpdateFailHTLC) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		u.ID,
		u.Reason,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (u *UpdateFailHTLC) MsgType() MessageType {
	return MsgUpdateFailHTLC
}
