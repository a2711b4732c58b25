package lnwire

import (
	"bytes"
	"io"
)

// UpdateFulfillHTLC is sent to settle an HTLC the counterparty offered, by
// revealing the payment preimage. The removal lands in the unacked
// changeset for the receiver's commitment.
type UpdateFulfillHTLC struct {
	// ID is the identifier the offering side assigned to the HTLC being
	// settled.
	ID uint64

	// PaymentPreimage is the preimage hashing to the HTLC's payment
	// hash.
	PaymentPreimage [32]byte
}

// A compile time check to ensure UpdateFulfillHTLC implements the
// lnwire.Message interface.
var _ Message = (*UpdateFulfillHTLC)(nil)

// Decode deserializes a serialized UpdateFulfillHTLC message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (u *UpdateFulfillHTLC) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&u.ID,
		&u.PaymentPreimage,
	)
}

// Encode serializes the target UpdateFulfillHTLC into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (u *UpdateFulfillHTLC) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		u.ID,
		u.PaymentPreimage,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (u *UpdateFulfillHTLC) MsgType() MessageType {
	return MsgUpdateFulfillHTLC
}
