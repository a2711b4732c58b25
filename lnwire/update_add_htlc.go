package lnwire

import (
	"bytes"
	"io"
)

// UpdateAddHTLC is sent to offer a new HTLC to the counterparty. The HTLC
// lands in the unacked changeset for the receiver's commitment; a
// subsequent UpdateCommit moves it into a signed commitment transaction.
type UpdateAddHTLC struct {
	// ID identifies this HTLC among all HTLCs ever offered by the
	// sender on this channel. It starts at zero and is strictly
	// increasing.
	ID uint64

	// Amount is the value of the HTLC in milli-satoshis. It must be
	// greater than zero.
	Amount MilliSatoshi

	// PaymentHash is the SHA-256 hash whose preimage settles the HTLC.
	PaymentHash [32]byte

	// Expiry is the absolute locktime after which the HTLC can be
	// reclaimed by the sender. Only the seconds format is accepted.
	Expiry Locktime

	// Route is the opaque routing payload for downstream hops. The
	// engine carries it without interpretation.
	Route RouteBlob
}

// A compile time check to ensure UpdateAddHTLC implements the
// lnwire.Message interface.
var _ Message = (*UpdateAddHTLC)(nil)

// Decode deserializes a serialized UpdateAddHTLC message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (u *UpdateAddHTLC) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&u.ID,
		&u.Amount,
		&u.PaymentHash,
		&u.Expiry,
		&u.Route,
	)
}

// Encode serializes the target UpdateAddHTLC into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (u *UpdateAddHTLC) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		u.ID,
		u.Amount,
		u.PaymentHash,
		u.Expiry,
		u.Route,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (u *UpdateAddHTLC) MsgType() MessageType {
	return MsgUpdateAddHTLC
}
