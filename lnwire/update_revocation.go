package lnwire

import (
	"bytes"
	"io"
)

// UpdateRevocation revokes the sender's previous commitment transaction by
// revealing its revocation preimage, and announces the revocation hash for
// the commitment after the sender's current one.
type UpdateRevocation struct {
	// RevocationPreimage hashes to the revocation hash of the sender's
	// previous commitment, rendering that commitment unusable.
	RevocationPreimage [32]byte

	// NextRevocationHash is the revocation hash for the sender's next
	// commitment, letting the receiver construct it when committing.
	NextRevocationHash [32]byte
}

// A compile time check to ensure UpdateRevocation implements the
// lnwire.Message interface.
var _ Message = (*UpdateRevocation)(nil)

// Decode deserializes a serialized UpdateRevocation message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (u *UpdateRevocation) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&u.RevocationPreimage,
		&u.NextRevocationHash,
	)
}

// Encode serializes the target UpdateRevocation into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (u *UpdateRevocation) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		u.RevocationPreimage,
		u.NextRevocationHash,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (u *UpdateRevocation) MsgType() MessageType {
	return MsgUpdateRevocation
}
