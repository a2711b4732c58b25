package lnwire

import (
	"bytes"
	"io"
)

// OpenCommitSig carries the sender's signature for the counterparty's first
// commitment transaction. Once both sides hold a valid OpenCommitSig, the
// anchor is safe to rely upon.
type OpenCommitSig struct {
	// CommitSig is the signature over the counterparty's commitment
	// transaction, valid against the anchor's 2-of-2 multisig.
	CommitSig Sig
}

// A compile time check to ensure OpenCommitSig implements the
// lnwire.Message interface.
var _ Message = (*OpenCommitSig)(nil)

// Decode deserializes a serialized OpenCommitSig message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (o *OpenCommitSig) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r, &o.CommitSig)
}

// Encode serializes the target OpenCommitSig into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (o *OpenCommitSig) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w, o.CommitSig)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (o *OpenCommitSig) MsgType() MessageType {
	return MsgOpenCommitSig
}
