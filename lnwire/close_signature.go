package lnwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcutil"
)

// CloseSignature proposes a fee for the mutual close transaction along with
// the sender's signature for a close transaction paying that fee. Both
// parties exchange these, each round stepping toward the other's proposal,
// until the fees match and the close transaction is fully signed.
type CloseSignature struct {
	// CloseFee is the fee, in satoshis, the sender proposes for the
	// mutual close transaction.
	CloseFee btcutil.Amount

	// Sig is the sender's signature for a close transaction paying
	// CloseFee.
	Sig Sig
}

// A compile time check to ensure CloseSignature implements the
// lnwire.Message interface.
var _ Message = (*CloseSignature)(nil)

// Decode deserializes a serialized CloseSignature message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *CloseSignature) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&c.CloseFee,
		&c.Sig,
	)
}

// Encode serializes the target CloseSignature into the passed buffer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *CloseSignature) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		c.CloseFee,
		c.Sig,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *CloseSignature) MsgType() MessageType {
	return MsgCloseSignature
}
