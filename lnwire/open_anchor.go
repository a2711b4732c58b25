package lnwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// OpenAnchor is sent by the anchor-creating side once the anchor
// transaction exists, telling the counterparty which output funds the
// channel.
type OpenAnchor struct {
	// Txid is the transaction ID of the anchor transaction.
	Txid chainhash.Hash

	// OutputIndex is the index of the 2-of-2 multisig output within the
	// anchor transaction.
	OutputIndex uint32

	// Amount is the value of the anchor output in satoshis, and thus the
	// total capacity of the channel.
	Amount btcutil.Amount
}

// A compile time check to ensure OpenAnchor implements the lnwire.Message
// interface.
var _ Message = (*OpenAnchor)(nil)

// Decode deserializes a serialized OpenAnchor message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (o *OpenAnchor) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&o.Txid,
		&o.OutputIndex,
		&o.Amount,
	)
}

// Encode serializes the target OpenAnchor into the passed buffer observing
// the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (o *OpenAnchor) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		o.Txid,
		o.OutputIndex,
		o.Amount,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (o *OpenAnchor) MsgType() MessageType {
	return MsgOpenAnchor
}
