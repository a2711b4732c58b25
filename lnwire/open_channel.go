package lnwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// OpenChannel is the first message of the channel open handshake. Both
// parties send one, announcing their commitment parameters, their keys, the
// revocation hashes for the first two commitments, and which of them will
// create the anchor transaction.
type OpenChannel struct {
	// RevocationHash is the hash whose preimage retires the sender's
	// very first commitment transaction.
	RevocationHash [32]byte

	// NextRevocationHash is the revocation hash for the sender's second
	// commitment, piggybacked here so the counterparty can build it
	// without an extra round trip.
	NextRevocationHash [32]byte

	// CommitKey is the key the sender will use within the anchor's
	// 2-of-2 multisig.
	CommitKey *btcec.PublicKey

	// FinalKey is the key the sender wants its commitment and close
	// outputs paid to.
	FinalKey *btcec.PublicKey

	// Delay is how long the sender wants the counterparty's commitment
	// outputs locked. Only the seconds format is accepted.
	Delay Locktime

	// InitialFeeRate is the commitment fee rate the sender proposes, in
	// satoshis per 1000 bytes of commitment transaction.
	InitialFeeRate uint64

	// Anch announces whether the sender will create the anchor. Exactly
	// one side of the channel may announce WillCreateAnchor.
	Anch AnchorOffer

	// MinDepth is the number of confirmations the sender requires on the
	// anchor before the channel is usable.
	MinDepth uint32
}

// A compile time check to ensure OpenChannel implements the lnwire.Message
// interface.
var _ Message = (*OpenChannel)(nil)

// Decode deserializes a serialized OpenChannel message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (o *OpenChannel) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&o.RevocationHash,
		&o.NextRevocationHash,
		&o.CommitKey,
		&o.FinalKey,
		&o.Delay,
		&o.InitialFeeRate,
		&o.Anch,
		&o.MinDepth,
	)
}

// Encode serializes the target OpenChannel into the passed buffer observing
// the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (o *OpenChannel) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		o.RevocationHash,
		o.NextRevocationHash,
		o.CommitKey,
		o.FinalKey,
		o.Delay,
		o.InitialFeeRate,
		o.Anch,
		o.MinDepth,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (o *OpenChannel) MsgType() MessageType {
	return MsgOpenChannel
}
