package peer

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
)

// ErrPeerGone is returned by a PacketTransport when the remote node has
// disconnected and no further packets will arrive.
var ErrPeerGone = errors.New("peer connection gone")

// Anchor describes the on-chain output funding the channel: the 2-of-2
// multisig both commitment transactions spend.
type Anchor struct {
	// Txid is the anchor transaction id.
	Txid chainhash.Hash

	// OutputIndex is the funded output's index within the anchor
	// transaction.
	OutputIndex uint32

	// Amount is the output value in satoshis, the channel capacity.
	Amount btcutil.Amount

	// WitnessScript is the 2-of-2 multisig script gating the output.
	WitnessScript []byte
}

// Signer holds the engine's signing keys and the deterministic revocation
// secret chain. Implementations must be safe for concurrent use, as a
// single Signer may back many peers.
type Signer interface {
	// SignTheirCommit signs the counterparty's commitment transaction
	// with our commit key, spending the anchor via its witness script.
	SignTheirCommit(tx *wire.MsgTx, witnessScript []byte) (lnwire.Sig,
		error)

	// VerifyCommitSig checks the counterparty's signature over our
	// commitment transaction against the anchor witness script.
	VerifyCommitSig(tx *wire.MsgTx, witnessScript []byte,
		theirKey *btcec.PublicKey, sig lnwire.Sig) error

	// SignMutualClose signs a cooperative close transaction.
	SignMutualClose(tx *wire.MsgTx, witnessScript []byte) (lnwire.Sig,
		error)

	// RevocationPreimage derives the revocation preimage for one of our
	// commitments. The derivation is deterministic in the commitment
	// number.
	RevocationPreimage(commitNum uint64) ([32]byte, error)

	// RevocationHash returns the SHA-256 hash of the preimage for the
	// given commitment number.
	RevocationHash(commitNum uint64) ([32]byte, error)
}

// TxBuilder constructs the channel's transactions. The engine treats the
// results as opaque: it never inspects outputs, it only signs, verifies
// and stores them.
type TxBuilder interface {
	// CreateCommitTx builds the commitment transaction for one side of
	// the channel at the given state. The returned map carries the
	// output permutation applied by canonical sorting.
	CreateCommitTx(localFinal, remoteFinal *btcec.PublicKey,
		localDelay, remoteDelay lnwire.Locktime, anchor *Anchor,
		revocationHash [32]byte, state *chanstate.State,
		forSide chanstate.Side) (*wire.MsgTx, []int, error)

	// CreateCloseTx builds the mutual close transaction paying each
	// side's final balance to its delivery script, with the given fee
	// already deducted per the close negotiation.
	CreateCloseTx(anchor *Anchor, ourScript, theirScript []byte,
		ourAmount, theirAmount lnwire.MilliSatoshi,
		fee btcutil.Amount) (*wire.MsgTx, error)

	// Redeem2of2 returns the 2-of-2 multisig script over the two commit
	// keys, in canonical key order.
	Redeem2of2(keyA, keyB *btcec.PublicKey) ([]byte, error)

	// RedeemSingle returns a single-key redeem script for the given
	// key, used for close delivery outputs.
	RedeemSingle(key *btcec.PublicKey) ([]byte, error)

	// P2SH wraps a redeem script into a pay-to-script-hash output
	// script.
	P2SH(script []byte) ([]byte, error)
}

// PacketTransport moves whole packets between the two endpoints of the
// channel. Framing, encryption and key exchange are the host's business;
// the engine only requires packets to arrive intact and in order.
type PacketTransport interface {
	// SendPacket writes a single packet to the wire.
	SendPacket(msg lnwire.Message) error

	// RecvPacket blocks until the next packet arrives, returning
	// ErrPeerGone once the connection is finished.
	RecvPacket() (lnwire.Message, error)
}

// RandomOracle is the host's entropy source. It is shared across peers and
// must be safe for concurrent use. The engine derives all protocol secrets
// through the Signer; the oracle exists so hosts can seed their Signer
// implementations and tests can substitute deterministic entropy.
type RandomOracle interface {
	// ReadBytes returns n bytes of entropy.
	ReadBytes(n int) ([]byte, error)
}
