package channeldb

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
	"github.com/lightningnetwork/channeld/shachain"
)

// SideConfig is the set of per-side channel parameters exchanged during the
// open handshake.
type SideConfig struct {
	// CommitKey is the side's key within the anchor multisig.
	CommitKey *btcec.PublicKey

	// FinalKey is the key the side's settled outputs pay to.
	FinalKey *btcec.PublicKey

	// Delay is how long the side wants the counterparty's commitment
	// outputs locked.
	Delay lnwire.Locktime

	// MinDepth is the anchor depth the side requires.
	MinDepth uint32

	// FeeRate is the commitment fee rate the side announced.
	FeeRate uint64

	// OfferAnchor records whether this side created the anchor.
	OfferAnchor bool
}

// Commit is the serializable form of one commitment in a chain, ordered
// oldest to newest when stored as a slice.
type Commit struct {
	// CommitNum is the commitment's position in the chain.
	CommitNum uint64

	// RevocationHash is the hash whose preimage retires the commitment.
	RevocationHash [32]byte

	// State is the channel state the commitment encodes.
	State *chanstate.State

	// Tx is the built commitment transaction.
	Tx *wire.MsgTx

	// Sig is the signature authorizing Tx to spend the anchor.
	Sig lnwire.Sig

	// Unacked are the staged changes appended since this commitment was
	// created, still awaiting crossover at the next revocation.
	Unacked []chanstate.StagingChange
}

// Channel is the durable snapshot of a single open channel: everything
// needed to resume the engine after a restart. The staging states are not
// stored; they are reconstructed by replaying each chain tip's unacked
// changes on top of its committed state.
type Channel struct {
	// PeerID is the compressed public key identifying the remote node.
	PeerID [33]byte

	// LocalCfg and RemoteCfg are the two sides' negotiated parameters.
	LocalCfg  SideConfig
	RemoteCfg SideConfig

	// LocalNextRevocationHash is the hash for our commitment after the
	// current local tip.
	LocalNextRevocationHash [32]byte

	// RemoteNextRevocationHash is the counterparty's announced next
	// revocation hash, valid when HaveRemoteNextHash is set.
	RemoteNextRevocationHash [32]byte

	// HaveRemoteNextHash records whether a commitment may currently be
	// extended onto the remote chain.
	HaveRemoteNextHash bool

	// HtlcIDCounter is the id the next locally offered HTLC will use.
	HtlcIDCounter uint64

	// AnchorTxid, AnchorOutputIndex and AnchorAmount locate and size
	// the anchor output.
	AnchorTxid        chainhash.Hash
	AnchorOutputIndex uint32
	AnchorAmount      btcutil.Amount

	// AnchorWitnessScript is the anchor's 2-of-2 multisig script.
	AnchorWitnessScript []byte

	// AnchorWeCreated records whether the local node funded the anchor.
	AnchorWeCreated bool

	// LocalCommits and RemoteCommits are the live commitment chains,
	// tail first.
	LocalCommits  []*Commit
	RemoteCommits []*Commit

	// TheirPreimages is the revocation ladder of every preimage the
	// counterparty has revealed.
	TheirPreimages *shachain.Ladder
}

// serializeChannel encodes the full channel snapshot.
func serializeChannel(channel *Channel) ([]byte, error) {
	var b bytes.Buffer

	if err := writeBytes(&b, channel.PeerID[:]); err != nil {
		return nil, err
	}
	if err := writeSideConfig(&b, &channel.LocalCfg); err != nil {
		return nil, err
	}
	if err := writeSideConfig(&b, &channel.RemoteCfg); err != nil {
		return nil, err
	}

	err := writeElements(&b,
		channel.LocalNextRevocationHash,
		channel.RemoteNextRevocationHash,
		channel.HaveRemoteNextHash,
		channel.HtlcIDCounter,
		channel.AnchorTxid,
		channel.AnchorOutputIndex,
		uint64(channel.AnchorAmount),
	)
	if err != nil {
		return nil, err
	}

	if err := writeVarBytes(&b, channel.AnchorWitnessScript); err != nil {
		return nil, err
	}
	if err := writeBool(&b, channel.AnchorWeCreated); err != nil {
		return nil, err
	}

	if err := writeCommitChain(&b, channel.LocalCommits); err != nil {
		return nil, err
	}
	if err := writeCommitChain(&b, channel.RemoteCommits); err != nil {
		return nil, err
	}

	var ladder bytes.Buffer
	if err := channel.TheirPreimages.Encode(&ladder); err != nil {
		return nil, err
	}
	if err := writeVarBytes(&b, ladder.Bytes()); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// deserializeChannel decodes a snapshot produced by serializeChannel.
func deserializeChannel(serialized []byte) (*Channel, error) {
	r := bytes.NewReader(serialized)
	channel := &Channel{}

	peerID, err := readBytes(r, 33)
	if err != nil {
		return nil, err
	}
	copy(channel.PeerID[:], peerID)

	if err := readSideConfig(r, &channel.LocalCfg); err != nil {
		return nil, err
	}
	if err := readSideConfig(r, &channel.RemoteCfg); err != nil {
		return nil, err
	}

	var anchorAmount uint64
	err = readElements(r,
		&channel.LocalNextRevocationHash,
		&channel.RemoteNextRevocationHash,
		&channel.HaveRemoteNextHash,
		&channel.HtlcIDCounter,
		&channel.AnchorTxid,
		&channel.AnchorOutputIndex,
		&anchorAmount,
	)
	if err != nil {
		return nil, err
	}
	channel.AnchorAmount = btcutil.Amount(anchorAmount)

	if channel.AnchorWitnessScript, err = readVarBytes(r); err != nil {
		return nil, err
	}
	if err := readBool(r, &channel.AnchorWeCreated); err != nil {
		return nil, err
	}

	if channel.LocalCommits, err = readCommitChain(r); err != nil {
		return nil, err
	}
	if channel.RemoteCommits, err = readCommitChain(r); err != nil {
		return nil, err
	}

	ladderBytes, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	channel.TheirPreimages, err = shachain.NewLadderFromReader(
		bytes.NewReader(ladderBytes),
	)
	if err != nil {
		return nil, err
	}

	return channel, nil
}
