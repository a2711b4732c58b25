package peer

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
)

// commitInfo is a single commitment within one side's chain: the channel
// state it encodes, the built transaction, the counterparty's signature
// authorizing it, and the staged changes appended since it was created.
type commitInfo struct {
	// prev points at the commitment this one supersedes. It is nil only
	// for the very first commitment. The pointer is non-owning; the
	// chain owns its commitments.
	prev *commitInfo

	// commitNum is zero for the first commitment and increments by one
	// per step.
	commitNum uint64

	// revocationHash is the hash whose preimage retires this
	// commitment.
	revocationHash [32]byte

	// state is the channel state snapshot this commitment encodes.
	state *chanstate.State

	// tx is the built commitment transaction.
	tx *wire.MsgTx

	// outputMap is the output permutation applied by canonical sorting
	// when tx was built.
	outputMap []int

	// sig authorizes tx to spend the anchor. On the local chain this is
	// the counterparty's signature over our commitment; on the remote
	// chain it is the signature we produced for theirs.
	sig lnwire.Sig

	// revocationPreimage is set once the counterparty reveals the
	// preimage retiring this commitment. It is never unset.
	revocationPreimage [32]byte

	// revoked records whether revocationPreimage has been set.
	revoked bool

	// unackedChanges are the staged changes appended while this
	// commitment was the chain tip. They cross over to the other side's
	// staging state when this commitment is revoked, after which the
	// list is dropped.
	unackedChanges []chanstate.StagingChange
}

// commitmentChain tracks the unrevoked commitments of one side. The tail is
// the last commitment whose predecessors have all been revoked; the tip is
// the newest signed commitment. New commitments extend the tip, and the
// tail advances as revocations retire old state.
type commitmentChain struct {
	commitments *fn.List[*commitInfo]
}

// newCommitmentChain creates a chain seeded with the first commitment.
func newCommitmentChain(first *commitInfo) *commitmentChain {
	chain := &commitmentChain{
		commitments: fn.NewList[*commitInfo](),
	}
	chain.commitments.PushBack(first)

	return chain
}

// addCommitment extends the chain by a single commitment.
func (c *commitmentChain) addCommitment(ci *commitInfo) {
	c.commitments.PushBack(ci)
}

// advanceTail drops the lowest commitment from the chain. It is called once
// a revocation for that commitment has been exchanged.
func (c *commitmentChain) advanceTail() {
	c.commitments.Remove(c.commitments.Front())
}

// tip returns the latest commitment in the chain.
func (c *commitmentChain) tip() *commitInfo {
	return c.commitments.Back().Value
}

// tail returns the lowest unrevoked commitment in the chain.
func (c *commitmentChain) tail() *commitInfo {
	return c.commitments.Front().Value
}

// hasUnackedCommitment returns true if a commitment beyond the tail exists,
// i.e. a signed state whose predecessor has not yet been revoked.
func (c *commitmentChain) hasUnackedCommitment() bool {
	return c.commitments.Front() != c.commitments.Back()
}
