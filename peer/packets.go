package peer

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
)

// ProcessPacket runs a single inbound packet through the engine. The
// packet is dispatched according to the current protocol state; anything
// out of place, malformed, or in violation of a channel contract results
// in an outbound Error packet and the terminal breakdown state. The
// returned error, if any, is the same problem the Error packet carries.
func (p *Peer) ProcessPacket(msg lnwire.Message) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	// A counterparty Error is terminal without a reply.
	if errMsg, ok := msg.(*lnwire.Error); ok {
		p.acceptPktError(errMsg)
		return nil
	}

	var errPkt *lnwire.Error

	switch p.state {
	case stateOpenWaitForOpen:
		if open, ok := msg.(*lnwire.OpenChannel); ok {
			errPkt = p.acceptPktOpen(open)
		} else {
			errPkt = errUnexpectedPkt(msg)
		}

	case stateOpenWaitForAnchor:
		anchor, ok := msg.(*lnwire.OpenAnchor)
		if ok && !p.local.offerAnchor {
			errPkt = p.acceptPktAnchor(anchor)
		} else {
			errPkt = errUnexpectedPkt(msg)
		}

	case stateOpenWaitForCommitSig:
		if sig, ok := msg.(*lnwire.OpenCommitSig); ok {
			errPkt = p.acceptPktOpenCommitSig(sig)
		} else {
			errPkt = errUnexpectedPkt(msg)
		}

	case stateOpenWaitForComplete:
		if complete, ok := msg.(*lnwire.OpenComplete); ok {
			errPkt = p.acceptPktOpenComplete(complete)
		} else {
			errPkt = errUnexpectedPkt(msg)
		}

	case stateNormal, stateClearing:
		switch m := msg.(type) {
		case *lnwire.UpdateAddHTLC:
			errPkt = p.acceptPktHtlcAdd(m)
		case *lnwire.UpdateFulfillHTLC:
			errPkt = p.acceptPktHtlcFulfill(m)
		case *lnwire.UpdateFailHTLC:
			errPkt = p.acceptPktHtlcFail(m)
		case *lnwire.UpdateCommit:
			errPkt = p.acceptPktCommit(m)
		case *lnwire.UpdateRevocation:
			errPkt = p.acceptPktRevocation(m)
		case *lnwire.CloseClearing:
			errPkt = p.acceptPktCloseClearing(m)
		default:
			errPkt = errUnexpectedPkt(msg)
		}

	case stateCloseWaitSig:
		if closeSig, ok := msg.(*lnwire.CloseSignature); ok {
			errPkt = p.acceptPktCloseSignature(closeSig)
		} else {
			errPkt = errUnexpectedPkt(msg)
		}

	case stateClosed, stateErrBreakdown:
		peerLog.Warnf("Peer(%x): dropping %v in state %v",
			p.cfg.PeerID.SerializeCompressed(), msg.MsgType(),
			p.state)
		return nil

	default:
		errPkt = errUnexpectedPkt(msg)
	}

	if errPkt != nil {
		p.sendErrLocked(errPkt)
		return errPkt
	}

	return nil
}

// errUnexpectedPkt builds the Error packet for a message that does not
// belong in the current state.
func errUnexpectedPkt(msg lnwire.Message) *lnwire.Error {
	return lnwire.NewError("Unexpected packet %v", msg.MsgType())
}

// acceptPktOpen validates the counterparty's open parameters and sets up
// its side of the channel.
func (p *Peer) acceptPktOpen(o *lnwire.OpenChannel) *lnwire.Error {
	if !o.Delay.IsSeconds() {
		return lnwire.NewError("Delay in blocks not accepted")
	}
	if o.Delay.Value > p.cfg.RelLocktimeMax {
		return lnwire.NewError("Delay too great")
	}
	if o.MinDepth > p.cfg.AnchorConfirmsMax {
		return lnwire.NewError("min_depth too great")
	}
	if o.InitialFeeRate < p.cfg.CommitFeeRateMin {
		return lnwire.NewError("Commitment fee rate too low")
	}

	switch o.Anch {
	case lnwire.WillCreateAnchor:
		p.remote.offerAnchor = true
	case lnwire.WontCreateAnchor:
		p.remote.offerAnchor = false
	default:
		return lnwire.NewError("Unknown offer anchor value")
	}

	if p.remote.offerAnchor == p.local.offerAnchor {
		return lnwire.NewError("Only one side can offer anchor")
	}

	p.remote.delay = o.Delay
	p.remote.minDepth = o.MinDepth
	p.remote.feeRate = o.InitialFeeRate
	p.remote.commitKey = o.CommitKey
	p.remote.finalKey = o.FinalKey

	// The rest of the remote commitment is filled in by
	// setupFirstCommit once the anchor is established.
	p.remote.chain = newCommitmentChain(&commitInfo{
		commitNum:      0,
		revocationHash: o.RevocationHash,
	})
	p.remote.nextRevocationHash = o.NextRevocationHash
	p.remote.haveNextHash = true

	witnessScript, err := p.cfg.TxBuilder.Redeem2of2(
		p.local.commitKey, p.remote.commitKey,
	)
	if err != nil {
		return lnwire.NewError("Internal error: %v", err)
	}
	p.anchor.WitnessScript = witnessScript

	p.state = stateOpenWaitForAnchor

	return nil
}

// acceptPktAnchor handles the funder's anchor announcement, building both
// first commitments.
func (p *Peer) acceptPktAnchor(a *lnwire.OpenAnchor) *lnwire.Error {
	p.anchor.Txid = a.Txid
	p.anchor.OutputIndex = a.OutputIndex
	p.anchor.Amount = a.Amount
	p.anchorWeCreated = false

	if err := p.setupFirstCommit(); err != nil {
		return lnwire.NewError("Insufficient funds for fee")
	}

	if errPkt := p.queuePktOpenCommitSig(); errPkt != nil {
		return errPkt
	}

	p.state = stateOpenWaitForCommitSig

	return nil
}

// queuePktOpenCommitSig signs the counterparty's first commitment and
// queues the signature.
func (p *Peer) queuePktOpenCommitSig() *lnwire.Error {
	tip := p.remote.chain.tip()

	sig, err := p.cfg.Signer.SignTheirCommit(
		tip.tx, p.anchor.WitnessScript,
	)
	if err != nil {
		return lnwire.NewError("Internal error: %v", err)
	}
	tip.sig = sig

	p.queuePacket(&lnwire.OpenCommitSig{CommitSig: sig})

	return nil
}

// acceptPktOpenCommitSig verifies the counterparty's signature over our
// first commitment. The funder reciprocates with its own signature.
func (p *Peer) acceptPktOpenCommitSig(s *lnwire.OpenCommitSig) *lnwire.Error {
	tip := p.local.chain.tip()

	err := p.cfg.Signer.VerifyCommitSig(
		tip.tx, p.anchor.WitnessScript, p.remote.commitKey,
		s.CommitSig,
	)
	if err != nil {
		return lnwire.NewError("Bad signature")
	}
	tip.sig = s.CommitSig

	if p.anchorWeCreated {
		if errPkt := p.queuePktOpenCommitSig(); errPkt != nil {
			return errPkt
		}
	}

	p.state = stateOpenWaitForComplete
	p.maybeQueueOpenCompleteLocked()

	return nil
}

// maybeQueueOpenCompleteLocked sends our OpenComplete once the first
// commitments are signed and the anchor has confirmed.
func (p *Peer) maybeQueueOpenCompleteLocked() {
	if p.state != stateOpenWaitForComplete {
		return
	}
	if !p.anchorConfirmed || p.openCompleteSent {
		return
	}

	p.openCompleteSent = true
	p.queuePacket(&lnwire.OpenComplete{})
	p.maybeFinishOpenLocked()
}

// acceptPktOpenComplete records the counterparty's open completion.
func (p *Peer) acceptPktOpenComplete(o *lnwire.OpenComplete) *lnwire.Error {
	if p.openCompleteReceived {
		return errUnexpectedPkt(o)
	}

	p.openCompleteReceived = true
	p.maybeFinishOpenLocked()

	return nil
}

// maybeFinishOpenLocked enters normal operation once both sides have
// completed the handshake.
func (p *Peer) maybeFinishOpenLocked() {
	if !p.openCompleteSent || !p.openCompleteReceived {
		return
	}

	p.state = stateNormal
	peerLog.Infof("Peer(%x): channel open, capacity %v",
		p.cfg.PeerID.SerializeCompressed(), p.anchor.Amount)

	p.syncChannelLocked()
}

// acceptPktHtlcAdd stages an incoming HTLC offer. The add lands in our
// staging state immediately; it crosses to the remote staging state when
// we revoke.
func (p *Peer) acceptPktHtlcAdd(u *lnwire.UpdateAddHTLC) *lnwire.Error {
	if p.state == stateClearing {
		return lnwire.NewError("No new HTLCs while channel is " +
			"clearing")
	}

	if u.Amount == 0 {
		return lnwire.NewError("Invalid amount_msat")
	}
	if !u.Expiry.IsSeconds() {
		return lnwire.NewError("HTLC expiry in blocks not supported")
	}

	if len(p.remote.staging.Htlcs(chanstate.Theirs)) >= chanstate.MaxHTLCNumber ||
		len(p.local.staging.Htlcs(chanstate.Theirs)) >= chanstate.MaxHTLCNumber {

		return lnwire.NewError("Too many HTLCs")
	}

	if _, ok := p.remote.staging.HtlcByID(chanstate.Theirs, u.ID); ok {
		return lnwire.NewError("HTLC id %d clashes for you", u.ID)
	}
	if _, ok := p.local.staging.HtlcByID(chanstate.Theirs, u.ID); ok {
		return lnwire.NewError("HTLC id %d clashes for us", u.ID)
	}

	htlc := chanstate.Htlc{
		ID:     u.ID,
		Amount: u.Amount,
		RHash:  u.PaymentHash,
		Expiry: u.Expiry.Value,
		Route:  []byte(u.Route),
	}

	// The offer must be payable in both commitment transactions at the
	// current fee rate, so the add is applied to our staging state and
	// dry-run against the counterparty's.
	newStaging, err := p.local.staging.AddHtlc(chanstate.Theirs, htlc)
	if err != nil {
		return lnwire.NewError("Cannot afford %d milli-satoshis in "+
			"our commitment tx", u.Amount)
	}
	if _, err := p.remote.staging.AddHtlc(chanstate.Theirs, htlc); err != nil {
		return lnwire.NewError("Cannot afford %d milli-satoshis in "+
			"your commitment tx", u.Amount)
	}

	p.local.staging = newStaging
	p.addUnacked(p.local, chanstate.AddChange{Htlc: htlc})
	p.trackExpiry(htlc.Expiry)

	return nil
}

// findCommittedHtlc locates an HTLC we offered, both in our current
// commitment and still unspent in our staging state.
func (p *Peer) findCommittedHtlc(id uint64) *lnwire.Error {
	committed := p.local.chain.tip().state
	if _, ok := committed.HtlcByID(chanstate.Ours, id); !ok {
		return lnwire.NewError("Did not find HTLC %d", id)
	}

	if _, ok := p.local.staging.HtlcByID(chanstate.Ours, id); !ok {
		return lnwire.NewError("Already removed HTLC %d", id)
	}

	return nil
}

// acceptPktHtlcFulfill stages the settlement of an HTLC we offered.
func (p *Peer) acceptPktHtlcFulfill(u *lnwire.UpdateFulfillHTLC) *lnwire.Error {
	if errPkt := p.findCommittedHtlc(u.ID); errPkt != nil {
		return errPkt
	}

	newStaging, err := p.local.staging.FulfillHtlc(
		chanstate.Ours, u.ID, u.PaymentPreimage,
	)
	if err != nil {
		return lnwire.NewError("Invalid r for %d", u.ID)
	}

	p.local.staging = newStaging
	p.addUnacked(p.local, chanstate.FulfillChange{
		ID:       u.ID,
		Preimage: u.PaymentPreimage,
	})

	return nil
}

// acceptPktHtlcFail stages the removal of an HTLC we offered.
func (p *Peer) acceptPktHtlcFail(u *lnwire.UpdateFailHTLC) *lnwire.Error {
	if errPkt := p.findCommittedHtlc(u.ID); errPkt != nil {
		return errPkt
	}

	newStaging, err := p.local.staging.FailHtlc(chanstate.Ours, u.ID)
	if err != nil {
		return lnwire.NewError("Did not find HTLC %d", u.ID)
	}

	p.local.staging = newStaging
	p.addUnacked(p.local, chanstate.FailChange{
		ID:     u.ID,
		Reason: []byte(u.Reason),
	})

	return nil
}

// queuePktCommit cuts a new commitment for the counterparty covering its
// staging state, signs it, and queues the signature.
func (p *Peer) queuePktCommit() {
	tip := p.remote.chain.tip()
	newState := p.remote.staging.Copy()

	// Never send an empty commit.
	if newState.Changes == tip.state.Changes {
		p.commitPending = false
		p.cfg.CommitTicker.Pause()
		return
	}

	ci := &commitInfo{
		prev:           tip,
		commitNum:      tip.commitNum + 1,
		revocationHash: p.remote.nextRevocationHash,
		state:          newState,
	}

	tx, outputMap, err := p.cfg.TxBuilder.CreateCommitTx(
		p.local.finalKey, p.remote.finalKey, p.local.delay,
		p.remote.delay, &p.anchor, ci.revocationHash, newState,
		chanstate.Theirs,
	)
	if err != nil {
		p.sendErrLocked(lnwire.NewError("Internal error: %v", err))
		return
	}
	ci.tx = tx
	ci.outputMap = outputMap

	sig, err := p.cfg.Signer.SignTheirCommit(tx, p.anchor.WitnessScript)
	if err != nil {
		p.sendErrLocked(lnwire.NewError("Internal error: %v", err))
		return
	}
	ci.sig = sig

	peerLog.Debugf("Peer(%x): signing commitment %d for %v/%v msat, "+
		"%d/%d htlcs", p.cfg.PeerID.SerializeCompressed(),
		ci.commitNum, newState.Balance(chanstate.Ours),
		newState.Balance(chanstate.Theirs),
		len(newState.Htlcs(chanstate.Ours)),
		len(newState.Htlcs(chanstate.Theirs)))

	p.remote.chain.addCommitment(ci)
	p.remote.haveNextHash = false
	p.commitPending = false
	p.cfg.CommitTicker.Pause()

	p.queuePacket(&lnwire.UpdateCommit{CommitSig: sig})
	p.syncChannelLocked()
}

// acceptPktCommit mirrors the counterparty's commitment construction
// against our staging state, verifies the signature, advances our chain,
// and replies with the revocation of our previous commitment.
func (p *Peer) acceptPktCommit(u *lnwire.UpdateCommit) *lnwire.Error {
	tip := p.local.chain.tip()
	newState := p.local.staging.Copy()

	if newState.Changes == tip.state.Changes {
		return lnwire.NewError("Empty commit")
	}

	ci := &commitInfo{
		prev:           tip,
		commitNum:      tip.commitNum + 1,
		revocationHash: p.local.nextRevocationHash,
		state:          newState,
	}

	tx, outputMap, err := p.cfg.TxBuilder.CreateCommitTx(
		p.local.finalKey, p.remote.finalKey, p.local.delay,
		p.remote.delay, &p.anchor, ci.revocationHash, newState,
		chanstate.Ours,
	)
	if err != nil {
		return lnwire.NewError("Internal error: %v", err)
	}
	ci.tx = tx
	ci.outputMap = outputMap

	err = p.cfg.Signer.VerifyCommitSig(
		tx, p.anchor.WitnessScript, p.remote.commitKey, u.CommitSig,
	)
	if err != nil {
		return lnwire.NewError("Bad signature")
	}
	ci.sig = u.CommitSig

	p.local.chain.addCommitment(ci)

	nextHash, err := p.cfg.Signer.RevocationHash(ci.commitNum + 1)
	if err != nil {
		return lnwire.NewError("Internal error: %v", err)
	}
	p.local.nextRevocationHash = nextHash

	return p.queuePktRevocation()
}

// queuePktRevocation reveals the preimage retiring our previous
// commitment and crosses its unacked changes over to the remote staging
// state, making them permanent on both sides.
func (p *Peer) queuePktRevocation() *lnwire.Error {
	tip := p.local.chain.tip()
	ci := tip.prev
	if ci == nil || ci.revoked {
		panic("revocation requested with no commitment to revoke")
	}

	preimage, err := p.cfg.Signer.RevocationPreimage(ci.commitNum)
	if err != nil {
		return lnwire.NewError("Internal error: %v", err)
	}

	// Our own signer must reproduce the hash we advertised; anything
	// else is unrecoverable key state corruption.
	if sha256.Sum256(preimage[:]) != ci.revocationHash {
		panic("revocation preimage does not match advertised hash")
	}

	ci.revocationPreimage = preimage
	ci.revoked = true

	p.queuePacket(&lnwire.UpdateRevocation{
		RevocationPreimage: preimage,
		NextRevocationHash: p.local.nextRevocationHash,
	})

	// The changes the counterparty introduced are now acked: mirror
	// them into its staging state.
	for _, change := range ci.unackedChanges {
		newStaging, err := p.remote.staging.ApplyChange(
			change, chanstate.Theirs,
		)
		if err != nil {
			return lnwire.NewError("Internal error: staging "+
				"crossover failed: %v", err)
		}
		p.remote.staging = newStaging
	}

	if len(ci.unackedChanges) > 0 {
		p.remoteChangesPending()
	}
	ci.unackedChanges = nil

	p.local.chain.advanceTail()

	p.syncChannelLocked()
	p.checkClearedLocked()

	return nil
}

// acceptPktRevocation verifies the counterparty's revocation of its
// previous commitment, archives the preimage in the ladder, and crosses
// the acked changes into our staging state.
func (p *Peer) acceptPktRevocation(u *lnwire.UpdateRevocation) *lnwire.Error {
	if !p.remote.chain.hasUnackedCommitment() {
		return errUnexpectedPkt(u)
	}

	ci := p.remote.chain.tip().prev

	if sha256.Sum256(u.RevocationPreimage[:]) != ci.revocationHash {
		return lnwire.NewError("complete preimage incorrect")
	}

	ci.revocationPreimage = u.RevocationPreimage
	ci.revoked = true

	err := p.theirPreimages.AddHash(
		^uint64(0)-ci.commitNum,
		chainhash.Hash(u.RevocationPreimage),
	)
	if err != nil {
		return lnwire.NewError("preimage not next in shachain")
	}

	p.remote.nextRevocationHash = u.NextRevocationHash
	p.remote.haveNextHash = true

	// The changes we introduced are now acked: mirror them into our
	// staging state.
	for _, change := range ci.unackedChanges {
		newStaging, err := p.local.staging.ApplyChange(
			change, chanstate.Ours,
		)
		if err != nil {
			return lnwire.NewError("Internal error: staging "+
				"crossover failed: %v", err)
		}
		p.local.staging = newStaging
	}
	ci.unackedChanges = nil

	p.remote.chain.advanceTail()

	// More changes may have batched up while the commitment was in
	// flight.
	if p.commitPending {
		p.cfg.CommitTicker.Resume()
	}

	p.syncChannelLocked()
	p.checkClearedLocked()

	return nil
}

// acceptPktError handles a terminal Error from the counterparty.
func (p *Peer) acceptPktError(e *lnwire.Error) {
	peerLog.Errorf("Peer(%x): received Error(%s), channel breakdown",
		p.cfg.PeerID.SerializeCompressed(), e.Problem)

	p.enterBreakdownLocked()
}
