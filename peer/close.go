package peer

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
)

// queuePktCloseClearingLocked derives our close delivery script and
// announces it.
func (p *Peer) queuePktCloseClearingLocked() error {
	redeemScript, err := p.cfg.TxBuilder.RedeemSingle(p.local.finalKey)
	if err != nil {
		return err
	}

	script, err := p.cfg.TxBuilder.P2SH(redeemScript)
	if err != nil {
		return err
	}

	p.closing.ourScript = script
	p.closing.ourScriptSent = true

	p.queuePacket(&lnwire.CloseClearing{
		ScriptPubkey: lnwire.DeliveryScript(script),
	})

	return nil
}

// acceptPktCloseClearing records the counterparty's close script,
// reciprocates if we haven't begun clearing ourselves, and enters the
// clearing state.
func (p *Peer) acceptPktCloseClearing(c *lnwire.CloseClearing) *lnwire.Error {
	if p.closing.theirScript != nil {
		return errUnexpectedPkt(c)
	}
	if len(c.ScriptPubkey) == 0 {
		return lnwire.NewError("Invalid close script")
	}

	p.closing.theirScript = []byte(c.ScriptPubkey)

	if !p.closing.ourScriptSent {
		if err := p.queuePktCloseClearingLocked(); err != nil {
			return lnwire.NewError("Internal error: %v", err)
		}
	}

	p.state = stateClearing
	p.checkClearedLocked()

	return nil
}

// checkClearedLocked moves from clearing to fee negotiation once every
// HTLC has fully drained from both sides' commitments and no commitment
// or crossover is still in flight.
func (p *Peer) checkClearedLocked() {
	if p.state != stateClearing {
		return
	}

	if p.commitPending {
		return
	}
	if p.local.chain.hasUnackedCommitment() ||
		p.remote.chain.hasUnackedCommitment() {

		return
	}
	if len(p.local.chain.tip().unackedChanges) > 0 ||
		len(p.remote.chain.tip().unackedChanges) > 0 {

		return
	}
	if p.local.staging.NumHtlcs() != 0 || p.remote.staging.NumHtlcs() != 0 {
		return
	}

	p.state = stateCloseWaitSig

	// Our opening proposal is priced by our own fee rate; the rounds
	// below converge it with the counterparty's.
	p.closing.ourFee = chanstate.CommitFee(p.local.feeRate, 0)

	if errPkt := p.queuePktCloseSignatureLocked(); errPkt != nil {
		p.sendErrLocked(errPkt)
	}
}

// queuePktCloseSignatureLocked signs a close transaction paying our
// currently proposed fee and queues the proposal.
func (p *Peer) queuePktCloseSignatureLocked() *lnwire.Error {
	closeTx, err := p.createCloseTxLocked(p.closing.ourFee)
	if err != nil {
		return lnwire.NewError("Internal error: %v", err)
	}

	sig, err := p.cfg.Signer.SignMutualClose(
		closeTx, p.anchor.WitnessScript,
	)
	if err != nil {
		return lnwire.NewError("Internal error: %v", err)
	}

	peerLog.Infof("Peer(%x): offering close fee %v",
		p.cfg.PeerID.SerializeCompressed(), p.closing.ourFee)

	p.queuePacket(&lnwire.CloseSignature{
		CloseFee: p.closing.ourFee,
		Sig:      sig,
	})

	return nil
}

// acceptPktCloseSignature processes the counterparty's fee proposal. The
// signature must be valid for a close transaction at the proposed fee. On
// a fee mismatch our proposal steps toward the midpoint; on a match the
// close transaction is final.
func (p *Peer) acceptPktCloseSignature(c *lnwire.CloseSignature) *lnwire.Error {
	if c.CloseFee <= 0 {
		return lnwire.NewError("Invalid close fee")
	}

	theirCloseTx, err := p.createCloseTxLocked(c.CloseFee)
	if err != nil {
		return lnwire.NewError("Invalid close fee")
	}

	err = p.cfg.Signer.VerifyCommitSig(
		theirCloseTx, p.anchor.WitnessScript, p.remote.commitKey,
		c.Sig,
	)
	if err != nil {
		return lnwire.NewError("Bad signature")
	}

	p.closing.theirFee = c.CloseFee
	p.closing.theirSig = c.Sig
	p.closing.haveTheirSig = true

	if p.closing.theirFee == p.closing.ourFee {
		p.finalizeCloseLocked(theirCloseTx)
		return nil
	}

	// Step toward the midpoint, accepting the counterparty's fee
	// outright once the gap can no longer be halved.
	newFee := (p.closing.ourFee + p.closing.theirFee) / 2
	if newFee == p.closing.ourFee {
		newFee = p.closing.theirFee
	}
	p.closing.ourFee = newFee

	if errPkt := p.queuePktCloseSignatureLocked(); errPkt != nil {
		return errPkt
	}

	if p.closing.ourFee == p.closing.theirFee {
		p.finalizeCloseLocked(theirCloseTx)
	}

	return nil
}

// createCloseTxLocked builds the mutual close transaction at the given
// fee. The commitment fee reserve flows back to the funder, who then pays
// the close fee out of it.
func (p *Peer) createCloseTxLocked(fee btcutil.Amount) (*wire.MsgTx, error) {
	ourAmount := p.local.staging.Balance(chanstate.Ours)
	theirAmount := p.local.staging.Balance(chanstate.Theirs)

	commitFee := p.local.staging.Fee()
	closeFee := lnwire.NewMSatFromSatoshis(fee)

	if p.local.offerAnchor {
		ourAmount += commitFee
		if ourAmount < closeFee {
			return nil, fmt.Errorf("close fee %v exceeds funder "+
				"balance", fee)
		}
		ourAmount -= closeFee
	} else {
		theirAmount += commitFee
		if theirAmount < closeFee {
			return nil, fmt.Errorf("close fee %v exceeds funder "+
				"balance", fee)
		}
		theirAmount -= closeFee
	}

	return p.cfg.TxBuilder.CreateCloseTx(
		&p.anchor, p.closing.ourScript, p.closing.theirScript,
		ourAmount, theirAmount, fee,
	)
}

// finalizeCloseLocked records the fully negotiated close transaction and
// retires the channel.
func (p *Peer) finalizeCloseLocked(closeTx *wire.MsgTx) {
	p.finalCloseTx = closeTx
	p.state = stateClosed
	p.cfg.CommitTicker.Pause()

	peerLog.Infof("Peer(%x): mutual close complete, fee %v",
		p.cfg.PeerID.SerializeCompressed(), p.closing.theirFee)
}
