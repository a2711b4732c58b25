package peer

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightningnetwork/channeld/channeldb"
	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
	"github.com/lightningnetwork/channeld/shachain"
)

var (
	// ErrChanClosing is returned when an operation is disallowed because
	// the channel is being cooperatively closed.
	ErrChanClosing = fmt.Errorf("channel is being closed, operation " +
		"disallowed")

	// ErrChannelNotOpen is returned when a steady-state command arrives
	// before the open handshake has completed or after the channel has
	// terminated.
	ErrChannelNotOpen = errors.New("channel is not open")

	// ErrInvalidState is returned when a command is issued in a protocol
	// state that does not permit it.
	ErrInvalidState = errors.New("operation not permitted in current " +
		"channel state")
)

// outgoingQueueSize is the buffer size of the queue feeding the transport
// writer.
const outgoingQueueSize = 50

// Config bundles everything a Peer needs from its host: identity, channel
// parameters, the injected capabilities, and protocol limits.
type Config struct {
	// PeerID is the remote node's identity key.
	PeerID *btcec.PublicKey

	// Signer provides commitment signatures and the deterministic
	// revocation secret chain. Shared across peers.
	Signer Signer

	// TxBuilder constructs commitment and close transactions.
	TxBuilder TxBuilder

	// Transport carries packets to and from the remote node.
	Transport PacketTransport

	// Clock is the time source used for HTLC expiry checks.
	Clock clock.Clock

	// CommitTicker batches staged changes into commitments. It is
	// resumed on the first staged local change and paused once the
	// batch has been committed.
	CommitTicker ticker.Ticker

	// DB, if set, persists the channel after every state-advancing
	// step so a restart can resume the channel.
	DB *channeldb.DB

	// CommitKey is our key within the anchor multisig.
	CommitKey *btcec.PublicKey

	// FinalKey is the key our settled outputs pay to.
	FinalKey *btcec.PublicKey

	// Delay is how long we want the counterparty's commitment outputs
	// locked.
	Delay lnwire.Locktime

	// FeeRate is the commitment fee rate we announce at open, in
	// satoshis per 1000 bytes.
	FeeRate uint64

	// MinDepth is the anchor depth we require before completing the
	// open handshake.
	MinDepth uint32

	// OfferAnchor indicates we will fund the anchor.
	OfferAnchor bool

	// RelLocktimeMax bounds the delay the counterparty may ask of us.
	RelLocktimeMax uint32

	// AnchorConfirmsMax bounds the anchor depth the counterparty may
	// require.
	AnchorConfirmsMax uint32

	// CommitFeeRateMin is the lowest commitment fee rate we accept.
	CommitFeeRateMin uint64

	// ValidatePackets round-trips every outbound packet through the
	// codec before it is queued. Intended for tests and debug builds.
	ValidatePackets bool
}

// sideView is everything the engine tracks about one side of the channel:
// the negotiated parameters, the side's commitment chain, and the staging
// state the next commitment will be cut from.
type sideView struct {
	offerAnchor bool

	commitKey *btcec.PublicKey
	finalKey  *btcec.PublicKey

	delay    lnwire.Locktime
	minDepth uint32
	feeRate  uint64

	// nextRevocationHash is the revocation hash for the commitment
	// after the chain tip. For the remote side it is consumed by
	// sending a commitment and replenished by the counterparty's next
	// revocation; haveNextHash tracks that window.
	nextRevocationHash [32]byte
	haveNextHash       bool

	chain *commitmentChain

	// staging always equals the chain tip's state plus the tip's
	// unacked changes.
	staging *chanstate.State
}

// closingState tracks the cooperative close negotiation.
type closingState struct {
	ourFee   btcutil.Amount
	theirFee btcutil.Amount

	theirSig     lnwire.Sig
	haveTheirSig bool

	ourScript     []byte
	theirScript   []byte
	ourScriptSent bool
}

// Peer is the channel engine for a single remote node. All channel state
// transitions, whether driven by local commands or inbound packets, are
// serialized under the peer's mutex; multiple peers progress independently.
type Peer struct {
	started  int32
	shutdown int32

	cfg Config

	mtx sync.Mutex

	state channelState

	local  *sideView
	remote *sideView

	anchor          Anchor
	anchorWeCreated bool
	anchorConfirmed bool

	// htlcIDCounter assigns ids to locally offered HTLCs.
	htlcIDCounter uint64

	// earliestExpiry is the soonest expiry among HTLCs that have been in
	// flight, zero if none ever were. It only ever moves earlier; it is
	// not recomputed when HTLCs resolve. The host watches it to schedule
	// timeout handling.
	earliestExpiry uint32

	// commitPending is set while staged changes await the commit
	// ticker.
	commitPending bool

	openCompleteSent     bool
	openCompleteReceived bool

	closing      closingState
	finalCloseTx *wire.MsgTx

	// theirPreimages holds every revocation preimage the counterparty
	// has revealed. It outlives the commitment chains so superseded
	// commitments can be punished on-chain.
	theirPreimages *shachain.Ladder

	outgoing *queue.ConcurrentQueue

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a channel engine for the given remote peer. The returned
// peer is idle until Start is called, though local commands and
// ProcessPacket may be driven directly for hosts running their own event
// loop.
func New(cfg Config) *Peer {
	p := &Peer{
		cfg:   cfg,
		state: stateInit,
		local: &sideView{
			offerAnchor: cfg.OfferAnchor,
			commitKey:   cfg.CommitKey,
			finalKey:    cfg.FinalKey,
			delay:       cfg.Delay,
			minDepth:    cfg.MinDepth,
			feeRate:     cfg.FeeRate,
		},
		remote:         &sideView{},
		theirPreimages: shachain.NewLadder(),
		outgoing:       queue.NewConcurrentQueue(outgoingQueueSize),
		quit:           make(chan struct{}),
	}
	p.outgoing.Start()

	return p
}

// NewFromChannel resumes a channel engine from a persisted snapshot. The
// snapshot records no protocol state, so the engine always resumes in the
// normal state, including for snapshots taken while clearing or
// negotiating the close fee; the staging states are rebuilt by replaying each chain tip's unacked changes on top
// of its committed state.
func NewFromChannel(cfg Config, ch *channeldb.Channel) (*Peer, error) {
	p := New(cfg)

	p.local.offerAnchor = ch.LocalCfg.OfferAnchor
	p.local.delay = ch.LocalCfg.Delay
	p.local.minDepth = ch.LocalCfg.MinDepth
	p.local.feeRate = ch.LocalCfg.FeeRate

	p.remote = &sideView{
		offerAnchor: ch.RemoteCfg.OfferAnchor,
		commitKey:   ch.RemoteCfg.CommitKey,
		finalKey:    ch.RemoteCfg.FinalKey,
		delay:       ch.RemoteCfg.Delay,
		minDepth:    ch.RemoteCfg.MinDepth,
		feeRate:     ch.RemoteCfg.FeeRate,
	}

	p.local.nextRevocationHash = ch.LocalNextRevocationHash
	p.remote.nextRevocationHash = ch.RemoteNextRevocationHash
	p.remote.haveNextHash = ch.HaveRemoteNextHash

	p.htlcIDCounter = ch.HtlcIDCounter
	p.anchor = Anchor{
		Txid:          ch.AnchorTxid,
		OutputIndex:   ch.AnchorOutputIndex,
		Amount:        ch.AnchorAmount,
		WitnessScript: ch.AnchorWitnessScript,
	}
	p.anchorWeCreated = ch.AnchorWeCreated
	p.anchorConfirmed = true
	p.openCompleteSent = true
	p.openCompleteReceived = true
	p.theirPreimages = ch.TheirPreimages

	var err error
	p.local.chain, p.local.staging, err = restoreChain(
		ch.LocalCommits, chanstate.Theirs,
	)
	if err != nil {
		return nil, err
	}
	p.remote.chain, p.remote.staging, err = restoreChain(
		ch.RemoteCommits, chanstate.Ours,
	)
	if err != nil {
		return nil, err
	}

	if len(p.remote.chain.tip().unackedChanges) > 0 {
		p.commitPending = true
		p.cfg.CommitTicker.Resume()
	}

	for _, side := range []chanstate.Side{chanstate.Ours, chanstate.Theirs} {
		for _, htlc := range p.local.staging.Htlcs(side) {
			p.trackExpiry(htlc.Expiry)
		}
	}

	p.state = stateNormal

	return p, nil
}

// restoreChain rebuilds a commitment chain from its serialized form and
// reconstructs the matching staging state by replaying the tip's unacked
// changes, which originate from the given side.
func restoreChain(commits []*channeldb.Commit,
	origin chanstate.Side) (*commitmentChain, *chanstate.State, error) {

	if len(commits) == 0 {
		return nil, nil, errors.New("cannot restore empty " +
			"commitment chain")
	}

	var (
		chain *commitmentChain
		prev  *commitInfo
	)
	for _, commit := range commits {
		ci := &commitInfo{
			prev:           prev,
			commitNum:      commit.CommitNum,
			revocationHash: commit.RevocationHash,
			state:          commit.State,
			tx:             commit.Tx,
			sig:            commit.Sig,
			unackedChanges: commit.Unacked,
		}
		if chain == nil {
			chain = newCommitmentChain(ci)
		} else {
			chain.addCommitment(ci)
		}
		prev = ci
	}

	tip := chain.tip()
	staging := tip.state.Copy()
	for _, change := range tip.unackedChanges {
		var err error
		staging, err = staging.ApplyChange(change, origin)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to replay "+
				"unacked change: %w", err)
		}
	}

	return chain, staging, nil
}

// Start launches the read, write and commit-timer handlers. It is only
// needed when the host wants the engine to drive itself off the transport;
// hosts with their own event loop may instead call ProcessPacket and
// TriggerCommit directly.
func (p *Peer) Start() error {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return nil
	}

	p.wg.Add(3)
	go p.readHandler()
	go p.writeHandler()
	go p.commitTickerHandler()

	return nil
}

// Stop signals the handlers to exit and waits for them. The transport must
// unblock any pending RecvPacket for Stop to return.
func (p *Peer) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.shutdown, 0, 1) {
		return nil
	}

	close(p.quit)
	p.cfg.CommitTicker.Stop()
	p.outgoing.Stop()
	p.wg.Wait()

	return nil
}

// readHandler pulls packets off the transport and feeds them through the
// engine until the connection dies.
func (p *Peer) readHandler() {
	defer p.wg.Done()

	for {
		msg, err := p.cfg.Transport.RecvPacket()
		if err != nil {
			if !errors.Is(err, ErrPeerGone) {
				peerLog.Errorf("unable to read packet: %v",
					err)
			}
			return
		}

		select {
		case <-p.quit:
			return
		default:
		}

		// Errors are handled inside: the engine has already queued
		// its Error packet and transitioned by the time this
		// returns.
		if err := p.ProcessPacket(msg); err != nil {
			peerLog.Errorf("packet %v rejected: %v",
				msg.MsgType(), err)
		}
	}
}

// writeHandler drains the outbound queue onto the transport, preserving
// enqueue order.
func (p *Peer) writeHandler() {
	defer p.wg.Done()

	for {
		select {
		case pkt, ok := <-p.outgoing.ChanOut():
			if !ok {
				return
			}

			msg := pkt.(lnwire.Message)
			if err := p.cfg.Transport.SendPacket(msg); err != nil {
				peerLog.Errorf("unable to send %v: %v",
					msg.MsgType(), err)
				return
			}

		case <-p.quit:
			return
		}
	}
}

// commitTickerHandler fires the commit trigger off the batch ticker.
func (p *Peer) commitTickerHandler() {
	defer p.wg.Done()

	for {
		select {
		case <-p.cfg.CommitTicker.Ticks():
			p.TriggerCommit()

		case <-p.quit:
			return
		}
	}
}

// queuePacket appends a packet to the outbound queue, round-tripping it
// through the codec first when packet validation is enabled.
func (p *Peer) queuePacket(msg lnwire.Message) {
	if p.cfg.ValidatePackets {
		if err := validatePacket(msg); err != nil {
			panic(fmt.Sprintf("outbound %v failed round-trip: %v",
				msg.MsgType(), err))
		}
	}

	peerLog.Debugf("Peer(%x): queued pkt %v",
		p.cfg.PeerID.SerializeCompressed(), msg.MsgType())

	p.outgoing.ChanIn() <- msg
}

// validatePacket encodes the packet, decodes it back, re-encodes the
// result, and requires the two serializations to be identical.
func validatePacket(msg lnwire.Message) error {
	var first bytes.Buffer
	if _, err := lnwire.WriteMessage(&first, msg, 0); err != nil {
		return err
	}

	decoded, err := lnwire.ReadMessage(bytes.NewReader(first.Bytes()), 0)
	if err != nil {
		return err
	}

	var second bytes.Buffer
	if _, err := lnwire.WriteMessage(&second, decoded, 0); err != nil {
		return err
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		return errors.New("serialization not stable across round-trip")
	}

	return nil
}

// Open begins the channel open handshake by allocating our first
// commitment slot and announcing our parameters. Allowed only before any
// other handshake step. In transport-driven mode it must be issued before
// Start, so a simultaneous open from the counterparty is not misread as
// unexpected.
func (p *Peer) Open() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != stateInit {
		return ErrInvalidState
	}

	revocationHash, err := p.cfg.Signer.RevocationHash(0)
	if err != nil {
		return err
	}
	nextHash, err := p.cfg.Signer.RevocationHash(1)
	if err != nil {
		return err
	}

	ci := &commitInfo{
		commitNum:      0,
		revocationHash: revocationHash,
	}
	p.local.chain = newCommitmentChain(ci)
	p.local.nextRevocationHash = nextHash

	anch := lnwire.WontCreateAnchor
	if p.local.offerAnchor {
		anch = lnwire.WillCreateAnchor
	}

	p.queuePacket(&lnwire.OpenChannel{
		RevocationHash:     revocationHash,
		NextRevocationHash: nextHash,
		CommitKey:          p.local.commitKey,
		FinalKey:           p.local.finalKey,
		Delay:              p.local.delay,
		InitialFeeRate:     p.local.feeRate,
		Anch:               anch,
		MinDepth:           p.local.minDepth,
	})

	p.state = stateOpenWaitForOpen

	return nil
}

// ProvideAnchor supplies the anchor output we created, builds both first
// commitments, and announces the anchor. Only the anchor-offering side in
// the anchor-wait state may call it.
func (p *Peer) ProvideAnchor(txid chainhash.Hash, outputIndex uint32,
	amount btcutil.Amount) error {

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != stateOpenWaitForAnchor || !p.local.offerAnchor {
		return ErrInvalidState
	}

	p.anchor.Txid = txid
	p.anchor.OutputIndex = outputIndex
	p.anchor.Amount = amount
	p.anchorWeCreated = true

	if err := p.setupFirstCommit(); err != nil {
		p.sendErrLocked(lnwire.NewError(
			"Own anchor has insufficient funds",
		))
		return err
	}

	p.queuePacket(&lnwire.OpenAnchor{
		Txid:        txid,
		OutputIndex: outputIndex,
		Amount:      amount,
	})

	p.state = stateOpenWaitForCommitSig

	return nil
}

// AnchorConfirmed tells the engine the host's chain monitor has seen the
// anchor reach the required depth.
func (p *Peer) AnchorConfirmed() {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.anchorConfirmed = true
	p.maybeQueueOpenCompleteLocked()
}

// CommitPublished tells the engine the host's chain monitor has seen a
// commitment transaction for this channel confirm on-chain. Off-chain
// updates are over; resolution continues on-chain with the retained
// revocation ladder.
func (p *Peer) CommitPublished(tx *wire.MsgTx) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state == stateClosed || p.state == stateErrBreakdown {
		return
	}

	peerLog.Warnf("Peer(%x): commitment tx published on-chain, "+
		"abandoning off-chain updates",
		p.cfg.PeerID.SerializeCompressed())

	p.enterBreakdownLocked()
}

// AddHTLC stages a new outgoing HTLC, schedules a commitment for it, and
// announces it to the counterparty. The returned id identifies the HTLC in
// later fulfill or fail calls. Rejections are local only and never touch
// the wire.
func (p *Peer) AddHTLC(amount lnwire.MilliSatoshi, expiry uint32,
	rhash [32]byte, route []byte) (uint64, error) {

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != stateNormal {
		return 0, ErrChannelNotOpen
	}
	if p.closing.ourScriptSent || p.closing.theirScript != nil {
		return 0, ErrChanClosing
	}

	if amount == 0 {
		return 0, errors.New("htlc amount must be positive")
	}

	if now := uint32(p.cfg.Clock.Now().Unix()); expiry <= now {
		return 0, fmt.Errorf("htlc expiry %d is not in the future",
			expiry)
	}

	htlc := chanstate.Htlc{
		ID:     p.htlcIDCounter,
		Amount: amount,
		RHash:  rhash,
		Expiry: expiry,
		Route:  route,
	}

	// The HTLC must be affordable in both commitment transactions, so
	// the add is applied to the remote staging state and dry-run
	// against our own.
	newRemoteStaging, err := p.remote.staging.AddHtlc(chanstate.Ours, htlc)
	if err != nil {
		return 0, err
	}
	if _, err := p.local.staging.AddHtlc(chanstate.Ours, htlc); err != nil {
		return 0, err
	}

	p.remote.staging = newRemoteStaging
	p.addUnacked(p.remote, chanstate.AddChange{Htlc: htlc})

	p.htlcIDCounter++
	p.trackExpiry(expiry)
	p.remoteChangesPending()

	p.queuePacket(&lnwire.UpdateAddHTLC{
		ID:          htlc.ID,
		Amount:      amount,
		PaymentHash: rhash,
		Expiry:      lnwire.NewSecondsLocktime(expiry),
		Route:       lnwire.RouteBlob(route),
	})

	return htlc.ID, nil
}

// FulfillHTLC settles an HTLC the counterparty offered by revealing its
// preimage. The HTLC must exist in our current commitment, not merely in
// staging.
func (p *Peer) FulfillHTLC(id uint64, preimage [32]byte) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != stateNormal && p.state != stateClearing {
		return ErrChannelNotOpen
	}

	committed := p.local.chain.tip().state
	if _, ok := committed.HtlcByID(chanstate.Theirs, id); !ok {
		return fmt.Errorf("htlc %d not found in current commitment",
			id)
	}

	newStaging, err := p.remote.staging.FulfillHtlc(
		chanstate.Theirs, id, preimage,
	)
	if err != nil {
		return err
	}

	p.remote.staging = newStaging
	p.addUnacked(p.remote, chanstate.FulfillChange{
		ID:       id,
		Preimage: preimage,
	})
	p.remoteChangesPending()

	p.queuePacket(&lnwire.UpdateFulfillHTLC{
		ID:              id,
		PaymentPreimage: preimage,
	})

	return nil
}

// FailHTLC removes an HTLC the counterparty offered, refunding it. The
// reason payload is carried back opaquely. The HTLC must exist in our
// current commitment, not merely in staging.
func (p *Peer) FailHTLC(id uint64, reason []byte) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != stateNormal && p.state != stateClearing {
		return ErrChannelNotOpen
	}

	committed := p.local.chain.tip().state
	if _, ok := committed.HtlcByID(chanstate.Theirs, id); !ok {
		return fmt.Errorf("htlc %d not found in current commitment",
			id)
	}

	newStaging, err := p.remote.staging.FailHtlc(chanstate.Theirs, id)
	if err != nil {
		return err
	}

	p.remote.staging = newStaging
	p.addUnacked(p.remote, chanstate.FailChange{
		ID:     id,
		Reason: reason,
	})
	p.remoteChangesPending()

	p.queuePacket(&lnwire.UpdateFailHTLC{
		ID:     id,
		Reason: lnwire.OpaqueReason(reason),
	})

	return nil
}

// TriggerCommit cuts a new commitment covering all staged changes for the
// counterparty, if any are pending and the revocation window permits.
// Firing it with nothing staged is a no-op, so the commit timer is free to
// be over-eager.
func (p *Peer) TriggerCommit() {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != stateNormal && p.state != stateClearing {
		p.cfg.CommitTicker.Pause()
		return
	}

	if !p.commitPending {
		p.cfg.CommitTicker.Pause()
		return
	}

	// A commitment is already in flight; the next one goes out once
	// the counterparty revokes its current tip.
	if !p.remote.haveNextHash {
		p.cfg.CommitTicker.Pause()
		return
	}

	p.queuePktCommit()
}

// BeginClearing starts the cooperative close: our close script is derived
// and announced, and no further HTLCs will be offered. Clearing proper is
// entered once the counterparty has announced its script too.
func (p *Peer) BeginClearing() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != stateNormal && p.state != stateClearing {
		return ErrInvalidState
	}
	if p.closing.ourScriptSent {
		return nil
	}

	if err := p.queuePktCloseClearingLocked(); err != nil {
		return err
	}

	if p.closing.theirScript != nil {
		p.state = stateClearing
		p.checkClearedLocked()
	}

	return nil
}

// Shutdown terminates the channel on the wire: the outbound queue is
// drained, a final Error packet carrying the problem string is emitted,
// and the channel can then only be resolved on-chain.
func (p *Peer) Shutdown(problem string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state == stateClosed || p.state == stateErrBreakdown {
		return
	}

	p.sendErrLocked(lnwire.NewError("%s", problem))
}

// sendErrLocked queues a terminal Error packet and enters breakdown.
func (p *Peer) sendErrLocked(errPkt *lnwire.Error) {
	peerLog.Errorf("Peer(%x): sending Error(%s), channel breakdown",
		p.cfg.PeerID.SerializeCompressed(), errPkt.Problem)

	p.queuePacket(errPkt)
	p.enterBreakdownLocked()
}

// enterBreakdownLocked transitions to the terminal error state. The
// commitment chains are released; the revocation ladder is retained for
// on-chain defense.
func (p *Peer) enterBreakdownLocked() {
	p.state = stateErrBreakdown
	p.local.chain = nil
	p.remote.chain = nil
	p.local.staging = nil
	p.remote.staging = nil
	p.commitPending = false
	p.cfg.CommitTicker.Pause()
}

// addUnacked appends a staged change to the given side's current chain
// tip, where it waits for the crossover at the next revocation.
func (p *Peer) addUnacked(view *sideView, change chanstate.StagingChange) {
	tip := view.chain.tip()
	tip.unackedChanges = append(tip.unackedChanges, change)
}

// remoteChangesPending notes that the counterparty's commitment is stale
// and kicks the commit ticker.
func (p *Peer) remoteChangesPending() {
	p.commitPending = true
	p.cfg.CommitTicker.Resume()
}

// trackExpiry records the earliest in-flight HTLC expiry.
func (p *Peer) trackExpiry(expiry uint32) {
	if p.earliestExpiry == 0 || expiry < p.earliestExpiry {
		p.earliestExpiry = expiry
	}
}

// channelFeeRate returns the fee rate governing the channel: the one the
// funder announced.
func (p *Peer) channelFeeRate() uint64 {
	if p.local.offerAnchor {
		return p.local.feeRate
	}
	return p.remote.feeRate
}

// setupFirstCommit populates both sides' first commitments once the anchor
// is known. It fails if the funder cannot cover the base commitment fee.
func (p *Peer) setupFirstCommit() error {
	funder := chanstate.Theirs
	if p.local.offerAnchor {
		funder = chanstate.Ours
	}

	initial, err := chanstate.New(
		p.anchor.Amount, p.channelFeeRate(), funder,
	)
	if err != nil {
		return err
	}

	localTip := p.local.chain.tip()
	remoteTip := p.remote.chain.tip()

	localTip.state = initial.Copy()
	remoteTip.state = initial.Copy()
	p.local.staging = initial.Copy()
	p.remote.staging = initial.Copy()

	localTip.tx, localTip.outputMap, err = p.cfg.TxBuilder.CreateCommitTx(
		p.local.finalKey, p.remote.finalKey, p.local.delay,
		p.remote.delay, &p.anchor, localTip.revocationHash,
		localTip.state, chanstate.Ours,
	)
	if err != nil {
		return err
	}

	remoteTip.tx, remoteTip.outputMap, err = p.cfg.TxBuilder.CreateCommitTx(
		p.local.finalKey, p.remote.finalKey, p.local.delay,
		p.remote.delay, &p.anchor, remoteTip.revocationHash,
		remoteTip.state, chanstate.Theirs,
	)
	if err != nil {
		return err
	}

	return nil
}

// syncChannelLocked persists the current channel snapshot if a database
// was configured.
func (p *Peer) syncChannelLocked() {
	if p.cfg.DB == nil {
		return
	}

	switch p.state {
	case stateNormal, stateClearing, stateCloseWaitSig:
	default:
		return
	}

	if err := p.cfg.DB.PutChannel(p.snapshotLocked()); err != nil {
		peerLog.Errorf("unable to sync channel state: %v", err)
	}
}

// snapshotLocked builds the serializable snapshot of the channel.
func (p *Peer) snapshotLocked() *channeldb.Channel {
	ch := &channeldb.Channel{
		LocalCfg: channeldb.SideConfig{
			CommitKey:   p.local.commitKey,
			FinalKey:    p.local.finalKey,
			Delay:       p.local.delay,
			MinDepth:    p.local.minDepth,
			FeeRate:     p.local.feeRate,
			OfferAnchor: p.local.offerAnchor,
		},
		RemoteCfg: channeldb.SideConfig{
			CommitKey:   p.remote.commitKey,
			FinalKey:    p.remote.finalKey,
			Delay:       p.remote.delay,
			MinDepth:    p.remote.minDepth,
			FeeRate:     p.remote.feeRate,
			OfferAnchor: p.remote.offerAnchor,
		},
		LocalNextRevocationHash:  p.local.nextRevocationHash,
		RemoteNextRevocationHash: p.remote.nextRevocationHash,
		HaveRemoteNextHash:       p.remote.haveNextHash,
		HtlcIDCounter:            p.htlcIDCounter,
		AnchorTxid:               p.anchor.Txid,
		AnchorOutputIndex:        p.anchor.OutputIndex,
		AnchorAmount:             p.anchor.Amount,
		AnchorWitnessScript:      p.anchor.WitnessScript,
		AnchorWeCreated:          p.anchorWeCreated,
		LocalCommits:             snapshotChain(p.local.chain),
		RemoteCommits:            snapshotChain(p.remote.chain),
		TheirPreimages:           p.theirPreimages,
	}
	copy(ch.PeerID[:], p.cfg.PeerID.SerializeCompressed())

	return ch
}

// snapshotChain converts a live commitment chain into its serializable
// form, tail first.
func snapshotChain(chain *commitmentChain) []*channeldb.Commit {
	convert := func(ci *commitInfo) *channeldb.Commit {
		return &channeldb.Commit{
			CommitNum:      ci.commitNum,
			RevocationHash: ci.revocationHash,
			State:          ci.state,
			Tx:             ci.tx,
			Sig:            ci.sig,
			Unacked:        ci.unackedChanges,
		}
	}

	commits := []*channeldb.Commit{convert(chain.tail())}
	if chain.hasUnackedCommitment() {
		commits = append(commits, convert(chain.tip()))
	}

	return commits
}

// Status returns the channel's protocol state as a string.
func (p *Peer) Status() string {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.state.String()
}

// LocalCommitment returns a copy of the channel state encoded in our
// current commitment transaction, or nil once the channel has broken
// down.
func (p *Peer) LocalCommitment() *chanstate.State {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.local.chain == nil {
		return nil
	}

	return p.local.chain.tip().state.Copy()
}

// RemoteCommitment returns a copy of the channel state encoded in the
// counterparty's current commitment transaction, or nil once the channel
// has broken down.
func (p *Peer) RemoteCommitment() *chanstate.State {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.remote.chain == nil {
		return nil
	}

	return p.remote.chain.tip().state.Copy()
}

// CloseTx returns the fully signed mutual close transaction once the
// channel has closed cooperatively, along with the counterparty's
// signature over it.
func (p *Peer) CloseTx() (*wire.MsgTx, lnwire.Sig, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != stateClosed || p.finalCloseTx == nil {
		return nil, lnwire.Sig{}, ErrInvalidState
	}

	return p.finalCloseTx, p.closing.theirSig, nil
}

// EarliestHtlcExpiry returns the soonest expiry among HTLCs that have been
// in flight, zero if none ever were.
func (p *Peer) EarliestHtlcExpiry() uint32 {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.earliestExpiry
}
