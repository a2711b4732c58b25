package peer

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/channeld/channeldb"
	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
)

const (
	testAnchorSat = btcutil.Amount(1_000_000)
	testFeeRate   = uint64(5_000)
)

var (
	testNow        = time.Unix(1_700_000_000, 0)
	testExpiry     = uint32(1_700_086_400)
	testAnchorTxid = chainhash.Hash(sha256.Sum256([]byte("anchor tx")))
)

// testChannel bundles the two endpoints of a channel under test.
type testChannel struct {
	alice *Peer
	bob   *Peer

	aliceCfg Config
	bobCfg   Config
}

// createTestPeers builds two connected engines: alice funds the anchor,
// bob does not. The commit tickers are force tickers, so commitments only
// happen when the tests trigger them.
func createTestPeers(t *testing.T, aliceFeeRate, bobFeeRate uint64,
	aliceDB, bobDB *channeldb.DB) *testChannel {

	t.Helper()

	oracle := NewDeterministicOracle(sha256.Sum256([]byte(t.Name())))

	aliceSigner, err := NewTestSigner(oracle)
	require.NoError(t, err)
	bobSigner, err := NewTestSigner(oracle)
	require.NoError(t, err)

	builder := &TestTxBuilder{}
	clk := clock.NewTestClock(testNow)

	newCfg := func(signer *TestSigner, peerKey *btcec.PublicKey,
		feeRate uint64, offerAnchor bool,
		db *channeldb.DB) Config {

		return Config{
			PeerID:            peerKey,
			Signer:            signer,
			TxBuilder:         builder,
			Clock:             clk,
			CommitTicker:      ticker.NewForce(time.Hour),
			DB:                db,
			CommitKey:         signer.CommitPubKey(),
			FinalKey:          signer.FinalPubKey(),
			Delay:             lnwire.NewSecondsLocktime(86_400),
			FeeRate:           feeRate,
			MinDepth:          3,
			OfferAnchor:       offerAnchor,
			RelLocktimeMax:    1_000_000,
			AnchorConfirmsMax: 10,
			CommitFeeRateMin:  1_000,
			ValidatePackets:   true,
		}
	}

	aliceCfg := newCfg(
		aliceSigner, bobSigner.CommitPubKey(), aliceFeeRate, true,
		aliceDB,
	)
	bobCfg := newCfg(
		bobSigner, aliceSigner.CommitPubKey(), bobFeeRate, false,
		bobDB,
	)

	return &testChannel{
		alice:    New(aliceCfg),
		bob:      New(bobCfg),
		aliceCfg: aliceCfg,
		bobCfg:   bobCfg,
	}
}

// nextPacket pops the next queued outbound packet of a peer.
func nextPacket(t *testing.T, from *Peer) lnwire.Message {
	t.Helper()

	select {
	case pkt := <-from.outgoing.ChanOut():
		return pkt.(lnwire.Message)
	case <-time.After(5 * time.Second):
		t.Fatalf("no packet queued")
		return nil
	}
}

// deliver moves one packet across the wire, round-tripping it through the
// codec exactly as a transport would, and requires it to be accepted.
func deliver(t *testing.T, from, to *Peer) lnwire.Message {
	t.Helper()

	msg := nextPacket(t, from)
	wireMsg, err := reserialize(msg)
	require.NoError(t, err)
	require.NoError(t, to.ProcessPacket(wireMsg))

	return msg
}

// assertNoPacket requires a peer's outbound queue to stay empty.
func assertNoPacket(t *testing.T, from *Peer) {
	t.Helper()

	select {
	case pkt := <-from.outgoing.ChanOut():
		t.Fatalf("unexpected packet %v",
			pkt.(lnwire.Message).MsgType())
	case <-time.After(50 * time.Millisecond):
	}
}

// openChannel drives the full open handshake between the two peers.
func openChannel(t *testing.T, c *testChannel) {
	t.Helper()

	require.NoError(t, c.alice.Open())
	require.NoError(t, c.bob.Open())

	require.IsType(t, &lnwire.OpenChannel{}, deliver(t, c.alice, c.bob))
	require.IsType(t, &lnwire.OpenChannel{}, deliver(t, c.bob, c.alice))

	require.NoError(t, c.alice.ProvideAnchor(
		testAnchorTxid, 0, testAnchorSat,
	))
	require.IsType(t, &lnwire.OpenAnchor{}, deliver(t, c.alice, c.bob))

	// Bob signs alice's first commitment, alice reciprocates.
	require.IsType(t, &lnwire.OpenCommitSig{}, deliver(t, c.bob, c.alice))

	c.alice.AnchorConfirmed()
	c.bob.AnchorConfirmed()

	require.IsType(t, &lnwire.OpenCommitSig{}, deliver(t, c.alice, c.bob))
	require.IsType(t, &lnwire.OpenComplete{}, deliver(t, c.alice, c.bob))
	require.IsType(t, &lnwire.OpenComplete{}, deliver(t, c.bob, c.alice))

	require.Equal(t, "NORMAL", c.alice.Status())
	require.Equal(t, "NORMAL", c.bob.Status())
}

// commitCycle triggers a commitment from the initiator and delivers the
// responder's revocation back.
func commitCycle(t *testing.T, initiator, responder *Peer) {
	t.Helper()

	initiator.TriggerCommit()
	require.IsType(t, &lnwire.UpdateCommit{},
		deliver(t, initiator, responder))
	require.IsType(t, &lnwire.UpdateRevocation{},
		deliver(t, responder, initiator))
}

// assertConserved checks the conservation invariant on a snapshot.
func assertConserved(t *testing.T, state *chanstate.State) {
	t.Helper()

	require.Equal(t, lnwire.NewMSatFromSatoshis(testAnchorSat),
		state.TotalMSat())
}

// assertStagingConsistent verifies that each side's staging state equals
// its committed tip plus the tip's unacked changes.
func assertStagingConsistent(t *testing.T, p *Peer) {
	t.Helper()

	check := func(view *sideView, origin chanstate.Side) {
		expected := view.chain.tip().state.Copy()
		for _, change := range view.chain.tip().unackedChanges {
			var err error
			expected, err = expected.ApplyChange(change, origin)
			require.NoError(t, err)
		}

		require.Equal(t, expected.Changes, view.staging.Changes)
		for _, side := range []chanstate.Side{
			chanstate.Ours, chanstate.Theirs,
		} {
			require.Equal(t, expected.Balance(side),
				view.staging.Balance(side))
			require.Equal(t, len(expected.Htlcs(side)),
				len(view.staging.Htlcs(side)))
		}
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	check(p.local, chanstate.Theirs)
	check(p.remote, chanstate.Ours)
}

// TestChannelOpen drives the open handshake and checks the initial
// balance split.
func TestChannelOpen(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	fee := lnwire.NewMSatFromSatoshis(
		chanstate.CommitFee(testFeeRate, 0),
	)
	capacity := lnwire.NewMSatFromSatoshis(testAnchorSat)

	aliceState := c.alice.LocalCommitment()
	require.Equal(t, capacity-fee, aliceState.Balance(chanstate.Ours))
	require.Equal(t, lnwire.MilliSatoshi(0),
		aliceState.Balance(chanstate.Theirs))
	assertConserved(t, aliceState)

	bobState := c.bob.LocalCommitment()
	require.Equal(t, capacity-fee, bobState.Balance(chanstate.Theirs))
	require.Equal(t, lnwire.MilliSatoshi(0),
		bobState.Balance(chanstate.Ours))
	assertConserved(t, bobState)

	assertNoPacket(t, c.alice)
	assertNoPacket(t, c.bob)
}

// TestSingleHtlcRoundTrip adds an HTLC from alice, settles it from bob,
// and checks the final balances on both sides' commitments.
func TestSingleHtlcRoundTrip(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	preimage := sha256.Sum256([]byte("single htlc"))
	rhash := sha256.Sum256(preimage[:])

	const htlcAmt = lnwire.MilliSatoshi(100_000_000)

	id, err := c.alice.AddHTLC(htlcAmt, testExpiry, rhash, []byte{0x01})
	require.NoError(t, err)
	require.Equal(t, uint64(0), id)

	require.IsType(t, &lnwire.UpdateAddHTLC{},
		deliver(t, c.alice, c.bob))

	commitCycle(t, c.alice, c.bob)
	commitCycle(t, c.bob, c.alice)

	// Both committed states now carry the HTLC offered by alice.
	require.Len(t, c.alice.LocalCommitment().Htlcs(chanstate.Ours), 1)
	require.Len(t, c.bob.LocalCommitment().Htlcs(chanstate.Theirs), 1)
	assertStagingConsistent(t, c.alice)
	assertStagingConsistent(t, c.bob)

	require.Equal(t, testExpiry, c.alice.EarliestHtlcExpiry())
	require.Equal(t, testExpiry, c.bob.EarliestHtlcExpiry())

	// Bob settles with the preimage.
	require.NoError(t, c.bob.FulfillHTLC(id, preimage))
	require.IsType(t, &lnwire.UpdateFulfillHTLC{},
		deliver(t, c.bob, c.alice))

	commitCycle(t, c.bob, c.alice)
	commitCycle(t, c.alice, c.bob)

	aliceState := c.alice.LocalCommitment()
	require.Empty(t, aliceState.Htlcs(chanstate.Ours))
	require.Equal(t, htlcAmt, aliceState.Balance(chanstate.Theirs))
	assertConserved(t, aliceState)

	bobState := c.bob.LocalCommitment()
	require.Empty(t, bobState.Htlcs(chanstate.Theirs))
	require.Equal(t, htlcAmt, bobState.Balance(chanstate.Ours))
	assertConserved(t, bobState)

	assertStagingConsistent(t, c.alice)
	assertStagingConsistent(t, c.bob)
	assertNoPacket(t, c.alice)
	assertNoPacket(t, c.bob)
}

// TestBadRevocationPreimage corrupts a revocation preimage and checks
// that the receiver tears the channel down.
func TestBadRevocationPreimage(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	rhash := sha256.Sum256([]byte("doomed htlc"))
	_, err := c.alice.AddHTLC(1_000_000, testExpiry, rhash, nil)
	require.NoError(t, err)
	require.IsType(t, &lnwire.UpdateAddHTLC{},
		deliver(t, c.alice, c.bob))

	c.alice.TriggerCommit()
	require.IsType(t, &lnwire.UpdateCommit{},
		deliver(t, c.alice, c.bob))

	// Intercept bob's revocation and flip a bit of the preimage.
	revocation := nextPacket(t, c.bob).(*lnwire.UpdateRevocation)
	revocation.RevocationPreimage[0] ^= 0x01

	err = c.alice.ProcessPacket(revocation)
	require.Error(t, err)
	require.Contains(t, err.Error(), "complete preimage incorrect")

	require.Equal(t, "ERR_BREAKDOWN", c.alice.Status())

	// Alice's final packet is the terminal Error.
	errPkt, ok := nextPacket(t, c.alice).(*lnwire.Error)
	require.True(t, ok)
	require.Contains(t, string(errPkt.Problem),
		"complete preimage incorrect")
}

// TestDuplicateHtlcIDFromPeer checks that a repeated HTLC id on the wire
// is fatal for the receiver.
func TestDuplicateHtlcIDFromPeer(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	add := &lnwire.UpdateAddHTLC{
		ID:          7,
		Amount:      1_000_000,
		PaymentHash: sha256.Sum256([]byte("dup")),
		Expiry:      lnwire.NewSecondsLocktime(testExpiry),
	}

	require.NoError(t, c.bob.ProcessPacket(add))

	err := c.bob.ProcessPacket(add)
	require.Error(t, err)
	require.Contains(t, err.Error(), "clashes")
	require.Equal(t, "ERR_BREAKDOWN", c.bob.Status())
}

// TestHtlcCap checks that the 301st in-flight offer is refused locally
// and never reaches the wire.
func TestHtlcCap(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	rhash := sha256.Sum256([]byte("cap"))
	for i := 0; i < chanstate.MaxHTLCNumber; i++ {
		_, err := c.alice.AddHTLC(1_000, testExpiry, rhash, nil)
		require.NoError(t, err)
		require.IsType(t, &lnwire.UpdateAddHTLC{},
			deliver(t, c.alice, c.bob))
	}

	_, err := c.alice.AddHTLC(1_000, testExpiry, rhash, nil)
	require.ErrorIs(t, err, chanstate.ErrTooManyHtlcs)

	// The rejection was local: nothing further was queued, and bob is
	// still healthy.
	assertNoPacket(t, c.alice)
	require.Equal(t, "NORMAL", c.bob.Status())
}

// TestCommitTriggerIdempotent checks that firing the commit trigger with
// no intervening changes emits exactly one commitment.
func TestCommitTriggerIdempotent(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	rhash := sha256.Sum256([]byte("idempotent"))
	_, err := c.alice.AddHTLC(1_000_000, testExpiry, rhash, nil)
	require.NoError(t, err)
	require.IsType(t, &lnwire.UpdateAddHTLC{},
		deliver(t, c.alice, c.bob))

	c.alice.TriggerCommit()
	require.IsType(t, &lnwire.UpdateCommit{},
		deliver(t, c.alice, c.bob))

	c.alice.TriggerCommit()
	assertNoPacket(t, c.alice)
}

// TestEmptyCommitRejected checks that an UpdateCommit without changes is
// refused by the receiver.
func TestEmptyCommitRejected(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	err := c.bob.ProcessPacket(&lnwire.UpdateCommit{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Empty commit")
	require.Equal(t, "ERR_BREAKDOWN", c.bob.Status())
}

// TestAddExpiredHtlc checks that offers which already expired by the
// engine clock are rejected locally.
func TestAddExpiredHtlc(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	rhash := sha256.Sum256([]byte("expired"))
	_, err := c.alice.AddHTLC(
		1_000_000, uint32(testNow.Unix()), rhash, nil,
	)
	require.Error(t, err)
	assertNoPacket(t, c.alice)
}

// TestMutualClose drives clearing and fee negotiation with divergent fee
// rates, checking convergence and the final transaction.
func TestMutualClose(t *testing.T) {
	t.Parallel()

	// Different fee rates force the midpoint iteration.
	c := createTestPeers(t, testFeeRate, 6_400, nil, nil)
	openChannel(t, c)

	require.NoError(t, c.alice.BeginClearing())
	require.IsType(t, &lnwire.CloseClearing{},
		deliver(t, c.alice, c.bob))

	// Bob reciprocates and, with no HTLCs in flight, goes straight to
	// fee negotiation.
	require.IsType(t, &lnwire.CloseClearing{},
		deliver(t, c.bob, c.alice))

	aliceFee := chanstate.CommitFee(testFeeRate, 0)
	bobFee := chanstate.CommitFee(6_400, 0)
	require.NotEqual(t, aliceFee, bobFee)

	// First proposals cross.
	first := deliver(t, c.alice, c.bob).(*lnwire.CloseSignature)
	require.Equal(t, aliceFee, first.CloseFee)
	second := deliver(t, c.bob, c.alice).(*lnwire.CloseSignature)
	require.Equal(t, bobFee, second.CloseFee)

	// Both step to the midpoint and terminate on the match.
	midpoint := (aliceFee + bobFee) / 2
	third := deliver(t, c.alice, c.bob).(*lnwire.CloseSignature)
	require.Equal(t, midpoint, third.CloseFee)
	fourth := deliver(t, c.bob, c.alice).(*lnwire.CloseSignature)
	require.Equal(t, midpoint, fourth.CloseFee)

	require.Equal(t, "CLOSED", c.alice.Status())
	require.Equal(t, "CLOSED", c.bob.Status())

	closeTx, theirSig, err := c.alice.CloseTx()
	require.NoError(t, err)
	require.False(t, theirSig.IsZero())

	// Conservation: the close outputs plus the negotiated fee make up
	// the anchor.
	var total btcutil.Amount
	for _, txOut := range closeTx.TxOut {
		total += btcutil.Amount(txOut.Value)
	}
	require.Equal(t, testAnchorSat, total+midpoint)

	// New HTLCs are refused after close.
	_, err = c.alice.AddHTLC(1_000, testExpiry, [32]byte{}, nil)
	require.Error(t, err)
}

// TestClearingRefusesNewHtlcs checks both the local and the wire-side add
// prohibitions during clearing.
func TestClearingRefusesNewHtlcs(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	// Keep an HTLC in flight so clearing does not finish immediately.
	preimage := sha256.Sum256([]byte("draining"))
	rhash := sha256.Sum256(preimage[:])
	id, err := c.alice.AddHTLC(1_000_000, testExpiry, rhash, nil)
	require.NoError(t, err)
	require.IsType(t, &lnwire.UpdateAddHTLC{},
		deliver(t, c.alice, c.bob))
	commitCycle(t, c.alice, c.bob)
	commitCycle(t, c.bob, c.alice)

	require.NoError(t, c.alice.BeginClearing())
	require.IsType(t, &lnwire.CloseClearing{},
		deliver(t, c.alice, c.bob))
	require.IsType(t, &lnwire.CloseClearing{},
		deliver(t, c.bob, c.alice))

	require.Equal(t, "CLEARING", c.alice.Status())
	require.Equal(t, "CLEARING", c.bob.Status())

	// A local add is refused.
	_, err = c.alice.AddHTLC(1_000, testExpiry, rhash, nil)
	require.Error(t, err)

	// Settling the in-flight HTLC is still allowed while clearing.
	require.NoError(t, c.bob.FailHTLC(id, []byte("drain")))
	require.IsType(t, &lnwire.UpdateFailHTLC{}, deliver(t, c.bob, c.alice))

	// An add from the wire is a protocol violation now.
	err = c.bob.ProcessPacket(&lnwire.UpdateAddHTLC{
		ID:          99,
		Amount:      1_000,
		PaymentHash: rhash,
		Expiry:      lnwire.NewSecondsLocktime(testExpiry),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "clearing")
	require.Equal(t, "ERR_BREAKDOWN", c.bob.Status())
}

// TestUnexpectedPacket checks that out-of-state packets are fatal.
func TestUnexpectedPacket(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)

	require.NoError(t, c.alice.Open())
	require.IsType(t, &lnwire.OpenChannel{}, nextPacket(t, c.alice))

	// A commitment signature before the handshake is done.
	err := c.alice.ProcessPacket(&lnwire.UpdateCommit{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unexpected packet")
	require.Equal(t, "ERR_BREAKDOWN", c.alice.Status())
}

// TestBlocksLocktimeRefused checks the open-time locktime format rule.
func TestBlocksLocktimeRefused(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)

	require.NoError(t, c.alice.Open())
	require.NoError(t, c.bob.Open())

	// Tamper bob's open to use a block-based delay before it reaches
	// alice.
	open := nextPacket(t, c.bob).(*lnwire.OpenChannel)
	open.Delay = lnwire.Locktime{
		Format: lnwire.LocktimeBlocks,
		Value:  144,
	}

	err := c.alice.ProcessPacket(open)
	require.Error(t, err)
	require.Contains(t, err.Error(), "blocks not accepted")
	require.Equal(t, "ERR_BREAKDOWN", c.alice.Status())
}

// TestPeerErrorIsTerminal checks that a received Error packet tears the
// channel down without a reply.
func TestPeerErrorIsTerminal(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	require.NoError(t, c.bob.ProcessPacket(
		lnwire.NewError("something broke"),
	))
	require.Equal(t, "ERR_BREAKDOWN", c.bob.Status())
	assertNoPacket(t, c.bob)
}

// TestCommitPublished checks that a unilateral close observed on-chain
// halts off-chain operation while keeping the revocation ladder.
func TestCommitPublished(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)
	openChannel(t, c)

	c.bob.CommitPublished(nil)
	require.Equal(t, "ERR_BREAKDOWN", c.bob.Status())
	require.NotNil(t, c.bob.theirPreimages)

	_, err := c.bob.AddHTLC(1_000, testExpiry, [32]byte{}, nil)
	require.Error(t, err)
}

// TestPersistRestore runs a payment, then restores the channel from the
// database and checks that the rebuilt engine matches.
func TestPersistRestore(t *testing.T) {
	t.Parallel()

	db, err := channeldb.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	c := createTestPeers(t, testFeeRate, testFeeRate, db, nil)
	openChannel(t, c)

	preimage := sha256.Sum256([]byte("persisted"))
	rhash := sha256.Sum256(preimage[:])

	id, err := c.alice.AddHTLC(50_000_000, testExpiry, rhash, nil)
	require.NoError(t, err)
	require.IsType(t, &lnwire.UpdateAddHTLC{},
		deliver(t, c.alice, c.bob))
	commitCycle(t, c.alice, c.bob)
	commitCycle(t, c.bob, c.alice)

	var peerID [33]byte
	copy(peerID[:], c.aliceCfg.PeerID.SerializeCompressed())

	stored, err := db.FetchChannel(peerID)
	require.NoError(t, err)
	require.Equal(t, id+1, stored.HtlcIDCounter)
	require.Equal(t, testAnchorSat, stored.AnchorAmount)

	restoredCfg := c.aliceCfg
	restoredCfg.CommitTicker = ticker.NewForce(time.Hour)

	restored, err := NewFromChannel(restoredCfg, stored)
	require.NoError(t, err)

	require.Equal(t, "NORMAL", restored.Status())

	want := c.alice.LocalCommitment()
	got := restored.LocalCommitment()
	require.Equal(t, want.Balance(chanstate.Ours),
		got.Balance(chanstate.Ours))
	require.Equal(t, want.Balance(chanstate.Theirs),
		got.Balance(chanstate.Theirs))
	require.Len(t, got.Htlcs(chanstate.Ours), 1)

	assertStagingConsistent(t, restored)
	require.Equal(t, testExpiry, restored.EarliestHtlcExpiry())
}

// TestStartStop exercises the transport-driven mode end to end over an
// in-memory pipe.
func TestStartStop(t *testing.T) {
	t.Parallel()

	c := createTestPeers(t, testFeeRate, testFeeRate, nil, nil)

	aliceT, bobT := NewPipeTransports(64)
	c.alice.cfg.Transport = aliceT
	c.bob.cfg.Transport = bobT

	// Both sides issue their opens before the handlers run, so neither
	// misreads the counterparty's simultaneous open.
	require.NoError(t, c.alice.Open())
	require.NoError(t, c.bob.Open())

	require.NoError(t, c.alice.Start())
	require.NoError(t, c.bob.Start())

	// The anchor can only go out once both opens have crossed.
	require.Eventually(t, func() bool {
		return c.alice.ProvideAnchor(
			testAnchorTxid, 0, testAnchorSat,
		) == nil
	}, 5*time.Second, 10*time.Millisecond)

	c.alice.AnchorConfirmed()
	c.bob.AnchorConfirmed()

	require.Eventually(t, func() bool {
		return c.alice.Status() == "NORMAL" &&
			c.bob.Status() == "NORMAL"
	}, 5*time.Second, 10*time.Millisecond)

	aliceT.Close()
	require.NoError(t, c.alice.Stop())
	require.NoError(t, c.bob.Stop())
}
