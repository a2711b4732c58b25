package channeldb

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
	"github.com/lightningnetwork/channeld/shachain"
)

func testKey(t *testing.T, seed byte) *btcec.PublicKey {
	t.Helper()

	var b [32]byte
	b[0] = seed
	b[31] = 0x01
	priv, _ := btcec.PrivKeyFromBytes(b[:])

	pub, err := btcec.ParsePubKey(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	return pub
}

// testChannelFixture builds a fully populated snapshot: a state with an
// in-flight HTLC, two single-commit chains, pending unacked changes and a
// seeded revocation ladder.
func testChannelFixture(t *testing.T) *Channel {
	t.Helper()

	state, err := chanstate.New(1_000_000, 5_000, chanstate.Ours)
	require.NoError(t, err)

	preimage := sha256.Sum256([]byte("fixture"))
	htlc := chanstate.Htlc{
		ID:     3,
		Amount: 25_000_000,
		RHash:  sha256.Sum256(preimage[:]),
		Expiry: 1_700_086_400,
		Route:  []byte{0x0a, 0x0b},
	}
	withHtlc, err := state.AddHtlc(chanstate.Ours, htlc)
	require.NoError(t, err)

	seed := chainhash.Hash(sha256.Sum256([]byte("ladder seed")))
	producer := shachain.NewProducer(seed)
	ladder := shachain.NewLadder()
	hash, err := producer.AtIndex(^uint64(0))
	require.NoError(t, err)
	require.NoError(t, ladder.AddHash(^uint64(0), *hash))

	commit := &Commit{
		CommitNum:      1,
		RevocationHash: sha256.Sum256([]byte("revocation")),
		State:          withHtlc,
		Unacked: []chanstate.StagingChange{
			chanstate.AddChange{Htlc: htlc},
			chanstate.FulfillChange{ID: 3, Preimage: preimage},
			chanstate.FailChange{ID: 4, Reason: []byte("why")},
		},
	}

	ch := &Channel{
		LocalCfg: SideConfig{
			CommitKey:   testKey(t, 1),
			FinalKey:    testKey(t, 2),
			Delay:       lnwire.NewSecondsLocktime(86_400),
			MinDepth:    3,
			FeeRate:     5_000,
			OfferAnchor: true,
		},
		RemoteCfg: SideConfig{
			CommitKey: testKey(t, 3),
			FinalKey:  testKey(t, 4),
			Delay:     lnwire.NewSecondsLocktime(43_200),
			MinDepth:  6,
			FeeRate:   6_000,
		},
		LocalNextRevocationHash:  sha256.Sum256([]byte("local next")),
		RemoteNextRevocationHash: sha256.Sum256([]byte("remote next")),
		HaveRemoteNextHash:       true,
		HtlcIDCounter:            4,
		AnchorTxid: chainhash.Hash(
			sha256.Sum256([]byte("anchor")),
		),
		AnchorOutputIndex:   1,
		AnchorAmount:        btcutil.Amount(1_000_000),
		AnchorWitnessScript: []byte{0x52, 0x01, 0x02, 0x52, 0xae},
		AnchorWeCreated:     true,
		LocalCommits:        []*Commit{commit},
		RemoteCommits:       []*Commit{commit},
		TheirPreimages:      ladder,
	}
	copy(ch.PeerID[:], testKey(t, 5).SerializeCompressed())

	return ch
}

// TestChannelRoundTrip persists a channel snapshot and reads it back.
func TestChannelRoundTrip(t *testing.T) {
	t.Parallel()

	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ch := testChannelFixture(t)
	require.NoError(t, db.PutChannel(ch))

	got, err := db.FetchChannel(ch.PeerID)
	require.NoError(t, err)

	require.Equal(t, ch.PeerID, got.PeerID)
	require.Equal(t, ch.LocalCfg, got.LocalCfg)
	require.Equal(t, ch.RemoteCfg, got.RemoteCfg)
	require.Equal(t, ch.LocalNextRevocationHash,
		got.LocalNextRevocationHash)
	require.Equal(t, ch.HaveRemoteNextHash, got.HaveRemoteNextHash)
	require.Equal(t, ch.HtlcIDCounter, got.HtlcIDCounter)
	require.Equal(t, ch.AnchorTxid, got.AnchorTxid)
	require.Equal(t, ch.AnchorAmount, got.AnchorAmount)
	require.Equal(t, ch.AnchorWitnessScript, got.AnchorWitnessScript)
	require.Equal(t, ch.AnchorWeCreated, got.AnchorWeCreated)

	require.Len(t, got.LocalCommits, 1)
	gotCommit := got.LocalCommits[0]
	wantCommit := ch.LocalCommits[0]
	require.Equal(t, wantCommit.CommitNum, gotCommit.CommitNum)
	require.Equal(t, wantCommit.RevocationHash, gotCommit.RevocationHash)
	require.Equal(t, wantCommit.Unacked, gotCommit.Unacked)
	require.Equal(t, wantCommit.State.Balance(chanstate.Ours),
		gotCommit.State.Balance(chanstate.Ours))
	require.Equal(t, wantCommit.State.Htlcs(chanstate.Ours),
		gotCommit.State.Htlcs(chanstate.Ours))
	require.Equal(t, wantCommit.State.Changes, gotCommit.State.Changes)

	// The restored ladder keeps its derivation ability.
	hash, err := got.TheirPreimages.LookUp(^uint64(0))
	require.NoError(t, err)
	want, err := ch.TheirPreimages.LookUp(^uint64(0))
	require.NoError(t, err)
	require.Equal(t, *want, *hash)
}

// TestFetchUnknownChannel checks the missing-channel error.
func TestFetchUnknownChannel(t *testing.T) {
	t.Parallel()

	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	var peerID [33]byte
	peerID[0] = 0x02

	_, err = db.FetchChannel(peerID)
	require.ErrorIs(t, err, ErrNoChannelFound)
}

// TestDeleteChannel checks removal after close.
func TestDeleteChannel(t *testing.T) {
	t.Parallel()

	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ch := testChannelFixture(t)
	require.NoError(t, db.PutChannel(ch))
	require.NoError(t, db.DeleteChannel(ch.PeerID))

	_, err = db.FetchChannel(ch.PeerID)
	require.ErrorIs(t, err, ErrNoChannelFound)
}
