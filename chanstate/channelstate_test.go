package chanstate

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/channeld/lnwire"
)

const (
	testAnchorSat = btcutil.Amount(1_000_000)
	testFeeRate   = uint64(5_000)
)

// newTestState creates the canonical post-open state with Ours as funder.
func newTestState(t *testing.T) *State {
	t.Helper()

	state, err := New(testAnchorSat, testFeeRate, Ours)
	require.NoError(t, err)

	return state
}

func testHtlc(id uint64, amount lnwire.MilliSatoshi) (Htlc, [32]byte) {
	preimage := sha256.Sum256([]byte{byte(id), byte(id >> 8)})
	return Htlc{
		ID:     id,
		Amount: amount,
		RHash:  sha256.Sum256(preimage[:]),
		Expiry: 1_700_000_000,
	}, preimage
}

// assertConserved checks the channel conservation invariant: balances,
// in-flight HTLCs and the commitment fee always sum to the anchor.
func assertConserved(t *testing.T, state *State) {
	t.Helper()

	require.Equal(t, lnwire.NewMSatFromSatoshis(testAnchorSat),
		state.TotalMSat())
}

// TestNewStateFunderPaysFee checks the initial split: the funder holds
// the capacity minus the base commitment fee.
func TestNewStateFunderPaysFee(t *testing.T) {
	t.Parallel()

	state := newTestState(t)

	fee := lnwire.NewMSatFromSatoshis(CommitFee(testFeeRate, 0))
	capacity := lnwire.NewMSatFromSatoshis(testAnchorSat)

	require.Equal(t, capacity-fee, state.Balance(Ours))
	require.Equal(t, lnwire.MilliSatoshi(0), state.Balance(Theirs))
	assertConserved(t, state)

	// A dust anchor cannot cover even the base fee.
	_, err := New(1, testFeeRate, Ours)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

// TestAddFulfillHtlc walks an HTLC through add and settle, checking value
// movement and immutability of the input states.
func TestAddFulfillHtlc(t *testing.T) {
	t.Parallel()

	state := newTestState(t)
	htlc, preimage := testHtlc(0, 100_000_000)

	added, err := state.AddHtlc(Ours, htlc)
	require.NoError(t, err)
	assertConserved(t, added)

	// The original state is untouched.
	require.Empty(t, state.Htlcs(Ours))
	require.Equal(t, uint64(0), state.Changes)

	require.Len(t, added.Htlcs(Ours), 1)
	require.Equal(t, uint64(1), added.Changes)
	require.Equal(t, state.Balance(Ours)-htlc.Amount-feeGrowth(0, 1),
		added.Balance(Ours))

	settled, err := added.FulfillHtlc(Ours, 0, preimage)
	require.NoError(t, err)
	assertConserved(t, settled)

	require.Empty(t, settled.Htlcs(Ours))
	require.Equal(t, htlc.Amount, settled.Balance(Theirs))
	require.Equal(t, uint64(2), settled.Changes)
}

// feeGrowth is the funder balance delta caused by moving between HTLC
// counts.
func feeGrowth(from, to int) lnwire.MilliSatoshi {
	return lnwire.NewMSatFromSatoshis(CommitFee(testFeeRate, to)) -
		lnwire.NewMSatFromSatoshis(CommitFee(testFeeRate, from))
}

// TestFailHtlcRefundsOfferer checks that a failed HTLC returns its value
// to the side that offered it.
func TestFailHtlcRefundsOfferer(t *testing.T) {
	t.Parallel()

	state := newTestState(t)
	htlc, _ := testHtlc(7, 25_000_000)

	added, err := state.AddHtlc(Ours, htlc)
	require.NoError(t, err)

	failed, err := added.FailHtlc(Ours, 7)
	require.NoError(t, err)
	assertConserved(t, failed)

	require.Equal(t, state.Balance(Ours), failed.Balance(Ours))
	require.Equal(t, state.Balance(Theirs), failed.Balance(Theirs))
	require.Empty(t, failed.Htlcs(Ours))
}

// TestFulfillBadPreimage checks settle validation.
func TestFulfillBadPreimage(t *testing.T) {
	t.Parallel()

	state := newTestState(t)
	htlc, preimage := testHtlc(0, 1_000_000)

	added, err := state.AddHtlc(Ours, htlc)
	require.NoError(t, err)

	var wrong [32]byte
	copy(wrong[:], preimage[:])
	wrong[0] ^= 0x01

	_, err = added.FulfillHtlc(Ours, 0, wrong)
	require.ErrorIs(t, err, ErrBadPreimage)

	_, err = added.FulfillHtlc(Ours, 99, preimage)
	require.ErrorIs(t, err, ErrHtlcNotFound)
}

// TestDuplicateHtlcID checks that an id may not be reused by the same
// side while in flight, but is fine on the other side.
func TestDuplicateHtlcID(t *testing.T) {
	t.Parallel()

	state := newTestState(t)
	htlc, _ := testHtlc(7, 1_000_000)

	added, err := state.AddHtlc(Ours, htlc)
	require.NoError(t, err)

	_, err = added.AddHtlc(Ours, htlc)
	require.ErrorIs(t, err, ErrDuplicateID)

	// The same id offered by the other side does not clash. Fund the
	// other side first.
	funded, err := added.FulfillHtlc(Ours, 7, func() [32]byte {
		_, preimage := testHtlc(7, 1_000_000)
		return preimage
	}())
	require.NoError(t, err)

	_, err = funded.AddHtlc(Theirs, htlc)
	require.NoError(t, err)
}

// TestAddHtlcInsufficientFunds checks that an offer larger than the
// offering side's balance is refused.
func TestAddHtlcInsufficientFunds(t *testing.T) {
	t.Parallel()

	state := newTestState(t)

	htlc, _ := testHtlc(0, lnwire.NewMSatFromSatoshis(testAnchorSat))
	_, err := state.AddHtlc(Ours, htlc)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// The unfunded side cannot offer anything at all.
	small, _ := testHtlc(1, 1_000)
	_, err = state.AddHtlc(Theirs, small)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

// TestHtlcCap checks the per-side in-flight limit.
func TestHtlcCap(t *testing.T) {
	t.Parallel()

	state := newTestState(t)

	var err error
	for i := 0; i < MaxHTLCNumber; i++ {
		htlc, _ := testHtlc(uint64(i), 1_000)
		state, err = state.AddHtlc(Ours, htlc)
		require.NoError(t, err)
	}

	htlc, _ := testHtlc(uint64(MaxHTLCNumber), 1_000)
	_, err = state.AddHtlc(Ours, htlc)
	require.ErrorIs(t, err, ErrTooManyHtlcs)

	assertConserved(t, state)
}

// TestApplyChangeCrossover checks the changeset application used at
// revocation crossover time.
func TestApplyChangeCrossover(t *testing.T) {
	t.Parallel()

	state := newTestState(t)
	htlc, preimage := testHtlc(3, 10_000_000)

	// An add originated by us lands as an HTLC offered by us.
	added, err := state.ApplyChange(AddChange{Htlc: htlc}, Ours)
	require.NoError(t, err)
	require.Len(t, added.Htlcs(Ours), 1)

	// A fulfill originated by the counterparty settles our offer.
	settled, err := added.ApplyChange(FulfillChange{
		ID:       3,
		Preimage: preimage,
	}, Theirs)
	require.NoError(t, err)
	require.Empty(t, settled.Htlcs(Ours))
	require.Equal(t, htlc.Amount, settled.Balance(Theirs))

	// A fail originated by the counterparty refunds our offer.
	failed, err := added.ApplyChange(FailChange{ID: 3}, Theirs)
	require.NoError(t, err)
	require.Equal(t, state.Balance(Ours), failed.Balance(Ours))
}

// TestCopyIsDeep checks that mutating a copy leaves the original alone.
func TestCopyIsDeep(t *testing.T) {
	t.Parallel()

	state := newTestState(t)
	htlc, _ := testHtlc(0, 1_000_000)

	added, err := state.AddHtlc(Ours, htlc)
	require.NoError(t, err)

	clone := added.Copy()
	clone.Sides[Ours].Htlcs[0].ID = 42
	clone.Sides[Ours].Balance = 0

	require.Equal(t, uint64(0), added.Htlcs(Ours)[0].ID)
	require.NotEqual(t, lnwire.MilliSatoshi(0), added.Balance(Ours))
}
