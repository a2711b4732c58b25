package chanstate

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/channeld/lnwire"
)

const (
	// MaxHTLCNumber is the maximum number of HTLCs either side may have
	// offered within a single commitment transaction.
	MaxHTLCNumber = 300

	// commitTxBaseSize is the estimated size in bytes of a commitment
	// transaction carrying only the two balance outputs.
	commitTxBaseSize = 338

	// htlcOutputSize is the estimated per-HTLC size increment of a
	// commitment transaction.
	htlcOutputSize = 32
)

var (
	// ErrInsufficientFunds is returned when a state transition would
	// leave a balance negative once the commitment fee is accounted for.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateID is returned when an added HTLC reuses an id already
	// present among the offering side's HTLCs.
	ErrDuplicateID = errors.New("duplicate htlc id")

	// ErrTooManyHtlcs is returned when an add would push the offering
	// side past MaxHTLCNumber in this commitment.
	ErrTooManyHtlcs = errors.New("too many htlcs")

	// ErrHtlcNotFound is returned when a fulfill or fail references an
	// id with no matching HTLC.
	ErrHtlcNotFound = errors.New("htlc not found")

	// ErrBadPreimage is returned when a fulfill preimage does not hash
	// to the HTLC's payment hash.
	ErrBadPreimage = errors.New("preimage does not match payment hash")
)

// Side labels the two parties of a channel. All state is indexed relative
// to the local node: Ours is us, Theirs is the remote node.
type Side uint8

const (
	// Ours denotes the local side of the channel.
	Ours Side = 0

	// Theirs denotes the remote side of the channel.
	Theirs Side = 1
)

// Other returns the opposite side.
func (s Side) Other() Side {
	return 1 - s
}

// String returns a human readable side label.
func (s Side) String() string {
	if s == Ours {
		return "ours"
	}
	return "theirs"
}

// Htlc is a single conditional payment within a commitment. The id is
// unique among the HTLCs offered by the same side.
type Htlc struct {
	// ID is assigned by the offering side, starting at zero and
	// strictly increasing.
	ID uint64

	// Amount is the value locked in the HTLC.
	Amount lnwire.MilliSatoshi

	// RHash is the SHA-256 payment hash.
	RHash [32]byte

	// Expiry is the absolute locktime in seconds since the epoch after
	// which the offering side can reclaim the HTLC.
	Expiry uint32

	// Route is the opaque routing payload carried with the HTLC.
	Route []byte
}

// SideState is one side's share of a channel state snapshot: its spendable
// balance and the HTLCs it has offered.
type SideState struct {
	// Balance is the side's settled balance, excluding any fee the side
	// may owe as funder.
	Balance lnwire.MilliSatoshi

	// Htlcs are the in-flight HTLCs offered by this side.
	Htlcs []Htlc
}

// State is a snapshot of the channel at a single commitment point. States
// are values: every operation returns a fresh State and never mutates its
// receiver, so snapshots can be referenced by commitments indefinitely.
//
// The defining invariant is conservation: the two balances, the sum of all
// HTLC amounts, and the commitment fee at the current HTLC count always add
// up to the anchor amount.
type State struct {
	// AnchorSat is the anchor output value, i.e. the channel capacity,
	// in satoshis.
	AnchorSat btcutil.Amount

	// FeeRate is the commitment fee rate in satoshis per 1000 bytes.
	FeeRate uint64

	// Funder is the side which created the anchor and therefore bears
	// the commitment fee.
	Funder Side

	// Changes counts every add/fulfill/fail ever applied to reach this
	// state. Two states built from the same history carry the same
	// count, which is how empty commitments are detected.
	Changes uint64

	// Sides holds the per-side balances and HTLC sets, indexed by Side.
	Sides [2]SideState
}

// CommitFee returns the expected commitment transaction fee at the given
// fee rate and HTLC count. The result is rounded up to an even satoshi so
// both parties derive identical transactions.
func CommitFee(feeRate uint64, numHtlcs int) btcutil.Amount {
	size := uint64(commitTxBaseSize + htlcOutputSize*numHtlcs)
	fee := feeRate * size / 1000
	if fee%2 != 0 {
		fee++
	}

	return btcutil.Amount(fee)
}

// New creates the initial channel state: the funder holds the full anchor
// amount less the base commitment fee, the other side holds nothing.
func New(anchorSat btcutil.Amount, feeRate uint64, funder Side) (*State, error) {
	capacity := lnwire.NewMSatFromSatoshis(anchorSat)
	fee := lnwire.NewMSatFromSatoshis(CommitFee(feeRate, 0))
	if fee > capacity {
		return nil, ErrInsufficientFunds
	}

	s := &State{
		AnchorSat: anchorSat,
		FeeRate:   feeRate,
		Funder:    funder,
	}
	s.Sides[funder].Balance = capacity - fee

	return s, nil
}

// Copy returns a deep logical clone of the state.
func (s *State) Copy() *State {
	c := &State{
		AnchorSat: s.AnchorSat,
		FeeRate:   s.FeeRate,
		Funder:    s.Funder,
		Changes:   s.Changes,
	}
	for side := range s.Sides {
		c.Sides[side].Balance = s.Sides[side].Balance
		if len(s.Sides[side].Htlcs) > 0 {
			c.Sides[side].Htlcs = make([]Htlc,
				len(s.Sides[side].Htlcs))
			copy(c.Sides[side].Htlcs, s.Sides[side].Htlcs)
		}
	}

	return c
}

// Fee returns the commitment fee owed by the funder at this state's HTLC
// count.
func (s *State) Fee() lnwire.MilliSatoshi {
	return lnwire.NewMSatFromSatoshis(CommitFee(s.FeeRate, s.NumHtlcs()))
}

// NumHtlcs returns the total number of in-flight HTLCs across both sides.
func (s *State) NumHtlcs() int {
	return len(s.Sides[Ours].Htlcs) + len(s.Sides[Theirs].Htlcs)
}

// Balance returns the settled balance of the given side.
func (s *State) Balance(side Side) lnwire.MilliSatoshi {
	return s.Sides[side].Balance
}

// Htlcs returns the HTLCs offered by the given side.
func (s *State) Htlcs(side Side) []Htlc {
	return s.Sides[side].Htlcs
}

// HtlcByID returns the HTLC with the given id offered by the given side,
// if present.
func (s *State) HtlcByID(side Side, id uint64) (*Htlc, bool) {
	for i := range s.Sides[side].Htlcs {
		if s.Sides[side].Htlcs[i].ID == id {
			return &s.Sides[side].Htlcs[i], true
		}
	}

	return nil, false
}

// AddHtlc stages a new HTLC offered by the given side, returning the
// resulting state. The offering side pays the HTLC amount and the funder
// absorbs the fee growth; the add is rejected if either cannot.
func (s *State) AddHtlc(offeredBy Side, htlc Htlc) (*State, error) {
	if len(s.Sides[offeredBy].Htlcs) >= MaxHTLCNumber {
		return nil, ErrTooManyHtlcs
	}

	if _, ok := s.HtlcByID(offeredBy, htlc.ID); ok {
		return nil, fmt.Errorf("%w: id %d offered by %v",
			ErrDuplicateID, htlc.ID, offeredBy)
	}

	oldFee := s.Fee()
	newFee := lnwire.NewMSatFromSatoshis(
		CommitFee(s.FeeRate, s.NumHtlcs()+1),
	)
	feeGrowth := newFee - oldFee

	c := s.Copy()
	if c.Sides[offeredBy].Balance < htlc.Amount {
		return nil, ErrInsufficientFunds
	}
	c.Sides[offeredBy].Balance -= htlc.Amount

	if c.Sides[c.Funder].Balance < feeGrowth {
		return nil, ErrInsufficientFunds
	}
	c.Sides[c.Funder].Balance -= feeGrowth

	c.Sides[offeredBy].Htlcs = append(c.Sides[offeredBy].Htlcs, htlc)
	c.Changes++

	return c, nil
}

// FulfillHtlc settles the HTLC with the given id offered by the given side,
// crediting its amount to the receiving side. The preimage must hash to the
// HTLC's payment hash.
func (s *State) FulfillHtlc(offeredBy Side, id uint64,
	preimage [32]byte) (*State, error) {

	htlc, ok := s.HtlcByID(offeredBy, id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d offered by %v",
			ErrHtlcNotFound, id, offeredBy)
	}

	if sha256.Sum256(preimage[:]) != htlc.RHash {
		return nil, ErrBadPreimage
	}

	return s.removeHtlc(offeredBy, id, offeredBy.Other()), nil
}

// FailHtlc removes the HTLC with the given id offered by the given side,
// refunding its amount to the offering side.
func (s *State) FailHtlc(offeredBy Side, id uint64) (*State, error) {
	if _, ok := s.HtlcByID(offeredBy, id); !ok {
		return nil, fmt.Errorf("%w: id %d offered by %v",
			ErrHtlcNotFound, id, offeredBy)
	}

	return s.removeHtlc(offeredBy, id, offeredBy), nil
}

// removeHtlc drops the identified HTLC and credits its amount to creditTo.
// The fee shrink from the reduced HTLC count is returned to the funder.
func (s *State) removeHtlc(offeredBy Side, id uint64, creditTo Side) *State {
	oldFee := s.Fee()
	newFee := lnwire.NewMSatFromSatoshis(
		CommitFee(s.FeeRate, s.NumHtlcs()-1),
	)

	c := s.Copy()
	for i := range c.Sides[offeredBy].Htlcs {
		if c.Sides[offeredBy].Htlcs[i].ID != id {
			continue
		}

		c.Sides[creditTo].Balance += c.Sides[offeredBy].Htlcs[i].Amount
		c.Sides[offeredBy].Htlcs = append(
			c.Sides[offeredBy].Htlcs[:i],
			c.Sides[offeredBy].Htlcs[i+1:]...,
		)
		break
	}

	c.Sides[c.Funder].Balance += oldFee - newFee
	c.Changes++

	return c
}

// TotalMSat sums both balances, all in-flight HTLC amounts, and the current
// commitment fee. For every reachable state this equals the anchor amount.
func (s *State) TotalMSat() lnwire.MilliSatoshi {
	total := s.Sides[Ours].Balance + s.Sides[Theirs].Balance + s.Fee()
	for side := range s.Sides {
		for _, htlc := range s.Sides[side].Htlcs {
			total += htlc.Amount
		}
	}

	return total
}
