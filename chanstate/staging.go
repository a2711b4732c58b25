package chanstate

import "fmt"

// StagingChange is a single staged update to a channel state: an HTLC add,
// fulfill, or fail. The interface is sealed so ApplyChange can match
// exhaustively.
type StagingChange interface {
	stagingChange()
}

// AddChange stages the addition of a new HTLC.
type AddChange struct {
	// Htlc is the HTLC being offered.
	Htlc Htlc
}

// FulfillChange stages the settlement of an HTLC by preimage.
type FulfillChange struct {
	// ID identifies the HTLC being settled, scoped to its offering
	// side.
	ID uint64

	// Preimage hashes to the HTLC's payment hash.
	Preimage [32]byte
}

// FailChange stages the removal of an HTLC without settlement.
type FailChange struct {
	// ID identifies the HTLC being failed, scoped to its offering side.
	ID uint64

	// Reason is the opaque failure payload carried back to the payment
	// origin.
	Reason []byte
}

func (AddChange) stagingChange()     {}
func (FulfillChange) stagingChange() {}
func (FailChange) stagingChange()    {}

// ApplyChange applies a single staged change originated by the given side.
// Adds create an HTLC offered by the originator; fulfills and fails act on
// an HTLC the originator's counterparty offered.
func (s *State) ApplyChange(change StagingChange, origin Side) (*State, error) {
	switch c := change.(type) {
	case AddChange:
		return s.AddHtlc(origin, c.Htlc)

	case FulfillChange:
		return s.FulfillHtlc(origin.Other(), c.ID, c.Preimage)

	case FailChange:
		return s.FailHtlc(origin.Other(), c.ID)

	default:
		panic(fmt.Sprintf("unknown staging change %T", change))
	}
}
