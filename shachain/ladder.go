package shachain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrOutOfSequence is returned when an insertion skips an index. The
	// counterparty reveals preimages with strictly decreasing indexes, one
	// per revoked commitment.
	ErrOutOfSequence = errors.New("preimage index is not next in sequence")

	// ErrNotConsistent is returned when a newly inserted preimage cannot
	// reproduce the preimages already stored, indicating the counterparty
	// has broken from its own chain.
	ErrNotConsistent = errors.New("preimage isn't derivable from " +
		"previous ones")
)

// Ladder stores the revocation preimages revealed by the counterparty, one
// per revoked commitment, in O(log N) space. Preimages are indexed by
// ^uint64(0) minus the commitment number, so each successive insertion
// carries a smaller index. Any previously seen preimage can be recomputed
// from the buckets alone.
//
// Each insertion is verified to reproduce the preimages it claims to
// supersede before it is accepted, so a stored ladder is always internally
// consistent.
type Ladder struct {
	// lenBuckets is the number of currently occupied buckets.
	lenBuckets uint8

	// buckets holds one element per trailing-zero count; bucket i can
	// derive every element whose index shares its prefix above bit i.
	buckets [maxHeight]element

	// nextIndex is the index the next insertion must carry. Valid only
	// once haveIndex is set by the first insertion.
	nextIndex uint64

	// haveIndex records whether any preimage has been inserted yet.
	haveIndex bool
}

// NewLadder creates an empty revocation ladder.
func NewLadder() *Ladder {
	return &Ladder{}
}

// NewLadderFromReader recreates a ladder from the serialization produced by
// Encode.
func NewLadderFromReader(r io.Reader) (*Ladder, error) {
	ladder := &Ladder{}

	if err := binary.Read(r, binary.BigEndian, &ladder.lenBuckets); err != nil {
		return nil, err
	}
	if ladder.lenBuckets > maxHeight {
		return nil, fmt.Errorf("invalid bucket count %d",
			ladder.lenBuckets)
	}

	for i := uint8(0); i < ladder.lenBuckets; i++ {
		err := binary.Read(r, binary.BigEndian, &ladder.buckets[i].index)
		if err != nil {
			return nil, err
		}

		_, err = io.ReadFull(r, ladder.buckets[i].hash[:])
		if err != nil {
			return nil, err
		}
	}

	if err := binary.Read(r, binary.BigEndian, &ladder.nextIndex); err != nil {
		return nil, err
	}

	var haveIndex uint8
	if err := binary.Read(r, binary.BigEndian, &haveIndex); err != nil {
		return nil, err
	}
	ladder.haveIndex = haveIndex == 1

	return ladder, nil
}

// AddHash inserts the preimage revealed for the given index. The very first
// insertion fixes the sequence start; every later insertion must carry the
// next lower index and must be able to re-derive all preimages currently
// stored, otherwise ErrOutOfSequence or ErrNotConsistent is returned and the
// ladder is unchanged.
func (l *Ladder) AddHash(index uint64, hash chainhash.Hash) error {
	if l.haveIndex && index != l.nextIndex {
		return ErrOutOfSequence
	}

	newElement := element{
		index: index,
		hash:  hash,
	}

	bucket := trailingZeros(index)

	// The new element must reproduce each element it will shadow.
	for i := uint8(0); i < bucket && i < l.lenBuckets; i++ {
		derived, err := newElement.derive(l.buckets[i].index)
		if err != nil {
			return ErrNotConsistent
		}

		if !derived.isEqual(&l.buckets[i]) {
			return ErrNotConsistent
		}
	}

	l.buckets[bucket] = newElement
	if bucket+1 > l.lenBuckets {
		l.lenBuckets = bucket + 1
	}

	l.nextIndex = index - 1
	l.haveIndex = true

	return nil
}

// LookUp derives the preimage stored at the given index. Only indexes at or
// above the lowest inserted index are reachable.
func (l *Ladder) LookUp(index uint64) (*chainhash.Hash, error) {
	for i := uint8(0); i < l.lenBuckets; i++ {
		derived, err := l.buckets[i].derive(index)
		if err != nil {
			continue
		}

		return &derived.hash, nil
	}

	return nil, fmt.Errorf("unable to derive preimage #%v", index)
}

// IsEmpty returns true if no preimage has been inserted yet.
func (l *Ladder) IsEmpty() bool {
	return !l.haveIndex
}

// Encode writes a binary serialization of the ladder to w.
func (l *Ladder) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, l.lenBuckets); err != nil {
		return err
	}

	for i := uint8(0); i < l.lenBuckets; i++ {
		err := binary.Write(w, binary.BigEndian, l.buckets[i].index)
		if err != nil {
			return err
		}

		if _, err := w.Write(l.buckets[i].hash[:]); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, l.nextIndex); err != nil {
		return err
	}

	var haveIndex uint8
	if l.haveIndex {
		haveIndex = 1
	}

	return binary.Write(w, binary.BigEndian, haveIndex)
}
