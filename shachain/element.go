package shachain

import (
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// maxHeight bounds the number of ladder buckets. Indexes span the full
// uint64 range, so 64 buckets are enough to cover every possible count of
// trailing zero bits.
const maxHeight uint8 = 64

// ErrNotDerivable is returned when the target index doesn't lie in the
// subtree rooted at the source element, meaning no sequence of bit flips can
// transform the source hash into the target.
var ErrNotDerivable = errors.New("index not derivable from element")

// element is a single (index, hash) pair on the ladder. Elements with more
// trailing zero bits in their index sit higher on the ladder and can derive
// every element in their subtree.
type element struct {
	index uint64
	hash  chainhash.Hash
}

// derive computes the element at toIndex from e. Derivation walks the bit
// positions where the indexes differ below e's trailing-zero run, flipping
// the corresponding hash bit and re-hashing at each step.
func (e *element) derive(toIndex uint64) (*element, error) {
	positions, err := bitTransformations(e.index, toIndex)
	if err != nil {
		return nil, err
	}

	buf := e.hash
	for _, position := range positions {
		byteNumber := position / 8
		bitNumber := position % 8

		buf[byteNumber] ^= 1 << bitNumber

		buf = chainhash.Hash(sha256.Sum256(buf[:]))
	}

	return &element{
		index: toIndex,
		hash:  buf,
	}, nil
}

// isEqual returns true if both the index and the hash of the two elements
// match.
func (e *element) isEqual(other *element) bool {
	return e.index == other.index && e.hash == other.hash
}

// bitTransformations returns the bit positions which must be flipped (high
// to low) to walk from the source index down to the target index. The target
// is reachable iff the source's bits above its trailing-zero run form a
// prefix of the target.
func bitTransformations(from, to uint64) ([]uint8, error) {
	if from == to {
		return nil, nil
	}

	zeros := trailingZeros(from)
	if from != prefix(to, zeros) {
		return nil, ErrNotDerivable
	}

	var positions []uint8
	for position := int(zeros) - 1; position >= 0; position-- {
		if bit(to, uint8(position)) == 1 {
			positions = append(positions, uint8(position))
		}
	}

	return positions, nil
}

// bit returns the bit of index at the given position.
func bit(index uint64, position uint8) uint8 {
	return uint8((index >> position) & 1)
}

// prefix zeroes out the low position bits of index.
func prefix(index uint64, position uint8) uint64 {
	if position >= 64 {
		return 0
	}
	return index &^ ((1 << position) - 1)
}

// trailingZeros counts the number of trailing zero bits of index, which also
// names the bucket an element with that index occupies.
func trailingZeros(index uint64) uint8 {
	var zeros uint8
	for ; zeros < maxHeight; zeros++ {
		if bit(index, zeros) != 0 {
			break
		}
	}

	return zeros
}
