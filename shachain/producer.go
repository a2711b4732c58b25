package shachain

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Producer generates the full preimage sequence from a single 32 byte
// seed. The seed acts as the element at index zero, whose trailing-zero
// run spans the whole index space, so every preimage in the chain is
// derivable from it. Revealing an individual preimage exposes only that
// preimage's subtree, which is what lets the receiving Ladder store the
// sequence compactly.
type Producer struct {
	root element
}

// NewProducer creates a producer rooted at the given seed.
func NewProducer(seed chainhash.Hash) *Producer {
	return &Producer{
		root: element{
			index: 0,
			hash:  seed,
		},
	}
}

// AtIndex derives the preimage at the given index.
func (p *Producer) AtIndex(index uint64) (*chainhash.Hash, error) {
	derived, err := p.root.derive(index)
	if err != nil {
		return nil, err
	}

	return &derived.hash, nil
}
