package lnwire

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Sig is a fixed-size ECDSA signature: the R and S scalars packed as two
// big-endian 32 byte values. Using a fixed size avoids the variable length
// DER encoding on the wire.
type Sig struct {
	bytes [64]byte
}

// NewSigFromRawSignature constructs a Sig from a packed 64 byte R || S
// serialization.
func NewSigFromRawSignature(raw []byte) (Sig, error) {
	if len(raw) != 64 {
		return Sig{}, fmt.Errorf("raw signature must be 64 bytes, "+
			"got %d", len(raw))
	}

	var s Sig
	copy(s.bytes[:], raw)
	return s, nil
}

// NewSigFromSignature packs the R and S scalars of the passed ECDSA
// signature into a wire Sig.
func NewSigFromSignature(e *ecdsa.Signature) (Sig, error) {
	if e == nil {
		return Sig{}, errors.New("cannot encode nil signature")
	}

	var s Sig
	r := e.R()
	sc := e.S()
	rBytes := r.Bytes()
	sBytes := sc.Bytes()
	copy(s.bytes[0:32], rBytes[:])
	copy(s.bytes[32:64], sBytes[:])

	return s, nil
}

// ToSignature converts the wire Sig back into an ECDSA signature usable for
// verification.
func (s Sig) ToSignature() (*ecdsa.Signature, error) {
	var r, sc btcec.ModNScalar
	if overflow := r.SetByteSlice(s.bytes[0:32]); overflow {
		return nil, errors.New("signature R scalar overflows")
	}
	if overflow := sc.SetByteSlice(s.bytes[32:64]); overflow {
		return nil, errors.New("signature S scalar overflows")
	}

	return ecdsa.NewSignature(&r, &sc), nil
}

// RawBytes returns the packed R || S serialization.
func (s Sig) RawBytes() []byte {
	return s.bytes[:]
}

// IsZero returns true if the signature is entirely zero, i.e. was never
// set.
func (s Sig) IsZero() bool {
	return s.bytes == [64]byte{}
}

// String returns a hex encoding of the packed signature.
func (s Sig) String() string {
	return fmt.Sprintf("%x", s.bytes[:])
}
