package lnwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// MaxSliceLength is the maximum allowed length for any opaque byte
	// slices in the wire protocol.
	MaxSliceLength = 65535

	// MaxMsgBody is the largest payload any message is allowed to
	// provide. This is two less than the MaxSliceLength as each message
	// carries a 2 byte type that precedes the message body.
	MaxMsgBody = 65533
)

// LocktimeFormat is the discriminator carried with every locktime on the
// wire, distinguishing second-based locktimes from block-height ones.
type LocktimeFormat uint8

const (
	// LocktimeSeconds denotes a locktime expressed in seconds, either
	// relative (delays) or absolute (HTLC expiries).
	LocktimeSeconds LocktimeFormat = 0

	// LocktimeBlocks denotes a locktime expressed in block height. The
	// format is carried for forward compatibility but the engine refuses
	// it.
	LocktimeBlocks LocktimeFormat = 1
)

// Locktime is a discriminated locktime value. Absolute locktimes in the
// seconds format are seconds since the epoch.
type Locktime struct {
	// Format declares how Value is to be interpreted.
	Format LocktimeFormat

	// Value is the locktime itself, in seconds or blocks per Format.
	Value uint32
}

// NewSecondsLocktime returns a seconds-denominated Locktime.
func NewSecondsLocktime(seconds uint32) Locktime {
	return Locktime{Format: LocktimeSeconds, Value: seconds}
}

// IsSeconds returns true for the seconds variant.
func (l Locktime) IsSeconds() bool {
	return l.Format == LocktimeSeconds
}

// AnchorOffer signals whether the sender of an OpenChannel intends to create
// the anchor transaction. Exactly one side of a channel may announce
// WillCreateAnchor.
type AnchorOffer uint8

const (
	// WillCreateAnchor is announced by the funding side.
	WillCreateAnchor AnchorOffer = 0

	// WontCreateAnchor is announced by the non-funding side.
	WontCreateAnchor AnchorOffer = 1
)

// RouteBlob is the opaque routing payload carried alongside each HTLC add.
// The engine never interprets it.
type RouteBlob []byte

// OpaqueReason is the opaque failure payload carried in an UpdateFailHTLC.
type OpaqueReason []byte

// ErrorData is the human-readable problem string attached to an Error
// packet.
type ErrorData []byte

// DeliveryScript is the scriptPubKey a party wants the mutual close output
// paid to.
type DeliveryScript []byte

// deliveryScriptMaxSize is the largest serialized script accepted for a
// close output. A p2wsh script is exactly 34 bytes, the largest of the
// standard templates.
const deliveryScriptMaxSize = 34

// WriteElement writes the big endian representation of a single wire
// element into the passed buffer.
func WriteElement(w *bytes.Buffer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		var b [1]byte
		b[0] = e
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case LocktimeFormat:
		var b [1]byte
		b[0] = uint8(e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case AnchorOffer:
		var b [1]byte
		b[0] = uint8(e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case MilliSatoshi:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(e))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case btcutil.Amount:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(e))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case *btcec.PublicKey:
		if e == nil {
			return fmt.Errorf("cannot write nil pubkey")
		}

		var b [33]byte
		copy(b[:], e.SerializeCompressed())
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case Sig:
		if _, err := w.Write(e.bytes[:]); err != nil {
			return err
		}

	case Locktime:
		if err := WriteElements(w, e.Format, e.Value); err != nil {
			return err
		}

	case [32]byte:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case chainhash.Hash:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case RouteBlob:
		if err := writeLengthPrefixed(w, e); err != nil {
			return err
		}

	case OpaqueReason:
		if err := writeLengthPrefixed(w, e); err != nil {
			return err
		}

	case ErrorData:
		if err := writeLengthPrefixed(w, e); err != nil {
			return err
		}

	case DeliveryScript:
		if len(e) > deliveryScriptMaxSize {
			return fmt.Errorf("delivery script too long: %d bytes",
				len(e))
		}
		if err := writeLengthPrefixed(w, e); err != nil {
			return err
		}

	case []byte:
		if _, err := w.Write(e); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown type in WriteElement: %T", e)
	}

	return nil
}

// WriteElements writes each element in the elements slice to the passed
// buffer using WriteElement.
func WriteElements(w *bytes.Buffer, elements ...interface{}) error {
	for _, element := range elements {
		if err := WriteElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

// ReadElement deserializes a single wire element from r into the passed
// target, which must be a pointer to a supported type.
func ReadElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]

	case *LocktimeFormat:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = LocktimeFormat(b[0])

	case *AnchorOffer:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = AnchorOffer(b[0])

	case *uint16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint16(b[:])

	case *uint32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint32(b[:])

	case *uint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(b[:])

	case *MilliSatoshi:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = MilliSatoshi(binary.BigEndian.Uint64(b[:]))

	case *btcutil.Amount:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = btcutil.Amount(binary.BigEndian.Uint64(b[:]))

	case **btcec.PublicKey:
		var b [33]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}

		pubKey, err := btcec.ParsePubKey(b[:])
		if err != nil {
			return err
		}
		*e = pubKey

	case *Sig:
		if _, err := io.ReadFull(r, e.bytes[:]); err != nil {
			return err
		}

	case *Locktime:
		return ReadElements(r, &e.Format, &e.Value)

	case *[32]byte:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *chainhash.Hash:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *RouteBlob:
		b, err := readLengthPrefixed(r)
		if err != nil {
			return err
		}
		*e = b

	case *OpaqueReason:
		b, err := readLengthPrefixed(r)
		if err != nil {
			return err
		}
		*e = b

	case *ErrorData:
		b, err := readLengthPrefixed(r)
		if err != nil {
			return err
		}
		*e = b

	case *DeliveryScript:
		b, err := readLengthPrefixed(r)
		if err != nil {
			return err
		}
		if len(b) > deliveryScriptMaxSize {
			return fmt.Errorf("delivery script too long: %d bytes",
				len(b))
		}
		*e = b

	case []byte:
		if _, err := io.ReadFull(r, e); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown type in ReadElement: %T", e)
	}

	return nil
}

// ReadElements deserializes a variable number of elements from the passed
// io.Reader, with each element deserialized according to ReadElement.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := ReadElement(r, element); err != nil {
			return err
		}
	}
	return nil
}

// writeLengthPrefixed writes a 2 byte big-endian length followed by the raw
// bytes.
func writeLengthPrefixed(w *bytes.Buffer, b []byte) error {
	if len(b) > MaxSliceLength {
		return fmt.Errorf("slice of %d bytes exceeds wire limit",
			len(b))
	}

	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(b)))
	if _, err := w.Write(l[:]); err != nil {
		return err
	}

	if len(b) == 0 {
		return nil
	}

	_, err := w.Write(b)
	return err
}

// readLengthPrefixed reads a 2 byte big-endian length followed by that many
// raw bytes. A zero length yields a nil slice.
func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var l [2]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(l[:])
	if length == 0 {
		return nil, nil
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	return b, nil
}
