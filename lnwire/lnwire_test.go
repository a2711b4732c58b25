package lnwire

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

var (
	testRHash    = sha256.Sum256([]byte("preimage"))
	testRevHash  = sha256.Sum256([]byte("revocation"))
	testNextHash = sha256.Sum256([]byte("next revocation"))
)

func testPubKey(t *testing.T, seed byte) *btcec.PublicKey {
	t.Helper()

	var b [32]byte
	b[0] = seed
	b[31] = 0x01
	priv, _ := btcec.PrivKeyFromBytes(b[:])

	// Round-trip through the SEC encoding so the key compares equal to
	// one parsed off the wire.
	pub, err := btcec.ParsePubKey(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	return pub
}

func testSig(t *testing.T, seed byte) Sig {
	t.Helper()

	var b [32]byte
	b[0] = seed
	b[31] = 0x02
	priv, _ := btcec.PrivKeyFromBytes(b[:])

	digest := sha256.Sum256([]byte{seed})
	sig, err := NewSigFromSignature(ecdsa.Sign(priv, digest[:]))
	require.NoError(t, err)

	return sig
}

// testMessages returns one populated instance of every wire message.
func testMessages(t *testing.T) []Message {
	t.Helper()

	return []Message{
		&OpenChannel{
			RevocationHash:     testRevHash,
			NextRevocationHash: testNextHash,
			CommitKey:          testPubKey(t, 1),
			FinalKey:           testPubKey(t, 2),
			Delay:              NewSecondsLocktime(86_400),
			InitialFeeRate:     5_000,
			Anch:               WillCreateAnchor,
			MinDepth:           3,
		},
		&OpenAnchor{
			Txid:        chainhash.Hash(sha256.Sum256([]byte("anchor"))),
			OutputIndex: 1,
			Amount:      1_000_000,
		},
		&OpenCommitSig{
			CommitSig: testSig(t, 3),
		},
		&OpenComplete{},
		&UpdateAddHTLC{
			ID:          7,
			Amount:      100_000_000,
			PaymentHash: testRHash,
			Expiry:      NewSecondsLocktime(1_700_000_000),
			Route:       RouteBlob{0xde, 0xad, 0xbe, 0xef},
		},
		&UpdateFulfillHTLC{
			ID:              7,
			PaymentPreimage: testRHash,
		},
		&UpdateFailHTLC{
			ID:     9,
			Reason: OpaqueReason("no route"),
		},
		&UpdateCommit{
			CommitSig: testSig(t, 4),
		},
		&UpdateRevocation{
			RevocationPreimage: testRevHash,
			NextRevocationHash: testNextHash,
		},
		&CloseClearing{
			ScriptPubkey: DeliveryScript{0xa9, 0x14, 0x01, 0x02,
				0x87},
		},
		&CloseSignature{
			CloseFee: btcutil.Amount(1_690),
			Sig:      testSig(t, 5),
		},
		NewError("Bad signature"),
	}
}

// TestMessageRoundTrip encodes and decodes every message type and
// requires exact equality, plus byte-level stability of the encoding.
func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	for _, msg := range testMessages(t) {
		msg := msg
		t.Run(msg.MsgType().String(), func(t *testing.T) {
			t.Parallel()

			var b bytes.Buffer
			_, err := WriteMessage(&b, msg, 0)
			require.NoError(t, err)
			firstEncoding := b.Bytes()

			decoded, err := ReadMessage(
				bytes.NewReader(firstEncoding), 0,
			)
			require.NoError(t, err)
			require.Equal(t, msg, decoded)

			// Re-encoding the decoded message must reproduce the
			// exact bytes.
			var b2 bytes.Buffer
			_, err = WriteMessage(&b2, decoded, 0)
			require.NoError(t, err)
			require.Equal(t, firstEncoding, b2.Bytes())
		})
	}
}

// TestReadMessageUnknownType checks that unassigned message types are
// rejected.
func TestReadMessageUnknownType(t *testing.T) {
	t.Parallel()

	// Frame: length 2, then an unknown type.
	frame := []byte{0x00, 0x02, 0xff, 0xff}
	_, err := ReadMessage(bytes.NewReader(frame), 0)
	require.Error(t, err)

	var unknown *UnknownMessage
	require.ErrorAs(t, err, &unknown)
}

// TestReadMessageTrailingBytes checks that a frame longer than its
// decoded message is rejected as malformed.
func TestReadMessageTrailingBytes(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	_, err := WriteMessage(&b, &OpenComplete{}, 0)
	require.NoError(t, err)

	// Stretch the declared frame with a stray byte.
	raw := b.Bytes()
	raw[1]++
	raw = append(raw, 0x00)

	_, err = ReadMessage(bytes.NewReader(raw), 0)
	require.Error(t, err)
}

// TestReadMessageShortFrame checks frames too small for a message type.
func TestReadMessageShortFrame(t *testing.T) {
	t.Parallel()

	_, err := ReadMessage(bytes.NewReader([]byte{0x00, 0x01, 0x11}), 0)
	require.Error(t, err)
}

// TestSigConversion checks the Sig <-> ECDSA signature mapping.
func TestSigConversion(t *testing.T) {
	t.Parallel()

	var b [32]byte
	b[5] = 0x77
	b[31] = 0x01
	priv, _ := btcec.PrivKeyFromBytes(b[:])

	digest := sha256.Sum256([]byte("sig conversion"))
	ecdsaSig := ecdsa.Sign(priv, digest[:])

	wireSig, err := NewSigFromSignature(ecdsaSig)
	require.NoError(t, err)

	recovered, err := wireSig.ToSignature()
	require.NoError(t, err)
	require.True(t, recovered.Verify(digest[:], priv.PubKey()))
}

// TestDeliveryScriptTooLong checks the close script size bound.
func TestDeliveryScriptTooLong(t *testing.T) {
	t.Parallel()

	long := make(DeliveryScript, deliveryScriptMaxSize+1)
	var b bytes.Buffer
	err := WriteElement(&b, long)
	require.Error(t, err)
}

// TestMilliSatoshiConversions checks the msat/satoshi conversions.
func TestMilliSatoshiConversions(t *testing.T) {
	t.Parallel()

	m := NewMSatFromSatoshis(btcutil.Amount(5))
	require.Equal(t, MilliSatoshi(5_000), m)

	// Truncation of fractional satoshis.
	require.Equal(t, btcutil.Amount(5), MilliSatoshi(5_999).ToSatoshis())
}
