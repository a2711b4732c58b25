package peer

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
	"github.com/lightningnetwork/channeld/shachain"
)

// This file houses deterministic in-memory implementations of the engine's
// capabilities. They carry no real script or signature-hash logic, just
// enough structure for both endpoints of a channel to derive identical
// transactions, and are used by the package tests and example hosts.

// DeterministicOracle implements RandomOracle as a SHA-256 counter stream
// over a fixed seed, so test runs are reproducible.
type DeterministicOracle struct {
	mtx     sync.Mutex
	seed    [32]byte
	counter uint64
}

// NewDeterministicOracle creates an oracle producing the byte stream
// determined by seed.
func NewDeterministicOracle(seed [32]byte) *DeterministicOracle {
	return &DeterministicOracle{seed: seed}
}

// ReadBytes returns the next n bytes of the stream.
//
// This is part of the RandomOracle interface.
func (o *DeterministicOracle) ReadBytes(n int) ([]byte, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	out := make([]byte, 0, n)
	for len(out) < n {
		var block [40]byte
		copy(block[:32], o.seed[:])
		binary.BigEndian.PutUint64(block[32:], o.counter)
		o.counter++

		digest := sha256.Sum256(block[:])
		out = append(out, digest[:]...)
	}

	return out[:n], nil
}

// TestSigner is a Signer over a single keypair with a shachain-backed
// revocation chain, seeded from a RandomOracle.
type TestSigner struct {
	priv     *btcec.PrivateKey
	finalKey *btcec.PrivateKey
	producer *shachain.Producer
}

// NewTestSigner draws key material from the oracle and builds a signer.
func NewTestSigner(oracle RandomOracle) (*TestSigner, error) {
	commitBytes, err := oracle.ReadBytes(32)
	if err != nil {
		return nil, err
	}
	finalBytes, err := oracle.ReadBytes(32)
	if err != nil {
		return nil, err
	}
	seedBytes, err := oracle.ReadBytes(32)
	if err != nil {
		return nil, err
	}

	priv, _ := btcec.PrivKeyFromBytes(commitBytes)
	finalKey, _ := btcec.PrivKeyFromBytes(finalBytes)

	var seed chainhash.Hash
	copy(seed[:], seedBytes)

	return &TestSigner{
		priv:     priv,
		finalKey: finalKey,
		producer: shachain.NewProducer(seed),
	}, nil
}

// CommitPubKey returns the public half of the signer's commit key.
func (s *TestSigner) CommitPubKey() *btcec.PublicKey {
	return s.priv.PubKey()
}

// FinalPubKey returns the public half of the signer's final key.
func (s *TestSigner) FinalPubKey() *btcec.PublicKey {
	return s.finalKey.PubKey()
}

// txDigest reduces a transaction plus the witness script it spends to a
// single signing digest.
func txDigest(tx *wire.MsgTx, witnessScript []byte) ([]byte, error) {
	var b bytes.Buffer
	if err := tx.Serialize(&b); err != nil {
		return nil, err
	}
	b.Write(witnessScript)

	digest := sha256.Sum256(b.Bytes())
	return digest[:], nil
}

// SignTheirCommit signs the counterparty's commitment transaction.
//
// This is part of the Signer interface.
func (s *TestSigner) SignTheirCommit(tx *wire.MsgTx,
	witnessScript []byte) (lnwire.Sig, error) {

	return s.signTx(tx, witnessScript)
}

// SignMutualClose signs a cooperative close transaction.
//
// This is part of the Signer interface.
func (s *TestSigner) SignMutualClose(tx *wire.MsgTx,
	witnessScript []byte) (lnwire.Sig, error) {

	return s.signTx(tx, witnessScript)
}

func (s *TestSigner) signTx(tx *wire.MsgTx,
	witnessScript []byte) (lnwire.Sig, error) {

	digest, err := txDigest(tx, witnessScript)
	if err != nil {
		return lnwire.Sig{}, err
	}

	sig := ecdsa.Sign(s.priv, digest)
	return lnwire.NewSigFromSignature(sig)
}

// VerifyCommitSig checks a counterparty signature over one of our
// transactions.
//
// This is part of the Signer interface.
func (s *TestSigner) VerifyCommitSig(tx *wire.MsgTx, witnessScript []byte,
	theirKey *btcec.PublicKey, sig lnwire.Sig) error {

	digest, err := txDigest(tx, witnessScript)
	if err != nil {
		return err
	}

	ecdsaSig, err := sig.ToSignature()
	if err != nil {
		return err
	}

	if !ecdsaSig.Verify(digest, theirKey) {
		return errors.New("signature verification failed")
	}

	return nil
}

// RevocationPreimage derives the preimage for the given commitment from
// the signer's shachain.
//
// This is part of the Signer interface.
func (s *TestSigner) RevocationPreimage(commitNum uint64) ([32]byte, error) {
	preimage, err := s.producer.AtIndex(^uint64(0) - commitNum)
	if err != nil {
		return [32]byte{}, err
	}

	return [32]byte(*preimage), nil
}

// RevocationHash returns the hash of the commitment's revocation preimage.
//
// This is part of the Signer interface.
func (s *TestSigner) RevocationHash(commitNum uint64) ([32]byte, error) {
	preimage, err := s.RevocationPreimage(commitNum)
	if err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(preimage[:]), nil
}

// TestTxBuilder builds structurally deterministic surrogate transactions:
// both endpoints of a channel derive byte-identical transactions for the
// same state, which is all the engine requires of a builder.
type TestTxBuilder struct{}

// CreateCommitTx builds the commitment transaction surrogate for one side.
//
// This is part of the TxBuilder interface.
func (b *TestTxBuilder) CreateCommitTx(localFinal,
	remoteFinal *btcec.PublicKey, localDelay, remoteDelay lnwire.Locktime,
	anchor *Anchor, revocationHash [32]byte, state *chanstate.State,
	forSide chanstate.Side) (*wire.MsgTx, []int, error) {

	// Resolve the relative side labels into keys, which both endpoints
	// agree on.
	ownerKey, otherKey := remoteFinal, localFinal
	ownerDelay := localDelay
	if forSide == chanstate.Ours {
		ownerKey, otherKey = localFinal, remoteFinal
		ownerDelay = remoteDelay
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  anchor.Txid,
			Index: anchor.OutputIndex,
		},
	})

	// The owner's delayed, revocable output.
	ownerScript := fakeScript("commit-self", revocationHash[:],
		ownerKey.SerializeCompressed(), uint32Bytes(ownerDelay.Value))
	tx.AddTxOut(&wire.TxOut{
		Value:    int64(state.Balance(forSide).ToSatoshis()),
		PkScript: ownerScript,
	})

	// The counterparty's unencumbered output.
	otherScript := fakeScript("commit-other",
		otherKey.SerializeCompressed())
	tx.AddTxOut(&wire.TxOut{
		Value:    int64(state.Balance(forSide.Other()).ToSatoshis()),
		PkScript: otherScript,
	})

	// One output per in-flight HTLC, keyed by the offerer's final key
	// so both endpoints derive the same script.
	for _, side := range []chanstate.Side{chanstate.Ours, chanstate.Theirs} {
		offererKey := localFinal
		if side == chanstate.Theirs {
			offererKey = remoteFinal
		}

		for _, htlc := range state.Htlcs(side) {
			script := fakeScript("htlc", htlc.RHash[:],
				offererKey.SerializeCompressed(),
				uint64Bytes(htlc.ID))
			tx.AddTxOut(&wire.TxOut{
				Value:    int64(htlc.Amount.ToSatoshis()),
				PkScript: script,
			})
		}
	}

	// Canonical ordering lets the two endpoints exchange only
	// signatures.
	txsort.InPlaceSort(tx)

	// The surrogate returns the identity map, not the permutation the
	// sort applied.
	outputMap := make([]int, len(tx.TxOut))
	for i := range outputMap {
		outputMap[i] = i
	}

	return tx, outputMap, nil
}

// CreateCloseTx builds the mutual close transaction surrogate.
//
// This is part of the TxBuilder interface.
func (b *TestTxBuilder) CreateCloseTx(anchor *Anchor, ourScript,
	theirScript []byte, ourAmount, theirAmount lnwire.MilliSatoshi,
	fee btcutil.Amount) (*wire.MsgTx, error) {

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  anchor.Txid,
			Index: anchor.OutputIndex,
		},
	})

	// A side with no settled funds gets no output.
	if ourAmount > 0 {
		tx.AddTxOut(&wire.TxOut{
			Value:    int64(ourAmount.ToSatoshis()),
			PkScript: ourScript,
		})
	}
	if theirAmount > 0 {
		tx.AddTxOut(&wire.TxOut{
			Value:    int64(theirAmount.ToSatoshis()),
			PkScript: theirScript,
		})
	}

	txsort.InPlaceSort(tx)

	return tx, nil
}

// Redeem2of2 returns a canonical surrogate multisig script over the two
// commit keys.
//
// This is part of the TxBuilder interface.
func (b *TestTxBuilder) Redeem2of2(keyA, keyB *btcec.PublicKey) ([]byte,
	error) {

	a := keyA.SerializeCompressed()
	bb := keyB.SerializeCompressed()

	// Sort so both sides derive the same script regardless of argument
	// order.
	if string(a) > string(bb) {
		a, bb = bb, a
	}

	script := []byte{0x52}
	script = append(script, a...)
	script = append(script, bb...)
	script = append(script, 0x52, 0xae)

	return script, nil
}

// RedeemSingle returns a single-key surrogate redeem script.
//
// This is part of the TxBuilder interface.
func (b *TestTxBuilder) RedeemSingle(key *btcec.PublicKey) ([]byte, error) {
	script := []byte{0x21}
	script = append(script, key.SerializeCompressed()...)
	script = append(script, 0xac)

	return script, nil
}

// P2SH wraps a redeem script into a pay-to-script-hash output script.
//
// This is part of the TxBuilder interface.
func (b *TestTxBuilder) P2SH(script []byte) ([]byte, error) {
	out := []byte{0xa9, 0x14}
	out = append(out, btcutil.Hash160(script)...)
	out = append(out, 0x87)

	return out, nil
}

// fakeScript derives a deterministic 32 byte surrogate script from its
// inputs.
func fakeScript(tag string, parts ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, part := range parts {
		h.Write(part)
	}

	return h.Sum(nil)
}

func uint32Bytes(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// PipeTransport is an in-memory PacketTransport. Packets are encoded and
// decoded through the wire codec on send and the decoded copy is
// delivered, so transport tests also exercise the codec.
type PipeTransport struct {
	out  chan<- lnwire.Message
	in   <-chan lnwire.Message
	once *sync.Once
	done chan struct{}
}

// NewPipeTransports returns a connected transport pair with the given
// buffer depth.
func NewPipeTransports(depth int) (*PipeTransport, *PipeTransport) {
	aToB := make(chan lnwire.Message, depth)
	bToA := make(chan lnwire.Message, depth)

	done := make(chan struct{})
	once := new(sync.Once)

	a := &PipeTransport{out: aToB, in: bToA, once: once, done: done}
	b := &PipeTransport{out: bToA, in: aToB, once: once, done: done}

	return a, b
}

// SendPacket round-trips the packet through the codec and delivers the
// decoded copy.
//
// This is part of the PacketTransport interface.
func (t *PipeTransport) SendPacket(msg lnwire.Message) error {
	decoded, err := reserialize(msg)
	if err != nil {
		return err
	}

	select {
	case t.out <- decoded:
		return nil
	case <-t.done:
		return ErrPeerGone
	}
}

// RecvPacket blocks for the next packet.
//
// This is part of the PacketTransport interface.
func (t *PipeTransport) RecvPacket() (lnwire.Message, error) {
	select {
	case msg, ok := <-t.in:
		if !ok {
			return nil, ErrPeerGone
		}
		return msg, nil
	case <-t.done:
		return nil, ErrPeerGone
	}
}

// Close tears the pipe down, unblocking both endpoints.
func (t *PipeTransport) Close() {
	t.once.Do(func() {
		close(t.done)
	})
}

// reserialize encodes and decodes a message through the wire codec.
func reserialize(msg lnwire.Message) (lnwire.Message, error) {
	var buf bytes.Buffer
	if _, err := lnwire.WriteMessage(&buf, msg, 0); err != nil {
		return nil, err
	}

	decoded, err := lnwire.ReadMessage(bytes.NewReader(buf.Bytes()), 0)
	if err != nil {
		return nil, fmt.Errorf("pipe reserialize: %w", err)
	}

	return decoded, nil
}
