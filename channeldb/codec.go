package channeldb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightningnetwork/channeld/chanstate"
	"github.com/lightningnetwork/channeld/lnwire"
)

// Staging change type tags used on disk.
const (
	changeTypeAdd uint8 = iota
	changeTypeFulfill
	changeTypeFail
)

// writeElement serializes a single primitive element in big-endian form.
func writeElement(w *bytes.Buffer, element interface{}) error {
	switch e := element.(type) {
	case bool:
		return writeBool(w, e)

	case uint8:
		return w.WriteByte(e)

	case uint32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e)
		_, err := w.Write(b[:])
		return err

	case uint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], e)
		_, err := w.Write(b[:])
		return err

	case [32]byte:
		_, err := w.Write(e[:])
		return err

	case chainhash.Hash:
		_, err := w.Write(e[:])
		return err

	case lnwire.MilliSatoshi:
		return writeElement(w, uint64(e))

	case lnwire.Sig:
		_, err := w.Write(e.RawBytes())
		return err

	case *btcec.PublicKey:
		if e == nil {
			return fmt.Errorf("cannot serialize nil pubkey")
		}
		_, err := w.Write(e.SerializeCompressed())
		return err

	case lnwire.Locktime:
		if err := w.WriteByte(uint8(e.Format)); err != nil {
			return err
		}
		return writeElement(w, e.Value)

	default:
		return fmt.Errorf("unknown type in writeElement: %T", e)
	}
}

// writeElements serializes each element in order using writeElement.
func writeElements(w *bytes.Buffer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

// readElement deserializes a single primitive element.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *bool:
		return readBool(r, e)

	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]

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

	case *[32]byte:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *chainhash.Hash:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *lnwire.MilliSatoshi:
		var v uint64
		if err := readElement(r, &v); err != nil {
			return err
		}
		*e = lnwire.MilliSatoshi(v)

	case *lnwire.Sig:
		var raw [64]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return err
		}
		sig, err := lnwire.NewSigFromRawSignature(raw[:])
		if err != nil {
			return err
		}
		*e = sig

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

	case *lnwire.Locktime:
		var format uint8
		if err := readElement(r, &format); err != nil {
			return err
		}
		e.Format = lnwire.LocktimeFormat(format)
		return readElement(r, &e.Value)

	default:
		return fmt.Errorf("unknown type in readElement: %T", e)
	}

	return nil
}

// readElements deserializes each element in order using readElement.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}

// writeBool writes a single boolean byte.
func writeBool(w *bytes.Buffer, v bool) error {
	var b uint8
	if v {
		b = 1
	}
	return w.WriteByte(b)
}

// readBool reads a single boolean byte.
func readBool(r io.Reader, v *bool) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*v = b[0] == 1
	return nil
}

// writeBytes writes raw bytes without a length prefix.
func writeBytes(w *bytes.Buffer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// readBytes reads exactly n raw bytes.
func readBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// writeVarBytes writes a 4 byte big-endian length followed by the bytes.
func writeVarBytes(w *bytes.Buffer, b []byte) error {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	if _, err := w.Write(l[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readVarBytes reads a 4 byte length prefix and then that many bytes.
func readVarBytes(r io.Reader) ([]byte, error) {
	var l [4]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(l[:])
	if length == 0 {
		return nil, nil
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// writeSideConfig serializes one side's channel parameters.
func writeSideConfig(w *bytes.Buffer, cfg *SideConfig) error {
	return writeElements(w,
		cfg.CommitKey,
		cfg.FinalKey,
		cfg.Delay,
		cfg.MinDepth,
		cfg.FeeRate,
		cfg.OfferAnchor,
	)
}

// readSideConfig deserializes one side's channel parameters.
func readSideConfig(r io.Reader, cfg *SideConfig) error {
	return readElements(r,
		&cfg.CommitKey,
		&cfg.FinalKey,
		&cfg.Delay,
		&cfg.MinDepth,
		&cfg.FeeRate,
		&cfg.OfferAnchor,
	)
}

// writeState serializes a full channel state snapshot.
func writeState(w *bytes.Buffer, state *chanstate.State) error {
	err := writeElements(w,
		uint64(state.AnchorSat),
		state.FeeRate,
		uint8(state.Funder),
		state.Changes,
	)
	if err != nil {
		return err
	}

	for side := range state.Sides {
		if err := writeElement(w, state.Sides[side].Balance); err != nil {
			return err
		}

		htlcs := state.Sides[side].Htlcs
		if err := writeElement(w, uint32(len(htlcs))); err != nil {
			return err
		}
		for i := range htlcs {
			if err := writeHtlc(w, &htlcs[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

// readState deserializes a channel state snapshot.
func readState(r io.Reader) (*chanstate.State, error) {
	state := &chanstate.State{}

	var anchorSat uint64
	var funder uint8
	err := readElements(r, &anchorSat, &state.FeeRate, &funder,
		&state.Changes)
	if err != nil {
		return nil, err
	}
	state.AnchorSat = btcutil.Amount(anchorSat)
	state.Funder = chanstate.Side(funder)

	for side := range state.Sides {
		err := readElement(r, &state.Sides[side].Balance)
		if err != nil {
			return nil, err
		}

		var numHtlcs uint32
		if err := readElement(r, &numHtlcs); err != nil {
			return nil, err
		}

		for i := uint32(0); i < numHtlcs; i++ {
			htlc, err := readHtlc(r)
			if err != nil {
				return nil, err
			}
			state.Sides[side].Htlcs = append(
				state.Sides[side].Htlcs, *htlc,
			)
		}
	}

	return state, nil
}

// writeHtlc serializes a single HTLC.
func writeHtlc(w *bytes.Buffer, htlc *chanstate.Htlc) error {
	err := writeElements(w,
		htlc.ID,
		htlc.Amount,
		htlc.RHash,
		htlc.Expiry,
	)
	if err != nil {
		return err
	}

	return writeVarBytes(w, htlc.Route)
}

// readHtlc deserializes a single HTLC.
func readHtlc(r io.Reader) (*chanstate.Htlc, error) {
	htlc := &chanstate.Htlc{}

	err := readElements(r,
		&htlc.ID,
		&htlc.Amount,
		&htlc.RHash,
		&htlc.Expiry,
	)
	if err != nil {
		return nil, err
	}

	if htlc.Route, err = readVarBytes(r); err != nil {
		return nil, err
	}

	return htlc, nil
}

// writeChange serializes a staged change with a leading type tag.
func writeChange(w *bytes.Buffer, change chanstate.StagingChange) error {
	switch c := change.(type) {
	case chanstate.AddChange:
		if err := writeElement(w, changeTypeAdd); err != nil {
			return err
		}
		return writeHtlc(w, &c.Htlc)

	case chanstate.FulfillChange:
		err := writeElements(w, changeTypeFulfill, c.ID, c.Preimage)
		return err

	case chanstate.FailChange:
		if err := writeElements(w, changeTypeFail, c.ID); err != nil {
			return err
		}
		return writeVarBytes(w, c.Reason)

	default:
		return fmt.Errorf("unknown staging change %T", change)
	}
}

// readChange deserializes a staged change.
func readChange(r io.Reader) (chanstate.StagingChange, error) {
	var changeType uint8
	if err := readElement(r, &changeType); err != nil {
		return nil, err
	}

	switch changeType {
	case changeTypeAdd:
		htlc, err := readHtlc(r)
		if err != nil {
			return nil, err
		}
		return chanstate.AddChange{Htlc: *htlc}, nil

	case changeTypeFulfill:
		var change chanstate.FulfillChange
		err := readElements(r, &change.ID, &change.Preimage)
		if err != nil {
			return nil, err
		}
		return change, nil

	case changeTypeFail:
		var change chanstate.FailChange
		if err := readElement(r, &change.ID); err != nil {
			return nil, err
		}
		var err error
		if change.Reason, err = readVarBytes(r); err != nil {
			return nil, err
		}
		return change, nil

	default:
		return nil, fmt.Errorf("unknown staging change tag %d",
			changeType)
	}
}

// writeCommit serializes a single commitment.
func writeCommit(w *bytes.Buffer, commit *Commit) error {
	err := writeElements(w,
		commit.CommitNum,
		commit.RevocationHash,
	)
	if err != nil {
		return err
	}

	if err := writeState(w, commit.State); err != nil {
		return err
	}

	var txBuf bytes.Buffer
	if commit.Tx != nil {
		if err := commit.Tx.Serialize(&txBuf); err != nil {
			return err
		}
	}
	if err := writeVarBytes(w, txBuf.Bytes()); err != nil {
		return err
	}

	if err := writeElement(w, commit.Sig); err != nil {
		return err
	}

	if err := writeElement(w, uint32(len(commit.Unacked))); err != nil {
		return err
	}
	for _, change := range commit.Unacked {
		if err := writeChange(w, change); err != nil {
			return err
		}
	}

	return nil
}

// readCommit deserializes a single commitment.
func readCommit(r io.Reader) (*Commit, error) {
	commit := &Commit{}

	err := readElements(r,
		&commit.CommitNum,
		&commit.RevocationHash,
	)
	if err != nil {
		return nil, err
	}

	if commit.State, err = readState(r); err != nil {
		return nil, err
	}

	txBytes, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	if len(txBytes) > 0 {
		tx := &wire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
			return nil, err
		}
		commit.Tx = tx
	}

	if err := readElement(r, &commit.Sig); err != nil {
		return nil, err
	}

	var numChanges uint32
	if err := readElement(r, &numChanges); err != nil {
		return nil, err
	}
	for i := uint32(0); i < numChanges; i++ {
		change, err := readChange(r)
		if err != nil {
			return nil, err
		}
		commit.Unacked = append(commit.Unacked, change)
	}

	return commit, nil
}

// writeCommitChain serializes a commitment chain, tail first.
func writeCommitChain(w *bytes.Buffer, commits []*Commit) error {
	if err := writeElement(w, uint32(len(commits))); err != nil {
		return err
	}

	for _, commit := range commits {
		if err := writeCommit(w, commit); err != nil {
			return err
		}
	}

	return nil
}

// readCommitChain deserializes a commitment chain.
func readCommitChain(r io.Reader) ([]*Commit, error) {
	var numCommits uint32
	if err := readElement(r, &numCommits); err != nil {
		return nil, err
	}

	var commits []*Commit
	for i := uint32(0); i < numCommits; i++ {
		commit, err := readCommit(r)
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}

	return commits, nil
}
