package lnwire

import (
	"bytes"
	"fmt"
	"io"
)

// Error is the terminal message of the protocol. It carries a
// human-readable description of the first contract the sender saw violated.
// After an Error is sent or received the channel can only be resolved
// on-chain.
type Error struct {
	// Problem describes the violation. The maximum length is bounded by
	// the wire slice limit.
	Problem ErrorData
}

// NewError creates a new Error message from a format string.
func NewError(format string, args ...interface{}) *Error {
	return &Error{
		Problem: ErrorData(fmt.Sprintf(format, args...)),
	}
}

// A compile time check to ensure Error implements the lnwire.Message
// interface.
var _ Message = (*Error)(nil)

// Error returns the problem string, making *Error usable as a Go error.
func (e *Error) Error() string {
	return string(e.Problem)
}

// Decode deserializes a serialized Error message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (e *Error) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r, &e.Problem)
}

// Encode serializes the target Error into the passed buffer observing the
// protocol version specified.
//
// This is part of the lnwire.Message interface.
func (e *Error) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w, e.Problem)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (e *Error) MsgType() MessageType {
	return MsgError
}
