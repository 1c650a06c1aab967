// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package frame implements the length-prefixed messages exchanged
// between an elevated process and the listener that started it.
//
// Every message on the wire is a 4-byte little-endian length followed
// by that many bytes of payload. Messages sent by the listener once a
// session is running carry a control payload: a 4-byte little-endian
// type tag followed by the body. Terminal output sent back to the
// listener is not tagged.
//
// Reads are unbuffered: ReadMessage consumes exactly one message and
// nothing more, so memory use is bounded by the largest message.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Control message tags.
const (
	// Data carries raw terminal input for the child.
	Data uint32 = 1
	// Winsz carries a platform winsize structure.
	Winsz uint32 = 2
)

const (
	// MaxPayload bounds the size of a single message. Terminal traffic
	// never comes close; anything larger is a broken or hostile peer.
	MaxPayload = 16 << 20

	headerLen = 4
	tagLen    = 4
)

var (
	// ErrShortRead is returned when the stream ends before a full read
	// was satisfied. At a message boundary it means the peer shut down
	// its side of the connection in an orderly way.
	ErrShortRead = errors.New("EOF while reading")
	// ErrTooLarge is returned for a length prefix above MaxPayload.
	ErrTooLarge = errors.New("message too large")
	// ErrShortControl is returned by SplitControl for a payload that
	// can not hold a type tag.
	ErrShortControl = errors.New("control message shorter than its tag")
)

var order = binary.LittleEndian

// ReadExact reads exactly n bytes from r, calling Read as many times as
// needed. A zero-length read succeeds without touching r.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("ReadExact(%d): negative length", n)
	}
	b := make([]byte, n)
	if n == 0 {
		return b, nil
	}
	got, err := io.ReadFull(r, b)
	if err == nil {
		return b, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, got, n)
	}
	return nil, err
}

// ReadMessage reads one message and returns its payload.
func ReadMessage(r io.Reader) ([]byte, error) {
	h, err := ReadExact(r, headerLen)
	if err != nil {
		return nil, err
	}
	n := order.Uint32(h)
	if n > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, n, MaxPayload)
	}
	return ReadExact(r, int(n))
}

// WriteMessage writes payload as one message. Header and payload go
// out in a single Write so a message is never interleaved on a stream
// shared with another writer.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, len(payload), MaxPayload)
	}
	b := make([]byte, headerLen+len(payload))
	order.PutUint32(b, uint32(len(payload)))
	copy(b[headerLen:], payload)
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Control returns a control payload for tag and body.
func Control(tag uint32, body []byte) []byte {
	b := make([]byte, tagLen+len(body))
	order.PutUint32(b, tag)
	copy(b[tagLen:], body)
	return b
}

// SplitControl splits a control payload into its tag and body.
// The body aliases payload.
func SplitControl(payload []byte) (uint32, []byte, error) {
	if len(payload) < tagLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrShortControl, len(payload))
	}
	return order.Uint32(payload), payload[tagLen:], nil
}
