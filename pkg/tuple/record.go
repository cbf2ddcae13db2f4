// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

// Package tuple implements the fixed layout binary tuple record exchanged
// between the tuple sender and the receivers.
package tuple

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Record layout, network byte order:
//
//	0      4      8      12           22     26
//	| id   | age  | key  | payload    | zip  |
const (
	IntSize     = 4
	PayloadSize = 10
	RecordSize  = 3*IntSize + PayloadSize + IntSize

	idOffset      = 0
	ageOffset     = idOffset + IntSize
	keyOffset     = ageOffset + IntSize
	payloadOffset = keyOffset + IntSize
	zipOffset     = payloadOffset + PayloadSize
)

var byteOrder = binary.BigEndian

var (
	// ErrInvalidPayloadLength is returned when the payload is not exactly PayloadSize bytes.
	ErrInvalidPayloadLength = errors.New("invalid payload length")
	// ErrMalformedRecord is returned when a buffer is not exactly RecordSize bytes.
	ErrMalformedRecord = errors.New("malformed record")
)

// Record is one decoded tuple.
type Record struct {
	ID      uint32
	Age     uint32
	Key     uint32
	Payload [PayloadSize]byte
	Zip     uint32
}

// Encode serializes the tuple fields into a RecordSize buffer.
func Encode(id, age, key uint32, payload []byte, zip uint32) ([]byte, error) {
	if len(payload) != PayloadSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPayloadLength, PayloadSize, len(payload))
	}
	buf := make([]byte, RecordSize)
	byteOrder.PutUint32(buf[idOffset:], id)
	byteOrder.PutUint32(buf[ageOffset:], age)
	byteOrder.PutUint32(buf[keyOffset:], key)
	copy(buf[payloadOffset:zipOffset], payload)
	byteOrder.PutUint32(buf[zipOffset:], zip)
	return buf, nil
}

// Decode parses exactly one record. Buffers of any other length are rejected
// without partial parsing.
func Decode(buf []byte) (Record, error) {
	var r Record
	if len(buf) != RecordSize {
		return r, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedRecord, RecordSize, len(buf))
	}
	r.ID = byteOrder.Uint32(buf[idOffset:])
	r.Age = byteOrder.Uint32(buf[ageOffset:])
	r.Key = byteOrder.Uint32(buf[keyOffset:])
	copy(r.Payload[:], buf[payloadOffset:zipOffset])
	r.Zip = byteOrder.Uint32(buf[zipOffset:])
	return r, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r Record) MarshalBinary() ([]byte, error) {
	return Encode(r.ID, r.Age, r.Key, r.Payload[:], r.Zip)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Record) UnmarshalBinary(data []byte) error {
	rec, err := Decode(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// PadPayload NUL pads s to PayloadSize bytes, the way a fixed width string
// field is filled on the sending side.
func PadPayload(s string) ([]byte, error) {
	if len(s) > PayloadSize {
		return nil, fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidPayloadLength, s, PayloadSize)
	}
	p := make([]byte, PayloadSize)
	copy(p, s)
	return p, nil
}

// String renders the record as a tuple. Non printable payload bytes are
// escaped, never trimmed.
func (r Record) String() string {
	return fmt.Sprintf("(%d, %d, %d, %+q, %d)", r.ID, r.Age, r.Key, r.Payload[:], r.Zip)
}

// Equal reports whether both records carry identical field values.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID && r.Age == o.Age && r.Key == o.Key &&
		bytes.Equal(r.Payload[:], o.Payload[:]) && r.Zip == o.Zip
}
