// Copyright 2025 The algoledger Authors
// This file is part of the algoledger library.
//
// The algoledger library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The algoledger library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the algoledger library. If not, see <http://www.gnu.org/licenses/>.

package msgpack

import (
	"bytes"
	"errors"
	"fmt"

	vmsgpack "github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// maxDepth bounds the nesting of decoded values.
const maxDepth = 32

var (
	ErrTrailingData = errors.New("msgpack: trailing data after value")
	ErrMaxDepth     = errors.New("msgpack: maximum nesting depth exceeded")
)

// Decode parses a single MessagePack value from data. Any integer, string,
// binary, map and array width is accepted. Negative integers, floats, booleans,
// nil, extension types and non-string map keys are rejected.
func Decode(data []byte) (Value, error) {
	r := bytes.NewReader(data)
	d := vmsgpack.NewDecoder(r)

	v, err := decodeValue(d, 0)
	if err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, r.Len())
	}
	return v, nil
}

// Canonical decodes data and returns its canonical re-encoding.
func Canonical(data []byte) ([]byte, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodeToBytes(v)
}

// IsCanonical reports whether data already is the canonical encoding of the
// value it holds.
func IsCanonical(data []byte) bool {
	enc, err := Canonical(data)
	return err == nil && bytes.Equal(enc, data)
}

func decodeValue(d *vmsgpack.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return nil, ErrMaxDepth
	}
	c, err := d.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case c <= msgpcode.PosFixedNumHigh, c == msgpcode.Uint8, c == msgpcode.Uint16,
		c == msgpcode.Uint32, c == msgpcode.Uint64:
		n, err := d.DecodeUint64()
		if err != nil {
			return nil, err
		}
		return Uint(n), nil

	case c >= msgpcode.NegFixedNumLow, c == msgpcode.Int8, c == msgpcode.Int16,
		c == msgpcode.Int32, c == msgpcode.Int64:
		n, err := d.DecodeInt64()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, &valueError{err: ErrUnsupportedType, msg: fmt.Sprintf("negative integer %d", n)}
		}
		return Uint(n), nil

	case msgpcode.IsBin(c):
		b, err := d.DecodeBytes()
		if err != nil {
			return nil, err
		}
		return Bytes(b), nil

	case msgpcode.IsString(c):
		s, err := d.DecodeString()
		if err != nil {
			return nil, err
		}
		return String(s), nil

	case msgpcode.IsFixedMap(c), c == msgpcode.Map16, c == msgpcode.Map32:
		return decodeMap(d, depth)

	case msgpcode.IsFixedArray(c), c == msgpcode.Array16, c == msgpcode.Array32:
		n, err := d.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		arr := make(Array, 0, min(n, 1024))
		for i := 0; i < n; i++ {
			v, err := decodeValue(d, depth+1)
			if err != nil {
				return nil, addErrorContext(err, fmt.Sprint("[", i, "]"))
			}
			arr = append(arr, v)
		}
		return arr, nil
	}
	return nil, &valueError{err: ErrUnsupportedType, msg: fmt.Sprintf("type code %#x", c)}
}

func decodeMap(d *vmsgpack.Decoder, depth int) (Value, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	m := make(Map, min(n, 64))
	for i := 0; i < n; i++ {
		c, err := d.PeekCode()
		if err != nil {
			return nil, err
		}
		if !msgpcode.IsString(c) {
			return nil, &valueError{err: ErrUnsupportedType, msg: fmt.Sprintf("map key with type code %#x", c)}
		}
		key, err := d.DecodeString()
		if err != nil {
			return nil, err
		}
		if _, dup := m[key]; dup {
			return nil, fmt.Errorf("msgpack: duplicate map key %q", key)
		}
		v, err := decodeValue(d, depth+1)
		if err != nil {
			return nil, addErrorContext(err, "."+key)
		}
		m[key] = v
	}
	return m, nil
}
