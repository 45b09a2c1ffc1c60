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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
)

// Type tags of the canonical subset.
const (
	fixintMax = 0x7f
	fixmap0   = 0x80
	fixarr0   = 0x90
	fixstr0   = 0xa0
	bin8      = 0xc4
	uint8Tag  = 0xcc
	uint16Tag = 0xcd
	uint32Tag = 0xce
	uint64Tag = 0xcf
	str8      = 0xd9
	arr16     = 0xdc
	arr32     = 0xdd

	maxFixStr   = 31
	maxFixMap   = 15
	maxFixArray = 15
	maxShortLen = 255
)

var (
	ErrValueTooLarge   = errors.New("msgpack: value too large")
	ErrTooManyEntries  = errors.New("msgpack: too many entries")
	ErrUnsupportedType = errors.New("msgpack: unsupported type")
)

// valueError is the error returned for values that fall outside of the
// canonical subset. It wraps one of the package sentinels and records the
// location of the offending element within the value tree.
type valueError struct {
	err error
	msg string
	ctx []string // innermost element first
}

func (err *valueError) Error() string {
	s := fmt.Sprintf("%v: %s", err.err, err.msg)
	if len(err.ctx) > 0 {
		var path strings.Builder
		for i := len(err.ctx) - 1; i >= 0; i-- {
			path.WriteString(err.ctx[i])
		}
		s += " at " + strings.TrimPrefix(path.String(), ".")
	}
	return s
}

func (err *valueError) Unwrap() error { return err.err }

func addErrorContext(err error, ctx string) error {
	if verr, ok := err.(*valueError); ok {
		verr.ctx = append(verr.ctx, ctx)
	}
	return err
}

type encBuffer struct {
	buf     []byte
	sizebuf [9]byte
}

// The global encBuffer pool.
var encBufferPool = sync.Pool{
	New: func() interface{} { return new(encBuffer) },
}

func getEncBuffer() *encBuffer {
	buf := encBufferPool.Get().(*encBuffer)
	buf.buf = buf.buf[:0]
	return buf
}

// Encode writes the canonical encoding of v to w. Nothing is written if the
// value cannot be encoded.
func Encode(w io.Writer, v Value) error {
	buf := getEncBuffer()
	defer encBufferPool.Put(buf)

	if err := buf.encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.buf)
	return err
}

// EncodeToBytes returns the canonical encoding of v.
func EncodeToBytes(v Value) ([]byte, error) {
	buf := getEncBuffer()
	defer encBufferPool.Put(buf)

	if err := buf.encode(v); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.buf...), nil
}

func (buf *encBuffer) encode(v Value) error {
	switch v := v.(type) {
	case Uint:
		buf.writeUint(uint64(v))
		return nil
	case Bytes:
		return buf.writeBytes(v)
	case String:
		return buf.writeString(string(v))
	case Map:
		return buf.writeMap(v)
	case Array:
		return buf.writeArray(v)
	case nil:
		return &valueError{err: ErrUnsupportedType, msg: "nil value"}
	}
	return &valueError{err: ErrUnsupportedType, msg: fmt.Sprintf("%T", v)}
}

func (buf *encBuffer) writeUint(i uint64) {
	switch {
	case i <= fixintMax:
		buf.buf = append(buf.buf, byte(i))
	case i <= math.MaxUint8:
		buf.buf = append(buf.buf, uint8Tag, byte(i))
	case i <= math.MaxUint16:
		buf.sizebuf[0] = uint16Tag
		binary.BigEndian.PutUint16(buf.sizebuf[1:], uint16(i))
		buf.buf = append(buf.buf, buf.sizebuf[:3]...)
	case i <= math.MaxUint32:
		buf.sizebuf[0] = uint32Tag
		binary.BigEndian.PutUint32(buf.sizebuf[1:], uint32(i))
		buf.buf = append(buf.buf, buf.sizebuf[:5]...)
	default:
		buf.sizebuf[0] = uint64Tag
		binary.BigEndian.PutUint64(buf.sizebuf[1:], i)
		buf.buf = append(buf.buf, buf.sizebuf[:9]...)
	}
}

func (buf *encBuffer) writeBytes(b []byte) error {
	if len(b) > maxShortLen {
		return &valueError{err: ErrValueTooLarge, msg: fmt.Sprintf("byte string of %d bytes exceeds bin8", len(b))}
	}
	buf.buf = append(buf.buf, bin8, byte(len(b)))
	buf.buf = append(buf.buf, b...)
	return nil
}

func (buf *encBuffer) writeString(s string) error {
	switch {
	case len(s) <= maxFixStr:
		buf.buf = append(buf.buf, fixstr0|byte(len(s)))
	case len(s) <= maxShortLen:
		buf.buf = append(buf.buf, str8, byte(len(s)))
	default:
		return &valueError{err: ErrValueTooLarge, msg: fmt.Sprintf("string of %d bytes exceeds str8", len(s))}
	}
	buf.buf = append(buf.buf, s...)
	return nil
}

func (buf *encBuffer) writeMap(m Map) error {
	entries := canonicalEntries(m)
	if len(entries) > maxFixMap {
		return &valueError{err: ErrTooManyEntries, msg: fmt.Sprintf("map has %d non-zero entries, at most %d allowed", len(entries), maxFixMap)}
	}
	buf.buf = append(buf.buf, fixmap0|byte(len(entries)))
	for _, e := range entries {
		if err := buf.writeString(e.key); err != nil {
			return addErrorContext(err, "."+e.key)
		}
		if err := buf.encode(e.val); err != nil {
			return addErrorContext(err, "."+e.key)
		}
	}
	return nil
}

func (buf *encBuffer) writeArray(a Array) error {
	n := uint64(len(a))
	switch {
	case n <= maxFixArray:
		buf.buf = append(buf.buf, fixarr0|byte(n))
	case n <= math.MaxUint16:
		buf.sizebuf[0] = arr16
		binary.BigEndian.PutUint16(buf.sizebuf[1:], uint16(n))
		buf.buf = append(buf.buf, buf.sizebuf[:3]...)
	case n <= math.MaxUint32:
		buf.sizebuf[0] = arr32
		binary.BigEndian.PutUint32(buf.sizebuf[1:], uint32(n))
		buf.buf = append(buf.buf, buf.sizebuf[:5]...)
	default:
		return &valueError{err: ErrTooManyEntries, msg: fmt.Sprintf("array of %d elements exceeds array32", n)}
	}
	for i, v := range a {
		if err := buf.encode(v); err != nil {
			return addErrorContext(err, fmt.Sprint("[", i, "]"))
		}
	}
	return nil
}
