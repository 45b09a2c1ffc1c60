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
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vmsgpack "github.com/vmihailenco/msgpack/v5"
)

func TestEncodeUintWidths(t *testing.T) {
	tests := []struct {
		val  uint64
		tag  byte
		size int
	}{
		{0, 0x00, 1},
		{127, 0x7f, 1},
		{128, uint8Tag, 2},
		{255, uint8Tag, 2},
		{256, uint16Tag, 3},
		{65535, uint16Tag, 3},
		{65536, uint32Tag, 5},
		{math.MaxUint32, uint32Tag, 5},
		{math.MaxUint32 + 1, uint64Tag, 9},
		{math.MaxUint64, uint64Tag, 9},
	}
	for _, test := range tests {
		enc, err := EncodeToBytes(Uint(test.val))
		require.NoError(t, err, "value %d", test.val)
		assert.Len(t, enc, test.size, "value %d", test.val)
		assert.Equal(t, test.tag, enc[0], "value %d", test.val)

		var dec uint64
		require.NoError(t, vmsgpack.Unmarshal(enc, &dec))
		assert.Equal(t, test.val, dec)
	}
}

func TestEncodeBytes(t *testing.T) {
	enc, err := EncodeToBytes(Bytes{})
	require.NoError(t, err)
	assert.Equal(t, []byte{bin8, 0x00}, enc)

	enc, err = EncodeToBytes(Bytes{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, []byte{bin8, 0x02, 0xde, 0xad}, enc)

	long := bytes.Repeat([]byte{0x01}, 255)
	enc, err = EncodeToBytes(Bytes(long))
	require.NoError(t, err)
	assert.Equal(t, append([]byte{bin8, 0xff}, long...), enc)

	_, err = EncodeToBytes(Bytes(make([]byte, 256)))
	assert.ErrorIs(t, err, ErrValueTooLarge)
}

func TestEncodeString(t *testing.T) {
	tests := []struct {
		len    int
		header []byte
	}{
		{0, []byte{0xa0}},
		{1, []byte{0xa1}},
		{31, []byte{0xbf}},
		{32, []byte{str8, 32}},
		{255, []byte{str8, 255}},
	}
	for _, test := range tests {
		s := strings.Repeat("x", test.len)
		enc, err := EncodeToBytes(String(s))
		require.NoError(t, err)
		assert.Equal(t, append(test.header, s...), enc, "length %d", test.len)

		var dec string
		require.NoError(t, vmsgpack.Unmarshal(enc, &dec))
		assert.Equal(t, s, dec)
	}
	_, err := EncodeToBytes(String(strings.Repeat("x", 256)))
	assert.ErrorIs(t, err, ErrValueTooLarge)
}

func TestEncodePayment(t *testing.T) {
	tx := Map{
		"type": String("pay"),
		"snd":  Bytes(make([]byte, 32)),
		"amt":  Uint(0),
		"fee":  Uint(1000),
	}
	enc, err := EncodeToBytes(tx)
	require.NoError(t, err)

	want := []byte{0x83}
	want = append(want, 0xa3, 'f', 'e', 'e', uint16Tag, 0x03, 0xe8)
	want = append(want, 0xa3, 's', 'n', 'd', bin8, 0x20)
	want = append(want, make([]byte, 32)...)
	want = append(want, 0xa4, 't', 'y', 'p', 'e', 0xa3, 'p', 'a', 'y')
	assert.Equal(t, want, enc)

	// The caller's map must survive encoding untouched.
	assert.Len(t, tx, 4)
	assert.Equal(t, Uint(0), tx["amt"])
}

func TestEncodeMapOrdering(t *testing.T) {
	m := Map{
		"b":  Uint(1),
		"aa": Uint(2),
		"B":  Uint(3),
		"a":  Uint(4),
	}
	assert.Equal(t, []string{"B", "a", "aa", "b"}, m.Keys())

	enc, err := EncodeToBytes(m)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x84, 0xa1, 'B', 3, 0xa1, 'a', 4, 0xa2, 'a', 'a', 2, 0xa1, 'b', 1}, enc)
}

func TestEncodeMapZeroOmission(t *testing.T) {
	m := Map{
		"empty-map":   Map{"x": Uint(0), "y": String(""), "z": Map{"w": Bytes{}}},
		"empty-arr":   Array{},
		"empty-bytes": Bytes{},
		"empty-str":   String(""),
		"zero":        Uint(0),
		"nil":         nil,
		"keep":        Uint(1),
		"partial":     Map{"x": Uint(0), "y": Uint(7)},
	}
	assert.Equal(t, []string{"keep", "partial"}, m.Keys())

	enc, err := EncodeToBytes(m)
	require.NoError(t, err)
	want := []byte{0x82, 0xa4, 'k', 'e', 'e', 'p', 0x01, 0xa7, 'p', 'a', 'r', 't', 'i', 'a', 'l', 0x81, 0xa1, 'y', 0x07}
	assert.Equal(t, want, enc)

	enc, err = EncodeToBytes(Map{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80}, enc)
}

func TestEncodeMapTooManyEntries(t *testing.T) {
	m := make(Map)
	for i := 0; i < 15; i++ {
		m[fmt.Sprintf("k%02d", i)] = Uint(i + 1)
	}
	enc, err := EncodeToBytes(m)
	require.NoError(t, err)
	assert.Equal(t, byte(0x8f), enc[0])

	// A sixteenth zero-valued entry is dropped before counting.
	m["k15"] = Uint(0)
	_, err = EncodeToBytes(m)
	require.NoError(t, err)

	m["k15"] = Uint(16)
	_, err = EncodeToBytes(m)
	assert.ErrorIs(t, err, ErrTooManyEntries)
}

func TestEncodeArrayWidths(t *testing.T) {
	tests := []struct {
		len    int
		header []byte
	}{
		{0, []byte{0x90}},
		{15, []byte{0x9f}},
		{16, []byte{arr16, 0x00, 0x10}},
		{65535, []byte{arr16, 0xff, 0xff}},
		{65536, []byte{arr32, 0x00, 0x01, 0x00, 0x00}},
	}
	for _, test := range tests {
		arr := make(Array, test.len)
		for i := range arr {
			arr[i] = Uint(1)
		}
		enc, err := EncodeToBytes(arr)
		require.NoError(t, err)
		assert.Equal(t, test.header, enc[:len(test.header)], "length %d", test.len)
		assert.Len(t, enc, len(test.header)+test.len)
	}
	// Array elements are kept even when zero, and in order.
	enc, err := EncodeToBytes(Array{Uint(0), String(""), Uint(2)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x93, 0x00, 0xa0, 0x02}, enc)
}

func TestEncodeErrorContext(t *testing.T) {
	v := Map{
		"txn": Map{
			"apaa": Array{Bytes{1}, Bytes(make([]byte, 300))},
		},
	}
	_, err := EncodeToBytes(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValueTooLarge))
	assert.Contains(t, err.Error(), "at txn.apaa[1]")

	_, err = EncodeToBytes(Array{nil})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestEncodeWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Map{"fee": Uint(1000)}))
	assert.Equal(t, []byte{0x81, 0xa3, 'f', 'e', 'e', uint16Tag, 0x03, 0xe8}, buf.Bytes())

	// Nothing is written for values that cannot be encoded.
	buf.Reset()
	require.Error(t, Encode(&buf, Map{"a": Map{"b": String(strings.Repeat("x", 300))}}))
	assert.Zero(t, buf.Len())
}
