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
	"fmt"
	"math/big"
	"reflect"
	"sort"
)

// Value is a node of a canonically encodable value tree.
type Value interface {
	// isValue seals the interface, only the types in this package implement it.
	isValue()
}

type (
	// Uint is a non-negative integer.
	Uint uint64

	// Bytes is an opaque byte string.
	Bytes []byte

	// String is a text string. Content is assumed to be ASCII.
	String string

	// Map is a mapping of string keys to values. Insertion order carries no
	// meaning, the encoder always sorts the keys.
	Map map[string]Value

	// Array is an ordered sequence of values.
	Array []Value
)

func (Uint) isValue()   {}
func (Bytes) isValue()  {}
func (String) isValue() {}
func (Map) isValue()    {}
func (Array) isValue()  {}

// IsZero reports whether v is equivalent to absence: the integer zero, an empty
// string, an empty byte string, an empty array, or a map whose values are all
// zero themselves. A nil Value is zero as well.
func IsZero(v Value) bool {
	switch v := v.(type) {
	case nil:
		return true
	case Uint:
		return v == 0
	case Bytes:
		return len(v) == 0
	case String:
		return len(v) == 0
	case Array:
		return len(v) == 0
	case Map:
		for _, vv := range v {
			if !IsZero(vv) {
				return false
			}
		}
		return true
	}
	return false
}

// entry is a single key/value pair of a map prepared for encoding.
type entry struct {
	key string
	val Value
}

// canonicalEntries returns the non-zero entries of m sorted by key. A new slice
// is built on every call, m itself is left untouched.
func canonicalEntries(m Map) []entry {
	entries := make([]entry, 0, len(m))
	for k, v := range m {
		if IsZero(v) {
			continue
		}
		entries = append(entries, entry{key: k, val: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
	return entries
}

// Keys returns the keys of m that survive canonicalization, in encoding order.
func (m Map) Keys() []string {
	entries := canonicalEntries(m)
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Clone returns a deep copy of m. Byte strings are copied too, so the result
// can be modified without affecting m.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	return clone(m).(Map)
}

func clone(v Value) Value {
	switch v := v.(type) {
	case Bytes:
		return Bytes(append([]byte{}, v...))
	case Map:
		cpy := make(Map, len(v))
		for k, vv := range v {
			cpy[k] = clone(vv)
		}
		return cpy
	case Array:
		cpy := make(Array, len(v))
		for i, vv := range v {
			cpy[i] = clone(vv)
		}
		return cpy
	}
	return v
}

var (
	bigUint64Max = new(big.Int).SetUint64(^uint64(0))
	bigIntType   = reflect.TypeOf(big.Int{})
)

// FromInterface converts a loosely typed Go value into a Value. It accepts the
// Value types themselves, all Go integer kinds, *big.Int, string, []byte,
// map[string]T and []T for any accepted T.
//
// Negative numbers, floats, booleans, nil and every other kind fail with
// ErrUnsupportedType. Integers that do not fit into 64 bits fail with
// ErrValueTooLarge.
func FromInterface(x interface{}) (Value, error) {
	if v, ok := x.(Value); ok && v != nil {
		return v, nil
	}
	if b, ok := x.(*big.Int); ok {
		return fromBig(b)
	}
	return fromReflect(reflect.ValueOf(x))
}

func fromBig(b *big.Int) (Value, error) {
	switch {
	case b == nil:
		return nil, &valueError{err: ErrUnsupportedType, msg: "nil *big.Int"}
	case b.Sign() < 0:
		return nil, &valueError{err: ErrUnsupportedType, msg: fmt.Sprintf("negative integer %v", b)}
	case b.Cmp(bigUint64Max) > 0:
		return nil, &valueError{err: ErrValueTooLarge, msg: fmt.Sprintf("integer %v exceeds 64 bits", b)}
	}
	return Uint(b.Uint64()), nil
}

func fromReflect(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return nil, &valueError{err: ErrUnsupportedType, msg: "nil"}
	}
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, &valueError{err: ErrUnsupportedType, msg: "nil"}
		}
		if rv.Kind() == reflect.Ptr && rv.Elem().Type() == bigIntType {
			return fromBig(rv.Interface().(*big.Int))
		}
		rv = rv.Elem()
	}
	if rv.Type().Implements(valueType) {
		return rv.Interface().(Value), nil
	}
	switch kind := rv.Kind(); {
	case kind >= reflect.Uint && kind <= reflect.Uintptr:
		return Uint(rv.Uint()), nil

	case kind >= reflect.Int && kind <= reflect.Int64:
		if rv.Int() < 0 {
			return nil, &valueError{err: ErrUnsupportedType, msg: fmt.Sprintf("negative integer %d", rv.Int())}
		}
		return Uint(rv.Int()), nil

	case kind == reflect.String:
		return String(rv.String()), nil

	case kind == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		return Bytes(rv.Bytes()), nil

	case kind == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8:
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return Bytes(b), nil

	case kind == reflect.Slice || kind == reflect.Array:
		arr := make(Array, rv.Len())
		for i := range arr {
			v, err := fromReflect(rv.Index(i))
			if err != nil {
				return nil, addErrorContext(err, fmt.Sprint("[", i, "]"))
			}
			arr[i] = v
		}
		return arr, nil

	case kind == reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &valueError{err: ErrUnsupportedType, msg: fmt.Sprintf("map key type %v", rv.Type().Key())}
		}
		m := make(Map, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			v, err := fromReflect(iter.Value())
			if err != nil {
				return nil, addErrorContext(err, "."+key)
			}
			m[key] = v
		}
		return m, nil
	}
	return nil, &valueError{err: ErrUnsupportedType, msg: fmt.Sprintf("Go type %v", rv.Type())}
}

var valueType = reflect.TypeOf((*Value)(nil)).Elem()
