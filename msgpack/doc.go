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

/*
Package msgpack implements the canonical MessagePack subset used by Algorand
transactions.

The Ledger application re-derives the signed bytes from the chunks it receives,
so the host must produce exactly the bytes the device parser expects. The subset
is therefore much narrower than MessagePack itself, and the encoder never picks
a wider form than the one listed below.

# Values

Values are represented by the sealed Value interface. Its only implementations
are Uint, Bytes, String, Map and Array. Negative integers, floating point
numbers, booleans and nil cannot be represented and are rejected by
FromInterface and Decode with ErrUnsupportedType.

# Encoding Rules

An unsigned integer is encoded as a positive fixint when it is at most 127,
otherwise as uint8, uint16, uint32 or uint64, whichever is the narrowest one
that holds the value.

A byte string is always encoded as bin8. Byte strings of 256 bytes or more
fail with ErrValueTooLarge.

A text string of up to 31 bytes is encoded as fixstr, otherwise as str8.
Strings of 256 bytes or more fail with ErrValueTooLarge.

A map drops every entry whose value is zero (see IsZero), sorts the remaining
keys bytewise and is encoded as fixmap. Maps with more than 15 non-zero entries
fail with ErrTooManyEntries. The map handed to the encoder is never modified.

An array is encoded as fixarray, array16 or array32 depending on its length,
with the elements in their original order.

# Decoding

Decode is lenient about widths, so that files written by other MessagePack
implementations can be read, but strict about kinds: anything that cannot be
represented as a Value is an error. Re-encoding a decoded value yields its
canonical form, see Canonical.
*/
package msgpack
