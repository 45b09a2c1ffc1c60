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

package txn

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"errors"
	"fmt"
)

// AddressLength is the length of an account public key.
const AddressLength = 32

const checksumLength = 4

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var errAddressChecksum = errors.New("txn: address checksum mismatch")

// Address is the public key of an Algorand account.
type Address [AddressLength]byte

// BytesToAddress returns the address held in b. If b is longer than an
// address, only its first AddressLength bytes are used.
func BytesToAddress(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

// checksum returns the trailing bytes of the SHA-512/256 digest of the key.
func (a Address) checksum() []byte {
	sum := sha512.Sum512_256(a[:])
	return sum[len(sum)-checksumLength:]
}

// String returns the base32 text form of the address: the key followed by
// its checksum, without padding.
func (a Address) String() string {
	buf := make([]byte, 0, AddressLength+checksumLength)
	buf = append(buf, a[:]...)
	buf = append(buf, a.checksum()...)
	return addressEncoding.EncodeToString(buf)
}

// IsZero reports whether the address is all zeroes.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(input []byte) error {
	addr, err := ParseAddress(string(input))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// ParseAddress decodes the text form of an address and validates its checksum.
// Only the canonical text form is accepted.
func ParseAddress(s string) (Address, error) {
	raw, err := addressEncoding.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("txn: invalid address %q: %w", s, err)
	}
	if len(raw) != AddressLength+checksumLength {
		return Address{}, fmt.Errorf("txn: invalid address length %d", len(raw))
	}
	a := BytesToAddress(raw)
	if !bytes.Equal(a.checksum(), raw[AddressLength:]) {
		return Address{}, errAddressChecksum
	}
	// The last character carries two unused bits, only the zero form is valid.
	if a.String() != s {
		return Address{}, fmt.Errorf("txn: non-canonical address %q", s)
	}
	return a, nil
}
