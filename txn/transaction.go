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

// Package txn implements Algorand transactions and their signed envelopes as
// far as a hardware signer needs them: the canonical bytes to sign, local
// signature verification and folding a device signature back into the
// envelope.
package txn

import (
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/algoledger/signer/msgpack"
)

// Transaction types.
const (
	TypePayment     = "pay"
	TypeKeyReg      = "keyreg"
	TypeAssetXfer   = "axfer"
	TypeAssetFreeze = "afrz"
	TypeAssetConfig = "acfg"
	TypeApplication = "appl"
)

// Field keys common to all transaction types.
const (
	KeyType       = "type"
	KeySender     = "snd"
	KeyRekey      = "rekey"
	KeyFee        = "fee"
	KeyFirstValid = "fv"
	KeyLastValid  = "lv"
	KeyGenesisID  = "gen"
	KeyGenesis    = "gh"
	KeyGroup      = "grp"
	KeyNote       = "note"
)

// typeFields lists the type specific fields of every known transaction type.
var typeFields = map[string][]string{
	TypePayment:     {"amt", "rcv", "close"},
	TypeKeyReg:      {"selkey", "sprfkey", "votekey", "votefst", "votelst", "votekd", "nonpart"},
	TypeAssetXfer:   {"aamt", "aclose", "arcv", "asnd", "xaid"},
	TypeAssetFreeze: {"faid", "fadd", "afrz"},
	TypeAssetConfig: {"caid", "apar"},
	TypeApplication: {"apid", "apaa", "apap", "apsu", "apan", "apat", "apls", "apgs", "apfa", "apas", "apep"},
}

// hashFields are the fields that must hold a 32 byte value when present.
var hashFields = []string{
	KeySender, KeyRekey, KeyGenesis, KeyGroup,
	"rcv", "close", "aclose", "arcv", "asnd", "fadd", "votekey", "selkey",
}

// assetParamAddresses are the 32 byte fields of asset parameters ("apar").
var assetParamAddresses = []string{"m", "r", "f", "c"}

var (
	ErrUnknownType  = errors.New("txn: unknown transaction type")
	ErrInvalidField = errors.New("txn: invalid field")
)

// Transaction is an Algorand transaction body. It is kept as a generic value
// map so that fields unknown to this package are signed as they are.
type Transaction msgpack.Map

// Type returns the transaction type, or the empty string if it is unset.
func (tx Transaction) Type() string {
	s, _ := tx[KeyType].(msgpack.String)
	return string(s)
}

// Sender returns the sending account.
func (tx Transaction) Sender() Address {
	b, _ := tx[KeySender].(msgpack.Bytes)
	return BytesToAddress(b)
}

// Uint returns the integer field key, or zero if it is absent.
func (tx Transaction) Uint(key string) uint64 {
	n, _ := tx[key].(msgpack.Uint)
	return uint64(n)
}

// Validate checks the shape of the transaction: a known type, and 32 byte
// values wherever an address or hash is expected.
func (tx Transaction) Validate() error {
	typ, ok := tx[KeyType].(msgpack.String)
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrUnknownType, KeyType)
	}
	if _, ok := typeFields[string(typ)]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownType, string(typ))
	}
	if v, ok := tx[KeyGenesisID]; ok {
		if _, ok := v.(msgpack.String); !ok {
			return fmt.Errorf("%w: %q is not a string", ErrInvalidField, KeyGenesisID)
		}
	}
	if err := checkHashes(msgpack.Map(tx), hashFields, ""); err != nil {
		return err
	}
	if apar, ok := tx["apar"].(msgpack.Map); ok {
		if err := checkHashes(apar, assetParamAddresses, "apar."); err != nil {
			return err
		}
	}
	return nil
}

func checkHashes(m msgpack.Map, keys []string, prefix string) error {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || msgpack.IsZero(v) {
			continue
		}
		b, ok := v.(msgpack.Bytes)
		if !ok || len(b) != AddressLength {
			return fmt.Errorf("%w: %s%s must be %d bytes", ErrInvalidField, prefix, key, AddressLength)
		}
	}
	return nil
}

// ID returns the transaction identifier, the base32 form of the SHA-512/256
// digest of the bytes a signer signs.
func (tx Transaction) ID() (string, error) {
	msg, err := BytesToSign(tx)
	if err != nil {
		return "", err
	}
	sum := sha512.Sum512_256(msg)
	return addressEncoding.EncodeToString(sum[:]), nil
}
