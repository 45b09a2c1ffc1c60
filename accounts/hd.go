// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Hardened marks a hardened derivation path component.
const Hardened = 0x80000000

// CoinType is the SLIP-44 coin type assigned to Algorand.
const CoinType = 283

// DefaultRootDerivationPath is the root path to which relative derivation
// paths are appended, m/44'/283'.
var DefaultRootDerivationPath = DerivationPath{Hardened + 44, Hardened + CoinType}

// DefaultBaseDerivationPath is the path of the first account, m/44'/283'/0'/0/0.
// Further accounts increment the third component.
var DefaultBaseDerivationPath = DerivationPath{Hardened + 44, Hardened + CoinType, Hardened + 0, 0, 0}

// DerivationPath represents the computer friendly version of a hierarchical
// deterministic wallet account derivation path.
//
// The BIP-32 spec https://github.com/bitcoin/bips/blob/master/bip-0032.mediawiki
// defines derivation paths to be of the form:
//
//	m / purpose' / coin_type' / account' / change / address_index
//
// The Algorand application derives every key at m/44'/283'/N'/0/0 and selects
// it by the account index N alone, which is all the device protocol carries.
type DerivationPath []uint32

// AlgorandPath returns the derivation path of the given account index.
func AlgorandPath(account uint32) DerivationPath {
	path := make(DerivationPath, len(DefaultBaseDerivationPath))
	copy(path, DefaultBaseDerivationPath)
	path[2] += account
	return path
}

// ParseDerivationPath converts a user specified derivation path string to the
// internal binary representation.
//
// Full derivation paths need to start with the `m/` prefix, relative derivation
// paths (which will get appended to the default root path) must not have prefixes
// in front of the first element. Whitespace is ignored.
func ParseDerivationPath(path string) (DerivationPath, error) {
	var result DerivationPath

	// Handle absolute or relative paths
	components := strings.Split(path, "/")
	switch {
	case strings.TrimSpace(components[0]) == "":
		return nil, errors.New("ambiguous path: use 'm/' prefix for absolute paths, or no leading '/' for relative ones")

	case strings.TrimSpace(components[0]) == "m":
		components = components[1:]

	default:
		result = append(result, DefaultRootDerivationPath...)
	}
	if len(components) == 0 {
		return nil, errors.New("empty derivation path")
	}
	for _, component := range components {
		component = strings.TrimSpace(component)
		var value uint32

		if strings.HasSuffix(component, "'") {
			value = Hardened
			component = strings.TrimSpace(strings.TrimSuffix(component, "'"))
		}
		bigval, ok := new(big.Int).SetString(component, 0)
		if !ok {
			return nil, fmt.Errorf("invalid component: %s", component)
		}
		limit := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(limit))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("component %v out of allowed range [0, %d]", bigval, limit)
			}
			return nil, fmt.Errorf("component %v out of allowed hardened range [0, %d]", bigval, limit)
		}
		result = append(result, value+uint32(bigval.Uint64()))
	}
	return result, nil
}

// AccountIndex returns the account index N of a path of the form
// m/44'/283'/N'/0/0, or ErrUnsupportedPath for any other path.
func (path DerivationPath) AccountIndex() (uint32, error) {
	if len(path) != len(DefaultBaseDerivationPath) ||
		path[0] != DefaultBaseDerivationPath[0] || path[1] != DefaultBaseDerivationPath[1] ||
		path[2] < Hardened || path[3] != 0 || path[4] != 0 {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedPath, path)
	}
	return path[2] - Hardened, nil
}

// String implements the stringer interface, converting a binary derivation path
// to its canonical representation.
func (path DerivationPath) String() string {
	result := "m"
	for _, component := range path {
		var hardened bool
		if component >= Hardened {
			component -= Hardened
			hardened = true
		}
		result = fmt.Sprintf("%s/%d", result, component)
		if hardened {
			result += "'"
		}
	}
	return result
}

// MarshalJSON turns a derivation path into its json-serialized string
func (path DerivationPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(path.String())
}

// UnmarshalJSON a json-serialized string back into a derivation path
func (path *DerivationPath) UnmarshalJSON(b []byte) error {
	var dp string
	var err error
	if err = json.Unmarshal(b, &dp); err != nil {
		return err
	}
	*path, err = ParseDerivationPath(dp)
	return err
}

// AccountIterator creates a path iterator over consecutive Algorand accounts
// starting at base, incrementing the account component:
// m/44'/283'/0'/0/0, m/44'/283'/1'/0/0, ... m/44'/283'/N'/0/0.
func AccountIterator(base DerivationPath) func() DerivationPath {
	path := make(DerivationPath, len(base))
	copy(path, base)
	// Set it back by one, so the first call gives the first result
	path[2]--
	return func() DerivationPath {
		path[2]++
		next := make(DerivationPath, len(path))
		copy(next, path)
		return next
	}
}
