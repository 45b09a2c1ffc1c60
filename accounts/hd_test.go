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

package accounts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlgorandPath(t *testing.T) {
	assert.Equal(t, "m/44'/283'/0'/0/0", AlgorandPath(0).String())
	assert.Equal(t, "m/44'/283'/7'/0/0", AlgorandPath(7).String())
	assert.Equal(t, "m/44'/283'/0'/0/0", DefaultBaseDerivationPath.String(), "base path must not be modified")

	for _, n := range []uint32{0, 1, 1 << 30} {
		idx, err := AlgorandPath(n).AccountIndex()
		require.NoError(t, err)
		assert.Equal(t, n, idx)
	}
}

func TestParseDerivationPath(t *testing.T) {
	tests := []struct {
		input  string
		output DerivationPath
	}{
		{"m/44'/283'/0'/0/0", AlgorandPath(0)},
		{"m/44'/283'/3'/0/0", AlgorandPath(3)},
		{" m / 44 '/ 283' / 5' / 0 / 0 ", AlgorandPath(5)},
		{"m/0x2c'/0x11b'/0'/0/0", AlgorandPath(0)},
		{"9'/0/0", AlgorandPath(9)},
		{"m/2147483692/2147483931/2147483648/0/0", AlgorandPath(0)},
		{"m/44'/283'", DerivationPath{Hardened + 44, Hardened + CoinType}},

		// Invalid derivation paths
		{"", nil},
		{"m", nil},
		{"m/", nil},
		{"/44'/283'", nil},
		{"m/2147483648'", nil},
		{"m/-1", nil},
		{"m/44'/x'", nil},
	}
	for i, tt := range tests {
		path, err := ParseDerivationPath(tt.input)
		if tt.output == nil {
			assert.Error(t, err, "test %d: %q", i, tt.input)
			continue
		}
		require.NoError(t, err, "test %d: %q", i, tt.input)
		assert.Equal(t, tt.output, path, "test %d: %q", i, tt.input)
	}
}

func TestAccountIndexUnsupported(t *testing.T) {
	for _, input := range []string{
		"m/44'/60'/0'/0/0",
		"m/44'/283'/0/0/0",
		"m/44'/283'/0'/0/1",
		"m/44'/283'/0'/1/0",
		"m/44'/283'/0'/0",
	} {
		path, err := ParseDerivationPath(input)
		require.NoError(t, err)
		_, err = path.AccountIndex()
		assert.ErrorIs(t, err, ErrUnsupportedPath, input)
	}
}

func TestDerivationPathJSON(t *testing.T) {
	blob, err := json.Marshal(AlgorandPath(4))
	require.NoError(t, err)
	assert.Equal(t, `"m/44'/283'/4'/0/0"`, string(blob))

	var path DerivationPath
	require.NoError(t, json.Unmarshal(blob, &path))
	assert.Equal(t, AlgorandPath(4), path)
}

func TestAccountIterator(t *testing.T) {
	next := AccountIterator(DefaultBaseDerivationPath)
	first, second := next(), next()
	assert.Equal(t, AlgorandPath(0), first)
	assert.Equal(t, AlgorandPath(1), second)
	assert.Equal(t, AlgorandPath(2), next())
}
