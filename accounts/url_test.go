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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLParsing(t *testing.T) {
	url, err := ParseURL("ledger://0001:0004:00")
	require.NoError(t, err)
	assert.Equal(t, URL{Scheme: "ledger", Path: "0001:0004:00"}, url)

	for _, bad := range []string{"ledger", "://path", "a://b://c"} {
		_, err := ParseURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestURLString(t *testing.T) {
	assert.Equal(t, "ledger://path", URL{Scheme: "ledger", Path: "path"}.String())
	assert.Equal(t, "path", URL{Path: "path"}.String())

	long := URL{Scheme: "ledger", Path: "/dev/bus/usb/001/004/interface/0"}
	assert.Equal(t, "ledger:///dev/bus/usb/001/004/i..", long.TerminalString())
}

func TestURLText(t *testing.T) {
	url := URL{Scheme: "ledger", Path: "hid"}
	text, err := url.MarshalText()
	require.NoError(t, err)

	var parsed URL
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, url, parsed)
	assert.Error(t, parsed.UnmarshalText([]byte("no-scheme")))
}

func TestURLCmp(t *testing.T) {
	tests := []struct {
		urlA   URL
		urlB   URL
		expect int
	}{
		{URL{"ledger", "a"}, URL{"ledger", "a"}, 0},
		{URL{"ledger", "a"}, URL{"ledger", "b"}, -1},
		{URL{"ledger", "b"}, URL{"ledger", "a"}, 1},
		{URL{"emulator", "z"}, URL{"ledger", "a"}, -1},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.expect, tt.urlA.Cmp(tt.urlB), "test %d", i)
	}
}

func TestURLChild(t *testing.T) {
	url := URL{Scheme: "ledger", Path: "hid"}
	assert.Equal(t, "ledger://hid/m/44'/283'/1'/0/0", url.Child(AlgorandPath(1)).String())
}
