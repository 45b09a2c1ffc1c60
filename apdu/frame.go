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

package apdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultChunkSize is the payload bound per command used by the Algorand
// application clients.
const DefaultChunkSize = 250

var ErrInvalidChunkSize = errors.New("apdu: invalid chunk size")

// Frame splits data into a sequence of commands for instruction ins, each
// carrying at most size payload bytes.
//
// The chunk flow parameters follow the device's state machine:
//
//	Chunk        | P1      | P2
//	-------------+---------+-----
//	first        | p1First | 80 (00 if also last)
//	intermediate | 80      | 80
//	last         | 80      | 00
//
// An empty data buffer yields a single empty, final command. A buffer whose
// length is a multiple of size is not followed by an empty command. The total
// length is never checked, the device reports oversized payloads itself.
func Frame(ins byte, data []byte, size int, p1First byte) ([]Command, error) {
	if size < 1 || size > MaxDataLen {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, size)
	}
	n := (len(data) + size - 1) / size
	if n == 0 {
		n = 1
	}
	cmds := make([]Command, 0, n)
	for i := 0; i < n; i++ {
		end := min((i+1)*size, len(data))

		cmd := Command{Cla: CLA, Ins: ins, P1: P1More, P2: P2More, Data: data[i*size : end]}
		if i == 0 {
			cmd.P1 = p1First
		}
		if i == n-1 {
			cmd.P2 = P2Last
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// WithAccount prepares a signing payload for the given account index. Account
// zero is the device default and travels without a prefix. Any other account
// is sent as a big endian uint32 in front of the payload, which the device
// recognizes by the P1FirstAccountID flag on the first chunk.
func WithAccount(account uint32, data []byte) (p1 byte, payload []byte) {
	if account == 0 {
		return P1First, data
	}
	payload = make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(payload, account)
	copy(payload[4:], data)
	return P1FirstAccountID, payload
}

// AccountPayload encodes an account index as the 4 byte payload of the public
// key and address retrieval commands.
func AccountPayload(account uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, account)
}
