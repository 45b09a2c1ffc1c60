// Copyright 2018 The go-ethereum Authors
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

// Package apdu implements the application data units exchanged with the
// Algorand Ledger application, along with the chunking rules used to stream
// payloads that do not fit into a single unit.
package apdu

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// CLA is the instruction class of every Algorand application command.
const CLA byte = 0x80

// Instruction codes understood by the Algorand application.
const (
	InsGetVersion   byte = 0x00
	InsGetPublicKey byte = 0x03
	InsGetAddress   byte = 0x04
	InsSignMsgpack  byte = 0x08
)

// Commands answered by the device OS rather than the Algorand application.
// CLABolos works whichever application runs, CLADashboard only while no
// application is open.
const (
	CLABolos      byte = 0xb0
	CLADashboard  byte = 0xe0
	InsAppInfo    byte = 0x01 // With CLABolos
	InsDeviceInfo byte = 0x01 // With CLADashboard
)

// Flow parameters of chunked commands. P1 tells the device whether a chunk
// starts a new buffer or appends to the current one, P2 whether more chunks
// follow.
const (
	P1First          byte = 0x00 // First chunk, default account
	P1FirstAccountID byte = 0x01 // First chunk, payload starts with a 4 byte account id
	P1More           byte = 0x80 // Any chunk after the first

	P2More byte = 0x80 // More chunks follow
	P2Last byte = 0x00 // Final chunk

	P1ShowAddress byte = 0x01 // Display the address on screen before replying
)

// MaxDataLen is the largest payload a single command can carry, bounded by the
// one byte Lc field.
const MaxDataLen = 255

// Command represents an application data unit sent to the device.
type Command struct {
	Cla, Ins, P1, P2 uint8 // Class, Instruction, Parameter 1, Parameter 2
	Data             []byte
}

// Serialize encodes the command as CLA | INS | P1 | P2 | Lc | Data. The Lc byte
// is always present, even for commands without data.
func (c Command) Serialize() ([]byte, error) {
	if len(c.Data) > MaxDataLen {
		return nil, fmt.Errorf("apdu: command data too long (%d > %d)", len(c.Data), MaxDataLen)
	}
	buf := bytes.NewBuffer(make([]byte, 0, 5+len(c.Data)))
	buf.Write([]byte{c.Cla, c.Ins, c.P1, c.P2, byte(len(c.Data))})
	buf.Write(c.Data)
	return buf.Bytes(), nil
}

// Last reports whether the command closes a chunked sequence.
func (c Command) Last() bool {
	return c.P2&P2More == 0
}

// Response represents an application data unit received from the device.
type Response struct {
	Data []byte
	SW   StatusWord
}

// ParseResponse splits a raw reply into its payload and trailing status word.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("can not deserialize data: payload too short (%d < 2)", len(raw))
	}
	n := len(raw) - 2
	return &Response{
		Data: raw[:n:n],
		SW:   StatusWord(binary.BigEndian.Uint16(raw[n:])),
	}, nil
}

// Err returns nil if the response reports success, or a *Fault carrying the
// status word and any payload the device attached to it.
func (r *Response) Err() error {
	if r.SW == SWOk {
		return nil
	}
	return &Fault{SW: r.SW, Data: r.Data}
}
