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

// Package ledgertest provides a software Algorand Ledger application for tests.
// The device follows the same chunk state machine as the firmware and signs
// with deterministic ed25519 keys.
package ledgertest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/algoledger/signer/apdu"
	"github.com/algoledger/signer/msgpack"
	"github.com/algoledger/signer/txn"
	"golang.org/x/crypto/ed25519"
)

// DefaultCapacity is the transaction buffer size of the software device.
const DefaultCapacity = 2200

// Device is an in-memory Algorand application. It implements the transport
// interface of package ledger, so it can be handed to a ledger.Client directly.
type Device struct {
	// Behaviour knobs, set before use.
	Reject       bool            // Decline every signing request
	ErrorMessage string          // Diagnostic appended after the signature
	Corrupt      bool            // Flip a bit of every produced signature
	FailAt       int             // Fail the n-th signing chunk (1 based) with FailSW, zero disables
	FailSW       apdu.StatusWord // Status word used by FailAt
	Capacity     int             // Transaction buffer size, DefaultCapacity if zero
	Version      [3]byte         // Reported application version
	Locked       bool            // Reported lock state
	ConfirmDelay time.Duration   // Pause before answering a final signing chunk
	Dashboard    bool            // Act as the dashboard with no application open

	seed []byte

	lock         sync.Mutex
	buffer       []byte
	account      uint32
	accumulating bool
	chunk        int
	commands     []apdu.Command
}

// NewDevice creates a software device whose keys are derived from seed.
func NewDevice(seed string) *Device {
	return &Device{
		seed:    []byte(seed),
		Version: [3]byte{2, 1, 0},
	}
}

// Key returns the private key of the given account.
func (d *Device) Key(account uint32) ed25519.PrivateKey {
	h := sha256.New()
	h.Write(d.seed)
	binary.Write(h, binary.BigEndian, account)
	return ed25519.NewKeyFromSeed(h.Sum(nil))
}

// PublicKey returns the public key of the given account.
func (d *Device) PublicKey(account uint32) ed25519.PublicKey {
	return d.Key(account).Public().(ed25519.PublicKey)
}

// Commands returns every command received so far.
func (d *Device) Commands() []apdu.Command {
	d.lock.Lock()
	defer d.lock.Unlock()

	return append([]apdu.Command(nil), d.commands...)
}

// Exchange implements ledger.Transport.
func (d *Device) Exchange(raw []byte, timeout time.Duration) ([]byte, error) {
	data, sw := d.Handle(raw)
	if sw != apdu.SWOk {
		return nil, &apdu.Fault{SW: sw, Data: data}
	}
	return data, nil
}

// Handle processes one serialized command and returns the reply payload and
// status word, the way the firmware would put them on the wire.
func (d *Device) Handle(raw []byte) ([]byte, apdu.StatusWord) {
	data, sw := d.handle(raw)
	if len(raw) >= 4 && raw[1] == apdu.InsSignMsgpack && raw[3] == apdu.P2Last {
		time.Sleep(d.ConfirmDelay)
	}
	return data, sw
}

func (d *Device) handle(raw []byte) ([]byte, apdu.StatusWord) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if len(raw) < 5 || int(raw[4]) != len(raw)-5 {
		return nil, apdu.SWWrongLength
	}
	cmd := apdu.Command{Cla: raw[0], Ins: raw[1], P1: raw[2], P2: raw[3], Data: append([]byte(nil), raw[5:]...)}
	d.commands = append(d.commands, cmd)

	switch {
	case cmd.Cla == apdu.CLABolos && cmd.Ins == apdu.InsAppInfo:
		return d.appInfo(), apdu.SWOk
	case cmd.Cla == apdu.CLADashboard && cmd.Ins == apdu.InsDeviceInfo && d.Dashboard:
		return deviceInfo(), apdu.SWOk
	case cmd.Cla != apdu.CLA || d.Dashboard:
		return nil, apdu.SWAppNotOpen
	}
	switch cmd.Ins {
	case apdu.InsGetVersion:
		reply := []byte{0, d.Version[0], d.Version[1], d.Version[2], 0, 0x33, 0x00, 0x00, 0x04}
		if d.Locked {
			reply[4] = 1
		}
		return reply, apdu.SWOk

	case apdu.InsGetPublicKey, apdu.InsGetAddress:
		if len(cmd.Data) != 4 {
			return nil, apdu.SWWrongLength
		}
		pk := d.PublicKey(binary.BigEndian.Uint32(cmd.Data))
		reply := append([]byte(nil), pk...)
		if cmd.Ins == apdu.InsGetAddress {
			var addr txn.Address
			copy(addr[:], pk)
			reply = append(reply, addr.String()...)
		}
		return reply, apdu.SWOk

	case apdu.InsSignMsgpack:
		return d.handleSign(cmd)
	}
	return nil, apdu.SWInstructionNotSupported
}

func (d *Device) handleSign(cmd apdu.Command) ([]byte, apdu.StatusWord) {
	first := cmd.P1 == apdu.P1First || cmd.P1 == apdu.P1FirstAccountID
	switch {
	case first:
		d.buffer, d.account, d.chunk = d.buffer[:0], 0, 0
		d.accumulating = true
	case cmd.P1 == apdu.P1More:
		if !d.accumulating {
			return nil, apdu.SWEmptyBuffer
		}
	default:
		d.reset()
		return nil, apdu.SWInvalidP1P2
	}
	if cmd.P2 != apdu.P2More && cmd.P2 != apdu.P2Last {
		d.reset()
		return nil, apdu.SWInvalidP1P2
	}
	d.chunk++
	if d.FailAt != 0 && d.chunk == d.FailAt {
		d.reset()
		return nil, d.FailSW
	}
	data := cmd.Data
	if first && cmd.P1 == apdu.P1FirstAccountID {
		if len(data) < 4 {
			d.reset()
			return nil, apdu.SWDataInvalid
		}
		d.account, data = binary.BigEndian.Uint32(data), data[4:]
	}
	capacity := d.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if len(d.buffer)+len(data) > capacity {
		d.reset()
		return nil, apdu.SWOutputBufferTooSmall
	}
	d.buffer = append(d.buffer, data...)

	if cmd.P2 == apdu.P2More {
		return nil, apdu.SWOk
	}
	defer d.reset()
	return d.sign()
}

// sign parses and signs the accumulated transaction.
func (d *Device) sign() ([]byte, apdu.StatusWord) {
	v, err := msgpack.Decode(d.buffer)
	if err != nil {
		return []byte("Unexpected format"), apdu.SWDataInvalid
	}
	m, ok := v.(msgpack.Map)
	if !ok {
		return []byte("Unexpected format"), apdu.SWDataInvalid
	}
	if err := txn.Transaction(m).Validate(); err != nil {
		return []byte(err.Error()), apdu.SWDataInvalid
	}
	if d.Reject {
		return nil, apdu.SWConditionsNotSatisfied
	}
	sig := ed25519.Sign(d.Key(d.account), append([]byte(txn.SignPrefix), d.buffer...))
	if d.Corrupt {
		sig[0] ^= 0x01
	}
	return append(sig, d.ErrorMessage...), apdu.SWOk
}

// appInfo builds the reply to the OS app info command.
func (d *Device) appInfo() []byte {
	name, version := "Algorand", fmt.Sprintf("%d.%d.%d", d.Version[0], d.Version[1], d.Version[2])
	if d.Dashboard {
		name, version = "BOLOS", "2.2.3"
	}
	flags := byte(0x02 | 0x04)
	if !d.Locked {
		flags |= 0x80
	}
	reply := []byte{1, byte(len(name))}
	reply = append(reply, name...)
	reply = append(reply, byte(len(version)))
	reply = append(reply, version...)
	return append(reply, 1, flags)
}

// deviceInfo builds the dashboard reply describing a Nano S Plus.
func deviceInfo() []byte {
	reply := []byte{0x33, 0x10, 0x00, 0x04}
	reply = append(reply, 5)
	reply = append(reply, "1.1.1"...)
	reply = append(reply, 4, 0, 0, 0, 0)
	reply = append(reply, 5)
	return append(reply, "5.24\x00"...)
}

func (d *Device) reset() {
	d.buffer, d.account, d.chunk = d.buffer[:0], 0, 0
	d.accumulating = false
}
