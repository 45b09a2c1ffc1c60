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

package ledgertest

import (
	"encoding/binary"
	"io"
	"net"
)

// Emulator serves a Device over the APDU socket protocol of the Speculos
// emulator.
type Emulator struct {
	Device   *Device
	listener net.Listener
	done     chan struct{}
}

// NewEmulator starts serving dev on a random loopback port.
func NewEmulator(dev *Device) (*Emulator, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	e := &Emulator{Device: dev, listener: l, done: make(chan struct{})}
	go e.loop()
	return e, nil
}

// Addr returns the address the emulator listens on.
func (e *Emulator) Addr() string {
	return e.listener.Addr().String()
}

// Close stops accepting connections and waits for the accept loop to exit.
func (e *Emulator) Close() error {
	err := e.listener.Close()
	<-e.done
	return err
}

func (e *Emulator) loop() {
	defer close(e.done)
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			return
		}
		go e.serve(conn)
	}
}

func (e *Emulator) serve(conn net.Conn) {
	defer conn.Close()

	var header [4]byte
	for {
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return
		}
		cmd := make([]byte, binary.BigEndian.Uint32(header[:]))
		if _, err := io.ReadFull(conn, cmd); err != nil {
			return
		}
		data, sw := e.Device.Handle(cmd)

		reply := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
		reply = append(reply, data...)
		reply = binary.BigEndian.AppendUint16(reply, uint16(sw))
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}
