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

package ledger

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/algoledger/signer/apdu"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// DefaultTCPTimeout is the exchange timeout of the emulator transport when the
// caller does not pick one.
const DefaultTCPTimeout = 20 * time.Second

// maxTCPReply bounds the reply size accepted from the emulator.
const maxTCPReply = 1 << 16

// TCPTransport talks to a device emulator (Speculos) over its APDU socket.
//
// Each command is sent as a 4 byte big endian length followed by the command.
// Each reply is a 4 byte big endian length N, N bytes of data and a 2 byte
// status word that is not included in N.
type TCPTransport struct {
	conn    net.Conn
	timeout time.Duration
	lock    sync.Mutex
	log     log.Logger
}

// DialTCP connects to an emulator APDU socket.
func DialTCP(addr string, timeout time.Duration, logger log.Logger) (*TCPTransport, error) {
	if timeout == 0 {
		timeout = DefaultTCPTimeout
	}
	if logger == nil {
		logger = log.Root()
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &TCPTransport{conn: conn, timeout: timeout, log: logger.New("emulator", addr)}, nil
}

// Exchange implements Transport.
func (t *TCPTransport) Exchange(cmd []byte, timeout time.Duration) ([]byte, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	var deadline time.Time
	switch {
	case timeout == 0:
		deadline = time.Now().Add(t.timeout)
	case timeout > 0:
		deadline = time.Now().Add(timeout)
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	msg := make([]byte, 4, 4+len(cmd))
	binary.BigEndian.PutUint32(msg, uint32(len(cmd)))
	msg = append(msg, cmd...)

	t.log.Trace("Data chunk sent to the emulator", "chunk", hexutil.Bytes(cmd))
	if _, err := t.conn.Write(msg); err != nil {
		return nil, err
	}
	var header [4]byte
	if _, err := io.ReadFull(t.conn, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxTCPReply {
		return nil, fmt.Errorf("ledger: emulator reply too large (%d bytes)", size)
	}
	reply := make([]byte, size+2)
	if _, err := io.ReadFull(t.conn, reply); err != nil {
		return nil, err
	}
	t.log.Trace("Data chunk received from the emulator", "chunk", hexutil.Bytes(reply))

	resp, err := apdu.ParseResponse(reply)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Close terminates the connection to the emulator.
func (t *TCPTransport) Close() error {
	return t.conn.Close()
}
