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
	"errors"
	"sync"

	"github.com/algoledger/signer/apdu"
	"github.com/ethereum/go-ethereum/log"
)

// ErrSessionBusy is returned when an exchange is attempted while another one is
// still streaming to the same device.
var ErrSessionBusy = errors.New("ledger: exchange already in progress")

// SessionState tracks what the device is doing with the data streamed to it.
type SessionState int

const (
	// Idle means no exchange has run against the device yet.
	Idle SessionState = iota

	// Accumulating means chunks are being streamed and the device holds a
	// partial buffer. Nothing else may be sent until the sequence ends.
	Accumulating

	// Completed means the last sequence ended with a successful reply.
	Completed

	// Rejected means the user declined the last request on the device.
	Rejected

	// Faulted means the last sequence was aborted by a device or transport
	// error. The device buffer is undefined until the next sequence starts.
	Faulted
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// Session guards a single device handle against overlapping exchanges. Every
// terminal state may start a new sequence, the first chunk of which resets the
// device side buffer.
type Session struct {
	state SessionState
	lock  sync.Mutex
	log   log.Logger
}

// Begin moves the session into Accumulating, or fails with ErrSessionBusy if a
// sequence is already in flight.
func (s *Session) Begin() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state == Accumulating {
		return ErrSessionBusy
	}
	s.transition(Accumulating)
	return nil
}

// Finish ends the current sequence, classifying its outcome by err.
func (s *Session) Finish(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch {
	case err == nil:
		s.transition(Completed)
	case apdu.IsRejected(err):
		s.transition(Rejected)
	default:
		s.transition(Faulted)
	}
}

// State returns the current state of the session.
func (s *Session) State() SessionState {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

func (s *Session) transition(next SessionState) {
	if s.log != nil {
		s.log.Debug("Ledger session transition", "from", s.state, "to", next)
	}
	s.state = next
}
