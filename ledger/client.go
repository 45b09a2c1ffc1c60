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

// Package ledger implements the host side of the Algorand Ledger application
// protocol: streaming an encoded transaction to the device in chunks and
// collecting the signature it produces.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/algoledger/signer/apdu"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/crypto/ed25519"
)

// SignatureLength is the size of an ed25519 signature returned by the device.
const SignatureLength = ed25519.SignatureSize

// Transport is a request/response channel to a device. Exchange sends one
// serialized command and returns the reply payload with the status word
// stripped. A status word other than 0x9000 is returned as an *apdu.Fault.
//
// Implementations handle a single outstanding request. Timeout handling is
// left to the transport, zero selects its default and NoTimeout waits for as
// long as the device takes.
type Transport interface {
	Exchange(apdu []byte, timeout time.Duration) ([]byte, error)
}

// NoTimeout asks the transport not to bound an exchange. It is used for the
// exchanges that wait for the user to confirm on the device.
const NoTimeout time.Duration = -1

var (
	// ErrShortSignature is returned if the final signing reply is too short to
	// hold a signature.
	ErrShortSignature = errors.New("ledger: reply lacks signature")

	errInvalidVersionReply   = errors.New("ledger: invalid version reply")
	errInvalidPublicKeyReply = errors.New("ledger: reply lacks public key")
)

// SignedButReportedError is returned when the device produced a signature but
// appended a diagnostic message to it. The signature must not be trusted.
type SignedButReportedError struct {
	Signature []byte
	Message   string
}

func (e *SignedButReportedError) Error() string {
	return fmt.Sprintf("ledger: device signed but reported an error: %s", e.Message)
}

// Sign streams an encoded transaction to the device and returns the signature
// over it. Account zero signs with the device default key, other accounts are
// selected through the first chunk.
//
// Chunks are sent strictly one at a time. The first failing exchange aborts
// the sequence and its error is returned as is.
//
// The final chunk, which the device only answers once the user confirmed the
// transaction, is sent with NoTimeout.
func Sign(t Transport, encoded []byte, chunkSize int, account uint32) ([]byte, error) {
	return sign(t, encoded, chunkSize, account, 0, NoTimeout, log.Root())
}

func sign(t Transport, encoded []byte, chunkSize int, account uint32, timeout, confirm time.Duration, logger log.Logger) ([]byte, error) {
	p1, payload := apdu.WithAccount(account, encoded)
	cmds, err := apdu.Frame(apdu.InsSignMsgpack, payload, chunkSize, p1)
	if err != nil {
		return nil, err
	}
	var reply []byte
	for i, cmd := range cmds {
		raw, err := cmd.Serialize()
		if err != nil {
			return nil, err
		}
		wait := timeout
		if cmd.Last() {
			wait = confirm
		}
		logger.Trace("Sending signing chunk", "chunk", i+1, "total", len(cmds), "p1", cmd.P1, "p2", cmd.P2, "size", len(cmd.Data))
		if reply, err = t.Exchange(raw, wait); err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(cmds), err)
		}
	}
	return parseSignature(reply)
}

// parseSignature interprets the reply to the final signing chunk.
func parseSignature(reply []byte) ([]byte, error) {
	switch {
	case len(reply) < SignatureLength:
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortSignature, len(reply))
	case len(reply) > SignatureLength:
		return nil, &SignedButReportedError{
			Signature: append([]byte(nil), reply[:SignatureLength]...),
			Message:   apdu.Printable(reply[SignatureLength:]),
		}
	}
	return append([]byte(nil), reply...), nil
}

// Config contains the settings of a device client.
type Config struct {
	ChunkSize      int           // Payload bytes per signing chunk, defaults to apdu.DefaultChunkSize
	Timeout        time.Duration // Per exchange timeout passed to the transport, zero for its default
	ConfirmTimeout time.Duration // Timeout of exchanges waiting for the user, zero waits indefinitely
}

// confirmTimeout returns the timeout of exchanges that need user interaction.
func (c Config) confirmTimeout() time.Duration {
	if c.ConfirmTimeout == 0 {
		return NoTimeout
	}
	return c.ConfirmTimeout
}

// Client runs the Algorand application commands against a single device. All
// commands go through one Session, so overlapping calls fail fast with
// ErrSessionBusy instead of interleaving chunks on the wire.
type Client struct {
	transport Transport
	config    Config
	session   Session
	log       log.Logger
}

// NewClient creates a client talking through the given transport.
func NewClient(t Transport, config Config, logger log.Logger) *Client {
	if config.ChunkSize == 0 {
		config.ChunkSize = apdu.DefaultChunkSize
	}
	if logger == nil {
		logger = log.Root()
	}
	c := &Client{
		transport: t,
		config:    config,
		log:       logger,
	}
	c.session.log = logger
	return c
}

// State returns the state of the device session.
func (c *Client) State() SessionState {
	return c.session.State()
}

// Sign asks the device to sign an encoded transaction with the key of the
// given account. The user has to confirm the transaction on the device, a
// refusal is reported as an *apdu.Fault for which apdu.IsRejected holds.
func (c *Client) Sign(encoded []byte, account uint32) (sig []byte, err error) {
	if err := c.session.Begin(); err != nil {
		return nil, err
	}
	defer func() { c.session.Finish(err) }()

	c.log.Debug("Requesting transaction signature", "account", account, "size", len(encoded))
	return sign(c.transport, encoded, c.config.ChunkSize, account, c.config.Timeout, c.config.confirmTimeout(), c.log)
}

// PublicKey retrieves the ed25519 public key of the given account.
//
// The public key retrieval protocol is defined as follows:
//
//	CLA | INS | P1 | P2 | Lc | Data
//	----+-----+----+----+----+-------------------------
//	 80 | 03  | 00 | 00 | 04 | account index (big endian)
//
// And the output data is the 32 byte public key.
func (c *Client) PublicKey(account uint32) (ed25519.PublicKey, error) {
	reply, err := c.command(apdu.InsGetPublicKey, 0, apdu.AccountPayload(account))
	if err != nil {
		return nil, err
	}
	if len(reply) < ed25519.PublicKeySize {
		return nil, errInvalidPublicKeyReply
	}
	return ed25519.PublicKey(append([]byte(nil), reply[:ed25519.PublicKeySize]...)), nil
}

// Address retrieves the public key and the textual address of the given
// account. If confirm is set, the device shows the address and waits for the
// user to acknowledge it.
//
//	CLA | INS | P1                  | P2 | Lc | Data
//	----+-----+---------------------+----+----+-------------------------
//	 80 | 04  | 00: return directly | 00 | 04 | account index (big endian)
//	          | 01: show and confirm
//
// The output data is the 32 byte public key followed by the ASCII address.
func (c *Client) Address(account uint32, confirm bool) (ed25519.PublicKey, string, error) {
	p1, timeout := byte(0), c.config.Timeout
	if confirm {
		p1, timeout = apdu.P1ShowAddress, c.config.confirmTimeout()
	}
	reply, err := c.exchange(apdu.CLA, apdu.InsGetAddress, p1, apdu.AccountPayload(account), timeout)
	if err != nil {
		return nil, "", err
	}
	if len(reply) < ed25519.PublicKeySize {
		return nil, "", errInvalidPublicKeyReply
	}
	pk := ed25519.PublicKey(append([]byte(nil), reply[:ed25519.PublicKeySize]...))
	return pk, string(reply[ed25519.PublicKeySize:]), nil
}

// Version is the application version reported by the device.
type Version struct {
	TestMode bool
	Major    uint8
	Minor    uint8
	Patch    uint8
	Locked   bool
	TargetID uint32
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Version retrieves the version of the Algorand application running on the
// device.
//
//	CLA | INS | P1 | P2 | Lc
//	----+-----+----+----+---
//	 80 | 00  | 00 | 00 | 00
//
// With the output data being:
//
//	Description                 | Length
//	----------------------------+--------
//	Test mode flag              | 1 byte
//	Major, minor, patch version | 3 bytes
//	Device locked flag          | 1 byte (optional)
//	Target id (big endian)      | 4 bytes (optional)
func (c *Client) Version() (Version, error) {
	reply, err := c.command(apdu.InsGetVersion, 0, nil)
	if err != nil {
		return Version{}, err
	}
	if len(reply) < 4 {
		return Version{}, errInvalidVersionReply
	}
	v := Version{
		TestMode: reply[0] != 0,
		Major:    reply[1],
		Minor:    reply[2],
		Patch:    reply[3],
	}
	if len(reply) >= 5 {
		v.Locked = reply[4] == 1
	}
	if len(reply) >= 9 {
		v.TargetID = binary.BigEndian.Uint32(reply[5:9])
	}
	return v, nil
}

// command runs a single, unchunked application command.
func (c *Client) command(ins, p1 byte, data []byte) ([]byte, error) {
	return c.exchange(apdu.CLA, ins, p1, data, c.config.Timeout)
}

func (c *Client) exchange(cla, ins, p1 byte, data []byte, timeout time.Duration) (reply []byte, err error) {
	if err := c.session.Begin(); err != nil {
		return nil, err
	}
	defer func() { c.session.Finish(err) }()

	raw, err := apdu.Command{Cla: cla, Ins: ins, P1: p1, Data: data}.Serialize()
	if err != nil {
		return nil, err
	}
	return c.transport.Exchange(raw, timeout)
}
