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

package usbwallet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/algoledger/signer/accounts"
	"github.com/algoledger/signer/apdu"
	"github.com/algoledger/signer/ledger"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/crypto/ed25519"
)

// HID framing of the Ledger transport.
const (
	hidPacketSize = 64     // Size of a single HID report
	hidChannel    = 0x0101 // Channel identifier of every report
	hidTagAPDU    = 0x05   // Command tag of APDU reports
)

var errLedgerReplyInvalidHeader = errors.New("ledger: invalid reply header")

// hidTransport implements ledger.Transport over the HID framing of Ledger
// devices. HID reads block until the device answers, so the per exchange
// timeout is not enforced here; the user may take arbitrarily long to confirm.
type hidTransport struct {
	device io.ReadWriter
	log    log.Logger
}

// Exchange performs a data exchange with the Ledger wallet, sending it a message
// and retrieving the response.
//
// The common transport header is defined as follows:
//
//	Description                           | Length
//	--------------------------------------+----------
//	Communication channel ID (big endian) | 2 bytes
//	Command tag                           | 1 byte
//	Packet sequence index (big endian)    | 2 bytes
//	Payload                               | arbitrary
//
// The Communication channel ID allows commands multiplexing over the same
// physical link. It is not used for the time being, and should be set to 0101
// to avoid compatibility issues with implementations ignoring a leading 00 byte.
//
// The Command tag describes the message content. Use TAG_APDU (0x05) for standard
// APDU payloads, or TAG_PING (0x02) for a simple link test.
//
// The Packet sequence index describes the current sequence for fragmented payloads.
// The first fragment index is 0x00.
//
// The payload of the first packet starts with the 2 byte big endian length of
// the whole command, the reply is framed the same way and ends with the status
// word.
func (t *hidTransport) Exchange(cmd []byte, timeout time.Duration) ([]byte, error) {
	// Construct the message payload, possibly split into multiple chunks
	msg := make([]byte, 2, 2+len(cmd))
	binary.BigEndian.PutUint16(msg, uint16(len(cmd)))
	msg = append(msg, cmd...)

	// Stream all the chunks to the device
	header := []byte{hidChannel >> 8, hidChannel & 0xff, hidTagAPDU, 0x00, 0x00}
	chunk := make([]byte, hidPacketSize)
	space := len(chunk) - len(header)

	for i := 0; len(msg) > 0; i++ {
		chunk = append(chunk[:0], header...)
		binary.BigEndian.PutUint16(chunk[3:], uint16(i))

		if len(msg) > space {
			chunk = append(chunk, msg[:space]...)
			msg = msg[space:]
		} else {
			chunk = append(chunk, msg...)
			msg = nil
		}
		t.log.Trace("Data chunk sent to the Ledger", "chunk", hexutil.Bytes(chunk))
		if _, err := t.device.Write(chunk); err != nil {
			return nil, err
		}
	}
	// Stream the reply back from the wallet in 64 byte chunks
	var reply []byte
	chunk = chunk[:hidPacketSize]
	for seq := 0; ; seq++ {
		if _, err := io.ReadFull(t.device, chunk); err != nil {
			return nil, err
		}
		t.log.Trace("Data chunk received from the Ledger", "chunk", hexutil.Bytes(chunk))

		// Make sure the transport header matches
		if binary.BigEndian.Uint16(chunk) != hidChannel || chunk[2] != hidTagAPDU || int(binary.BigEndian.Uint16(chunk[3:])) != seq {
			return nil, errLedgerReplyInvalidHeader
		}
		// If it's the first chunk, retrieve the total message length
		var payload []byte

		if seq == 0 {
			reply = make([]byte, 0, int(binary.BigEndian.Uint16(chunk[5:7])))
			payload = chunk[7:]
		} else {
			payload = chunk[5:]
		}
		// Append to the reply and stop when filled up
		if left := cap(reply) - len(reply); left > len(payload) {
			reply = append(reply, payload...)
		} else {
			reply = append(reply, payload[:left]...)
			break
		}
	}
	resp, err := apdu.ParseResponse(reply)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ledgerDriver implements the communication with a Ledger hardware wallet.
type ledgerDriver struct {
	config  ledger.Config
	device  io.ReadWriter  // USB device connection to communicate through
	client  *ledger.Client // Algorand application client running over the device
	version ledger.Version // Current version of the Algorand app (zero if app is offline)
	online  bool           // Flag whether the Algorand app answered
	running string         // Application reported by the OS while the Algorand app is offline
	failure error          // Any failure that would make the device unusable
	log     log.Logger     // Contextual logger to tag the ledger with its id
}

// newLedgerDriver creates a new instance of a Ledger USB protocol driver.
func newLedgerDriver(config ledger.Config, logger log.Logger) driver {
	return &ledgerDriver{
		config: config,
		log:    logger,
	}
}

// Status implements usbwallet.driver, returning various states the Ledger can
// currently be in.
func (w *ledgerDriver) Status() (string, error) {
	if w.failure != nil {
		return fmt.Sprintf("Failed: %v", w.failure), w.failure
	}
	if !w.online {
		if w.running != "" {
			return fmt.Sprintf("Algorand app offline, %s running", w.running), w.failure
		}
		return "Algorand app offline", w.failure
	}
	status := fmt.Sprintf("Algorand app %v online", w.version)
	if w.version.Locked {
		status += ", device locked"
	}
	return status, w.failure
}

// Open implements usbwallet.driver, attempting to initialize the connection to the
// Ledger hardware wallet. The passphrase is not used.
func (w *ledgerDriver) Open(device io.ReadWriter, passphrase string) error {
	w.device, w.failure = device, nil
	w.client = ledger.NewClient(&hidTransport{device: device, log: w.log}, w.config, w.log)

	// An app that is not running yet is not an error, the wallet stays offline
	// until a heartbeat reaches it.
	w.refresh()
	return nil
}

// refresh queries the application version and updates the online state.
func (w *ledgerDriver) refresh() error {
	version, err := w.client.Version()
	if err != nil {
		w.online, w.running = false, ""
		if info, ierr := w.client.AppInfo(); ierr == nil {
			w.running = info.Name
		}
		return err
	}
	w.version, w.online, w.running = version, true, ""
	return nil
}

// Close implements usbwallet.driver, cleaning up and metadata maintained within
// the Ledger driver.
func (w *ledgerDriver) Close() error {
	w.online, w.version, w.running, w.client = false, ledger.Version{}, "", nil
	return nil
}

// Heartbeat implements usbwallet.driver, performing a sanity check against the
// Ledger to see if it's still online. A device answering with a status word is
// alive even if the application is closed.
func (w *ledgerDriver) Heartbeat() error {
	err := w.refresh()
	var fault *apdu.Fault
	if err != nil && !errors.As(err, &fault) {
		w.failure = err
		return err
	}
	return nil
}

// Derive implements usbwallet.driver, sending a derivation request to the Ledger
// and returning the public key located on that derivation path.
func (w *ledgerDriver) Derive(path accounts.DerivationPath) (ed25519.PublicKey, error) {
	account, err := path.AccountIndex()
	if err != nil {
		return nil, err
	}
	if !w.online {
		if err := w.refresh(); err != nil {
			return nil, accounts.ErrWalletClosed
		}
	}
	return w.client.PublicKey(account)
}

// SignTx implements usbwallet.driver, sending the transaction to the Ledger and
// waiting for the user to confirm or deny the transaction.
func (w *ledgerDriver) SignTx(path accounts.DerivationPath, encoded []byte) ([]byte, error) {
	account, err := path.AccountIndex()
	if err != nil {
		return nil, err
	}
	if !w.online {
		return nil, accounts.ErrWalletClosed
	}
	return w.client.Sign(encoded, account)
}
