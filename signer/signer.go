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

// Package signer ties the pieces of a hardware signing pass together: it reads
// a signed transaction envelope, has the device sign the transaction, checks
// the signature and writes the envelope back with the signature folded in.
package signer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/algoledger/signer/accounts"
	"github.com/algoledger/signer/txn"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/crypto/ed25519"
)

// ErrDeviceBusy is returned if another process holds the device lock.
var ErrDeviceBusy = errors.New("signer: device is used by another process")

// Device is the part of a hardware signer a signing pass needs. A
// *ledger.Client satisfies it, WalletDevice adapts an accounts.Wallet.
type Device interface {
	// PublicKey retrieves the public key of the given account.
	PublicKey(account uint32) (ed25519.PublicKey, error)

	// Sign has the device sign an encoded transaction with the key of the
	// given account.
	Sign(encoded []byte, account uint32) ([]byte, error)
}

// Config contains the settings of a signing pass.
type Config struct {
	Account  uint32 // Device account to sign with
	LockFile string // Lock file guarding the device across processes, empty to disable
}

// Result describes a completed signing pass.
type Result struct {
	Session   string            // Session id tagging the log records of the pass
	PublicKey ed25519.PublicKey // Key the device signed with
	Signature []byte            // Verified signature
	Multisig  bool              // Whether the signature went into a multisig slot
	Warning   error             // Non fatal problem with the envelope, if any
}

// Signer runs signing passes against a single device.
type Signer struct {
	device Device
	config Config
	log    log.Logger
}

// New creates a signer using the given device.
func New(device Device, config Config, logger log.Logger) *Signer {
	if logger == nil {
		logger = log.Root()
	}
	return &Signer{device: device, config: config, log: logger}
}

// SignFile signs the envelope stored in the file in and writes the result to
// out. Nothing is written unless the signature verifies and fits into the
// envelope. The output replaces out atomically.
func (s *Signer) SignFile(in, out string) (*Result, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, err
	}
	stx, err := txn.DecodeSignedTxn(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in, err)
	}
	res, err := s.SignEnvelope(stx)
	if err != nil {
		return nil, err
	}
	enc, err := stx.Encode()
	if err != nil {
		return nil, err
	}
	if err := writeFile(out, enc); err != nil {
		return nil, err
	}
	s.log.Info("Wrote signed transaction", "file", out, "session", res.Session)
	return res, nil
}

// SignEnvelope has the device sign the transaction of stx and attaches the
// verified signature. On error stx is left unmodified.
func (s *Signer) SignEnvelope(stx *txn.SignedTxn) (*Result, error) {
	res := &Result{Session: uuid.NewString()}
	logger := s.log.New("session", res.Session)

	// Encoding errors are local and abort before touching the device
	encoded, err := stx.Txn.Encode()
	if err != nil {
		return nil, err
	}
	if s.config.LockFile != "" {
		lock := flock.New(s.config.LockFile)
		if locked, err := lock.TryLock(); err != nil {
			return nil, err
		} else if !locked {
			return nil, ErrDeviceBusy
		}
		defer lock.Unlock()
	}
	if res.PublicKey, err = s.device.PublicKey(s.config.Account); err != nil {
		return nil, err
	}
	logger.Info("Requesting signature", "account", s.config.Account, "signer", txn.BytesToAddress(res.PublicKey),
		"type", stx.Txn.Type(), "size", len(encoded))

	if res.Signature, err = s.device.Sign(encoded, s.config.Account); err != nil {
		return nil, err
	}
	if err := txn.VerifySignature(res.PublicKey, stx.Txn, res.Signature); err != nil {
		logger.Error("Device signature does not verify", "signer", txn.BytesToAddress(res.PublicKey))
		return nil, err
	}
	if stx.Msig != nil {
		res.Multisig = true
		if err := stx.Msig.CheckVersion(); err != nil {
			logger.Warn("Signing multisig of unknown version", "version", stx.Msig.Version, "err", err)
			res.Warning = err
		}
	}
	if err := stx.Attach(res.PublicKey, res.Signature); err != nil {
		return nil, err
	}
	logger.Debug("Signature attached", "multisig", res.Multisig)
	return res, nil
}

// writeFile atomically writes content to file: it goes to a temporary file
// next to the target first, which is then moved into place.
func writeFile(file string, content []byte) error {
	f, err := os.CreateTemp(filepath.Dir(file), "."+filepath.Base(file)+".tmp")
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), file); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}

// walletDevice adapts an open hardware wallet to the Device interface.
type walletDevice struct {
	wallet  accounts.Wallet
	derived map[uint32]accounts.Account
}

// WalletDevice returns a Device signing through an open accounts.Wallet. Keys
// are derived at the Algorand path of the requested account.
func WalletDevice(w accounts.Wallet) Device {
	return &walletDevice{wallet: w, derived: make(map[uint32]accounts.Account)}
}

func (d *walletDevice) account(index uint32) (accounts.Account, error) {
	if acc, ok := d.derived[index]; ok {
		return acc, nil
	}
	acc, err := d.wallet.Derive(accounts.AlgorandPath(index), true)
	if err != nil {
		return accounts.Account{}, err
	}
	d.derived[index] = acc
	return acc, nil
}

func (d *walletDevice) PublicKey(account uint32) (ed25519.PublicKey, error) {
	acc, err := d.account(account)
	if err != nil {
		return nil, err
	}
	return acc.PublicKey(), nil
}

func (d *walletDevice) Sign(encoded []byte, account uint32) ([]byte, error) {
	acc, err := d.account(account)
	if err != nil {
		return nil, err
	}
	return d.wallet.SignTx(acc, encoded)
}
