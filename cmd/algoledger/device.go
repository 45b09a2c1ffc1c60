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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/algoledger/signer/accounts"
	"github.com/algoledger/signer/accounts/usbwallet"
	"github.com/algoledger/signer/ledger"
	"github.com/algoledger/signer/signer"
	"github.com/algoledger/signer/txn"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/crypto/ed25519"
)

// walletWait is how long to wait for a Ledger to be plugged in.
const walletWait = 10 * time.Second

var errConfirmUnsupported = errors.New("address confirmation is only supported with --transport=tcp")

// session is an open connection to the signing device.
type session interface {
	signer.Device

	// Address retrieves the address of the given account, optionally
	// displaying it on the device for confirmation.
	Address(account uint32, confirm bool) (txn.Address, error)

	// Version describes the application running on the device.
	Version() (string, error)

	Close() error
}

// openSession connects to the device selected by the configuration.
func openSession(ctx context.Context, cfg *signerConfig) (session, error) {
	switch cfg.Device.Transport {
	case transportTCP:
		logger := log.New("transport", transportTCP)
		t, err := ledger.DialTCP(cfg.Device.TCPAddr, cfg.Ledger.Timeout, logger)
		if err != nil {
			return nil, err
		}
		client := ledger.NewClient(t, cfg.Ledger, logger)
		if err := client.CheckApp(); err != nil {
			t.Close()
			return nil, err
		}
		return &clientSession{client: client, closer: t}, nil

	case transportHID:
		hub, err := usbwallet.NewLedgerHub(cfg.Ledger)
		if err != nil {
			return nil, fmt.Errorf("failed to start Ledger hub: %v", err)
		}
		manager := accounts.NewManager(hub)

		wctx, cancel := context.WithTimeout(ctx, walletWait)
		defer cancel()
		wallet, err := manager.WaitWallet(wctx)
		if err != nil {
			manager.Close()
			return nil, err
		}
		if err := wallet.Open(""); err != nil {
			manager.Close()
			return nil, err
		}
		log.Debug("Opened hardware wallet", "url", wallet.URL())
		return &walletSession{Device: signer.WalletDevice(wallet), wallet: wallet, manager: manager}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Device.Transport)
}

// clientSession drives a device client over a transport it owns.
type clientSession struct {
	client *ledger.Client
	closer io.Closer
}

func (s *clientSession) PublicKey(account uint32) (ed25519.PublicKey, error) {
	return s.client.PublicKey(account)
}

func (s *clientSession) Sign(encoded []byte, account uint32) ([]byte, error) {
	return s.client.Sign(encoded, account)
}

func (s *clientSession) Address(account uint32, confirm bool) (txn.Address, error) {
	pk, reported, err := s.client.Address(account, confirm)
	if err != nil {
		return txn.Address{}, err
	}
	addr := txn.BytesToAddress(pk)
	if reported != "" && reported != addr.String() {
		return txn.Address{}, fmt.Errorf("device shows address %s for key of %s", reported, addr)
	}
	return addr, nil
}

func (s *clientSession) Version() (string, error) {
	v, err := s.client.Version()
	if err != nil {
		return "", err
	}
	vsn := "Algorand app " + v.String()
	if v.TestMode {
		vsn += " (test mode)"
	}
	if v.Locked {
		vsn += ", device locked"
	}
	return vsn, nil
}

func (s *clientSession) Close() error {
	return s.closer.Close()
}

// walletSession signs through a USB hardware wallet tracked by an account
// manager.
type walletSession struct {
	signer.Device
	wallet  accounts.Wallet
	manager *accounts.Manager
}

func (s *walletSession) Address(account uint32, confirm bool) (txn.Address, error) {
	if confirm {
		return txn.Address{}, errConfirmUnsupported
	}
	pk, err := s.PublicKey(account)
	if err != nil {
		return txn.Address{}, err
	}
	return txn.BytesToAddress(pk), nil
}

func (s *walletSession) Version() (string, error) {
	return s.wallet.Status()
}

func (s *walletSession) Close() error {
	return s.manager.Close()
}
