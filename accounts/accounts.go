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

// Package accounts implements high level management of hardware signing
// accounts.
package accounts

import (
	"github.com/algoledger/signer/txn"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/crypto/ed25519"
)

// Account represents an Algorand account held by a wallet, located at a
// specific position defined by the optional URL field.
type Account struct {
	Address txn.Address `json:"address"` // Account address, the ed25519 public key
	URL     URL         `json:"url"`     // Optional resource locator within a backend
}

// PublicKey returns the ed25519 key the account signs with.
func (a Account) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a.Address[:])
}

// Wallet represents a hardware wallet that might contain one or more accounts
// (derived from the same seed).
type Wallet interface {
	// URL retrieves the canonical path under which this wallet is reachable. It is
	// used by upper layers to define a sorting order over all wallets from multiple
	// backends.
	URL() URL

	// Status returns a textual status to aid the user in the current state of the
	// wallet. It also returns an error indicating any failure the wallet might have
	// encountered.
	Status() (string, error)

	// Open establishes a connection to the wallet. The passphrase is passed on to
	// the device driver, which may ignore it.
	//
	// Please note, if you open a wallet, you must close it to release any allocated
	// resources.
	Open(passphrase string) error

	// Close releases any resources held by an open wallet instance.
	Close() error

	// Accounts retrieves the list of signing accounts the wallet is currently aware
	// of, which are the ones explicitly pinned during account derivation.
	Accounts() []Account

	// Contains returns whether an account is part of this particular wallet or not.
	Contains(account Account) bool

	// Derive attempts to explicitly derive a hierarchical deterministic account at
	// the specified derivation path. If requested, the derived account will be added
	// to the wallet's tracked account list.
	Derive(path DerivationPath, pin bool) (Account, error)

	// SignTx requests the wallet to sign the canonical encoding of a transaction
	// with the key of a tracked account and returns the raw ed25519 signature.
	//
	// The user confirms or declines the request on the device. A declined request
	// is reported as an error for which apdu.IsRejected holds.
	SignTx(account Account, encoded []byte) ([]byte, error)
}

// Backend is a "wallet provider" that may contain a batch of accounts they can
// sign transactions with and upon request, do so.
type Backend interface {
	// Wallets retrieves the list of wallets the backend is currently aware of.
	//
	// The returned wallets are not opened by default, no actual connection is
	// established.
	//
	// The resulting wallet list will be sorted alphabetically based on its internal
	// URL assigned by the backend. Since wallets may come and go, the same wallet
	// might appear at a different positions in the list during subsequent
	// retrievals.
	Wallets() []Wallet

	// Subscribe creates an async subscription to receive notifications when the
	// backend detects the arrival or departure of a wallet.
	Subscribe(sink chan<- WalletEvent) event.Subscription
}

// WalletEventType represents the different event types that can be fired by
// the wallet subscription subsystem.
type WalletEventType int

const (
	// WalletArrived is fired when a new wallet is detected on the USB bus.
	WalletArrived WalletEventType = iota

	// WalletOpened is fired when a wallet is successfully opened with the purpose
	// of starting any background processes such as the health check.
	WalletOpened

	// WalletDropped is fired when a wallet is removed or disconnected.
	WalletDropped
)

func (t WalletEventType) String() string {
	switch t {
	case WalletArrived:
		return "arrived"
	case WalletOpened:
		return "opened"
	case WalletDropped:
		return "dropped"
	}
	return "unknown"
}

// WalletEvent is an event fired by an account backend when a wallet arrival or
// departure is detected.
type WalletEvent struct {
	Wallet Wallet          // Wallet instance arrived or departed
	Kind   WalletEventType // Event type that happened in the system
}
