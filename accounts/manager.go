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

package accounts

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// managerSubBufferSize determines how many incoming wallet events
// the manager will buffer in its channel.
const managerSubBufferSize = 50

// Manager is an overarching account manager that can communicate with various
// backends for signing transactions.
type Manager struct {
	backends []Backend           // Backends currently registered
	updaters []event.Subscription // Wallet update subscriptions for all backends
	updates  chan WalletEvent     // Subscription sink for backend wallet changes
	wallets  []Wallet             // Cache of all wallets from all registered backends

	feed event.Feed // Wallet feed notifying of arrivals/departures

	quit chan chan error
	term chan struct{} // Channel is closed upon termination of the update loop
	lock sync.RWMutex
}

// NewManager creates a generic account manager to sign transactions via various
// supported backends.
func NewManager(backends ...Backend) *Manager {
	// Retrieve the initial list of wallets from the backends and sort by URL
	var wallets []Wallet
	for _, backend := range backends {
		wallets = merge(wallets, backend.Wallets()...)
	}
	// Subscribe to wallet notifications from all backends
	updates := make(chan WalletEvent, managerSubBufferSize)

	subs := make([]event.Subscription, len(backends))
	for i, backend := range backends {
		subs[i] = backend.Subscribe(updates)
	}
	am := &Manager{
		backends: backends,
		updaters: subs,
		updates:  updates,
		wallets:  wallets,
		quit:     make(chan chan error),
		term:     make(chan struct{}),
	}
	go am.update()

	return am
}

// Close terminates the account manager's internal notification processes and
// closes every wallet it knows of.
func (am *Manager) Close() error {
	for _, w := range am.Wallets() {
		w.Close()
	}
	errc := make(chan error)
	am.quit <- errc
	return <-errc
}

// update is the wallet event loop listening for notifications from the backends
// and updating the cache of wallets.
func (am *Manager) update() {
	defer func() {
		am.lock.Lock()
		for _, sub := range am.updaters {
			sub.Unsubscribe()
		}
		am.updaters = nil
		am.lock.Unlock()
	}()

	for {
		select {
		case event := <-am.updates:
			am.lock.Lock()
			switch event.Kind {
			case WalletArrived:
				am.wallets = merge(am.wallets, event.Wallet)
			case WalletDropped:
				am.wallets = drop(am.wallets, event.Wallet)
			}
			am.lock.Unlock()

			// Notify any listeners of the event
			am.feed.Send(event)

		case errc := <-am.quit:
			errc <- nil
			close(am.term)
			return
		}
	}
}

// Wallets returns all signer accounts registered under this account manager.
func (am *Manager) Wallets() []Wallet {
	am.lock.RLock()
	defer am.lock.RUnlock()

	cpy := make([]Wallet, len(am.wallets))
	copy(cpy, am.wallets)
	return cpy
}

// Wallet retrieves the wallet associated with a particular URL.
func (am *Manager) Wallet(url string) (Wallet, error) {
	parsed, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	for _, wallet := range am.Wallets() {
		if wallet.URL() == parsed {
			return wallet, nil
		}
	}
	return nil, ErrUnknownWallet
}

// Accounts returns all accounts pinned in any of the known wallets, sorted by
// their URL.
func (am *Manager) Accounts() []Account {
	accs := make([]Account, 0) // return [] instead of nil if empty
	for _, wallet := range am.Wallets() {
		accs = append(accs, wallet.Accounts()...)
	}
	sort.Sort(AccountsByURL(accs))
	return accs
}

// Find attempts to locate the wallet corresponding to a specific account.
func (am *Manager) Find(account Account) (Wallet, error) {
	for _, wallet := range am.Wallets() {
		if wallet.Contains(account) {
			return wallet, nil
		}
	}
	return nil, ErrUnknownAccount
}

// WaitWallet returns the first known wallet, waiting for one to arrive if none
// is plugged in yet. It gives up with ErrNoWallet once ctx is done.
func (am *Manager) WaitWallet(ctx context.Context) (Wallet, error) {
	events := make(chan WalletEvent, managerSubBufferSize)
	sub := am.Subscribe(events)
	defer sub.Unsubscribe()

	if wallets := am.Wallets(); len(wallets) > 0 {
		return wallets[0], nil
	}
	for {
		select {
		case ev := <-events:
			if ev.Kind == WalletArrived {
				return ev.Wallet, nil
			}
		case <-ctx.Done():
			return nil, ErrNoWallet
		case <-am.term:
			return nil, ErrNoWallet
		}
	}
}

// Subscribe creates an async subscription to receive notifications when the
// manager detects the arrival or departure of a wallet from any of its backends.
func (am *Manager) Subscribe(sink chan<- WalletEvent) event.Subscription {
	return am.feed.Subscribe(sink)
}

// merge is a sorted analogue of append for wallets, where the ordering of the
// origin list is preserved by inserting new wallets at the correct position.
//
// The original slice is assumed to be already sorted by URL.
func merge(slice []Wallet, wallets ...Wallet) []Wallet {
	for _, wallet := range wallets {
		n := sort.Search(len(slice), func(i int) bool { return slice[i].URL().Cmp(wallet.URL()) >= 0 })
		if n == len(slice) {
			slice = append(slice, wallet)
			continue
		}
		slice = append(slice[:n], append([]Wallet{wallet}, slice[n:]...)...)
	}
	return slice
}

// drop is the counterpart of merge, which looks up wallets from within the sorted
// cache and removes the ones specified.
func drop(slice []Wallet, wallets ...Wallet) []Wallet {
	for _, wallet := range wallets {
		n := sort.Search(len(slice), func(i int) bool { return slice[i].URL().Cmp(wallet.URL()) >= 0 })
		if n == len(slice) || slice[n].URL() != wallet.URL() {
			// Wallet not found, may happen during startup
			continue
		}
		slice = append(slice[:n], slice[n+1:]...)
	}
	return slice
}
