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

package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/algoledger/signer/txn"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWallet struct {
	url      URL
	accounts []Account
	closed   bool
}

func (w *testWallet) URL() URL { return w.url }
func (w *testWallet) Status() (string, error) { return "ok", nil }
func (w *testWallet) Open(string) error { return nil }
func (w *testWallet) Accounts() []Account { return w.accounts }
func (w *testWallet) SignTx(Account, []byte) ([]byte, error) { return nil, nil }

func (w *testWallet) Close() error {
	w.closed = true
	return nil
}

func (w *testWallet) Contains(account Account) bool {
	for _, a := range w.accounts {
		if a.Address == account.Address {
			return true
		}
	}
	return false
}

func (w *testWallet) Derive(path DerivationPath, pin bool) (Account, error) {
	return Account{}, ErrUnsupportedPath
}

type testBackend struct {
	wallets []Wallet
	feed    event.Feed
}

func (b *testBackend) Wallets() []Wallet { return b.wallets }

func (b *testBackend) Subscribe(sink chan<- WalletEvent) event.Subscription {
	return b.feed.Subscribe(sink)
}

func newTestWallet(path string, addr byte) *testWallet {
	url := URL{Scheme: "test", Path: path}
	return &testWallet{url: url, accounts: []Account{{Address: txn.Address{addr}, URL: url.Child(AlgorandPath(0))}}}
}

func TestManagerWallets(t *testing.T) {
	var (
		b = newTestWallet("b", 2)
		a = newTestWallet("a", 1)
		c = newTestWallet("c", 3)
	)
	am := NewManager(&testBackend{wallets: []Wallet{b}}, &testBackend{wallets: []Wallet{c, a}})
	defer am.Close()

	wallets := am.Wallets()
	require.Len(t, wallets, 3)
	for i, path := range []string{"a", "b", "c"} {
		assert.Equal(t, path, wallets[i].URL().Path)
	}
	w, err := am.Wallet("test://b")
	require.NoError(t, err)
	assert.Equal(t, b, w)

	_, err = am.Wallet("test://d")
	assert.ErrorIs(t, err, ErrUnknownWallet)

	found, err := am.Find(Account{Address: txn.Address{3}})
	require.NoError(t, err)
	assert.Equal(t, c, found)
	_, err = am.Find(Account{Address: txn.Address{9}})
	assert.ErrorIs(t, err, ErrUnknownAccount)

	accs := am.Accounts()
	require.Len(t, accs, 3)
	assert.Equal(t, txn.Address{1}, accs[0].Address)
}

func TestManagerEvents(t *testing.T) {
	backend := new(testBackend)
	am := NewManager(backend)

	events := make(chan WalletEvent, 4)
	sub := am.Subscribe(events)
	defer sub.Unsubscribe()

	w := newTestWallet("x", 1)
	backend.feed.Send(WalletEvent{Wallet: w, Kind: WalletArrived})
	ev := <-events
	assert.Equal(t, WalletArrived, ev.Kind)
	assert.Len(t, am.Wallets(), 1)

	backend.feed.Send(WalletEvent{Wallet: w, Kind: WalletDropped})
	ev = <-events
	assert.Equal(t, "dropped", ev.Kind.String())
	assert.Empty(t, am.Wallets())

	require.NoError(t, am.Close())
}

func TestManagerWaitWallet(t *testing.T) {
	backend := new(testBackend)
	am := NewManager(backend)
	defer am.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := am.WaitWallet(ctx)
	assert.ErrorIs(t, err, ErrNoWallet)

	w := newTestWallet("late", 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		backend.feed.Send(WalletEvent{Wallet: w, Kind: WalletArrived})
	}()
	got, err := am.WaitWallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w, got)

	// Known wallets are returned right away.
	got, err = am.WaitWallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestManagerClose(t *testing.T) {
	w := newTestWallet("a", 1)
	am := NewManager(&testBackend{wallets: []Wallet{w}})
	require.NoError(t, am.Close())
	assert.True(t, w.closed)
}
