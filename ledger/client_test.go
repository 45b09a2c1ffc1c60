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
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/algoledger/signer/apdu"
	"github.com/algoledger/signer/ledger/ledgertest"
	"github.com/algoledger/signer/msgpack"
	"github.com/algoledger/signer/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payment() txn.Transaction {
	return txn.Transaction{
		"type": msgpack.String(txn.TypePayment),
		"snd":  msgpack.Bytes(bytes.Repeat([]byte{0x11}, 32)),
		"rcv":  msgpack.Bytes(bytes.Repeat([]byte{0x22}, 32)),
		"amt":  msgpack.Uint(5000000),
		"fee":  msgpack.Uint(1000),
		"fv":   msgpack.Uint(1),
		"lv":   msgpack.Uint(1001),
		"gen":  msgpack.String("testnet-v1.0"),
	}
}

// appCall returns an application call large enough to span several chunks.
func appCall() txn.Transaction {
	return txn.Transaction{
		"type": msgpack.String(txn.TypeApplication),
		"snd":  msgpack.Bytes(bytes.Repeat([]byte{0x11}, 32)),
		"apid": msgpack.Uint(1234),
		"apaa": msgpack.Array{
			msgpack.Bytes(bytes.Repeat([]byte{1}, 200)),
			msgpack.Bytes(bytes.Repeat([]byte{2}, 200)),
			msgpack.Bytes(bytes.Repeat([]byte{3}, 200)),
		},
		"fee": msgpack.Uint(1000),
		"fv":  msgpack.Uint(1),
		"lv":  msgpack.Uint(1001),
	}
}

func encode(t *testing.T, tx txn.Transaction) []byte {
	t.Helper()
	enc, err := tx.Encode()
	require.NoError(t, err)
	return enc
}

// transportFunc adapts a function to the Transport interface.
type transportFunc func(apdu []byte, timeout time.Duration) ([]byte, error)

func (f transportFunc) Exchange(apdu []byte, timeout time.Duration) ([]byte, error) {
	return f(apdu, timeout)
}

func TestSignSingleChunk(t *testing.T) {
	dev := ledgertest.NewDevice("single")
	client := NewClient(dev, Config{}, nil)
	assert.Equal(t, Idle, client.State())

	tx := payment()
	sig, err := client.Sign(encode(t, tx), 0)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.NoError(t, txn.VerifySignature(dev.PublicKey(0), tx, sig))
	assert.Equal(t, Completed, client.State())

	cmds := dev.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, apdu.InsSignMsgpack, cmds[0].Ins)
	assert.Equal(t, apdu.P1First, cmds[0].P1)
	assert.Equal(t, apdu.P2Last, cmds[0].P2)
}

func TestSignMultiChunk(t *testing.T) {
	for _, size := range []int{apdu.DefaultChunkSize, 100, 1} {
		dev := ledgertest.NewDevice("multi")
		tx := appCall()
		enc := encode(t, tx)

		sig, err := Sign(dev, enc, size, 0)
		require.NoError(t, err, "chunk size %d", size)
		assert.NoError(t, txn.VerifySignature(dev.PublicKey(0), tx, sig))

		cmds := dev.Commands()
		require.Len(t, cmds, (len(enc)+size-1)/size)
		var joined []byte
		for i, cmd := range cmds {
			switch {
			case i == 0:
				assert.Equal(t, apdu.P1First, cmd.P1)
			default:
				assert.Equal(t, apdu.P1More, cmd.P1)
			}
			if i == len(cmds)-1 {
				assert.Equal(t, apdu.P2Last, cmd.P2)
			} else {
				assert.Equal(t, apdu.P2More, cmd.P2)
				assert.Len(t, cmd.Data, size)
			}
			joined = append(joined, cmd.Data...)
		}
		assert.Equal(t, enc, joined)
	}
}

func TestSignAccount(t *testing.T) {
	dev := ledgertest.NewDevice("account")
	client := NewClient(dev, Config{ChunkSize: 100}, nil)

	tx := appCall()
	sig, err := client.Sign(encode(t, tx), 3)
	require.NoError(t, err)
	assert.NoError(t, txn.VerifySignature(dev.PublicKey(3), tx, sig))
	assert.Error(t, txn.VerifySignature(dev.PublicKey(0), tx, sig))

	cmds := dev.Commands()
	assert.Equal(t, apdu.P1FirstAccountID, cmds[0].P1)
	assert.Equal(t, []byte{0, 0, 0, 3}, cmds[0].Data[:4])
}

func TestSignRejected(t *testing.T) {
	dev := ledgertest.NewDevice("reject")
	dev.Reject = true
	client := NewClient(dev, Config{}, nil)

	_, err := client.Sign(encode(t, payment()), 0)
	require.Error(t, err)
	assert.True(t, apdu.IsRejected(err))
	assert.Equal(t, Rejected, client.State())

	// A rejected session accepts the next request.
	dev.Reject = false
	_, err = client.Sign(encode(t, payment()), 0)
	assert.NoError(t, err)
	assert.Equal(t, Completed, client.State())
}

func TestSignFailFast(t *testing.T) {
	dev := ledgertest.NewDevice("fail")
	dev.FailAt, dev.FailSW = 2, apdu.SWDataInvalid
	client := NewClient(dev, Config{ChunkSize: 100}, nil)

	_, err := client.Sign(encode(t, appCall()), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/")

	var fault *apdu.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, apdu.SWDataInvalid, fault.SW)
	assert.False(t, apdu.IsRejected(err))
	assert.Len(t, dev.Commands(), 2, "no chunk may follow a failed one")
	assert.Equal(t, Faulted, client.State())
}

func TestSignDeviceValidation(t *testing.T) {
	dev := ledgertest.NewDevice("invalid")
	tx := payment()
	tx["type"] = msgpack.String("bogus")

	_, err := Sign(dev, encode(t, tx), apdu.DefaultChunkSize, 0)
	var fault *apdu.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, apdu.SWDataInvalid, fault.SW)
	assert.NotEmpty(t, fault.Message())
}

func TestSignBufferOverflow(t *testing.T) {
	dev := ledgertest.NewDevice("overflow")
	dev.Capacity = 300

	_, err := Sign(dev, encode(t, appCall()), apdu.DefaultChunkSize, 0)
	var fault *apdu.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, apdu.SWOutputBufferTooSmall, fault.SW)
}

func TestSignedButReported(t *testing.T) {
	dev := ledgertest.NewDevice("reported")
	dev.ErrorMessage = "Invalid fee"
	tx := payment()

	sig, err := Sign(dev, encode(t, tx), apdu.DefaultChunkSize, 0)
	assert.Nil(t, sig)

	var reported *SignedButReportedError
	require.True(t, errors.As(err, &reported))
	assert.Equal(t, "Invalid fee", reported.Message)
	assert.Len(t, reported.Signature, SignatureLength)
	assert.NoError(t, txn.VerifySignature(dev.PublicKey(0), tx, reported.Signature))
}

func TestSignShortReply(t *testing.T) {
	short := transportFunc(func([]byte, time.Duration) ([]byte, error) {
		return make([]byte, 10), nil
	})
	_, err := Sign(short, []byte{0x80}, apdu.DefaultChunkSize, 0)
	assert.ErrorIs(t, err, ErrShortSignature)

	// Same for an empty final reply.
	empty := transportFunc(func([]byte, time.Duration) ([]byte, error) { return nil, nil })
	_, err = Sign(empty, []byte{0x80}, apdu.DefaultChunkSize, 0)
	assert.ErrorIs(t, err, ErrShortSignature)
}

func TestSignInvalidChunkSize(t *testing.T) {
	dev := ledgertest.NewDevice("size")
	for _, size := range []int{-1, 0, 256} {
		_, err := Sign(dev, encode(t, payment()), size, 0)
		assert.ErrorIs(t, err, apdu.ErrInvalidChunkSize)
	}
	assert.Empty(t, dev.Commands())
}

func TestSignTimeout(t *testing.T) {
	var got []time.Duration
	tr := transportFunc(func(_ []byte, timeout time.Duration) ([]byte, error) {
		got = append(got, timeout)
		return make([]byte, SignatureLength), nil
	})
	enc := bytes.Repeat([]byte{0x80}, 25)

	// Only the final chunk waits for the user and is not bounded by default.
	client := NewClient(tr, Config{ChunkSize: 10, Timeout: 3 * time.Second}, nil)
	_, err := client.Sign(enc, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, NoTimeout}, got)

	got = nil
	client = NewClient(tr, Config{ChunkSize: 10, Timeout: 3 * time.Second, ConfirmTimeout: time.Minute}, nil)
	_, err = client.Sign(enc, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, time.Minute}, got)

	got = nil
	_, err = Sign(tr, enc, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{0, 0, NoTimeout}, got)
}

func TestAddressTimeout(t *testing.T) {
	var got time.Duration
	tr := transportFunc(func(_ []byte, timeout time.Duration) ([]byte, error) {
		got = timeout
		return make([]byte, 32), nil
	})
	client := NewClient(tr, Config{Timeout: 3 * time.Second}, nil)

	_, _, err := client.Address(0, false)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, got)

	_, _, err = client.Address(0, true)
	require.NoError(t, err)
	assert.Equal(t, NoTimeout, got)
}

func TestSessionBusy(t *testing.T) {
	dev := ledgertest.NewDevice("busy")
	client := NewClient(dev, Config{}, nil)

	require.NoError(t, client.session.Begin())
	assert.Equal(t, Accumulating, client.State())

	_, err := client.Sign(encode(t, payment()), 0)
	assert.ErrorIs(t, err, ErrSessionBusy)
	_, err = client.PublicKey(0)
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.Empty(t, dev.Commands())

	client.session.Finish(nil)
	_, err = client.PublicKey(0)
	assert.NoError(t, err)
}

func TestSessionConcurrent(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	tr := transportFunc(func([]byte, time.Duration) ([]byte, error) {
		close(entered)
		<-release
		return make([]byte, SignatureLength), nil
	})
	client := NewClient(tr, Config{}, nil)

	done := make(chan error)
	go func() {
		_, err := client.Sign([]byte{0x80}, 0)
		done <- err
	}()
	<-entered
	_, err := client.Sign([]byte{0x80}, 0)
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, Completed, client.State())
}

func TestPublicKey(t *testing.T) {
	dev := ledgertest.NewDevice("keys")
	client := NewClient(dev, Config{}, nil)

	pk, err := client.PublicKey(7)
	require.NoError(t, err)
	assert.Equal(t, dev.PublicKey(7), pk)

	cmd := dev.Commands()[0]
	assert.Equal(t, apdu.InsGetPublicKey, cmd.Ins)
	assert.Equal(t, []byte{0, 0, 0, 7}, cmd.Data)
}

func TestAddress(t *testing.T) {
	dev := ledgertest.NewDevice("keys")
	client := NewClient(dev, Config{}, nil)

	pk, addr, err := client.Address(1, true)
	require.NoError(t, err)
	assert.Equal(t, dev.PublicKey(1), pk)
	assert.Equal(t, txn.BytesToAddress(pk).String(), addr)
	assert.Equal(t, apdu.P1ShowAddress, dev.Commands()[0].P1)
}

func TestVersion(t *testing.T) {
	dev := ledgertest.NewDevice("version")
	dev.Version = [3]byte{1, 2, 9}
	dev.Locked = true
	client := NewClient(dev, Config{}, nil)

	v, err := client.Version()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.9", v.String())
	assert.True(t, v.Locked)
	assert.False(t, v.TestMode)
	assert.Equal(t, uint32(0x33000004), v.TargetID)

	short := NewClient(transportFunc(func([]byte, time.Duration) ([]byte, error) {
		return []byte{0, 1}, nil
	}), Config{}, nil)
	_, err = short.Version()
	assert.ErrorIs(t, err, errInvalidVersionReply)
}
