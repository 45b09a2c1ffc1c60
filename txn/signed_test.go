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

package txn

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/algoledger/signer/msgpack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"
)

func testKey(seed string) ed25519.PrivateKey {
	sum := sha256.Sum256([]byte(seed))
	return ed25519.NewKeyFromSeed(sum[:])
}

func testPayment() Transaction {
	return Transaction{
		"type": msgpack.String(TypePayment),
		"snd":  msgpack.Bytes(bytes.Repeat([]byte{0x11}, 32)),
		"rcv":  msgpack.Bytes(bytes.Repeat([]byte{0x22}, 32)),
		"amt":  msgpack.Uint(1000000),
		"fee":  msgpack.Uint(1000),
		"fv":   msgpack.Uint(10),
		"lv":   msgpack.Uint(1010),
		"gen":  msgpack.String("testnet-v1.0"),
		"gh":   msgpack.Bytes(bytes.Repeat([]byte{0x33}, 32)),
	}
}

func TestVerifySignature(t *testing.T) {
	key := testKey("alice")
	pk := key.Public().(ed25519.PublicKey)
	tx := testPayment()

	msg, err := BytesToSign(tx)
	require.NoError(t, err)
	assert.Equal(t, []byte("TX"), msg[:2])

	sig := ed25519.Sign(key, msg)
	require.NoError(t, VerifySignature(pk, tx, sig))

	// Signature over the body without the domain tag.
	enc, err := tx.Encode()
	require.NoError(t, err)
	assert.ErrorIs(t, VerifySignature(pk, tx, ed25519.Sign(key, enc)), ErrSignatureVerificationFailed)

	// Wrong key, corrupted signature, malformed inputs.
	other := testKey("bob").Public().(ed25519.PublicKey)
	assert.ErrorIs(t, VerifySignature(other, tx, sig), ErrSignatureVerificationFailed)

	bad := append([]byte(nil), sig...)
	bad[10] ^= 0x80
	assert.ErrorIs(t, VerifySignature(pk, tx, bad), ErrSignatureVerificationFailed)
	assert.ErrorIs(t, VerifySignature(pk, tx, sig[:63]), ErrSignatureVerificationFailed)
	assert.ErrorIs(t, VerifySignature(pk[:31], tx, sig), ErrSignatureVerificationFailed)

	// The signature covers the canonical form, so a zero field changes nothing.
	tx["close"] = msgpack.Bytes{}
	assert.NoError(t, VerifySignature(pk, tx, sig))
}

func multisigEnvelope(keys ...ed25519.PublicKey) *SignedTxn {
	msig := &MultisigSig{Version: 1, Threshold: 2}
	for _, k := range keys {
		msig.Subsigs = append(msig.Subsigs, Subsig{Key: k})
	}
	return &SignedTxn{Txn: testPayment(), Msig: msig}
}

func TestAttachMultisig(t *testing.T) {
	var (
		k1 = testKey("one").Public().(ed25519.PublicKey)
		k2 = testKey("two").Public().(ed25519.PublicKey)
		k3 = testKey("three").Public().(ed25519.PublicKey)
	)
	stx := multisigEnvelope(k1, k2, k3)
	sig := bytes.Repeat([]byte{0x5a}, 64)

	require.NoError(t, stx.Attach(k2, sig))
	assert.Empty(t, stx.Msig.Subsigs[0].Sig)
	assert.Equal(t, sig, stx.Msig.Subsigs[1].Sig)
	assert.Empty(t, stx.Msig.Subsigs[2].Sig)
	assert.Empty(t, stx.Sig)
	assert.NoError(t, stx.Msig.CheckVersion())

	// The attached signature is a copy.
	sig[0] = 0
	assert.Equal(t, byte(0x5a), stx.Msig.Subsigs[1].Sig[0])

	// Only the slots with a signature carry an "s" entry.
	subs := stx.Value()["msig"].(msgpack.Map)["subsig"].(msgpack.Array)
	require.Len(t, subs, 3)
	assert.Equal(t, []string{"pk"}, subs[0].(msgpack.Map).Keys())
	assert.Equal(t, []string{"pk", "s"}, subs[1].(msgpack.Map).Keys())
	assert.Equal(t, []string{"pk"}, subs[2].(msgpack.Map).Keys())
}

func TestAttachMultisigFirstMatch(t *testing.T) {
	k := testKey("dup").Public().(ed25519.PublicKey)
	stx := multisigEnvelope(k, k)

	require.NoError(t, stx.Attach(k, make([]byte, 64)))
	assert.NotNil(t, stx.Msig.Subsigs[0].Sig)
	assert.Nil(t, stx.Msig.Subsigs[1].Sig)
}

func TestAttachMultisigNoMatch(t *testing.T) {
	stx := multisigEnvelope(testKey("one").Public().(ed25519.PublicKey))
	err := stx.Attach(testKey("stranger").Public().(ed25519.PublicKey), make([]byte, 64))
	assert.ErrorIs(t, err, ErrNoMatchingMultisigSlot)
	assert.Empty(t, stx.Sig, "must not fall back to a single signature")
}

func TestAttachMultisigVersion(t *testing.T) {
	k := testKey("one").Public().(ed25519.PublicKey)
	stx := multisigEnvelope(k)
	stx.Msig.Version = 2

	assert.ErrorIs(t, stx.Msig.CheckVersion(), ErrUnsupportedMultisigVersion)
	require.NoError(t, stx.Attach(k, make([]byte, 64)))
	assert.NotNil(t, stx.Msig.Subsigs[0].Sig)
}

func TestAttachSingle(t *testing.T) {
	stx := &SignedTxn{Txn: testPayment()}
	sig := bytes.Repeat([]byte{1}, 64)
	require.NoError(t, stx.Attach(testKey("a").Public().(ed25519.PublicKey), sig))
	assert.Equal(t, sig, stx.Sig)
	assert.Equal(t, []string{"sig", "txn"}, stx.Value().Keys())
}

func TestSignedTxnRoundTrip(t *testing.T) {
	k1 := testKey("one").Public().(ed25519.PublicKey)
	k2 := testKey("two").Public().(ed25519.PublicKey)
	stx := multisigEnvelope(k1, k2)
	stx.Extra = msgpack.Map{"sgnr": msgpack.Bytes(bytes.Repeat([]byte{9}, 32))}
	stx.Msig.Subsigs[0].Sig = bytes.Repeat([]byte{7}, 64)

	enc, err := stx.Encode()
	require.NoError(t, err)
	assert.True(t, msgpack.IsCanonical(enc))

	dec, err := DecodeSignedTxn(enc)
	require.NoError(t, err)
	assert.Equal(t, stx.Txn, dec.Txn)
	assert.Equal(t, stx.Extra, dec.Extra)
	require.NotNil(t, dec.Msig)
	assert.Equal(t, uint64(1), dec.Msig.Version)
	assert.Equal(t, uint64(2), dec.Msig.Threshold)
	require.Len(t, dec.Msig.Subsigs, 2)
	assert.Equal(t, k1, dec.Msig.Subsigs[0].Key)
	assert.Equal(t, stx.Msig.Subsigs[0].Sig, dec.Msig.Subsigs[0].Sig)
	assert.Empty(t, dec.Msig.Subsigs[1].Sig)

	again, err := dec.Encode()
	require.NoError(t, err)
	assert.Equal(t, enc, again)
}

func TestDecodeSignedTxnErrors(t *testing.T) {
	encode := func(v msgpack.Value) []byte {
		enc, err := msgpack.EncodeToBytes(v)
		require.NoError(t, err)
		return enc
	}
	txm := msgpack.Map(testPayment())
	tests := []struct {
		name string
		data []byte
	}{
		{"not a map", encode(msgpack.Uint(1))},
		{"no txn", encode(msgpack.Map{"sig": msgpack.Bytes{1}})},
		{"txn not a map", encode(msgpack.Map{"txn": msgpack.String("x")})},
		{"sig not bytes", encode(msgpack.Map{"txn": txm, "sig": msgpack.Uint(1)})},
		{"msig not a map", encode(msgpack.Map{"txn": txm, "msig": msgpack.Uint(1)})},
		{"subsig not a map", encode(msgpack.Map{"txn": txm, "msig": msgpack.Map{"subsig": msgpack.Array{msgpack.Uint(1)}}})},
		{"both", encode(msgpack.Map{
			"txn":  txm,
			"sig":  msgpack.Bytes{1},
			"msig": msgpack.Map{"v": msgpack.Uint(1)},
		})},
	}
	for _, test := range tests {
		_, err := DecodeSignedTxn(test.data)
		assert.Error(t, err, test.name)
	}
}
