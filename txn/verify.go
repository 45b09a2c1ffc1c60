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
	"errors"

	"github.com/algoledger/signer/msgpack"
	"golang.org/x/crypto/ed25519"
)

// SignPrefix is the domain separation tag prepended to a transaction before
// signing.
const SignPrefix = "TX"

var ErrSignatureVerificationFailed = errors.New("txn: signature verification failed")

// Encode returns the canonical encoding of the transaction body.
func (tx Transaction) Encode() ([]byte, error) {
	return msgpack.EncodeToBytes(msgpack.Map(tx))
}

// BytesToSign returns the message a signer signs for tx: the domain tag
// followed by the canonical encoding of the transaction.
func BytesToSign(tx Transaction) ([]byte, error) {
	enc, err := tx.Encode()
	if err != nil {
		return nil, err
	}
	return append([]byte(SignPrefix), enc...), nil
}

// VerifySignature checks that sig is a valid signature of tx made by pk.
func VerifySignature(pk ed25519.PublicKey, tx Transaction, sig []byte) error {
	if len(pk) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return ErrSignatureVerificationFailed
	}
	msg, err := BytesToSign(tx)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pk, msg, sig) {
		return ErrSignatureVerificationFailed
	}
	return nil
}
