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
	"errors"
	"fmt"

	"github.com/algoledger/signer/msgpack"
	"golang.org/x/crypto/ed25519"
)

// Envelope keys.
const (
	keyTxn    = "txn"
	keySig    = "sig"
	keyMsig   = "msig"
	keyVer    = "v"
	keyThr    = "thr"
	keySubsig = "subsig"
	keyPK     = "pk"
	keyS      = "s"
)

// MultisigVersion is the only multisig version this package knows how to fill.
const MultisigVersion = 1

var (
	ErrNoMatchingMultisigSlot     = errors.New("txn: signing key is not part of the multisig")
	ErrUnsupportedMultisigVersion = errors.New("txn: unsupported multisig version")
	ErrInvalidEnvelope            = errors.New("txn: invalid signed transaction")
)

// Subsig is one cosigner slot of a multisig: a public key and, once that
// cosigner has signed, its signature.
type Subsig struct {
	Key   ed25519.PublicKey
	Sig   []byte
	Extra msgpack.Map // unknown keys, kept verbatim
}

// MultisigSig is the multisig structure of a signed transaction.
type MultisigSig struct {
	Version   uint64
	Threshold uint64
	Subsigs   []Subsig
	Extra     msgpack.Map // unknown keys, kept verbatim
}

// CheckVersion returns ErrUnsupportedMultisigVersion if the multisig is of a
// version other than MultisigVersion.
func (m *MultisigSig) CheckVersion() error {
	if m.Version != MultisigVersion {
		return fmt.Errorf("%w %d", ErrUnsupportedMultisigVersion, m.Version)
	}
	return nil
}

// SignedTxn is a transaction wrapped together with its signature or multisig.
type SignedTxn struct {
	Txn   Transaction
	Sig   []byte
	Msig  *MultisigSig
	Extra msgpack.Map // other envelope keys (sgnr, lsig, ...), kept verbatim
}

// DecodeSignedTxn parses a signed transaction envelope.
func DecodeSignedTxn(data []byte) (*SignedTxn, error) {
	v, err := msgpack.Decode(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(msgpack.Map)
	if !ok {
		return nil, fmt.Errorf("%w: envelope is not a map", ErrInvalidEnvelope)
	}
	return SignedTxnFromMap(m)
}

// SignedTxnFromMap converts a decoded envelope value into a SignedTxn. The
// input map is not retained.
func SignedTxnFromMap(m msgpack.Map) (*SignedTxn, error) {
	m = m.Clone()

	tx, ok := m[keyTxn].(msgpack.Map)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q map", ErrInvalidEnvelope, keyTxn)
	}
	stx := &SignedTxn{Txn: Transaction(tx)}
	delete(m, keyTxn)

	if v, ok := m[keySig]; ok {
		sig, ok := v.(msgpack.Bytes)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a byte string", ErrInvalidEnvelope, keySig)
		}
		stx.Sig = sig
		delete(m, keySig)
	}
	if v, ok := m[keyMsig]; ok {
		msig, err := multisigFromValue(v)
		if err != nil {
			return nil, err
		}
		stx.Msig = msig
		delete(m, keyMsig)
	}
	if len(stx.Sig) > 0 && stx.Msig != nil {
		return nil, fmt.Errorf("%w: both %q and %q are set", ErrInvalidEnvelope, keySig, keyMsig)
	}
	if len(m) > 0 {
		stx.Extra = m
	}
	return stx, nil
}

func multisigFromValue(v msgpack.Value) (*MultisigSig, error) {
	m, ok := v.(msgpack.Map)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a map", ErrInvalidEnvelope, keyMsig)
	}
	msig := new(MultisigSig)
	for key, val := range m {
		switch key {
		case keyVer, keyThr:
			n, ok := val.(msgpack.Uint)
			if !ok {
				return nil, fmt.Errorf("%w: msig.%s is not an integer", ErrInvalidEnvelope, key)
			}
			if key == keyVer {
				msig.Version = uint64(n)
			} else {
				msig.Threshold = uint64(n)
			}
		case keySubsig:
			subs, ok := val.(msgpack.Array)
			if !ok {
				return nil, fmt.Errorf("%w: msig.%s is not an array", ErrInvalidEnvelope, key)
			}
			for i, sub := range subs {
				s, err := subsigFromValue(sub)
				if err != nil {
					return nil, fmt.Errorf("msig.subsig[%d]: %w", i, err)
				}
				msig.Subsigs = append(msig.Subsigs, s)
			}
		default:
			if msig.Extra == nil {
				msig.Extra = make(msgpack.Map)
			}
			msig.Extra[key] = val
		}
	}
	return msig, nil
}

func subsigFromValue(v msgpack.Value) (Subsig, error) {
	m, ok := v.(msgpack.Map)
	if !ok {
		return Subsig{}, fmt.Errorf("%w: subsig is not a map", ErrInvalidEnvelope)
	}
	var sub Subsig
	for key, val := range m {
		switch key {
		case keyPK, keyS:
			b, ok := val.(msgpack.Bytes)
			if !ok {
				return Subsig{}, fmt.Errorf("%w: %q is not a byte string", ErrInvalidEnvelope, key)
			}
			if key == keyPK {
				sub.Key = ed25519.PublicKey(b)
			} else {
				sub.Sig = b
			}
		default:
			if sub.Extra == nil {
				sub.Extra = make(msgpack.Map)
			}
			sub.Extra[key] = val
		}
	}
	return sub, nil
}

// Attach folds a signature made by key into the envelope.
//
// For a multisig envelope the signature goes into the first subsig slot whose
// public key is key, and ErrNoMatchingMultisigSlot is returned if there is no
// such slot. The multisig version is not checked here, see CheckVersion.
// Without a multisig the signature becomes the single signature of the
// envelope.
func (stx *SignedTxn) Attach(key ed25519.PublicKey, sig []byte) error {
	sig = append([]byte(nil), sig...)
	if stx.Msig == nil {
		stx.Sig = sig
		return nil
	}
	for i := range stx.Msig.Subsigs {
		if bytes.Equal(stx.Msig.Subsigs[i].Key, key) {
			stx.Msig.Subsigs[i].Sig = sig
			return nil
		}
	}
	return fmt.Errorf("%w: key %v", ErrNoMatchingMultisigSlot, BytesToAddress(key))
}

// Value returns the envelope as a value tree ready for canonical encoding.
func (stx *SignedTxn) Value() msgpack.Map {
	m := make(msgpack.Map, len(stx.Extra)+3)
	for k, v := range stx.Extra {
		m[k] = v
	}
	m[keyTxn] = msgpack.Map(stx.Txn)
	if len(stx.Sig) > 0 {
		m[keySig] = msgpack.Bytes(stx.Sig)
	}
	if stx.Msig != nil {
		m[keyMsig] = stx.Msig.value()
	}
	return m
}

func (m *MultisigSig) value() msgpack.Map {
	subs := make(msgpack.Array, len(m.Subsigs))
	for i, sub := range m.Subsigs {
		sm := make(msgpack.Map, len(sub.Extra)+2)
		for k, v := range sub.Extra {
			sm[k] = v
		}
		sm[keyPK] = msgpack.Bytes(sub.Key)
		if len(sub.Sig) > 0 {
			sm[keyS] = msgpack.Bytes(sub.Sig)
		}
		subs[i] = sm
	}
	v := make(msgpack.Map, len(m.Extra)+3)
	for k, val := range m.Extra {
		v[k] = val
	}
	v[keyVer] = msgpack.Uint(m.Version)
	v[keyThr] = msgpack.Uint(m.Threshold)
	v[keySubsig] = subs
	return v
}

// Encode returns the canonical encoding of the envelope.
func (stx *SignedTxn) Encode() ([]byte, error) {
	return msgpack.EncodeToBytes(stx.Value())
}
