// Copyright 2015 The go-ethereum Authors
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

// Package utils contains internal helper functions for algoledger commands.
package utils

import (
	"github.com/algoledger/signer/accounts"
	"github.com/algoledger/signer/apdu"
	"github.com/algoledger/signer/internal/flags"
	"github.com/algoledger/signer/ledger"
	"github.com/algoledger/signer/signer"
	"github.com/urfave/cli/v2"
)

// These are all the command line flags we support.
// If you add to this list, please remember to include the
// flag in the appropriate command definition.
//
// The flags are defined here so their names and help texts
// are the same for all commands.

var (
	ConfigFileFlag = &flags.PathFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.MiscCategory,
	}

	// Device settings
	TransportFlag = &cli.StringFlag{
		Name:     "transport",
		Usage:    "Device transport (hid|tcp)",
		Value:    "hid",
		Category: flags.DeviceCategory,
	}
	TCPAddrFlag = &cli.StringFlag{
		Name:     "tcp.addr",
		Usage:    "Address of the Speculos APDU port, used with --transport=tcp",
		Value:    "127.0.0.1:9999",
		Category: flags.DeviceCategory,
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:     "timeout",
		Usage:    "Per exchange timeout of the tcp transport",
		Value:    ledger.DefaultTCPTimeout,
		Category: flags.DeviceCategory,
	}
	ConfirmTimeoutFlag = &cli.DurationFlag{
		Name:     "timeout.confirm",
		Usage:    "Time allowed for confirming on the device, 0 waits indefinitely",
		Category: flags.DeviceCategory,
	}
	ChunkSizeFlag = &cli.IntFlag{
		Name:     "chunksize",
		Usage:    "Payload bytes per signing chunk (1-250)",
		Value:    apdu.DefaultChunkSize,
		Category: flags.DeviceCategory,
	}

	// Signing settings
	AccountFlag = &cli.Uint64Flag{
		Name:     "account",
		Usage:    "Account index on the device (derivation path m/44'/283'/<account>'/0/0)",
		Category: flags.SigningCategory,
	}
	LockFileFlag = &flags.PathFlag{
		Name:     "lockfile",
		Usage:    "Lock file serializing device access across processes",
		Category: flags.SigningCategory,
	}
)

// DeviceFlags are the flags selecting and tuning the device connection.
var DeviceFlags = []cli.Flag{
	TransportFlag,
	TCPAddrFlag,
	TimeoutFlag,
	ConfirmTimeoutFlag,
	ChunkSizeFlag,
}

// SigningFlags are the flags of a signing pass.
var SigningFlags = []cli.Flag{
	AccountFlag,
	LockFileFlag,
}

// SetLedgerConfig applies ledger client related command line flags to the config.
func SetLedgerConfig(ctx *cli.Context, cfg *ledger.Config) {
	if ctx.IsSet(TimeoutFlag.Name) {
		cfg.Timeout = ctx.Duration(TimeoutFlag.Name)
	}
	if ctx.IsSet(ConfirmTimeoutFlag.Name) {
		cfg.ConfirmTimeout = ctx.Duration(ConfirmTimeoutFlag.Name)
	}
	if ctx.IsSet(ChunkSizeFlag.Name) {
		cfg.ChunkSize = ctx.Int(ChunkSizeFlag.Name)
	}
}

// SetSignerConfig applies signing related command line flags to the config.
func SetSignerConfig(ctx *cli.Context, cfg *signer.Config) {
	if ctx.IsSet(AccountFlag.Name) {
		account := ctx.Uint64(AccountFlag.Name)
		if account >= accounts.Hardened {
			Fatalf("Account index %d out of range", account)
		}
		cfg.Account = uint32(account)
	}
	if ctx.IsSet(LockFileFlag.Name) {
		cfg.LockFile = flags.GlobalPath(ctx, LockFileFlag.Name)
	}
}
