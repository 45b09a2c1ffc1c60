// Copyright 2014 The go-ethereum Authors
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

// algoledger signs Algorand transactions with a Ledger hardware wallet.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/algoledger/signer/apdu"
	"github.com/algoledger/signer/cmd/utils"
	"github.com/algoledger/signer/internal/debug"
	"github.com/algoledger/signer/internal/flags"
	"github.com/algoledger/signer/ledger"
	"github.com/algoledger/signer/txn"
	"github.com/urfave/cli/v2"
)

// Exit codes of the distinct failure classes.
const (
	exitFailure  = 1
	exitRejected = 2
	exitDevice   = 3
	exitVerify   = 4
)

var app = flags.NewApp("the Algorand Ledger signing tool")

func init() {
	app.Commands = []*cli.Command{
		signCommand,
		inspectCommand,
		addressCommand,
		versionCommand,
		dumpConfigCommand,
	}
	app.Flags = flags.Merge(
		[]cli.Flag{utils.ConfigFileFlag},
		utils.DeviceFlags,
		utils.SigningFlags,
		debug.Flags,
	)
	app.Before = func(ctx *cli.Context) error {
		flags.MigrateGlobalFlags(ctx)
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		code, msg := exitStatus(err)
		utils.Exitf(code, "%s", msg)
	}
}

// exitStatus maps a command failure to the process exit code and the message
// shown to the user.
func exitStatus(err error) (int, string) {
	var (
		fault    *apdu.Fault
		reported *ledger.SignedButReportedError
	)
	switch {
	case apdu.IsRejected(err):
		return exitRejected, "Transaction rejected on the device"
	case errors.As(err, &reported):
		return exitDevice, fmt.Sprintf("Device reported an error: %s", reported.Message)
	case errors.Is(err, ledger.ErrAppNotOpen):
		return exitDevice, fmt.Sprintf("Open the Algorand app on the device: %v", err)
	case errors.As(err, &fault):
		return exitDevice, fmt.Sprintf("Device reported an error: %v", fault)
	case errors.Is(err, txn.ErrSignatureVerificationFailed):
		return exitVerify, fmt.Sprintf("Signature could not be verified: %v", err)
	}
	return exitFailure, err.Error()
}
