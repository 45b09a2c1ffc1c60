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
	"errors"
	"fmt"
	"os"

	"github.com/algoledger/signer/accounts"
	"github.com/algoledger/signer/cmd/utils"
	"github.com/algoledger/signer/internal/flags"
	"github.com/algoledger/signer/internal/version"
	"github.com/algoledger/signer/msgpack"
	"github.com/algoledger/signer/signer"
	"github.com/algoledger/signer/txn"
	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/log"
	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"
)

var (
	qrFlag = &cli.BoolFlag{
		Name:  "qr",
		Usage: "Render the address as a terminal QR code",
	}
	countFlag = &cli.UintFlag{
		Name:  "count",
		Usage: "Number of consecutive accounts to list",
		Value: 1,
	}
	confirmFlag = &cli.BoolFlag{
		Name:  "confirm",
		Usage: "Display the address on the device for confirmation",
	}
)

var (
	signCommand = &cli.Command{
		Action:    signTxn,
		Name:      "sign",
		Usage:     "Sign a transaction with the device",
		ArgsUsage: "<input file> <output file>",
		Flags:     flags.Merge([]cli.Flag{utils.ConfigFileFlag}, utils.DeviceFlags, utils.SigningFlags),
		Description: `
The sign command reads a msgpack encoded signed transaction envelope, has the
device sign the transaction and writes the envelope back out with the signature
attached. If the envelope holds a multisig, the signature goes into the slot of
the signing key, which must be one of the cosigners.

The signature is verified before anything is written. The output file is only
replaced once the whole envelope is ready.`,
	}
	inspectCommand = &cli.Command{
		Action:    inspectTxn,
		Name:      "inspect",
		Usage:     "Print the contents of a signed transaction file",
		ArgsUsage: "<file>",
	}
	addressCommand = &cli.Command{
		Action: showAddress,
		Name:   "address",
		Usage:  "Print the address of a device account",
		Flags: flags.Merge(
			[]cli.Flag{utils.ConfigFileFlag, utils.AccountFlag, qrFlag, countFlag, confirmFlag},
			utils.DeviceFlags,
		),
	}
	versionCommand = &cli.Command{
		Action: showVersion,
		Name:   "version",
		Usage:  "Print the version of the signer and of the device application",
		Flags:  flags.Merge([]cli.Flag{utils.ConfigFileFlag}, utils.DeviceFlags),
	}
)

// signTxn is the sign command.
func signTxn(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("sign requires an input and an output file")
	}
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return err
	}
	dev, err := openSession(ctx.Context, &cfg)
	if err != nil {
		return err
	}
	defer dev.Close()

	in, out := ctx.Args().Get(0), ctx.Args().Get(1)
	res, err := signer.New(dev, cfg.Signer, log.Root()).SignFile(in, out)
	if err != nil {
		return err
	}
	kind := "single signature"
	if res.Multisig {
		kind = "multisig"
	}
	fmt.Fprintf(ctx.App.Writer, "Signed %s by %v (%s), written to %s\n", in, txn.BytesToAddress(res.PublicKey), kind, out)
	if res.Warning != nil {
		fmt.Fprintf(ctx.App.Writer, "Warning: %v\n", res.Warning)
	}
	return nil
}

var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// inspectTxn is the inspect command.
func inspectTxn(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("inspect requires a file")
	}
	data, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}
	stx, err := txn.DecodeSignedTxn(data)
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	fmt.Fprintf(w, "Type:      %s\n", stx.Txn.Type())
	fmt.Fprintf(w, "Sender:    %v\n", stx.Txn.Sender())
	if id, err := stx.Txn.ID(); err != nil {
		fmt.Fprintf(w, "ID:        unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "ID:        %s\n", id)
	}
	fmt.Fprintf(w, "Canonical: %t\n", msgpack.IsCanonical(data))
	if err := stx.Txn.Validate(); err != nil {
		fmt.Fprintf(w, "Invalid:   %v\n", err)
	}
	switch {
	case stx.Msig != nil:
		signed := 0
		for _, sub := range stx.Msig.Subsigs {
			if len(sub.Sig) > 0 {
				signed++
			}
		}
		fmt.Fprintf(w, "Multisig:  %d of %d signed, threshold %d\n", signed, len(stx.Msig.Subsigs), stx.Msig.Threshold)
		if err := stx.Msig.CheckVersion(); err != nil {
			fmt.Fprintf(w, "Warning:   %v\n", err)
		}
	case len(stx.Sig) > 0:
		fmt.Fprintln(w, "Signed:    yes")
	default:
		fmt.Fprintln(w, "Signed:    no")
	}
	spewConfig.Fdump(w, stx)
	return nil
}

// showAddress is the address command.
func showAddress(ctx *cli.Context) error {
	if err := flags.CheckExclusive(ctx, qrFlag, countFlag); err != nil {
		return err
	}
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return err
	}
	dev, err := openSession(ctx.Context, &cfg)
	if err != nil {
		return err
	}
	defer dev.Close()

	next := accounts.AccountIterator(accounts.AlgorandPath(cfg.Signer.Account))
	for i := uint(0); i < ctx.Uint(countFlag.Name); i++ {
		path := next()
		index, err := path.AccountIndex()
		if err != nil {
			return err
		}
		addr, err := dev.Address(index, ctx.Bool(confirmFlag.Name))
		if err != nil {
			return err
		}
		if !ctx.Bool(qrFlag.Name) {
			fmt.Fprintf(ctx.App.Writer, "%-20s %v\n", path, addr)
			continue
		}
		qr, err := qrcode.New(addr.String(), qrcode.Medium)
		if err != nil {
			return fmt.Errorf("failed to create QR code: %w", err)
		}
		fmt.Fprint(ctx.App.Writer, qr.ToString(false))
		fmt.Fprintln(ctx.App.Writer, addr)
	}
	return nil
}

// showVersion is the version command.
func showVersion(ctx *cli.Context) error {
	fmt.Fprintln(ctx.App.Writer, "algoledger", version.Info())

	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return err
	}
	dev, err := openSession(ctx.Context, &cfg)
	if err != nil {
		return err
	}
	defer dev.Close()

	vsn, err := dev.Version()
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, vsn)
	return nil
}
