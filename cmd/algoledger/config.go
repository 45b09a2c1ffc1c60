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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/algoledger/signer/apdu"
	"github.com/algoledger/signer/cmd/utils"
	"github.com/algoledger/signer/internal/flags"
	"github.com/algoledger/signer/ledger"
	"github.com/algoledger/signer/signer"
	"github.com/kelseyhightower/envconfig"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

// envPrefix prefixes the environment variables overriding the configuration,
// e.g. ALGOLEDGER_DEVICE_TRANSPORT or ALGOLEDGER_SIGNER_ACCOUNT.
const envPrefix = "ALGOLEDGER"

// Device transports.
const (
	transportHID = "hid"
	transportTCP = "tcp"
)

var dumpConfigCommand = &cli.Command{
	Action:      dumpConfig,
	Name:        "dumpconfig",
	Usage:       "Export configuration values in a TOML format",
	ArgsUsage:   "<dumpfile (optional)>",
	Flags:       flags.Merge([]cli.Flag{utils.ConfigFileFlag}, utils.DeviceFlags, utils.SigningFlags),
	Description: `Export configuration values in TOML format (to stdout by default).`,
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type deviceConfig struct {
	Transport string // hid or tcp
	TCPAddr   string // Speculos APDU port
}

type signerConfig struct {
	Device deviceConfig
	Ledger ledger.Config
	Signer signer.Config
}

func defaultConfig() signerConfig {
	return signerConfig{
		Device: deviceConfig{
			Transport: transportHID,
			TCPAddr:   utils.TCPAddrFlag.Value,
		},
		Ledger: ledger.Config{
			ChunkSize: apdu.DefaultChunkSize,
			Timeout:   ledger.DefaultTCPTimeout,
		},
	}
}

func loadConfig(file string, cfg *signerConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// loadBaseConfig assembles the configuration from the defaults, the config
// file, the environment and the command line flags, in increasing priority.
func loadBaseConfig(ctx *cli.Context) (signerConfig, error) {
	cfg := defaultConfig()

	if ctx.IsSet(utils.ConfigFileFlag.Name) {
		if err := loadConfig(flags.GlobalPath(ctx, utils.ConfigFileFlag.Name), &cfg); err != nil {
			return cfg, err
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid environment: %v", err)
	}
	setDeviceConfig(ctx, &cfg.Device)
	utils.SetLedgerConfig(ctx, &cfg.Ledger)
	utils.SetSignerConfig(ctx, &cfg.Signer)

	return cfg, cfg.validate()
}

func setDeviceConfig(ctx *cli.Context, cfg *deviceConfig) {
	if ctx.IsSet(utils.TransportFlag.Name) {
		cfg.Transport = ctx.String(utils.TransportFlag.Name)
	}
	if ctx.IsSet(utils.TCPAddrFlag.Name) {
		cfg.TCPAddr = ctx.String(utils.TCPAddrFlag.Name)
	}
}

func (cfg *signerConfig) validate() error {
	switch cfg.Device.Transport {
	case transportHID, transportTCP:
	default:
		return fmt.Errorf("unknown transport %q, want %s or %s", cfg.Device.Transport, transportHID, transportTCP)
	}
	if cfg.Ledger.ChunkSize < 1 || cfg.Ledger.ChunkSize > apdu.DefaultChunkSize {
		return fmt.Errorf("%w: %d", apdu.ErrInvalidChunkSize, cfg.Ledger.ChunkSize)
	}
	if cfg.Ledger.Timeout < 0 {
		return fmt.Errorf("negative timeout %v", cfg.Ledger.Timeout)
	}
	if cfg.Ledger.ConfirmTimeout < 0 {
		return fmt.Errorf("negative confirmation timeout %v", cfg.Ledger.ConfirmTimeout)
	}
	return nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	dump := ctx.App.Writer
	if ctx.NArg() > 0 {
		f, err := os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		dump = f
	}
	_, err = dump.Write(out)
	return err
}
