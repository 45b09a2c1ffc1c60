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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/algoledger/signer/apdu"
	"github.com/algoledger/signer/cmd/utils"
	"github.com/algoledger/signer/internal/flags"
	"github.com/algoledger/signer/ledger"
	"github.com/algoledger/signer/signer"
	"github.com/algoledger/signer/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// loadWith runs loadBaseConfig against the given command line.
func loadWith(t *testing.T, args ...string) (signerConfig, error) {
	t.Helper()

	var (
		cfg signerConfig
		err error
	)
	app := &cli.App{
		Flags: flags.Merge([]cli.Flag{utils.ConfigFileFlag}, utils.DeviceFlags, utils.SigningFlags),
		Action: func(ctx *cli.Context) error {
			cfg, err = loadBaseConfig(ctx)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	return cfg, err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := loadWith(t)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, "hid", cfg.Device.Transport)
	assert.Equal(t, "127.0.0.1:9999", cfg.Device.TCPAddr)
	assert.Equal(t, 20*time.Second, cfg.Ledger.Timeout)
	assert.Zero(t, cfg.Ledger.ConfirmTimeout)
	assert.Equal(t, 250, cfg.Ledger.ChunkSize)
}

func TestConfigLayers(t *testing.T) {
	file := writeConfig(t, `
[Device]
Transport = "tcp"
TCPAddr = "10.0.0.1:9999"

[Ledger]
ChunkSize = 100

[Signer]
Account = 1
LockFile = "/tmp/file.lock"
`)
	// File only.
	cfg, err := loadWith(t, "--config", file)
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Device.Transport)
	assert.Equal(t, "10.0.0.1:9999", cfg.Device.TCPAddr)
	assert.Equal(t, 100, cfg.Ledger.ChunkSize)
	assert.Equal(t, uint32(1), cfg.Signer.Account)
	assert.Equal(t, "/tmp/file.lock", cfg.Signer.LockFile)

	// The environment beats the file.
	t.Setenv("ALGOLEDGER_SIGNER_ACCOUNT", "2")
	t.Setenv("ALGOLEDGER_LEDGER_TIMEOUT", "5s")
	t.Setenv("ALGOLEDGER_LEDGER_CONFIRMTIMEOUT", "2m")
	cfg, err = loadWith(t, "--config", file)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), cfg.Signer.Account)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Ledger.ConfirmTimeout)
	assert.Equal(t, 100, cfg.Ledger.ChunkSize)

	// Flags beat the environment.
	cfg, err = loadWith(t, "--config", file, "--account", "3", "--chunksize", "50", "--tcp.addr", "localhost:1", "--timeout.confirm", "90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Ledger.ConfirmTimeout)
	assert.Equal(t, uint32(3), cfg.Signer.Account)
	assert.Equal(t, 50, cfg.Ledger.ChunkSize)
	assert.Equal(t, "localhost:1", cfg.Device.TCPAddr)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Timeout)
}

func TestConfigErrors(t *testing.T) {
	file := writeConfig(t, "[Device]\nPort = 1\n")
	_, err := loadWith(t, "--config", file)
	assert.ErrorContains(t, err, file)
	assert.ErrorContains(t, err, "Port")

	_, err = loadWith(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = loadWith(t, "--transport", "bluetooth")
	assert.ErrorContains(t, err, "unknown transport")

	for _, size := range []string{"0", "251"} {
		_, err = loadWith(t, "--chunksize", size)
		assert.ErrorIs(t, err, apdu.ErrInvalidChunkSize, size)
	}

	_, err = loadWith(t, "--timeout.confirm=-1s")
	assert.ErrorContains(t, err, "negative confirmation timeout")

	t.Setenv("ALGOLEDGER_LEDGER_CHUNKSIZE", "many")
	_, err = loadWith(t)
	assert.ErrorContains(t, err, "invalid environment")
}

func TestDumpConfig(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "dump.toml")
	err := app.Run([]string{"algoledger", "dumpconfig", "--transport", "tcp", "--account", "7", "--timeout", "3s", dump})
	require.NoError(t, err)

	cfg := signerConfig{}
	require.NoError(t, loadConfig(dump, &cfg))

	want := defaultConfig()
	want.Device.Transport = "tcp"
	want.Signer.Account = 7
	want.Ledger.Timeout = 3 * time.Second
	assert.Equal(t, want, cfg)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{&apdu.Fault{SW: apdu.SWConditionsNotSatisfied}, exitRejected, "Transaction rejected on the device"},
		{fmt.Errorf("chunk 2/3: %w", &apdu.Fault{SW: apdu.SWTransactionRejected}), exitRejected, "Transaction rejected on the device"},
		{&apdu.Fault{SW: apdu.SWDataInvalid}, exitDevice, "Device reported an error: "},
		{&ledger.SignedButReportedError{Message: "fee too high"}, exitDevice, "Device reported an error: fee too high"},
		{fmt.Errorf("sign: %w", txn.ErrSignatureVerificationFailed), exitVerify, "Signature could not be verified: "},
		{txn.ErrNoMatchingMultisigSlot, exitFailure, txn.ErrNoMatchingMultisigSlot.Error()},
		{signer.ErrDeviceBusy, exitFailure, signer.ErrDeviceBusy.Error()},
		{fmt.Errorf("%w, device runs \"BOLOS\"", ledger.ErrAppNotOpen), exitDevice, "Open the Algorand app on the device"},
	}
	for _, test := range tests {
		code, msg := exitStatus(test.err)
		assert.Equal(t, test.code, code, test.err.Error())
		assert.Contains(t, msg, test.msg)
	}
}
