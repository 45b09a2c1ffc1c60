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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/algoledger/signer/apdu"
)

// AppName is the name the Algorand application reports about itself.
const AppName = "Algorand"

// appInfoFormat is the only app info reply layout devices are known to use.
const appInfoFormat = 1

var (
	// ErrAppNotOpen is returned if the device runs something other than the
	// Algorand application, typically the dashboard.
	ErrAppNotOpen = errors.New("ledger: Algorand app is not open")

	// ErrDashboardOnly is returned by DeviceInfo while an application runs.
	ErrDashboardOnly = errors.New("ledger: device info is only available in the dashboard")

	errInvalidAppInfoReply    = errors.New("ledger: invalid app info reply")
	errInvalidDeviceInfoReply = errors.New("ledger: invalid device info reply")
)

// AppInfo describes the application currently running on the device.
type AppInfo struct {
	Name    string
	Version string
	Flags   byte
}

func (a AppInfo) Recovery() bool      { return a.Flags&0x01 != 0 }
func (a AppInfo) SignedMCUCode() bool { return a.Flags&0x02 != 0 }
func (a AppInfo) Onboarded() bool     { return a.Flags&0x04 != 0 }
func (a AppInfo) PINValidated() bool  { return a.Flags&0x80 != 0 }

// AppInfo asks the device OS which application is running.
//
//	CLA | INS | P1 | P2 | Lc
//	----+-----+----+----+---
//	 b0 | 01  | 00 | 00 | 00
//
// With the output data being:
//
//	Description                 | Length
//	----------------------------+--------
//	Format (always 1)           | 1 byte
//	Name length, name           | 1 + n bytes
//	Version length, version     | 1 + n bytes
//	Flags length, flags         | 1 + n bytes
func (c *Client) AppInfo() (AppInfo, error) {
	reply, err := c.exchange(apdu.CLABolos, apdu.InsAppInfo, 0, nil, c.config.Timeout)
	if err != nil {
		return AppInfo{}, err
	}
	if len(reply) < 1 || reply[0] != appInfoFormat {
		return AppInfo{}, errInvalidAppInfoReply
	}
	var (
		fields [3][]byte
		rest   = reply[1:]
		ok     bool
	)
	for i := range fields {
		if fields[i], rest, ok = splitField(rest); !ok {
			return AppInfo{}, errInvalidAppInfoReply
		}
	}
	info := AppInfo{Name: string(fields[0]), Version: string(fields[1])}
	if len(fields[2]) > 0 {
		info.Flags = fields[2][0]
	}
	return info, nil
}

// CheckApp returns ErrAppNotOpen unless the Algorand application is running.
func (c *Client) CheckApp() error {
	info, err := c.AppInfo()
	if err != nil {
		return err
	}
	if info.Name != AppName {
		return fmt.Errorf("%w, device runs %q", ErrAppNotOpen, info.Name)
	}
	return nil
}

// DeviceInfo describes the device firmware.
type DeviceInfo struct {
	TargetID   uint32
	SEVersion  string // Secure element firmware version
	Flags      []byte
	MCUVersion string
}

// DeviceInfo retrieves the firmware details from the dashboard. While an
// application runs the device refuses the command and ErrDashboardOnly is
// returned.
//
//	CLA | INS | P1 | P2 | Lc
//	----+-----+----+----+---
//	 e0 | 01  | 00 | 00 | 00
//
// With the output data being the 4 byte big endian target id followed by the
// length prefixed secure element version, flags and MCU version.
func (c *Client) DeviceInfo() (DeviceInfo, error) {
	reply, err := c.exchange(apdu.CLADashboard, apdu.InsDeviceInfo, 0, nil, c.config.Timeout)
	if err != nil {
		var fault *apdu.Fault
		if errors.As(err, &fault) && fault.SW == apdu.SWAppNotOpen {
			return DeviceInfo{}, ErrDashboardOnly
		}
		return DeviceInfo{}, err
	}
	if len(reply) < 4 {
		return DeviceInfo{}, errInvalidDeviceInfoReply
	}
	var (
		fields [3][]byte
		rest   = reply[4:]
		ok     bool
	)
	for i := range fields {
		if fields[i], rest, ok = splitField(rest); !ok {
			return DeviceInfo{}, errInvalidDeviceInfoReply
		}
	}
	mcu := fields[2]
	if n := len(mcu); n > 0 && mcu[n-1] == 0 {
		mcu = mcu[:n-1]
	}
	return DeviceInfo{
		TargetID:   binary.BigEndian.Uint32(reply),
		SEVersion:  string(fields[0]),
		Flags:      append([]byte(nil), fields[1]...),
		MCUVersion: string(mcu),
	}, nil
}

// splitField cuts a one byte length prefixed field off the front of b.
func splitField(b []byte) (field, rest []byte, ok bool) {
	if len(b) < 1 || len(b) < 1+int(b[0]) {
		return nil, nil, false
	}
	n := int(b[0])
	return b[1 : 1+n], b[1+n:], true
}
