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

package apdu

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// StatusWord is the 16 bit result code trailing every device reply.
type StatusWord uint16

// Status words reported by the Algorand application.
const (
	SWOk                      StatusWord = 0x9000
	SWDeviceBusy              StatusWord = 0x9001
	SWErrorDerivingKeys       StatusWord = 0x6802
	SWExecutionError          StatusWord = 0x6400
	SWWrongLength             StatusWord = 0x6700
	SWEmptyBuffer             StatusWord = 0x6982
	SWOutputBufferTooSmall    StatusWord = 0x6983
	SWDataInvalid             StatusWord = 0x6984
	SWConditionsNotSatisfied  StatusWord = 0x6985
	SWTransactionRejected     StatusWord = 0x6986
	SWBadKeyHandle            StatusWord = 0x6a80
	SWInvalidP1P2             StatusWord = 0x6b00
	SWInstructionNotSupported StatusWord = 0x6d00
	SWAppNotOpen              StatusWord = 0x6e00
	SWUnknown                 StatusWord = 0x6f00
	SWSignVerifyError         StatusWord = 0x6f01
)

// Status words of the legacy application, which rejected oversized payloads
// and oversized fields with dedicated codes instead of SWOutputBufferTooSmall
// and SWDataInvalid. They are only decoded for display.
const (
	SWLegacyPayloadTooLong StatusWord = 0x6a84
	SWLegacyFieldTooLong   StatusWord = 0x6a85
)

var statusText = map[StatusWord]string{
	SWOk:                      "no errors",
	SWDeviceBusy:              "device is busy",
	SWErrorDerivingKeys:       "error deriving keys",
	SWExecutionError:          "execution error",
	SWWrongLength:             "wrong length",
	SWEmptyBuffer:             "empty buffer",
	SWOutputBufferTooSmall:    "output buffer too small",
	SWDataInvalid:             "data is invalid",
	SWConditionsNotSatisfied:  "conditions not satisfied",
	SWTransactionRejected:     "transaction rejected",
	SWBadKeyHandle:            "bad key handle",
	SWInvalidP1P2:             "invalid P1/P2",
	SWInstructionNotSupported: "instruction not supported",
	SWAppNotOpen:              "app does not seem to be open",
	SWUnknown:                 "unknown error",
	SWSignVerifyError:         "sign/verify error",
	SWLegacyPayloadTooLong:    "payload too long (legacy app)",
	SWLegacyFieldTooLong:      "field too long (legacy app)",
}

func (sw StatusWord) String() string {
	if text, ok := statusText[sw]; ok {
		return fmt.Sprintf("%s (0x%04x)", text, uint16(sw))
	}
	return fmt.Sprintf("unknown status word 0x%04x", uint16(sw))
}

// IsRejection reports whether the status word means the user declined the
// request on the device.
func (sw StatusWord) IsRejection() bool {
	return sw == SWConditionsNotSatisfied || sw == SWTransactionRejected
}

// Fault is the error returned when the device answers with a status word other
// than SWOk. Some status words come with an ASCII diagnostic in Data.
type Fault struct {
	SW   StatusWord
	Data []byte
}

func (f *Fault) Error() string {
	if msg := f.Message(); msg != "" {
		return fmt.Sprintf("device error: %v: %s", f.SW, msg)
	}
	return fmt.Sprintf("device error: %v", f.SW)
}

// Message returns the printable diagnostic attached to the fault, if any.
func (f *Fault) Message() string {
	return Printable(f.Data)
}

// IsRejected reports whether err carries a user rejection from the device.
func IsRejected(err error) bool {
	var fault *Fault
	return errors.As(err, &fault) && fault.SW.IsRejection()
}

// Printable renders a device supplied diagnostic, dropping anything that is not
// printable ASCII.
func Printable(b []byte) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, string(b)))
}
