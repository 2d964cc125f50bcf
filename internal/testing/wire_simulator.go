// fabantag
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of fabantag.
//
// fabantag is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// fabantag is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with fabantag; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fabaplus/fabantag"
	"github.com/fabaplus/fabantag/internal/frame"
	"github.com/fabaplus/fabantag/internal/syncutil"
)

// PN532 status codes returned in InDataExchange responses
const (
	StatusOK      = 0x00
	StatusTimeout = 0x01
	StatusNAK     = 0x14 // card refused the command
)

// VirtualPN532 simulates a PN532 on the host link. It implements
// io.ReadWriter: the host writes frames, the simulator queues an ACK and a
// response frame, and Read hands them back. Read returns 0, nil when
// nothing is queued, the way a serial port does on read timeout.
//
// Only the commands needed to drive an NTAG are answered; anything else
// gets a syntax error frame.
type VirtualPN532 struct {
	tag                 *VirtualTag
	lastResponse        []byte
	commands            []byte
	rxBuffer            bytes.Buffer
	txBuffer            bytes.Buffer
	mu                  syncutil.Mutex
	firmware            [4]byte
	samConfigured       bool
	rfConfigured        bool
	injectChecksumError bool
	dropNextACK         bool
	silentEmptyPoll     bool
}

// NewVirtualPN532 creates a simulator reporting firmware PN532 v1.6 with
// no tag in the field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{firmware: [4]byte{0x32, 0x01, 0x06, 0x07}}
}

// SetTag places tag in the field; nil empties it.
func (v *VirtualPN532) SetTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
}

// SetFirmwareVersion configures the GetFirmwareVersion answer.
func (v *VirtualPN532) SetFirmwareVersion(ic, ver, rev, support byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware = [4]byte{ic, ver, rev, support}
}

// InjectChecksumError corrupts the data checksum of the next response.
func (v *VirtualPN532) InjectChecksumError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectChecksumError = true
}

// DropNextACK skips the ACK for the next command.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

// SilentEmptyPoll makes InListPassiveTarget send no response at all when
// no tag answers, as some clone firmware does.
func (v *VirtualPN532) SilentEmptyPoll(silent bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.silentEmptyPoll = silent
}

// Configured reports whether SAMConfiguration and RFConfiguration ran.
func (v *VirtualPN532) Configured() (sam, rf bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.samConfigured, v.rfConfigured
}

// Commands returns the command codes received so far.
func (v *VirtualPN532) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// HasPendingResponse reports whether Read has data to return.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// Write implements io.Writer.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read implements io.Reader.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, err := v.txBuffer.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read from tx buffer: %w", err)
	}
	return n, nil
}

func (v *VirtualPN532) processReceivedData() {
	for {
		data := v.rxBuffer.Bytes()
		start := frame.FindStart(data)
		if start < 0 {
			// keep a trailing 00 that may begin the next start code
			if n := len(data); n > 0 && data[n-1] == frame.StartCode1 {
				v.rxBuffer.Next(n - 1)
			} else {
				v.rxBuffer.Reset()
			}
			return
		}
		// drop the wake-up sequence, keeping one preamble byte
		if start > 1 {
			v.rxBuffer.Next(start - 1)
			data = v.rxBuffer.Bytes()
		}

		switch {
		case frame.IsAck(data):
			v.rxBuffer.Next(len(frame.AckFrame))
			continue
		case frame.IsNack(data):
			v.rxBuffer.Next(len(frame.NackFrame))
			if v.lastResponse != nil {
				v.txBuffer.Write(v.lastResponse)
			}
			continue
		}

		payload, consumed, err := frame.Parse(data, frame.HostToPN532)
		switch {
		case errors.Is(err, frame.ErrIncomplete):
			return
		case err != nil:
			v.rxBuffer.Next(max(consumed, 1))
			continue
		}

		v.rxBuffer.Next(consumed)
		v.processCommand(payload)
	}
}

func (v *VirtualPN532) processCommand(payload []byte) {
	if len(payload) == 0 {
		v.sendErrorFrame()
		return
	}

	if !v.dropNextACK {
		v.txBuffer.Write(frame.AckFrame)
	}
	v.dropNextACK = false

	cmd, params := payload[0], payload[1:]
	v.commands = append(v.commands, cmd)

	response := v.exchange(cmd, params)
	switch {
	case response != nil:
		v.sendResponse(response)
	case !knownCommand(cmd):
		v.sendErrorFrame()
	}
}

func knownCommand(cmd byte) bool {
	switch cmd {
	case CmdGetFirmwareVersion, CmdSAMConfiguration, CmdRFConfiguration,
		CmdInListPassiveTarget, CmdInDataExchange, CmdInRelease:
		return true
	default:
		return false
	}
}

// Exchange answers one command without any framing. It returns the
// response payload starting with the response code, or nil when the
// simulator stays silent.
func (v *VirtualPN532) Exchange(cmd byte, params []byte) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commands = append(v.commands, cmd)
	return v.exchange(cmd, params)
}

func (v *VirtualPN532) exchange(cmd byte, params []byte) []byte {
	switch cmd {
	case CmdGetFirmwareVersion:
		return BuildFirmwareVersionResponse(v.firmware[0], v.firmware[1], v.firmware[2], v.firmware[3])
	case CmdSAMConfiguration:
		if len(params) < 1 {
			return nil
		}
		v.samConfigured = true
		return []byte{CmdSAMConfiguration + 1}
	case CmdRFConfiguration:
		v.rfConfigured = true
		return []byte{CmdRFConfiguration + 1}
	case CmdInListPassiveTarget:
		return v.handleInListPassiveTarget()
	case CmdInDataExchange:
		return v.handleInDataExchange(params)
	case CmdInRelease:
		return []byte{CmdInRelease + 1, StatusOK}
	default:
		return nil
	}
}

func (v *VirtualPN532) handleInListPassiveTarget() []byte {
	if v.tag == nil {
		if v.silentEmptyPoll {
			return nil
		}
		return BuildNoTagResponse()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	uid, err := v.tag.ReadPassiveTarget(ctx)
	if err != nil || len(uid) == 0 {
		if v.silentEmptyPoll {
			return nil
		}
		return BuildNoTagResponse()
	}
	return BuildTagDetectionResponse(uid)
}

func (v *VirtualPN532) handleInDataExchange(params []byte) []byte {
	if len(params) < 3 || v.tag == nil {
		return BuildDataExchangeError(StatusTimeout)
	}

	page := int(params[2])
	switch params[1] {
	case NTAGCmdRead:
		data, err := v.tag.ReadBlock16(page)
		if err != nil {
			return BuildDataExchangeError(statusFor(err))
		}
		return BuildDataExchangeResponse(data)
	case NTAGCmdWrite:
		if len(params) != 3+fabantag.PageSize {
			return BuildDataExchangeError(StatusNAK)
		}
		if err := v.tag.WriteBlock(page, params[3:]); err != nil {
			return BuildDataExchangeError(statusFor(err))
		}
		return BuildDataExchangeResponse(nil)
	default:
		return BuildDataExchangeError(StatusNAK)
	}
}

func statusFor(err error) byte {
	if errors.Is(err, fabantag.ErrReaderClosed) {
		return StatusTimeout
	}
	return StatusNAK
}

func (v *VirtualPN532) sendResponse(payload []byte) {
	frm, err := frame.Encode(frame.PN532ToHost, payload)
	if err != nil {
		v.sendErrorFrame()
		return
	}
	v.lastResponse = append([]byte(nil), frm...)
	if v.injectChecksumError {
		frm[len(frm)-2]++
		v.injectChecksumError = false
	}
	v.txBuffer.Write(frm)
}

// sendErrorFrame queues the PN532 syntax error frame.
func (v *VirtualPN532) sendErrorFrame() {
	frm := []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, frame.ErrorTFI, 0x81, 0x00}
	v.lastResponse = frm
	v.txBuffer.Write(frm)
}
