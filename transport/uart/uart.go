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

// Package uart talks to a PN532 over a serial link (HSU mode, 115200 8N1),
// usually a USB adapter.
package uart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fabaplus/fabantag/internal/frame"
	"github.com/fabaplus/fabantag/internal/syncutil"
	"github.com/fabaplus/fabantag/pn532"
	"go.bug.st/serial"
)

const (
	// BaudRate is the PN532 HSU default.
	BaudRate = 115200
	// maxNacks bounds retransmission requests for one response.
	maxNacks = 3
	// idlePause is the wait after an empty read.
	idlePause = 2 * time.Millisecond
)

// wakeUpSequence brings the PN532 out of power down: 0x55 and enough
// zeros for the oscillator to start.
var wakeUpSequence = append([]byte{0x55}, make([]byte, 15)...)

// readSlice is how long one port read blocks. Windows drivers need longer.
func readSlice() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// Transport implements pn532.Transport over a serial port.
type Transport struct {
	port     serial.Port
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
	closed   bool
}

// New opens portName at 115200 8N1.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("%w: %s", pn532.ErrDeviceNotFound, portName)
		}
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already open port.
func NewWithPort(port serial.Port, portName string) (*Transport, error) {
	if err := port.SetReadTimeout(readSlice()); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return &Transport{
		port:     port,
		portName: portName,
		timeout:  time.Second,
	}, nil
}

// Factory adapts New to pn532.TransportFactory.
func Factory(path string) (pn532.Transport, error) {
	return New(path)
}

// SendCommand implements pn532.Transport. The response must arrive before
// both the transport timeout and ctx expire.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, pn532.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := t.sendFrame(cmd, args); err != nil {
		return nil, err
	}

	res, err := t.receiveResponse(ctx, cmd, deadline)
	if err != nil {
		return nil, err
	}
	if err := t.write(frame.AckFrame, "sendAck"); err != nil {
		return nil, err
	}
	return res, nil
}

func (t *Transport) sendFrame(cmd byte, args []byte) error {
	frm, err := frame.EncodeCommand(cmd, args)
	if err != nil {
		return pn532.NewDataTooLargeError("sendFrame", t.portName)
	}
	pn532.Debugf("UART TX % X", frm)

	if err := t.write(wakeUpSequence, "wakeUp"); err != nil {
		return err
	}
	return t.write(frm, "sendFrame")
}

func (t *Transport) write(data []byte, op string) error {
	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("UART %s write failed: %w", op, err)
	}
	if n != len(data) {
		return pn532.NewTransportWriteError(op, t.portName)
	}
	if runtime.GOOS == "windows" {
		// buffers need time to flush on Windows drivers
		time.Sleep(15 * time.Millisecond)
	}
	return t.drainWithRetry(op)
}

// receiveResponse reads until a response frame parses. ACK frames are
// skipped as they arrive; some firmware sends the response first. A bad
// checksum is answered with NACK so the PN532 repeats the frame.
func (t *Transport) receiveResponse(ctx context.Context, cmd byte, deadline time.Time) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 2*frame.MaxDataLength)
	acked := false
	nacks := 0

	for {
		if !acked && bytes.Contains(buf, frame.AckFrame) {
			acked = true
		}

		if len(buf) > 0 {
			payload, consumed, err := frame.Parse(buf, frame.PN532ToHost)
			switch {
			case err == nil:
				pn532.Debugf("UART RX % X", payload)
				return payload, nil
			case errors.Is(err, frame.ErrChecksum):
				if nacks >= maxNacks {
					return nil, pn532.NewTransportError("receiveFrame", t.portName,
						pn532.ErrChecksumMismatch, pn532.ErrorTypeTransient)
				}
				nacks++
				buf = nil
				if err := t.write(frame.NackFrame, "sendNack"); err != nil {
					return nil, err
				}
				continue
			case errors.Is(err, frame.ErrApplication):
				return nil, pn532.NewPN532Error(0x7F, fmt.Sprintf("command 0x%02X", cmd), "syntax error frame")
			case errors.Is(err, frame.ErrUnexpectedTFI):
				buf = buf[consumed:]
				continue
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("UART receive: %w", err)
		}
		if time.Now().After(deadline) {
			return t.timedOut(cmd, acked)
		}

		n, err := t.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("UART read failed: %w", err)
		}
		if n == 0 {
			time.Sleep(idlePause)
			continue
		}
		buf = append(buf, chunk[:n]...)
	}
}

// timedOut reports a missing response. Some firmware stays silent after
// acknowledging InListPassiveTarget when the field is empty, which is
// answered as "no targets".
func (t *Transport) timedOut(cmd byte, acked bool) ([]byte, error) {
	switch {
	case !acked:
		return nil, pn532.NewNoACKError("waitAck", t.portName)
	case cmd == 0x4A:
		return []byte{0x4B, 0x00}, nil
	default:
		return nil, pn532.NewTimeoutError("receiveFrame", t.portName)
	}
}

// SetTimeout implements pn532.Transport.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close implements pn532.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected implements pn532.Transport.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// PortName returns the port the transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "interrupted system call") || strings.Contains(s, "eintr")
}

// drainWithRetry waits for written bytes to leave, retrying on EINTR.
func (t *Transport) drainWithRetry(op string) error {
	const maxRetries = 3
	delay := 2 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = t.port.Drain(); err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			break
		}
		if attempt < maxRetries-1 {
			time.Sleep(delay << attempt)
		}
	}
	return fmt.Errorf("UART %s drain failed: %w", op, err)
}

var _ pn532.Transport = (*Transport)(nil)
