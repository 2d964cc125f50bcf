// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package i2c talks to a PN532 on an I2C bus through periph.io.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fabaplus/fabantag/internal/frame"
	"github.com/fabaplus/fabantag/internal/syncutil"
	"github.com/fabaplus/fabantag/pn532"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// pn532Addr is the 7-bit address. The datasheet lists 0x48, the 8-bit
	// write address.
	pn532Addr = 0x24

	// pn532Ready is the status byte prefixed to every read once data waits.
	pn532Ready = 0x01

	maxClockFreq = 400 * physic.KiloHertz

	// maxReadLen covers the status byte and the longest normal frame.
	maxReadLen = 1 + frame.MaxDataLength + frame.Overhead

	maxNacks  = 3
	readyPoll = time.Millisecond
)

// Transport implements pn532.Transport over I2C.
type Transport struct {
	bus     i2c.BusCloser
	dev     *i2c.Dev
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
}

// parseI2CPath accepts "/dev/i2c-1:0x24" as produced by detection, or a
// bare bus name.
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens busName. An empty name picks the first bus periph finds.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	// not every adapter accepts 400kHz; the default speed still works
	_ = bus.SetSpeed(maxClockFreq)

	return NewWithBus(bus, busName), nil
}

// NewWithBus wraps an open bus.
func NewWithBus(bus i2c.BusCloser, busName string) *Transport {
	return &Transport{
		bus:     bus,
		dev:     &i2c.Dev{Addr: pn532Addr, Bus: bus},
		busName: busName,
		timeout: time.Second,
	}
}

// Factory adapts New to pn532.TransportFactory.
func Factory(path string) (pn532.Transport, error) {
	return New(path)
}

// SendCommand implements pn532.Transport.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return nil, pn532.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	frm, err := frame.EncodeCommand(cmd, args)
	if err != nil {
		return nil, pn532.NewDataTooLargeError("sendFrame", t.busName)
	}
	pn532.Debugf("I2C TX % X", frm)
	if err := t.dev.Tx(frm, nil); err != nil {
		return nil, fmt.Errorf("failed to send I2C frame: %w", err)
	}

	if err := t.waitAck(ctx, deadline); err != nil {
		return nil, err
	}

	res, err := t.receiveFrame(ctx, deadline)
	switch {
	case errors.Is(err, pn532.ErrTransportTimeout) && cmd == 0x4A:
		// silent poll: no target answered
		return []byte{0x4B, 0x00}, nil
	case err != nil:
		return nil, err
	}

	if err := t.dev.Tx(frame.AckFrame, nil); err != nil {
		return nil, fmt.Errorf("failed to send ACK: %w", err)
	}
	return res, nil
}

// waitReady polls the status byte until the PN532 has data.
func (t *Transport) waitReady(ctx context.Context, deadline time.Time) error {
	status := make([]byte, 1)
	for {
		if err := t.dev.Tx(nil, status); err != nil {
			return fmt.Errorf("I2C ready check failed: %w", err)
		}
		if status[0] == pn532Ready {
			return nil
		}
		if time.Now().After(deadline) {
			return pn532.NewTimeoutError("waitReady", t.busName)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPoll):
		}
	}
}

// read performs one read transaction and strips the status byte. Every
// transaction restarts at the beginning of the PN532 output buffer, so a
// frame must be read in one go.
func (t *Transport) read(n int) ([]byte, error) {
	buf := make([]byte, 1+n)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, fmt.Errorf("I2C read failed: %w", err)
	}
	if buf[0] != pn532Ready {
		return nil, pn532.NewFrameCorruptedError("read", t.busName)
	}
	return buf[1:], nil
}

func (t *Transport) waitAck(ctx context.Context, deadline time.Time) error {
	if err := t.waitReady(ctx, deadline); err != nil {
		if errors.Is(err, pn532.ErrTransportTimeout) {
			return pn532.NewNoACKError("waitAck", t.busName)
		}
		return err
	}
	buf, err := t.read(len(frame.AckFrame))
	if err != nil {
		return err
	}
	if !frame.IsAck(buf) {
		return pn532.NewNoACKError("waitAck", t.busName)
	}
	return nil
}

// receiveFrame reads the response, asking for a resend on checksum errors.
func (t *Transport) receiveFrame(ctx context.Context, deadline time.Time) ([]byte, error) {
	for nacks := 0; ; nacks++ {
		if err := t.waitReady(ctx, deadline); err != nil {
			return nil, err
		}
		buf, err := t.read(maxReadLen - 1)
		if err != nil {
			return nil, err
		}

		payload, _, err := frame.Parse(buf, frame.PN532ToHost)
		switch {
		case err == nil:
			pn532.Debugf("I2C RX % X", payload)
			return payload, nil
		case errors.Is(err, frame.ErrApplication):
			return nil, pn532.NewPN532Error(0x7F, "I2C", "syntax error frame")
		case errors.Is(err, frame.ErrChecksum), errors.Is(err, frame.ErrIncomplete),
			errors.Is(err, frame.ErrNoStart):
			if nacks >= maxNacks {
				return nil, pn532.NewTransportError("receiveFrame", t.busName,
					pn532.ErrChecksumMismatch, pn532.ErrorTypeTransient)
			}
			if err := t.dev.Tx(frame.NackFrame, nil); err != nil {
				return nil, fmt.Errorf("failed to send NACK: %w", err)
			}
		default:
			return nil, pn532.NewInvalidResponseError("receiveFrame", t.busName)
		}
	}
}

// SetTimeout implements pn532.Transport.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close releases the bus file descriptor.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bus == nil {
		return nil
	}
	err := t.bus.Close()
	t.bus = nil
	t.dev = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// IsConnected implements pn532.Transport.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

var _ pn532.Transport = (*Transport)(nil)
