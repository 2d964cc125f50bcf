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

package pn532

import (
	"context"
	"fmt"
	"time"

	"github.com/fabaplus/fabantag/internal/syncutil"
)

// Transport moves one PN532 command and its response across a host link.
// Implementations handle framing, ACK and checksums; SendCommand returns
// the response payload starting with the response code (command + 1).
type Transport interface {
	// SendCommand sends cmd with args and waits for the response.
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)

	// SetTimeout sets how long a response may take.
	SetTimeout(timeout time.Duration) error

	// IsConnected reports whether the link is still open.
	IsConnected() bool

	Close() error
}

// TransportType names a host link.
type TransportType string

const (
	// TransportUART is a serial link, usually a USB adapter.
	TransportUART TransportType = "uart"
	// TransportI2C is an I2C bus.
	TransportI2C TransportType = "i2c"
	// TransportMock is an in-memory link for tests.
	TransportMock TransportType = "mock"
)

// ParseTransportType accepts the names used on the command line and in
// config files.
func ParseTransportType(s string) (TransportType, error) {
	switch TransportType(s) {
	case TransportUART, "serial", "":
		return TransportUART, nil
	case TransportI2C:
		return TransportI2C, nil
	default:
		return "", fmt.Errorf("%w: unknown transport %q", ErrInvalidParameter, s)
	}
}

// ResponseFunc computes a response from the command arguments.
type ResponseFunc func(args []byte) ([]byte, error)

// MockTransport is a scripted Transport for tests. Responses are looked up
// by command code; commands without one get a bare success response.
type MockTransport struct {
	responses map[byte][]byte
	funcs     map[byte]ResponseFunc
	errorMap  map[byte]error
	callCount map[byte]int
	lastArgs  map[byte][]byte
	timeout   time.Duration
	mu        syncutil.RWMutex
	connected bool
}

// NewMockTransport creates a connected mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
		responses: make(map[byte][]byte),
		funcs:     make(map[byte]ResponseFunc),
		errorMap:  make(map[byte]error),
		callCount: make(map[byte]int),
		lastArgs:  make(map[byte][]byte),
	}
}

// SendCommand implements Transport.
func (m *MockTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrTransportClosed
	}
	m.callCount[cmd]++
	m.lastArgs[cmd] = append([]byte(nil), args...)

	if err, ok := m.errorMap[cmd]; ok {
		return nil, err
	}
	if fn, ok := m.funcs[cmd]; ok {
		return fn(args)
	}
	if response, ok := m.responses[cmd]; ok {
		return append([]byte(nil), response...), nil
	}
	return []byte{cmd + 1, 0x00}, nil
}

// Close implements Transport.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// SetTimeout implements Transport.
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// Timeout returns the last timeout set.
func (m *MockTransport) Timeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeout
}

// IsConnected implements Transport.
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SetResponse configures a fixed response for cmd.
func (m *MockTransport) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = response
}

// SetResponseFunc configures a computed response for cmd.
func (m *MockTransport) SetResponseFunc(cmd byte, fn ResponseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[cmd] = fn
}

// SetError makes cmd fail with err.
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMap[cmd] = err
}

// ClearError removes error injection for cmd.
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errorMap, cmd)
}

// GetCallCount returns how many times cmd was sent.
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[cmd]
}

// LastArgs returns the arguments of the most recent cmd.
func (m *MockTransport) LastArgs(cmd byte) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.lastArgs[cmd]...)
}

// Reset clears every response, error and counter.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[byte][]byte)
	m.funcs = make(map[byte]ResponseFunc)
	m.errorMap = make(map[byte]error)
	m.callCount = make(map[byte]int)
	m.lastArgs = make(map[byte][]byte)
	m.connected = true
}

var _ Transport = (*MockTransport)(nil)
