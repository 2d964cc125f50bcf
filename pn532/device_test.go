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
	"errors"
	"testing"
	"time"

	"github.com/fabaplus/fabantag"
	testutil "github.com/fabaplus/fabantag/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func newMockDevice(t *testing.T) (*Device, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	mock.SetResponse(cmdGetFirmwareVersion, testutil.BuildFirmwareVersionResponse(0x32, 0x01, 0x06, 0x07))
	device, err := New(mock, WithRetryConfig(fastRetry()), WithPollTimeout(50*time.Millisecond))
	require.NoError(t, err)
	return device, mock
}

// simTransport answers commands from a VirtualPN532 without framing.
type simTransport struct {
	sim    *testutil.VirtualPN532
	closed bool
}

func (s *simTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := s.sim.Exchange(cmd, args)
	if res == nil {
		return nil, NewTimeoutError("SendCommand", "sim")
	}
	return res, nil
}

func (*simTransport) SetTimeout(time.Duration) error { return nil }
func (s *simTransport) IsConnected() bool            { return !s.closed }
func (s *simTransport) Close() error {
	s.closed = true
	return nil
}

func newSimDevice(t *testing.T, tag *testutil.VirtualTag) (*Device, *testutil.VirtualPN532) {
	t.Helper()
	sim := testutil.NewVirtualPN532()
	sim.SetTag(tag)
	device, err := New(&simTransport{sim: sim}, WithRetryConfig(fastRetry()))
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))
	return device, sim
}

func TestNewAppliesTimeout(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	_, err := New(mock, WithTimeout(250*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, mock.Timeout())

	_, err = New(mock, WithTimeout(0))
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestInit(t *testing.T) {
	t.Parallel()
	device, mock := newMockDevice(t)

	require.NoError(t, device.Init(context.Background()))
	assert.Equal(t, 1, mock.GetCallCount(cmdGetFirmwareVersion))
	assert.Equal(t, samNormalMode, mock.LastArgs(cmdSAMConfiguration))
	assert.Equal(t, []byte{0x05, 0x00, 0x01, 0x02}, mock.LastArgs(cmdRFConfiguration))

	version, err := device.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PN532 v1.6", version)
}

func TestInitRejectsOtherIC(t *testing.T) {
	t.Parallel()
	device, mock := newMockDevice(t)
	mock.SetResponse(cmdGetFirmwareVersion, []byte{0x03, 0x31, 0x01, 0x06, 0x07})

	err := device.Init(context.Background())
	require.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, 1, mock.GetCallCount(cmdGetFirmwareVersion), "permanent errors are not retried")
}

func TestInitRetriesTimeouts(t *testing.T) {
	t.Parallel()
	device, mock := newMockDevice(t)
	mock.SetError(cmdGetFirmwareVersion, NewTimeoutError("SendCommand", "mock"))

	err := device.Init(context.Background())
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 3, mock.GetCallCount(cmdGetFirmwareVersion))
}

func TestInitToleratesRFConfigurationFailure(t *testing.T) {
	t.Parallel()
	device, mock := newMockDevice(t)
	mock.SetError(cmdRFConfiguration, NewPN532Error(0x27, "RFConfiguration", ""))

	require.NoError(t, device.Init(context.Background()))
}

func TestReadPassiveTarget(t *testing.T) {
	t.Parallel()
	uid := []byte{0x04, 0x74, 0x2F, 0xF1, 0x78, 0x00, 0x00}

	tests := []struct {
		wantErr  error
		setup    func(m *MockTransport)
		name     string
		expected []byte
	}{
		{
			name:    "empty field",
			setup:   func(*MockTransport) {},
			wantErr: fabantag.ErrNoTag,
		},
		{
			name: "one target",
			setup: func(m *MockTransport) {
				m.SetResponse(cmdInListPassiveTarget, testutil.BuildTagDetectionResponse(uid))
			},
			expected: uid,
		},
		{
			name: "poll timeout means no tag",
			setup: func(m *MockTransport) {
				m.SetError(cmdInListPassiveTarget, NewTimeoutError("SendCommand", "mock"))
			},
			wantErr: fabantag.ErrNoTag,
		},
		{
			name: "truncated UID",
			setup: func(m *MockTransport) {
				m.SetResponse(cmdInListPassiveTarget, []byte{0x4B, 0x01, 0x01, 0x00, 0x44, 0x00, 0x07, 0x04})
			},
			wantErr: ErrInvalidResponse,
		},
		{
			name: "link failure",
			setup: func(m *MockTransport) {
				m.SetError(cmdInListPassiveTarget, NewTransportWriteError("SendCommand", "mock"))
			},
			wantErr: fabantag.ErrHardwareIO,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			device, mock := newMockDevice(t)
			tt.setup(mock)

			got, err := device.ReadPassiveTarget(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, listTypeA, mock.LastArgs(cmdInListPassiveTarget))
		})
	}
}

func TestReadPage(t *testing.T) {
	t.Parallel()
	device, mock := newMockDevice(t)
	block := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	mock.SetResponse(cmdInDataExchange, testutil.BuildDataExchangeResponse(block))

	page, err := device.ReadPage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, page)
	assert.Equal(t, []byte{0x01, 0x30, 0x07}, mock.LastArgs(cmdInDataExchange))
}

func TestReadPageStatusError(t *testing.T) {
	t.Parallel()
	device, mock := newMockDevice(t)
	mock.SetResponse(cmdInDataExchange, testutil.BuildDataExchangeError(testutil.StatusNAK))

	_, err := device.ReadPage(context.Background(), 45)
	require.ErrorIs(t, err, fabantag.ErrHardwareIO)

	var pe *PN532Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, byte(0x14), pe.ErrorCode)
	assert.Contains(t, err.Error(), "page 45")
}

func TestReadPageShortResponse(t *testing.T) {
	t.Parallel()
	device, mock := newMockDevice(t)
	mock.SetResponse(cmdInDataExchange, testutil.BuildDataExchangeResponse([]byte{1, 2, 3, 4}))

	_, err := device.ReadPage(context.Background(), 4)
	require.ErrorIs(t, err, fabantag.ErrHardwareIO)
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestWritePage(t *testing.T) {
	t.Parallel()
	device, mock := newMockDevice(t)

	require.NoError(t, device.WritePage(context.Background(), 4, []byte{0x01, 0x03, 0xA0, 0x0C}))
	assert.Equal(t, []byte{0x01, 0xA2, 0x04, 0x01, 0x03, 0xA0, 0x0C}, mock.LastArgs(cmdInDataExchange))

	err := device.WritePage(context.Background(), 4, []byte{0x01})
	require.ErrorIs(t, err, fabantag.ErrInvalidInput)

	mock.SetError(cmdInDataExchange, errors.New("serial port gone"))
	err = device.WritePage(context.Background(), 5, []byte{0, 0, 0, 0})
	require.ErrorIs(t, err, fabantag.ErrHardwareIO)
}

func TestClosedTransport(t *testing.T) {
	t.Parallel()
	device, _ := newMockDevice(t)
	require.NoError(t, device.Close())

	_, err := device.ReadPage(context.Background(), 4)
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestDeviceWithSimulatedTag(t *testing.T) {
	t.Parallel()
	tag := testutil.NewVirtualNTAG213(nil)
	device, _ := newSimDevice(t, tag)

	res, err := fabantag.Write(context.Background(), device, "1234", fabantag.Options{OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, fabantag.VariantNTAG213, res.Tag.Variant)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10, 11}, tag.WriteLog())

	read, err := fabantag.Read(context.Background(), device, fabantag.Options{})
	require.NoError(t, err)
	assert.Equal(t, "1234", read.FabaID)
}

func TestDeviceReadsCloneSize(t *testing.T) {
	t.Parallel()
	tag := testutil.NewVirtualNTAG213(nil)
	tag.SetReadablePages(42)
	device, _ := newSimDevice(t, tag)

	detected, err := fabantag.Detect(context.Background(), device, fabantag.DetectOptions{})
	require.NoError(t, err)
	assert.Equal(t, fabantag.VariantNTAG203, detected.Variant)
	assert.Equal(t, 42, detected.TotalPages)
}
