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

package pn532

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: NewTimeoutError("op", "port"), want: true},
		{name: "no ack", err: NewNoACKError("op", "port"), want: true},
		{name: "corrupted frame", err: NewFrameCorruptedError("op", "port"), want: true},
		{name: "data too large", err: NewDataTooLargeError("op", "port"), want: false},
		{name: "invalid response", err: NewInvalidResponseError("op", "port"), want: false},
		{name: "card timeout status", err: NewPN532Error(0x01, "InDataExchange", ""), want: true},
		{name: "card NAK status", err: NewPN532Error(0x14, "InDataExchange", ""), want: false},
		{name: "wrapped checksum", err: fmt.Errorf("reading: %w", ErrChecksumMismatch), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "closed", err: ErrTransportClosed, want: true},
		{name: "eof", err: fmt.Errorf("read: %w", io.EOF), want: true},
		{name: "device unplugged", err: fmt.Errorf("read: %w", syscall.ENODEV), want: true},
		{name: "permanent transport error", err: NewDataTooLargeError("op", "port"), want: true},
		{name: "transient transport error", err: NewTimeoutError("op", "port"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestPN532ErrorMessage(t *testing.T) {
	t.Parallel()
	err := NewPN532Error(0x14, "InDataExchange", "NTAG command 0xA2")
	assert.Equal(t, "InDataExchange error 0x14 (card refused the command): NTAG command 0xA2", err.Error())

	te := NewTimeoutError("receiveFrame", "/dev/ttyUSB0")
	assert.Equal(t, "receiveFrame /dev/ttyUSB0: transport timeout", te.Error())
}

func TestRetryWithConfig(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryWithConfig(context.Background(), fastRetry(), func(context.Context) error {
			calls++
			if calls < 3 {
				return NewNoACKError("op", "port")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryWithConfig(context.Background(), fastRetry(), func(context.Context) error {
			calls++
			return NewInvalidResponseError("op", "port")
		})
		require.ErrorIs(t, err, ErrInvalidResponse)
		assert.Equal(t, 1, calls)
	})

	t.Run("no retry config runs once", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryWithConfig(context.Background(), NoRetry(), func(context.Context) error {
			calls++
			return NewNoACKError("op", "port")
		})
		require.ErrorIs(t, err, ErrNoACK)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context returns last error", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		config := fastRetry()
		config.InitialBackoff = time.Hour
		config.MaxBackoff = time.Hour
		calls := 0
		err := RetryWithConfig(ctx, config, func(context.Context) error {
			calls++
			cancel()
			return NewNoACKError("op", "port")
		})
		require.ErrorIs(t, err, ErrNoACK)
		assert.Equal(t, 1, calls)
	})
}

func TestJittered(t *testing.T) {
	t.Parallel()
	base := 10 * time.Millisecond
	assert.Equal(t, base, jittered(base, 0))
	for i := 0; i < 20; i++ {
		got := jittered(base, 0.5)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/2)
	}
}
