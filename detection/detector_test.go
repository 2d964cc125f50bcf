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

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	calls     int
}

func (f *fakeDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	f.calls++
	return f.devices, f.err
}

func (f *fakeDetector) Transport() string {
	return f.transport
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		vidpid    string
		blocklist []string
		want      bool
	}{
		{name: "exact", vidpid: "1A86:7523", blocklist: []string{"1A86:7523"}, want: true},
		{name: "case and space", vidpid: " 1a86:7523", blocklist: []string{"1A86:7523 "}, want: true},
		{name: "not listed", vidpid: "0403:6001", blocklist: []string{"1A86:7523"}, want: false},
		{name: "empty id", vidpid: "", blocklist: []string{""}, want: false},
		{name: "empty list", vidpid: "1A86:7523", blocklist: nil, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsBlocked(tt.vidpid, tt.blocklist))
		})
	}
}

func TestVIDPID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "10C4:EA60", VIDPID("10c4", "ea60"))
	assert.Empty(t, VIDPID("10c4", ""))
}

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		path   string
		ignore []string
		want   bool
	}{
		{name: "exact", path: "/dev/ttyUSB0", ignore: []string{"/dev/ttyUSB0"}, want: true},
		{name: "unclean", path: "/dev/ttyUSB0", ignore: []string{"/dev/../dev/ttyUSB0"}, want: true},
		{name: "windows case", path: "COM3", ignore: []string{"com3"}, want: true},
		{name: "other", path: "/dev/ttyUSB1", ignore: []string{"/dev/ttyUSB0"}, want: false},
		{name: "empty path", path: "", ignore: []string{""}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}

func TestDetectAllOrdersByConfidence(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register(&fakeDetector{transport: "uart", devices: []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyS0", Confidence: Low},
		{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Medium},
	}})
	reg.Register(&fakeDetector{transport: "pcsc", devices: []DeviceInfo{
		{Transport: "pcsc", Path: "ACS ACR122U", Confidence: High},
	}})

	opts := DefaultOptions()
	devices, err := reg.DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, High, devices[0].Confidence)
	assert.Equal(t, Low, devices[2].Confidence)
}

func TestDetectAllTransportsFilter(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	uart := &fakeDetector{transport: "uart", devices: []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0"}}}
	pcsc := &fakeDetector{transport: "pcsc", err: ErrNoDevicesFound}
	reg.Register(uart)
	reg.Register(pcsc)

	_, err := reg.DetectAll(context.Background(), &Options{Transports: []string{"pcsc"}})
	require.ErrorIs(t, err, ErrNoDevicesFound)
	assert.Equal(t, 0, uart.calls)

	_, err = reg.DetectAll(context.Background(), &Options{Transports: []string{"spi"}})
	require.ErrorIs(t, err, ErrNoDetectors)
}

func TestDetectAllReportsErrorsOnlyWhenEmpty(t *testing.T) {
	t.Parallel()
	boom := errors.New("enumeration failed")

	reg := NewRegistry()
	reg.Register(&fakeDetector{transport: "uart", err: boom})
	_, err := reg.DetectAll(context.Background(), &Options{})
	require.ErrorIs(t, err, boom)

	reg.Register(&fakeDetector{transport: "pcsc", devices: []DeviceInfo{{Transport: "pcsc", Path: "reader"}}})
	devices, err := reg.DetectAll(context.Background(), &Options{})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDetectAllCache(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	det := &fakeDetector{transport: "uart", devices: []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "1A86:7523"}},
	}}
	reg.Register(det)

	opts := &Options{EnableCache: true, CacheTTL: time.Minute}
	_, err := reg.DetectAll(context.Background(), opts)
	require.NoError(t, err)
	_, err = reg.DetectAll(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, det.calls)

	// cached results still honour the blocklist
	opts.Blocklist = []string{"1a86:7523"}
	_, err = reg.DetectAll(context.Background(), opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
	assert.Equal(t, 1, det.calls)

	reg.cache.clear()
	opts.Blocklist = nil
	_, err = reg.DetectAll(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, det.calls)
}

func TestDetectAllCancelled(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	reg.Register(blockingDetector{block: block})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := reg.DetectAll(ctx, &Options{})
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

type blockingDetector struct {
	block chan struct{}
}

func (b blockingDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	<-b.block
	return nil, nil
}

func (blockingDetector) Transport() string { return "uart" }

func TestDeviceInfoString(t *testing.T) {
	t.Parallel()
	d := DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Medium}
	assert.Equal(t, "uart device at /dev/ttyUSB0 (confidence: medium)", d.String())
	assert.Equal(t, "unknown", Confidence(9).String())
}
