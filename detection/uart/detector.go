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

// Package uart finds serial ports that look like PN532 adapters and checks
// a requested port before it is opened.
package uart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fabaplus/fabantag/detection"
	"github.com/fabaplus/fabantag/pn532"
	"github.com/fabaplus/fabantag/transport/uart"
	"go.bug.st/serial/enumerator"
)

// ErrPortNotFound means the requested port is not in the system list.
var ErrPortNotFound = errors.New("serial port not found")

// serialPort is a port with the USB descriptor fields we look at.
type serialPort struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

// listPorts and probeDeviceFn are swapped in tests.
var (
	listPorts     = enumeratePorts
	probeDeviceFn = probeDevice
)

func enumeratePorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]serialPort, 0, len(details))
	for _, d := range details {
		ports = append(ports, serialPort{
			Path:         d.Name,
			IsUSB:        d.IsUSB,
			VIDPID:       detection.VIDPID(d.VID, d.PID),
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
		})
	}
	return ports, nil
}

type detector struct{}

// New returns the serial port detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return string(pn532.TransportUART)
}

// Detect lists serial ports, drops blocked and ignored ones and keeps
// those that look like PN532 adapters. In Safe mode every candidate is
// asked for its firmware version and kept only if it answers.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for i := range ports {
		if ctx.Err() != nil {
			break
		}
		port := &ports[i]
		if detection.IsBlocked(port.VIDPID, opts.Blocklist) || detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if device, ok := processPort(ctx, port, opts.Mode); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func processPort(ctx context.Context, port *serialPort, mode detection.Mode) (detection.DeviceInfo, bool) {
	confidence := detection.Low
	switch {
	case isLikelyPN532(port):
		confidence = detection.Medium
	case !port.IsUSB && mode == detection.Passive:
		// built-in UARTs are listed only when probed
		return detection.DeviceInfo{}, false
	}

	if mode == detection.Safe {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		ok := probeDeviceFn(probeCtx, port.Path)
		cancel()
		if !ok {
			return detection.DeviceInfo{}, false
		}
		confidence = detection.High
	}

	device := detection.DeviceInfo{
		Transport:  string(pn532.TransportUART),
		Path:       port.Path,
		Name:       port.Product,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if device.Name == "" {
		device.Name = port.Path
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device, true
}

// knownAdapters are the USB serial bridges PN532 boards ship with.
var knownAdapters = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

func isLikelyPN532(port *serialPort) bool {
	if detection.IsBlocked(port.VIDPID, knownAdapters) {
		return true
	}
	product := strings.ToLower(port.Product)
	for _, keyword := range []string{"pn532", "nfc", "rfid", "13.56"} {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// probeDevice opens the port once and asks for the firmware version. A
// failed probe is not retried so that unrelated devices are left alone.
func probeDevice(ctx context.Context, path string) bool {
	transport, err := uart.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	device, err := pn532.New(transport, pn532.WithRetryConfig(pn532.NoRetry()))
	if err != nil {
		return false
	}
	_, err = device.GetFirmwareVersion(ctx)
	return err == nil
}

// CheckPort verifies that path is a serial port the system knows and that
// the current user may open it. The error lists the available ports.
func CheckPort(path string) error {
	ports, err := listPorts()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.Path == path {
			return checkAccess(path)
		}
		names = append(names, p.Path)
	}

	if len(names) == 0 {
		return fmt.Errorf("%w: %s (no serial ports available)", ErrPortNotFound, path)
	}
	return fmt.Errorf("%w: %s (available: %s)", ErrPortNotFound, path, strings.Join(names, ", "))
}
