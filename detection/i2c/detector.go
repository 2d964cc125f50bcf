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

// Package i2c lists I2C buses a PN532 may sit on.
package i2c

import (
	"context"
	"fmt"

	"github.com/fabaplus/fabantag/detection"
	"github.com/fabaplus/fabantag/pn532"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultPN532Address is the 7-bit PN532 address (0x48 >> 1).
const DefaultPN532Address = 0x24

// busRef is the part of an i2creg.Ref detection needs.
type busRef struct {
	Name   string
	Number int
}

// listBuses is swapped in tests.
var listBuses = func() ([]busRef, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	refs := i2creg.All()
	buses := make([]busRef, 0, len(refs))
	for _, ref := range refs {
		buses = append(buses, busRef{Name: ref.Name, Number: ref.Number})
	}
	return buses, nil
}

type detector struct{}

// New returns the I2C bus detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return string(pn532.TransportI2C)
}

// Detect lists registered buses at Low confidence. A bus says nothing
// about what is attached, and a blind read could upset other devices, so
// buses are never probed.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := listBuses()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if ctx.Err() != nil {
			break
		}
		path := fmt.Sprintf("%s:0x%02X", bus.Name, DefaultPN532Address)
		if detection.IsPathIgnored(bus.Name, opts.IgnorePaths) || detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Transport:  string(pn532.TransportI2C),
			Path:       path,
			Name:       bus.Name,
			Confidence: detection.Low,
			Metadata:   map[string]string{"bus": fmt.Sprint(bus.Number)},
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
