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

// Package pcsc lists PC/SC readers.
package pcsc

import (
	"context"
	"strings"

	"github.com/fabaplus/fabantag/detection"
	"github.com/fabaplus/fabantag/pcsc"
)

// Transport is the name PC/SC readers are listed under.
const Transport = "pcsc"

// listReaders is swapped in tests.
var listReaders = pcsc.ListReaders

type detector struct{}

// New returns the PC/SC reader detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return Transport
}

// Detect lists PC/SC readers. Readers known to handle NTAG pseudo-APDUs
// are reported at High confidence.
func (*detector) Detect(_ context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	readers, err := listReaders()
	if err != nil {
		// no PC/SC service running is the same as no readers
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, name := range readers {
		if detection.IsPathIgnored(name, opts.IgnorePaths) {
			continue
		}
		confidence := detection.Medium
		if isNTAGCapable(name) {
			confidence = detection.High
		}
		devices = append(devices, detection.DeviceInfo{
			Transport:  Transport,
			Path:       name,
			Name:       name,
			Confidence: confidence,
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func isNTAGCapable(name string) bool {
	lower := strings.ToLower(name)
	for _, model := range []string{"acr122", "acr1252", "acr1255", "pn532"} {
		if strings.Contains(lower, model) {
			return true
		}
	}
	return false
}
