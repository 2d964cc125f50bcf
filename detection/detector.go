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

// Package detection finds readers a tag operation can use: serial ports
// that look like PN532 adapters, I2C buses and PC/SC readers.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fabaplus/fabantag/internal/syncutil"
)

// Mode is how invasive detection may be.
type Mode int

const (
	// Passive only looks at port descriptors.
	Passive Mode = iota
	// Safe also asks candidates for their firmware version.
	Safe
)

// Confidence is how sure a detector is that it found a usable reader.
type Confidence int

const (
	// Low means the device might be a reader.
	Low Confidence = iota
	// Medium means the descriptor matches a known adapter.
	Medium
	// High means the device answered as a reader.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a detected reader.
type DeviceInfo struct {
	// Metadata holds descriptor details such as "vidpid" and "product".
	Metadata map[string]string
	// Transport is "uart", "i2c" or "pcsc".
	Transport string
	// Path is what the transport opens: a port, a bus or a reader name.
	Path       string
	Name       string
	Confidence Confidence
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures detection.
type Options struct {
	// Blocklist holds USB VID:PID pairs never offered for auto-selection.
	Blocklist []string
	// IgnorePaths holds device paths to skip.
	IgnorePaths []string
	// Transports restricts detection; empty means all.
	Transports []string
	CacheTTL   time.Duration
	Mode       Mode
	// EnableCache reuses results younger than CacheTTL.
	EnableCache bool
}

// DefaultOptions returns passive detection with the default blocklist.
func DefaultOptions() Options {
	return Options{
		Mode:      Passive,
		Blocklist: DefaultBlocklist(),
		CacheTTL:  30 * time.Second,
	}
}

// Detector finds devices for one transport.
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	Transport() string
}

var (
	// ErrNoDevicesFound means no detector found anything.
	ErrNoDevicesFound = errors.New("no reader devices found")
	// ErrDetectionTimeout means ctx ended before every detector finished.
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform means a detector cannot run on this OS.
	ErrUnsupportedPlatform = errors.New("platform not supported")
	// ErrNoDetectors means no detector matched the requested transports.
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

// Registry holds detectors and their cached results.
type Registry struct {
	cache     *detectionCache
	detectors []Detector
	mu        syncutil.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cache: newDetectionCache()}
}

// defaultRegistry is filled by detector packages on import.
var defaultRegistry = NewRegistry()

// RegisterDetector adds d to the default registry.
func RegisterDetector(d Detector) {
	defaultRegistry.Register(d)
}

// DetectAll runs the default registry.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	return defaultRegistry.DetectAll(ctx, opts)
}

// ClearDetectionCache drops the default registry's cached results.
func ClearDetectionCache() {
	defaultRegistry.cache.clear()
}

// Register adds a detector.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors = append(r.detectors, d)
}

func (r *Registry) forTransports(transports []string) []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(transports) == 0 {
		return append([]Detector(nil), r.detectors...)
	}
	var filtered []Detector
	for _, d := range r.detectors {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every matching detector in parallel. Devices are returned
// best first; detector errors only surface when nothing was found.
func (r *Registry) DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	detectors := r.forTransports(opts.Transports)
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func(d Detector) {
			results <- r.runDetector(ctx, d, opts)
		}(d)
	}

	var all []DeviceInfo
	var errs []error
	for range detectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
				continue
			}
			all = append(all, res.devices...)
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(all) > 0 {
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].Confidence > all[j].Confidence
		})
		return all, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoDevicesFound
}

func (r *Registry) runDetector(ctx context.Context, d Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, ok := r.cache.get(d.Transport(), opts.CacheTTL); ok {
			// cached results bypassed Detect, so filter them again
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := d.Detect(ctx, opts)
	switch {
	case errors.Is(err, ErrNoDevicesFound), errors.Is(err, ErrUnsupportedPlatform):
		err = nil
	case err != nil:
		return detectionResult{err: fmt.Errorf("%s detection: %w", d.Transport(), err)}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			r.cache.set(d.Transport(), devices)
		} else {
			// a stale entry would point at an unplugged device
			r.cache.clearTransport(d.Transport())
		}
	}
	return detectionResult{devices: devices}
}

// filterDevices applies IgnorePaths and Blocklist.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}
