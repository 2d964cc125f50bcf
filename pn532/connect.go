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
	"time"
)

// TransportFactory opens a transport on path.
type TransportFactory func(path string) (Transport, error)

// ConnectOption configures ConnectDevice.
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	transportFactory  TransportFactory
	deviceOptions     []Option
	connectionRetries int
	retryDelay        time.Duration
}

// WithTransportFactory sets how the transport is opened. Required.
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithDeviceOptions passes options through to New.
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectionRetries sets how many times opening and initializing the
// reader is attempted.
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("%w: connection attempts %d", ErrInvalidParameter, maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// ConnectDevice opens path, creates a Device and runs Init, retrying the
// whole sequence when the reader is slow to come up after being plugged in.
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config := &connectConfig{
		connectionRetries: 3,
		retryDelay:        100 * time.Millisecond,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if config.transportFactory == nil {
		return nil, errors.New("no transport factory configured")
	}

	var lastErr error
	for attempt := 0; attempt < config.connectionRetries; attempt++ {
		if attempt > 0 {
			Debugf("Connect attempt %d on %s failed, retrying: %v", attempt, path, lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("connecting to %s: %w", path, ctx.Err())
			case <-time.After(config.retryDelay * time.Duration(attempt)):
			}
		}

		device, err := setupDevice(ctx, path, config)
		if err == nil {
			return device, nil
		}
		lastErr = err
		if errors.Is(err, ErrDeviceNotFound) {
			break
		}
	}
	return nil, fmt.Errorf("connecting to %s after %d attempts: %w", path, config.connectionRetries, lastErr)
}

func setupDevice(ctx context.Context, path string, config *connectConfig) (*Device, error) {
	transport, err := config.transportFactory(path)
	if err != nil {
		return nil, fmt.Errorf("opening transport: %w", err)
	}

	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	if err := device.Init(ctx); err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return device, nil
}
