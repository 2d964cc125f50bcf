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
	"fmt"
	"time"

	"github.com/fabaplus/fabantag"
)

// DeviceConfig holds the timeouts and retry policy of a Device.
type DeviceConfig struct {
	// RetryConfig applies to setup commands only. Page reads and writes are
	// never retried.
	RetryConfig *RetryConfig
	// Timeout bounds one command and its response.
	Timeout time.Duration
	// PollTimeout bounds one passive target poll. An expired poll means no
	// tag.
	PollTimeout time.Duration
}

// DefaultDeviceConfig returns the configuration New starts from.
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig: DefaultRetryConfig(),
		Timeout:     time.Second,
		PollTimeout: fabantag.DefaultPollTimeout,
	}
}

// Option configures a Device.
type Option func(*Device) error

// WithRetryConfig replaces the setup retry policy.
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.config.RetryConfig = config
		return nil
	}
}

// WithTimeout sets the per-command timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.Timeout = timeout
		return nil
	}
}

// WithPollTimeout sets the passive target poll timeout.
func WithPollTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: poll timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.PollTimeout = timeout
		return nil
	}
}

// FirmwareVersion is the answer to GetFirmwareVersion.
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}

// Device drives a PN532 as a fabantag.Reader for NTAG tags.
//
// Device is not safe for concurrent use. One operation at a time owns it.
type Device struct {
	transport Transport
	config    *DeviceConfig
	firmware  *FirmwareVersion
}

// New wraps transport. Call Init before any tag operation.
func New(transport Transport, opts ...Option) (*Device, error) {
	d := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if err := transport.SetTimeout(d.config.Timeout); err != nil {
		return nil, fmt.Errorf("setting transport timeout: %w", err)
	}
	return d, nil
}

// Transport returns the underlying transport.
func (d *Device) Transport() Transport {
	return d.transport
}

// Init checks the firmware, puts the SAM in normal mode and limits passive
// activation retries so a poll on an empty field returns promptly.
func (d *Device) Init(ctx context.Context) error {
	err := RetryWithConfig(ctx, d.config.RetryConfig, func(ctx context.Context) error {
		fw, err := d.GetFirmwareVersion(ctx)
		if err != nil {
			return err
		}
		d.firmware = fw
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading firmware version: %w", err)
	}
	Debugf("Found %s (support 0x%02X)", d.firmware, d.firmware.Support)

	err = RetryWithConfig(ctx, d.config.RetryConfig, func(ctx context.Context) error {
		_, err := d.command(ctx, cmdSAMConfiguration, samNormalMode)
		return err
	})
	if err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}

	if _, err := d.command(ctx, cmdRFConfiguration, rfMaxRetries(0x02)); err != nil {
		// older firmware may not accept the item; polls are just slower
		Debugf("RF configuration not applied: %v", err)
	}
	return nil
}

// GetFirmwareVersion asks the chip for its IC and version.
func (d *Device) GetFirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	res, err := d.command(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, err
	}
	if len(res) < 5 {
		return nil, fmt.Errorf("%w: firmware response of %d bytes", ErrInvalidResponse, len(res))
	}
	if res[1] != pn532IC {
		return nil, fmt.Errorf("%w: unexpected IC 0x%02X", ErrInvalidResponse, res[1])
	}
	return &FirmwareVersion{IC: res[1], Version: res[2], Revision: res[3], Support: res[4]}, nil
}

// FirmwareVersion implements fabantag.Reader.
func (d *Device) FirmwareVersion(ctx context.Context) (string, error) {
	if d.firmware == nil {
		fw, err := d.GetFirmwareVersion(ctx)
		if err != nil {
			return "", err
		}
		d.firmware = fw
	}
	return d.firmware.String(), nil
}

// ReadPassiveTarget implements fabantag.Reader. It lists one ISO14443A
// target at 106 kbps and returns its UID, or fabantag.ErrNoTag when the
// field is empty or the poll times out.
func (d *Device) ReadPassiveTarget(ctx context.Context) ([]byte, error) {
	pollCtx, cancel := context.WithTimeout(ctx, d.config.PollTimeout)
	defer cancel()

	res, err := d.command(pollCtx, cmdInListPassiveTarget, listTypeA)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTransportTimeout):
		return nil, fabantag.ErrNoTag
	default:
		return nil, fmt.Errorf("%w: polling for tag: %w", fabantag.ErrHardwareIO, err)
	}

	return parseTarget(res)
}

// parseTarget decodes 4B NbTg Tg ATQA(2) SAK UIDLen UID...
func parseTarget(res []byte) ([]byte, error) {
	if len(res) < 2 || res[1] == 0 {
		return nil, fabantag.ErrNoTag
	}
	if len(res) < 7 {
		return nil, fmt.Errorf("%w: target response of %d bytes", ErrInvalidResponse, len(res))
	}
	uidLen := int(res[6])
	if uidLen == 0 || len(res) < 7+uidLen {
		return nil, fmt.Errorf("%w: UID length %d in %d byte response", ErrInvalidResponse, uidLen, len(res))
	}
	Debugf("Target ATQA %02X%02X SAK %02X", res[3], res[4], res[5])
	return append([]byte(nil), res[7:7+uidLen]...), nil
}

// ReadPage implements fabantag.Reader. An NTAG READ returns four pages;
// only the first is kept.
func (d *Device) ReadPage(ctx context.Context, page uint8) ([]byte, error) {
	res, err := d.dataExchange(ctx, []byte{target, ntagCmdRead, page})
	if err != nil {
		return nil, fmt.Errorf("%w (page %d): %w", fabantag.ErrHardwareIO, page, err)
	}
	if len(res) < ntagReadLen {
		return nil, fmt.Errorf("%w (page %d): %w: read returned %d bytes",
			fabantag.ErrHardwareIO, page, ErrInvalidResponse, len(res))
	}
	return append([]byte(nil), res[:fabantag.PageSize]...), nil
}

// WritePage implements fabantag.Reader.
func (d *Device) WritePage(ctx context.Context, page uint8, data []byte) error {
	if len(data) != fabantag.PageSize {
		return fmt.Errorf("%w: page write of %d bytes", fabantag.ErrInvalidInput, len(data))
	}
	args := make([]byte, 0, 3+fabantag.PageSize)
	args = append(args, target, ntagCmdWrite, page)
	args = append(args, data...)

	if _, err := d.dataExchange(ctx, args); err != nil {
		return fmt.Errorf("%w (page %d): %w", fabantag.ErrHardwareIO, page, err)
	}
	return nil
}

// InRelease releases the listed target.
func (d *Device) InRelease(ctx context.Context) error {
	res, err := d.command(ctx, cmdInRelease, []byte{0x00})
	if err != nil {
		return err
	}
	if len(res) > 1 && res[1] != 0x00 {
		return NewPN532Error(res[1], "InRelease", "")
	}
	return nil
}

// Close implements fabantag.Reader.
func (d *Device) Close() error {
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("closing transport: %w", err)
	}
	return nil
}

// dataExchange sends InDataExchange and returns the bytes after the status.
func (d *Device) dataExchange(ctx context.Context, args []byte) ([]byte, error) {
	res, err := d.command(ctx, cmdInDataExchange, args)
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("%w: InDataExchange response of %d bytes", ErrInvalidResponse, len(res))
	}
	if status := res[1] & 0x3F; status != 0x00 {
		return nil, NewPN532Error(status, "InDataExchange", fmt.Sprintf("NTAG command 0x%02X", args[1]))
	}
	return res[2:], nil
}

// command sends one command and checks the response code.
func (d *Device) command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if !d.transport.IsConnected() {
		return nil, ErrTransportClosed
	}
	res, err := d.transport.SendCommand(ctx, cmd, args)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 || res[0] != cmd+1 {
		return nil, fmt.Errorf("%w: command 0x%02X answered with % X", ErrInvalidResponse, cmd, res)
	}
	return res, nil
}

var _ fabantag.Reader = (*Device)(nil)
