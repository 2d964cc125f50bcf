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

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabaplus/fabantag"
	"github.com/fabaplus/fabantag/detection"
	_ "github.com/fabaplus/fabantag/detection/i2c"
	_ "github.com/fabaplus/fabantag/detection/pcsc"
	detectuart "github.com/fabaplus/fabantag/detection/uart"
	"github.com/fabaplus/fabantag/internal/config"
	"github.com/fabaplus/fabantag/pcsc"
	"github.com/fabaplus/fabantag/pn532"
	"github.com/fabaplus/fabantag/transport/i2c"
	"github.com/fabaplus/fabantag/transport/uart"
	"github.com/rs/zerolog"
)

// transportFor picks the transport: PC/SC when asked for, I2C when asked
// for or when the port names an I2C bus, UART otherwise.
func transportFor(cfg *config.Config) string {
	t := cfg.TransportName()
	if t == "uart" && strings.Contains(strings.ToLower(cfg.Port), "i2c") {
		return "i2c"
	}
	return t
}

func detectionOptions(cfg *config.Config) detection.Options {
	opts := detection.DefaultOptions()
	opts.Blocklist = append(opts.Blocklist, cfg.Blocklist...)
	return opts
}

func openReader(ctx context.Context, cfg *config.Config, log zerolog.Logger) (fabantag.Reader, error) {
	switch transportFor(cfg) {
	case "pcsc":
		r, err := pcsc.Open(cfg.Reader)
		if err != nil {
			return nil, err
		}
		log.Info().Msgf("Using PC/SC reader %s", r.Name())
		return r, nil
	case "i2c":
		return connectPN532(ctx, cfg, cfg.Port, i2c.Factory)
	}

	port := cfg.Port
	if port == "" {
		selected, err := autoSelectPort(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msgf("Using serial port %s", selected)
		port = selected
	} else if err := detectuart.CheckPort(port); err != nil {
		return nil, err
	}
	return connectPN532(ctx, cfg, port, uart.Factory)
}

// autoSelectPort takes the most likely PN532 adapter that is not
// blocklisted.
func autoSelectPort(ctx context.Context, cfg *config.Config) (string, error) {
	opts := detectionOptions(cfg)
	opts.Transports = []string{string(pn532.TransportUART)}
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("no serial port given (-p) and none detected: %w", err)
	}
	return devices[0].Path, nil
}

func connectPN532(ctx context.Context, cfg *config.Config, path string, factory pn532.TransportFactory) (fabantag.Reader, error) {
	device, err := pn532.ConnectDevice(ctx, path,
		pn532.WithTransportFactory(factory),
		pn532.WithDeviceOptions(pn532.WithPollTimeout(cfg.PollTimeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fabantag.ErrHardwareIO, err)
	}
	return device, nil
}
