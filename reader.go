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

package fabantag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPollTimeout bounds a single passive-target poll.
const DefaultPollTimeout = 500 * time.Millisecond

// Reader is the hardware collaborator: anything that can find a tag and
// move one 4-byte page at a time. Every method blocks until the hardware
// answers or the per-call timeout expires.
type Reader interface {
	// ReadPassiveTarget polls once for a tag and returns its UID, or
	// ErrNoTag when the field is empty.
	ReadPassiveTarget(ctx context.Context) ([]byte, error)

	// ReadPage returns exactly PageSize bytes of the given page.
	ReadPage(ctx context.Context, page uint8) ([]byte, error)

	// WritePage stores exactly PageSize bytes at the given page.
	WritePage(ctx context.Context, page uint8, data []byte) error

	// FirmwareVersion describes the reader hardware.
	FirmwareVersion(ctx context.Context) (string, error)

	Close() error
}

// WaitForTag polls r until a tag answers or ctx ends. interval is the
// pause between empty polls; zero polls back to back.
func WaitForTag(ctx context.Context, r Reader, interval time.Duration) ([]byte, error) {
	Debugf("Waiting for NTAG card...")
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("waiting for tag: %w", err)
		}

		uid, err := r.ReadPassiveTarget(ctx)
		switch {
		case err == nil && len(uid) > 0:
			Debugf("Tag UID: %s", formatHex(uid))
			return uid, nil
		case err == nil, isNoTag(err):
		default:
			return nil, err
		}

		if interval > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("waiting for tag: %w", ctx.Err())
			case <-time.After(interval):
			}
		}
	}
}

func isNoTag(err error) bool {
	return errors.Is(err, ErrNoTag)
}
