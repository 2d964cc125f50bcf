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
	"bytes"
	"context"
	"fmt"
)

// WriteState is a step of the write/verify sequence.
type WriteState int

const (
	WriteIdle WriteState = iota
	WriteUIDConfirmed
	WriteWriting
	WriteVerifying
	WriteDone
	WriteFailed
)

func (s WriteState) String() string {
	switch s {
	case WriteIdle:
		return "idle"
	case WriteUIDConfirmed:
		return "uid-confirmed"
	case WriteWriting:
		return "writing"
	case WriteVerifying:
		return "verifying"
	case WriteDone:
		return "done"
	case WriteFailed:
		return "failed"
	default:
		return fmt.Sprintf("WriteState(%d)", int(s))
	}
}

// PageWriter pushes a range of a byte image to a tag and reads it back.
// It runs once, linearly, with no retries: the first failure is terminal
// and already written pages are left as they are.
type PageWriter struct {
	reader  Reader
	tag     *Tag
	onState func(WriteState)
	image   []byte
	start   int
	end     int
	state   WriteState
}

// NewPageWriter prepares a write of pages start..end (inclusive) of image
// to tag.
func NewPageWriter(r Reader, tag *Tag, image []byte, start, end int) (*PageWriter, error) {
	pages := len(image) / PageSize
	if start < 0 || start > end || end >= pages || end >= maxScanPages {
		return nil, fmt.Errorf("%w: page range %d..%d outside %d-page image",
			ErrInvalidInput, start, end, pages)
	}
	return &PageWriter{
		reader: r,
		tag:    tag,
		image:  image,
		start:  start,
		end:    end,
	}, nil
}

// OnStateChange registers a callback invoked on every transition.
func (w *PageWriter) OnStateChange(fn func(WriteState)) {
	w.onState = fn
}

// State returns the current step.
func (w *PageWriter) State() WriteState {
	return w.state
}

func (w *PageWriter) setState(s WriteState) {
	w.state = s
	if w.onState != nil {
		w.onState(s)
	}
}

func (w *PageWriter) fail(err error) error {
	w.setState(WriteFailed)
	return err
}

// Run confirms the UID, writes every page in range, then verifies every
// page in range. Success is reported only when all three steps pass.
func (w *PageWriter) Run(ctx context.Context) error {
	if w.state != WriteIdle {
		return fmt.Errorf("%w: writer already ran (state %s)", ErrInvalidInput, w.state)
	}

	if err := w.confirmUID(ctx); err != nil {
		return w.fail(err)
	}
	w.setState(WriteUIDConfirmed)

	w.setState(WriteWriting)
	if err := w.writePages(ctx); err != nil {
		return w.fail(err)
	}

	w.setState(WriteVerifying)
	if err := w.verifyPages(ctx); err != nil {
		return w.fail(err)
	}

	w.setState(WriteDone)
	return nil
}

func (w *PageWriter) confirmUID(ctx context.Context) error {
	uid, err := w.reader.ReadPassiveTarget(ctx)
	if err != nil && !isNoTag(err) {
		return fmt.Errorf("re-reading UID: %w", err)
	}
	if !bytes.Equal(uid, w.tag.UID) {
		return &UIDMismatchError{Expected: w.tag.UID, Actual: uid}
	}
	return nil
}

func (w *PageWriter) writePages(ctx context.Context) error {
	Debugf("Write pages %d..%d", w.start, w.end)
	for page := w.start; page <= w.end; page++ {
		data := ImagePage(w.image, page)
		if err := w.reader.WritePage(ctx, uint8(page), data); err != nil {
			Debugf("Page %03d:  %s  |  failed", page, formatHex(data))
			return &WriteFailedError{Page: uint8(page), Err: err}
		}
		Debugf("Page %03d:  %s  |  ok", page, formatHex(data))
	}
	return nil
}

func (w *PageWriter) verifyPages(ctx context.Context) error {
	Debugf("Verify pages %d..%d", w.start, w.end)
	for page := w.start; page <= w.end; page++ {
		expected := ImagePage(w.image, page)
		actual, err := w.reader.ReadPage(ctx, uint8(page))
		if err != nil {
			return fmt.Errorf("verifying page %d: %w", page, err)
		}
		Debugf("Page %03d:  %s  ::  %s", page, formatHex(expected), formatHex(actual))
		if !bytes.Equal(expected, actual) {
			return &VerifyMismatchError{
				Page:     uint8(page),
				Expected: append([]byte(nil), expected...),
				Actual:   append([]byte(nil), actual...),
			}
		}
	}
	return nil
}

// WriteAndVerify runs a PageWriter for pages start..end of image.
func WriteAndVerify(ctx context.Context, r Reader, tag *Tag, image []byte, start, end int) error {
	w, err := NewPageWriter(r, tag, image, start, end)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
