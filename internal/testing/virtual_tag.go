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

// Package testing provides in-memory NTAG tags and a wire-level PN532
// simulator for tests that must not touch hardware.
package testing

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/fabaplus/fabantag"
	"github.com/fabaplus/fabantag/internal/syncutil"
)

// TestNTAG213UID is the UID used by tests that do not care about it.
var TestNTAG213UID = []byte{0x04, 0x74, 0x2F, 0xF1, 0x78, 0x00, 0x00}

// VirtualTag is a simulated NTAG that implements fabantag.Reader directly,
// standing in for a reader with the tag resting on it.
//
// Faults can be injected to exercise the write/verify safety checks: a
// page that refuses writes, a page that reads back corrupted, a different
// UID appearing after a number of polls.
type VirtualTag struct {
	corruptRead   map[int][]byte
	swapUID       []byte
	Variant       fabantag.Variant
	UID           []byte
	Memory        [][]byte
	writeLog      []int
	readablePages int
	failWritePage int
	emptyPolls    int
	swapAfterPoll int
	polls         int
	mu            syncutil.Mutex
	Present       bool
	closed        bool
}

// NewVirtualNTAG creates a factory-fresh tag of the given variant.
func NewVirtualNTAG(variant fabantag.Variant, uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestNTAG213UID
	}

	tag, err := fabantag.NewSyntheticTag(uid, variant)
	if err != nil {
		panic(fmt.Sprintf("virtual tag setup: %v", err))
	}
	image, err := fabantag.BuildEraseImage(tag)
	if err != nil {
		panic(fmt.Sprintf("virtual tag setup: %v", err))
	}
	for i := 0; i < 4; i++ {
		copy(image[i*fabantag.PageSize:], tag.Pages.GetOrZero(i))
	}
	return NewVirtualTagFromImage(variant, uid, image)
}

// NewVirtualNTAG213 creates a factory-fresh NTAG213.
func NewVirtualNTAG213(uid []byte) *VirtualTag {
	return NewVirtualNTAG(fabantag.VariantNTAG213, uid)
}

// NewVirtualTagFromImage creates a tag whose memory is the given image.
// Every page of the image is readable.
func NewVirtualTagFromImage(variant fabantag.Variant, uid, image []byte) *VirtualTag {
	pages := (len(image) + fabantag.PageSize - 1) / fabantag.PageSize
	memory := make([][]byte, pages)
	for i := range memory {
		page := make([]byte, fabantag.PageSize)
		copy(page, image[i*fabantag.PageSize:min((i+1)*fabantag.PageSize, len(image))])
		memory[i] = page
	}
	return &VirtualTag{
		Variant:       variant,
		UID:           append([]byte(nil), uid...),
		Memory:        memory,
		Present:       true,
		readablePages: pages,
		failWritePage: -1,
		swapAfterPoll: -1,
		corruptRead:   make(map[int][]byte),
	}
}

// GetUIDString returns the UID as a hex string
func (v *VirtualTag) GetUIDString() string {
	return hex.EncodeToString(v.UID)
}

// SetReadablePages limits how many pages answer reads, the way clone
// chips misreport their size. Pages beyond n fail to read but keep their
// contents.
func (v *VirtualTag) SetReadablePages(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readablePages = n
}

// FailWriteAt makes every write to page fail.
func (v *VirtualTag) FailWriteAt(page int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failWritePage = page
}

// CorruptReadback makes reads of page return data instead of memory.
func (v *VirtualTag) CorruptReadback(page int, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptRead[page] = append([]byte(nil), data...)
}

// SwapUIDAfter makes polls after the first n report uid instead, as if
// the tag had been replaced on the reader.
func (v *VirtualTag) SwapUIDAfter(n int, uid []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.swapAfterPoll = n
	v.swapUID = append([]byte(nil), uid...)
}

// SetEmptyPolls makes the first n polls find nothing.
func (v *VirtualTag) SetEmptyPolls(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.emptyPolls = n
}

// Remove takes the tag off the reader.
func (v *VirtualTag) Remove() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Present = false
}

// Insert puts the tag back on the reader.
func (v *VirtualTag) Insert() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Present = true
}

// Polls returns how many passive-target polls were made.
func (v *VirtualTag) Polls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.polls
}

// WriteLog returns the pages written so far, in order.
func (v *VirtualTag) WriteLog() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.writeLog...)
}

// Page returns a copy of a page of memory, ignoring injected faults.
func (v *VirtualTag) Page(i int) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.Memory[i]...)
}

// Image returns the whole memory as one byte slice.
func (v *VirtualTag) Image() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]byte, 0, len(v.Memory)*fabantag.PageSize)
	for _, page := range v.Memory {
		out = append(out, page...)
	}
	return out
}

// ReadPassiveTarget implements fabantag.Reader.
func (v *VirtualTag) ReadPassiveTarget(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, fabantag.ErrReaderClosed
	}
	v.polls++
	if !v.Present || v.polls <= v.emptyPolls {
		return nil, fabantag.ErrNoTag
	}
	if v.swapAfterPoll >= 0 && v.polls > v.swapAfterPoll {
		return append([]byte(nil), v.swapUID...), nil
	}
	return append([]byte(nil), v.UID...), nil
}

// ReadPage implements fabantag.Reader.
func (v *VirtualTag) ReadPage(ctx context.Context, page uint8) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.ReadBlock(int(page))
}

// ReadBlock reads one 4-byte page.
func (v *VirtualTag) ReadBlock(page int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkAccess(page, v.readablePages); err != nil {
		return nil, err
	}
	if data, ok := v.corruptRead[page]; ok {
		return append([]byte(nil), data...), nil
	}
	return append([]byte(nil), v.Memory[page]...), nil
}

// ReadBlock16 answers an NTAG READ command: four pages starting at page,
// rolling over to page 0 past the end of memory.
func (v *VirtualTag) ReadBlock16(page int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkAccess(page, v.readablePages); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 16)
	for i := 0; i < 4; i++ {
		p := (page + i) % len(v.Memory)
		if data, ok := v.corruptRead[p]; ok {
			out = append(out, data...)
			continue
		}
		out = append(out, v.Memory[p]...)
	}
	return out, nil
}

// WritePage implements fabantag.Reader.
func (v *VirtualTag) WritePage(ctx context.Context, page uint8, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.WriteBlock(int(page), data)
}

// WriteBlock writes one 4-byte page.
func (v *VirtualTag) WriteBlock(page int, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkAccess(page, len(v.Memory)); err != nil {
		return err
	}
	if len(data) != fabantag.PageSize {
		return fmt.Errorf("%w: write of %d bytes to page %d", fabantag.ErrHardwareIO, len(data), page)
	}
	if page == v.failWritePage {
		return fmt.Errorf("%w: page %d NAK", fabantag.ErrHardwareIO, page)
	}
	if page < 2 {
		return fmt.Errorf("%w: page %d is read-only", fabantag.ErrHardwareIO, page)
	}

	copy(v.Memory[page], data)
	v.writeLog = append(v.writeLog, page)
	return nil
}

func (v *VirtualTag) checkAccess(page, limit int) error {
	if v.closed {
		return fabantag.ErrReaderClosed
	}
	if !v.Present {
		return fmt.Errorf("%w: tag not present", fabantag.ErrHardwareIO)
	}
	if page < 0 || page >= limit || page >= len(v.Memory) {
		return fmt.Errorf("%w: page %d NAK", fabantag.ErrHardwareIO, page)
	}
	return nil
}

// FirmwareVersion implements fabantag.Reader.
func (*VirtualTag) FirmwareVersion(context.Context) (string, error) {
	return "virtual 1.6", nil
}

// Close implements fabantag.Reader.
func (v *VirtualTag) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

var _ fabantag.Reader = (*VirtualTag)(nil)
