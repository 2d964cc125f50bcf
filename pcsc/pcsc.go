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

// Package pcsc reads and writes NTAG pages through a PC/SC reader such as
// the ACR122U, using the reader's pseudo-APDUs for Type 2 tags.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"
	"github.com/fabaplus/fabantag"
	"github.com/fabaplus/fabantag/internal/syncutil"
)

// Pseudo-APDU headers
var (
	apduGetUID    = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
	apduReadPage  = []byte{0xFF, 0xB0, 0x00}
	apduWritePage = []byte{0xFF, 0xD6, 0x00}
)

var (
	// ErrNoReader means no PC/SC reader matched.
	ErrNoReader = errors.New("no PC/SC reader found")

	errShortResponse = errors.New("short APDU response")
)

// APDUError is a status word other than 90 00.
type APDUError struct {
	SW1, SW2 byte
}

func (e *APDUError) Error() string {
	return fmt.Sprintf("APDU failed: SW=%02X%02X", e.SW1, e.SW2)
}

// Card is the part of *scard.Card the reader uses.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// Context is the part of *scard.Context the reader uses.
type Context interface {
	ListReaders() ([]string, error)
	GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error
	Release() error
}

// ConnectFunc opens a card in the named reader.
type ConnectFunc func(reader string) (Card, error)

// Reader implements fabantag.Reader over PC/SC.
type Reader struct {
	ctx     Context
	card    Card
	connect ConnectFunc
	name    string
	mu      syncutil.Mutex
	closed  bool
}

// Open establishes a PC/SC context and picks the first reader whose name
// contains match, case-insensitively. An empty match takes the first
// reader.
func Open(match string) (*Reader, error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}

	connect := func(reader string) (Card, error) {
		card, err := sctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", reader, err)
		}
		return card, nil
	}

	r, err := NewWithContext(sctx, connect, match)
	if err != nil {
		_ = sctx.Release()
		return nil, err
	}
	return r, nil
}

// NewWithContext builds a reader over an existing context.
func NewWithContext(ctx Context, connect ConnectFunc, match string) (*Reader, error) {
	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list PC/SC readers: %w", err)
	}
	name, err := selectReader(readers, match)
	if err != nil {
		return nil, err
	}
	fabantag.Debugf("pcsc: using reader %q", name)
	return &Reader{ctx: ctx, connect: connect, name: name}, nil
}

func selectReader(readers []string, match string) (string, error) {
	needle := strings.ToLower(match)
	for _, r := range readers {
		if strings.Contains(strings.ToLower(r), needle) {
			return r, nil
		}
	}
	if match == "" {
		return "", ErrNoReader
	}
	return "", fmt.Errorf("%w matching %q (available: %s)", ErrNoReader, match, strings.Join(readers, ", "))
}

// ListReaders returns the names of all PC/SC readers on the system.
func ListReaders() ([]string, error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}
	defer func() { _ = sctx.Release() }()

	readers, err := sctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list PC/SC readers: %w", err)
	}
	return readers, nil
}

// Name returns the selected reader.
func (r *Reader) Name() string {
	return r.name
}

// ReadPassiveTarget implements fabantag.Reader. The card is connected on
// the first poll that sees it and kept until it leaves the field.
func (r *Reader) ReadPassiveTarget(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fabantag.ErrReaderClosed
	}

	rs := []scard.ReaderState{{Reader: r.name, CurrentState: scard.StateUnaware}}
	if err := r.ctx.GetStatusChange(rs, 0); err != nil {
		if errors.Is(err, scard.ErrTimeout) {
			return nil, fabantag.ErrNoTag
		}
		return nil, fmt.Errorf("%w: reader status: %w", fabantag.ErrHardwareIO, err)
	}
	if rs[0].EventState&scard.StatePresent == 0 {
		r.dropCard()
		return nil, fabantag.ErrNoTag
	}

	if r.card == nil {
		card, err := r.connect(r.name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", fabantag.ErrHardwareIO, err)
		}
		r.card = card
	}

	uid, err := r.transmit(apduGetUID)
	if err != nil {
		r.dropCard()
		return nil, fmt.Errorf("%w: get UID: %w", fabantag.ErrHardwareIO, err)
	}
	return uid, nil
}

// ReadPage implements fabantag.Reader. Readers that return a whole
// 16-byte READ answer are cut down to the requested page.
func (r *Reader) ReadPage(ctx context.Context, page uint8) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	apdu := append(append([]byte{}, apduReadPage...), page, fabantag.PageSize)
	data, err := r.cardTransmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("%w (page %d): %w", fabantag.ErrHardwareIO, page, err)
	}
	if len(data) < fabantag.PageSize {
		return nil, fmt.Errorf("%w (page %d): short read of %d bytes", fabantag.ErrHardwareIO, page, len(data))
	}
	return data[:fabantag.PageSize], nil
}

// WritePage implements fabantag.Reader.
func (r *Reader) WritePage(ctx context.Context, page uint8, data []byte) error {
	if len(data) != fabantag.PageSize {
		return fmt.Errorf("%w: page write must be %d bytes, got %d", fabantag.ErrInvalidInput, fabantag.PageSize, len(data))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	apdu := append(append([]byte{}, apduWritePage...), page, fabantag.PageSize)
	apdu = append(apdu, data...)
	if _, err := r.cardTransmit(apdu); err != nil {
		return fmt.Errorf("%w (page %d): %w", fabantag.ErrHardwareIO, page, err)
	}
	return nil
}

// FirmwareVersion implements fabantag.Reader with the reader name; PC/SC
// has no portable firmware query.
func (r *Reader) FirmwareVersion(context.Context) (string, error) {
	return "PC/SC " + r.name, nil
}

// Close implements fabantag.Reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.dropCard()
	if err := r.ctx.Release(); err != nil {
		return fmt.Errorf("failed to release PC/SC context: %w", err)
	}
	return nil
}

func (r *Reader) cardTransmit(apdu []byte) ([]byte, error) {
	if r.closed {
		return nil, fabantag.ErrReaderClosed
	}
	if r.card == nil {
		return nil, fabantag.ErrNoTag
	}
	return r.transmit(apdu)
}

func (r *Reader) transmit(apdu []byte) ([]byte, error) {
	fabantag.Debugf("pcsc: TX % X", apdu)
	res, err := r.card.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	fabantag.Debugf("pcsc: RX % X", res)
	if len(res) < 2 {
		return nil, errShortResponse
	}
	sw1, sw2 := res[len(res)-2], res[len(res)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, &APDUError{SW1: sw1, SW2: sw2}
	}
	return res[:len(res)-2], nil
}

func (r *Reader) dropCard() {
	if r.card == nil {
		return
	}
	if err := r.card.Disconnect(scard.LeaveCard); err != nil {
		fabantag.Debugf("pcsc: disconnect: %v", err)
	}
	r.card = nil
}

var _ fabantag.Reader = (*Reader)(nil)
