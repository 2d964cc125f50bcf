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

package testing

import (
	"context"
	"testing"

	"github.com/fabaplus/fabantag"
	"github.com/fabaplus/fabantag/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualNTAGFactoryLayout(t *testing.T) {
	t.Parallel()
	tests := []struct {
		variant fabantag.Variant
		pages   int
	}{
		{fabantag.VariantNTAG203, 42},
		{fabantag.VariantNTAG213, 45},
		{fabantag.VariantNTAG215, 135},
		{fabantag.VariantNTAG216, 231},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.variant.String(), func(t *testing.T) {
			t.Parallel()
			tag := NewVirtualNTAG(tt.variant, nil)
			assert.Len(t, tag.Memory, tt.pages)
			assert.Equal(t, TestNTAG213UID[:3], tag.Page(0)[:3])
			assert.Equal(t, tt.variant.CC(), tag.Page(3)[2])
		})
	}
}

func TestVirtualTagFaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tag := NewVirtualNTAG213(nil)

	tag.FailWriteAt(6)
	require.NoError(t, tag.WritePage(ctx, 5, []byte{1, 2, 3, 4}))
	require.ErrorIs(t, tag.WritePage(ctx, 6, []byte{1, 2, 3, 4}), fabantag.ErrHardwareIO)
	assert.Equal(t, []int{5}, tag.WriteLog())

	tag.CorruptReadback(5, []byte{9, 9, 9, 9})
	got, err := tag.ReadPage(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9}, got)
	assert.Equal(t, []byte{1, 2, 3, 4}, tag.Page(5))

	tag.SetReadablePages(10)
	_, err = tag.ReadPage(ctx, 10)
	require.ErrorIs(t, err, fabantag.ErrHardwareIO)

	tag.Remove()
	_, err = tag.ReadPassiveTarget(ctx)
	require.ErrorIs(t, err, fabantag.ErrNoTag)
	tag.Insert()

	other := []byte{0x04, 1, 2, 3, 4, 5, 6}
	tag.SwapUIDAfter(tag.Polls()+1, other)
	uid, err := tag.ReadPassiveTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, TestNTAG213UID, uid)
	uid, err = tag.ReadPassiveTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, other, uid)
}

func TestReadBlock16RollsOver(t *testing.T) {
	t.Parallel()
	tag := NewVirtualNTAG213(nil)
	data, err := tag.ReadBlock16(43)
	require.NoError(t, err)
	require.Len(t, data, 16)
	assert.Equal(t, tag.Page(0), data[8:12])
}

// transact writes one command frame and returns everything queued back.
func transact(t *testing.T, sim *VirtualPN532, cmd byte, args []byte) []byte {
	t.Helper()
	frm, err := frame.EncodeCommand(cmd, args)
	require.NoError(t, err)
	_, err = sim.Write(append([]byte{0x55, 0x00, 0x00, 0x00}, frm...))
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := sim.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestVirtualPN532Firmware(t *testing.T) {
	t.Parallel()
	sim := NewVirtualPN532()
	out := transact(t, sim, CmdGetFirmwareVersion, nil)
	require.True(t, frame.IsAck(out))

	payload, _, err := frame.Parse(out[len(frame.AckFrame):], frame.PN532ToHost)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, payload)
}

func TestVirtualPN532ReadWrite(t *testing.T) {
	t.Parallel()
	sim := NewVirtualPN532()
	tag := NewVirtualNTAG213(nil)
	sim.SetTag(tag)

	out := transact(t, sim, CmdInDataExchange, []byte{0x01, NTAGCmdWrite, 0x07, 0xAA, 0xBB, 0xCC, 0xDD})
	payload, _, err := frame.Parse(out[len(frame.AckFrame):], frame.PN532ToHost)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x00}, payload)

	out = transact(t, sim, CmdInDataExchange, []byte{0x01, NTAGCmdRead, 0x07})
	payload, _, err = frame.Parse(out[len(frame.AckFrame):], frame.PN532ToHost)
	require.NoError(t, err)
	require.Len(t, payload, 18)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, payload[2:6])
}

func TestVirtualPN532NoTag(t *testing.T) {
	t.Parallel()
	sim := NewVirtualPN532()
	out := transact(t, sim, CmdInListPassiveTarget, []byte{0x01, 0x00})
	payload, _, err := frame.Parse(out[len(frame.AckFrame):], frame.PN532ToHost)
	require.NoError(t, err)
	assert.Equal(t, BuildNoTagResponse(), payload)

	sim.SilentEmptyPoll(true)
	out = transact(t, sim, CmdInListPassiveTarget, []byte{0x01, 0x00})
	assert.Equal(t, frame.AckFrame, out)
}

func TestVirtualPN532NackRetransmits(t *testing.T) {
	t.Parallel()
	sim := NewVirtualPN532()
	sim.InjectChecksumError()
	out := transact(t, sim, CmdGetFirmwareVersion, nil)
	_, _, err := frame.Parse(out[len(frame.AckFrame):], frame.PN532ToHost)
	require.ErrorIs(t, err, frame.ErrChecksum)

	_, err = sim.Write(frame.NackFrame)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := sim.Read(buf)
	require.NoError(t, err)
	payload, _, err := frame.Parse(buf[:n], frame.PN532ToHost)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), payload[0])
}

func TestVirtualPN532UnknownCommand(t *testing.T) {
	t.Parallel()
	sim := NewVirtualPN532()
	out := transact(t, sim, 0x60, nil)
	_, _, err := frame.Parse(out[len(frame.AckFrame):], frame.PN532ToHost)
	require.ErrorIs(t, err, frame.ErrApplication)
}
