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
	"encoding/binary"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// TLV type constants per NFC Forum Type 2 Tag specification
const (
	TLVTypeNull          = 0x00
	TLVTypeLockControl   = 0x01
	TLVTypeMemoryControl = 0x02
	TLVTypeNDEF          = 0x03
	TLVTypeTerminator    = 0xFE
)

// userMemoryOffset is where TLVs start: page 4.
const userMemoryOffset = 4 * PageSize

// NDEFLocation is the span of an NDEF message inside a byte image.
type NDEFLocation struct {
	Offset int
	Length int
}

// ScanForNDEFTLV walks the TLVs from page 4 and returns the location of
// the first NDEF Message TLV.
func ScanForNDEFTLV(image []byte) (*NDEFLocation, error) {
	off := userMemoryOffset
	for off < len(image) {
		switch image[off] {
		case TLVTypeNull:
			off++
		case TLVTypeTerminator:
			return nil, fmt.Errorf("%w: terminator before NDEF TLV at offset %d", ErrDecode, off)
		default:
			length, header, err := tlvLength(image, off)
			if err != nil {
				return nil, err
			}
			if image[off] == TLVTypeNDEF {
				start := off + header
				if start+length > len(image) {
					return nil, fmt.Errorf("%w: NDEF TLV overruns image", ErrInsufficientData)
				}
				return &NDEFLocation{Offset: start, Length: length}, nil
			}
			off += header + length
		}
	}
	return nil, fmt.Errorf("%w: no NDEF TLV", ErrDecode)
}

// tlvLength decodes the length field of the TLV at off, returning the value
// length and the size of the type+length header.
func tlvLength(image []byte, off int) (length, header int, err error) {
	if off+1 >= len(image) {
		return 0, 0, fmt.Errorf("%w: TLV header at offset %d", ErrInsufficientData, off)
	}
	if image[off+1] != 0xFF {
		return int(image[off+1]), 2, nil
	}
	if off+3 >= len(image) {
		return 0, 0, fmt.Errorf("%w: long TLV header at offset %d", ErrInsufficientData, off)
	}
	return int(binary.BigEndian.Uint16(image[off+2 : off+4])), 4, nil
}

// RecordSummary describes one record of an NDEF message.
type RecordSummary struct {
	Type    string
	Payload []byte
	TNF     byte
}

// InspectNDEF locates the NDEF message in a byte image and parses it with
// a general NDEF decoder. It complements DecodeTextRecord, which reads the
// fixed offsets only.
func InspectNDEF(image []byte) ([]RecordSummary, error) {
	loc, err := ScanForNDEFTLV(image)
	if err != nil {
		return nil, err
	}

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(image[loc.Offset : loc.Offset+loc.Length]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	records := make([]RecordSummary, 0, len(msg.Records))
	for _, rec := range msg.Records {
		payload, err := rec.Payload()
		if err != nil {
			return nil, fmt.Errorf("%w: record payload: %w", ErrDecode, err)
		}
		records = append(records, RecordSummary{
			TNF:     rec.TNF(),
			Type:    rec.Type(),
			Payload: payload.Marshal(),
		})
	}
	return records, nil
}
