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

// Package frame encodes and decodes PN532 normal information frames:
//
//	00 00 FF LEN LCS TFI PD0..PDn DCS 00
//
// LEN counts TFI plus payload, LEN+LCS and TFI+PD0..PDn+DCS are zero
// modulo 256.
package frame

import (
	"bytes"
	"errors"
)

// Frame identifiers
const (
	HostToPN532 = 0xD4 // Commands from host to PN532
	PN532ToHost = 0xD5 // Responses from PN532 to host
	ErrorTFI    = 0x7F // Application level error frame
)

// Frame markers
const (
	Preamble   = 0x00
	StartCode1 = 0x00
	StartCode2 = 0xFF
	Postamble  = 0x00
)

// Frame size limits
const (
	// MaxDataLength is the largest TFI+payload a normal frame carries.
	MaxDataLength = 255
	// MinFrameLength is START(2) + LEN + LCS + TFI + DCS.
	MinFrameLength = 6
	// Overhead is everything around the payload in an encoded frame.
	Overhead = 8
)

// ACK and NACK frames
var (
	AckFrame  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
)

var (
	// ErrIncomplete means more bytes are needed before a frame can be parsed.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrChecksum means a length or data checksum failed; the caller should NACK.
	ErrChecksum = errors.New("frame checksum mismatch")
	// ErrTooLarge means the payload does not fit a normal frame.
	ErrTooLarge = errors.New("frame data too large")
	// ErrUnexpectedTFI means the frame direction byte was wrong.
	ErrUnexpectedTFI = errors.New("unexpected frame identifier")
	// ErrApplication is the PN532 syntax error frame (TFI 0x7F).
	ErrApplication = errors.New("PN532 application error frame")
	// ErrNoStart means the buffer holds no start code.
	ErrNoStart = errors.New("no frame start code")
)

// CalculateChecksum sums data modulo 256.
func CalculateChecksum(data []byte) byte {
	chk := byte(0)
	for _, b := range data {
		chk += b
	}
	return chk
}

// Encode builds a frame with the given identifier and payload.
func Encode(tfi byte, payload []byte) ([]byte, error) {
	dataLen := 1 + len(payload)
	if dataLen > MaxDataLength {
		return nil, ErrTooLarge
	}

	frm := make([]byte, 0, Overhead-1+dataLen)
	frm = append(frm, Preamble, StartCode1, StartCode2, byte(dataLen), ^byte(dataLen)+1, tfi)
	frm = append(frm, payload...)
	sum := tfi + CalculateChecksum(payload)
	frm = append(frm, ^sum+1, Postamble)
	return frm, nil
}

// EncodeCommand builds a host command frame: D4 cmd args.
func EncodeCommand(cmd byte, args []byte) ([]byte, error) {
	payload := make([]byte, 0, 1+len(args))
	payload = append(payload, cmd)
	payload = append(payload, args...)
	return Encode(HostToPN532, payload)
}

// FindStart returns the offset of the 00 FF start code, or -1.
func FindStart(buf []byte) int {
	return bytes.Index(buf, []byte{StartCode1, StartCode2})
}

// IsAck reports whether buf starts with an ACK frame.
func IsAck(buf []byte) bool {
	return bytes.HasPrefix(buf, AckFrame)
}

// IsNack reports whether buf starts with a NACK frame.
func IsNack(buf []byte) bool {
	return bytes.HasPrefix(buf, NackFrame)
}

// Parse decodes the first frame in buf whose identifier is tfi. It returns
// the payload after the TFI and the number of bytes consumed from buf,
// postamble included when present.
//
// ErrIncomplete asks for more data. ErrChecksum and ErrUnexpectedTFI still
// report how many bytes the bad frame occupied so the caller can skip it.
func Parse(buf []byte, tfi byte) (payload []byte, consumed int, err error) {
	off := FindStart(buf)
	if off < 0 {
		return nil, 0, ErrNoStart
	}
	off += 2
	if off+2 > len(buf) {
		return nil, 0, ErrIncomplete
	}

	dataLen := int(buf[off])
	if byte(dataLen)+buf[off+1] != 0 {
		return nil, off, ErrChecksum
	}
	if dataLen == 0 {
		// ACK shaped; nothing to decode
		return nil, min(off+3, len(buf)), ErrUnexpectedTFI
	}

	start := off + 2
	end := start + dataLen
	if end+1 > len(buf) {
		return nil, 0, ErrIncomplete
	}
	consumed = end + 1
	if consumed < len(buf) && buf[consumed] == Postamble {
		consumed++
	}

	if CalculateChecksum(buf[start:end+1]) != 0 {
		return nil, consumed, ErrChecksum
	}
	switch buf[start] {
	case tfi:
	case ErrorTFI:
		return nil, consumed, ErrApplication
	default:
		return nil, consumed, ErrUnexpectedTFI
	}

	return append([]byte(nil), buf[start+1:end]...), consumed, nil
}
