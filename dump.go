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

package fabantag

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dump regions of the byte image
const (
	ndefDumpStart = 23 // NDEF message, after the lock control TLV and NDEF TLV header
	ndefDumpEnd   = 44
	stemStart     = 38 // four FabaID characters inside the text payload
	stemEnd       = 42

	// MinDumpImageLen is the shortest image that still holds the NDEF region.
	MinDumpImageLen = ndefDumpEnd
)

// Dump file extensions
const (
	ExtRaw     = ".raw"
	ExtNDEF    = ".ndef"
	ExtFlipper = ".nfc"
)

// Flipper Zero static fields. Counters, tearing flags and the signature
// are never computed, only copied as defaults.
const (
	flipperDeviceTypes = "# Device type can be ISO14443-3A, ISO14443-3B, ISO14443-4A, " +
		"ISO14443-4B, ISO15693-3, FeliCa, NTAG/Ultralight, Mifare Classic, Mifare Plus, " +
		"Mifare DESFire, SLIX, ST25TB, EMV"
	flipperSignatureLen = 32
	flipperMifareVer    = "00 53 04 02 01 00 0F 03"
)

// imagePages splits an image into 4-byte pages, zero padding a short last
// page.
func imagePages(image []byte) [][]byte {
	pages := make([][]byte, 0, (len(image)+PageSize-1)/PageSize)
	for i := 0; i < len(image); i += PageSize {
		page := make([]byte, PageSize)
		copy(page, image[i:min(i+PageSize, len(image))])
		pages = append(pages, page)
	}
	return pages
}

// RenderRaw returns one line of 8 uppercase hex characters per page.
func RenderRaw(image []byte) string {
	pages := imagePages(image)
	lines := make([]string, 0, len(pages))
	for _, page := range pages {
		lines = append(lines, strings.ToUpper(hex.EncodeToString(page)))
	}
	return strings.Join(lines, "\n")
}

// RenderNDEF wraps bytes 23..43 (the NDEF message) as lowercase hex in an
// NdefMessage element.
func RenderNDEF(image []byte) string {
	region := image[min(ndefDumpStart, len(image)):min(ndefDumpEnd, len(image))]
	return "<NdefMessage>" + hex.EncodeToString(region) + "</NdefMessage>"
}

// RenderFlipper returns a Flipper Zero NFC device file for the image.
func RenderFlipper(image []byte, tag *Tag) string {
	lines := []string{
		"Filetype: Flipper NFC device",
		"Version: 4",
		flipperDeviceTypes,
		"Device type: NTAG/Ultralight",
		"# UID is common for all formats",
		"UID: " + formatHex(tag.UID),
		"# ISO14443-3A specific data",
		"ATQA: 00 44",
		"SAK: 00",
		"# NTAG/Ultralight specific data",
		"Data format version: 2",
		"NTAG/Ultralight type: " + tag.Variant.String(),
		"Signature:" + strings.Repeat(" 00", flipperSignatureLen),
		"Mifare version: " + flipperMifareVer,
		"Counter 0: 0",
		"Tearing 0: 00",
		"Counter 1: 0",
		"Tearing 1: 00",
		"Counter 2: 0",
		"Tearing 2: 00",
		fmt.Sprintf("Pages total: %d", tag.TotalPages),
		fmt.Sprintf("Pages read: %d", tag.TotalPages),
	}
	for i, page := range imagePages(image) {
		lines = append(lines, fmt.Sprintf("Page %d: %s", i, formatHex(page)))
	}
	lines = append(lines, "Failed authentication attempts: 0")
	return strings.Join(lines, "\n")
}

// FileStem names the dump files: the printable characters of bytes 38..41
// (the FabaID digits on a written tag), or the UID in hex when none are
// printable.
func FileStem(image []byte, uid []byte) string {
	var sb strings.Builder
	for _, b := range image[min(stemStart, len(image)):min(stemEnd, len(image))] {
		if isPrintable(b) {
			sb.WriteByte(b)
		}
	}
	if sb.Len() == 0 {
		return strings.ToUpper(hex.EncodeToString(uid))
	}
	return sb.String()
}

// isPrintable matches Python's string.printable restricted to >= 0x20,
// which leaves plain ASCII 0x20..0x7E.
func isPrintable(b byte) bool {
	return b >= 0x20 && b < 0x7F
}

// DumpResult lists the files written by SaveDumps and the saves that failed.
type DumpResult struct {
	Files  []string
	Errors []error
}

// Err joins every failed save, or returns nil.
func (r *DumpResult) Err() error {
	return errors.Join(r.Errors...)
}

// SaveDumps writes the raw, NDEF and Flipper renderings of image into dir.
// Each file is written independently: a failing save is recorded and the
// others still run.
func SaveDumps(dir string, image []byte, tag *Tag) (*DumpResult, error) {
	if len(image) < MinDumpImageLen {
		return nil, fmt.Errorf("%w: image has %d bytes, dumps need %d",
			ErrInsufficientData, len(image), MinDumpImageLen)
	}

	stem := FileStem(image, tag.UID)
	outputs := []struct {
		ext  string
		body string
	}{
		{ExtRaw, RenderRaw(image)},
		{ExtNDEF, RenderNDEF(image)},
		{ExtFlipper, RenderFlipper(image, tag)},
	}

	result := &DumpResult{}
	for _, out := range outputs {
		path := filepath.Join(dir, stem+out.ext)
		if err := os.WriteFile(path, []byte(out.body), 0o600); err != nil {
			Debugf("Failed to write file %s: %v", path, err)
			result.Errors = append(result.Errors, fmt.Errorf("saving %s: %w", path, err))
			continue
		}
		Debugf("Saved %s", path)
		result.Files = append(result.Files, path)
	}
	return result, nil
}
