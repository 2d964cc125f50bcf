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
	"fmt"
	"strings"
)

// Image layout
const (
	headerPages  = 4  // pages 0-3: UID, lock bytes, CC
	payloadStart = 7  // first payload page
	payloadPages = 4  // pages 7-10
	writeStart   = 4  // first page rewritten by a FabaID write
	writeEnd     = 11 // last page rewritten by a FabaID write

	// Pages accounted for outside the filler: 0-11 plus the trailer.
	fixedImagePages = 17
	// Pages accounted for outside the erase filler: 0-5 plus the trailer.
	fixedErasePages = 11
)

var (
	ndefTLVHeader    = []byte{0x34, 0x03, 0x15, 0xD1}
	textRecordHeader = []byte{0x01, 0x11, 0x54, 0x02}
	terminatorPage   = []byte{0xFE, 0x00, 0x00, 0x00}

	// manufacturerTrailer is the factory default of the last five pages.
	manufacturerTrailer = []byte{
		0x00, 0x00, 0x00, 0xBD,
		0x04, 0x00, 0x00, 0xFF,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
)

// BuildImage assembles the full byte image of tag carrying payload.
//
// Pages 0-3 come from the page store. When payload is nil pages 7-10 are
// copied from the store too; otherwise payload must be exactly 16 bytes.
// Missing pages read as zeros. The result is always TotalPages*4 bytes:
// the filler shrinks to nothing for small tags and a tag smaller than the
// fixed layout gets the layout cut at its last page.
func BuildImage(tag *Tag, payload []byte) ([]byte, error) {
	if payload != nil && len(payload) != payloadPages*PageSize {
		return nil, fmt.Errorf("%w: payload has %d bytes, want %d",
			ErrInvalidInput, len(payload), payloadPages*PageSize)
	}
	if tag.TotalPages < 0 {
		return nil, fmt.Errorf("%w: negative page count %d", ErrImageSize, tag.TotalPages)
	}

	image := make([]byte, 0, tag.TotalPages*PageSize)
	for i := 0; i < headerPages; i++ {
		image = append(image, tag.Pages.GetOrZero(i)...)
	}
	image = append(image, 0x01, 0x03, tag.Variant.MLEN(), 0x0C)
	image = append(image, ndefTLVHeader...)
	image = append(image, textRecordHeader...)
	if payload != nil {
		image = append(image, payload...)
	} else {
		for i := payloadStart; i < payloadStart+payloadPages; i++ {
			image = append(image, tag.Pages.GetOrZero(i)...)
		}
	}
	image = append(image, terminatorPage...)
	image = append(image, make([]byte, fillerLen(tag.TotalPages, fixedImagePages))...)
	image = append(image, manufacturerTrailer...)

	return checkImageSize(image, tag.TotalPages)
}

// erasePages returns the factory-default pages 4 and 5 for a variant.
func erasePages(v Variant) (page4, page5 []byte) {
	switch v {
	case VariantNTAG203, VariantNTAG213:
		return []byte{0x01, 0x03, 0xA0, 0x0C}, []byte{0x34, 0x03, 0x00, 0xFE}
	case VariantNTAG215, VariantNTAG216:
		return []byte{0x03, 0x00, 0xFE, 0x00}, make([]byte, PageSize)
	case VariantUnknown:
		return make([]byte, PageSize), make([]byte, PageSize)
	default:
		return make([]byte, PageSize), make([]byte, PageSize)
	}
}

// BuildEraseImage assembles the factory-default image of tag: zeroed
// header pages, variant default pages 4-5, zero filler and the trailer.
// Only pages 4 and up are ever written from it.
func BuildEraseImage(tag *Tag) ([]byte, error) {
	if tag.TotalPages < 0 {
		return nil, fmt.Errorf("%w: negative page count %d", ErrImageSize, tag.TotalPages)
	}
	page4, page5 := erasePages(tag.Variant)

	image := make([]byte, 0, tag.TotalPages*PageSize)
	image = append(image, make([]byte, headerPages*PageSize)...)
	image = append(image, page4...)
	image = append(image, page5...)
	image = append(image, make([]byte, fillerLen(tag.TotalPages, fixedErasePages))...)
	image = append(image, manufacturerTrailer...)

	return checkImageSize(image, tag.TotalPages)
}

// fillerLen clamps the zero filler at zero for tags smaller than the
// fixed part of the layout.
func fillerLen(totalPages, fixedPages int) int {
	if totalPages <= fixedPages {
		return 0
	}
	return (totalPages - fixedPages) * PageSize
}

func checkImageSize(image []byte, totalPages int) ([]byte, error) {
	if len(image) > totalPages*PageSize {
		Debugf("Layout cut from %d to %d pages", len(image)/PageSize, totalPages)
		image = image[:totalPages*PageSize]
	}
	if len(image) != totalPages*PageSize {
		return nil, fmt.Errorf("%w: built %d bytes for %d pages",
			ErrImageSize, len(image), totalPages)
	}
	return image, nil
}

// ImagePage returns page i of a byte image.
func ImagePage(image []byte, i int) []byte {
	return image[i*PageSize : (i+1)*PageSize]
}

// FormatPageTable renders an image as "Page NNN:  HEX | ASCII" lines for
// debug output.
func FormatPageTable(image []byte) string {
	var sb strings.Builder
	sb.WriteString("Page       HEX          |  ASCII\n")
	sb.WriteString("---------  -----------  |  -----\n")
	for i := 0; i*PageSize < len(image); i++ {
		end := min((i+1)*PageSize, len(image))
		chunk := image[i*PageSize : end]
		ascii := make([]byte, len(chunk))
		for j, b := range chunk {
			if b >= 0x20 && b < 0x7F {
				ascii[j] = b
			} else {
				ascii[j] = '.'
			}
		}
		fmt.Fprintf(&sb, "Page %03d:  %-12s |  %s\n", i, formatHex(chunk), ascii)
	}
	return sb.String()
}
