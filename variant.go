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

import "strings"

// NTAG memory structure
const (
	PageSize = 4 // bytes per page

	ntagPageCC      = 3 // Capability Container
	ntagCCSizeIndex = 2 // byte of page 3 holding the memory size

	// Canonical page counts
	ntag203TotalPages = 42
	ntag213TotalPages = 45
	ntag215TotalPages = 135
	ntag216TotalPages = 231

	// Capability Container size bytes
	ntag21xCC213 = 0x12 // shared by NTAG203 and NTAG213
	ntag21xCC215 = 0x3E
	ntag21xCC216 = 0x6D

	// MLEN values advertised in page 4
	ntag203MLEN     = 0x6D
	ntag213MLEN     = 0xA0
	ntag215MLEN     = 0xE0
	ntag216MLEN     = 0xFA
	defaultMLEN     = ntag213MLEN
	defaultCCNTAG21 = ntag21xCC213
)

// Variant identifies an NTAG chip. The set is closed; anything the
// detector cannot place is Unknown.
type Variant uint8

const (
	// VariantUnknown is used when the CC byte matches no known chip.
	VariantUnknown Variant = iota
	// VariantNTAG203 represents an NTAG203 chip.
	VariantNTAG203
	// VariantNTAG213 represents an NTAG213 chip.
	VariantNTAG213
	// VariantNTAG215 represents an NTAG215 chip.
	VariantNTAG215
	// VariantNTAG216 represents an NTAG216 chip.
	VariantNTAG216
)

// KnownVariants lists every supported chip in ascending size order.
var KnownVariants = []Variant{VariantNTAG203, VariantNTAG213, VariantNTAG215, VariantNTAG216}

// String returns the chip name, e.g. "NTAG213".
func (v Variant) String() string {
	switch v {
	case VariantNTAG203:
		return "NTAG203"
	case VariantNTAG213:
		return "NTAG213"
	case VariantNTAG215:
		return "NTAG215"
	case VariantNTAG216:
		return "NTAG216"
	case VariantUnknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

// TotalPages returns the canonical page count, or 0 for Unknown.
func (v Variant) TotalPages() int {
	switch v {
	case VariantNTAG203:
		return ntag203TotalPages
	case VariantNTAG213:
		return ntag213TotalPages
	case VariantNTAG215:
		return ntag215TotalPages
	case VariantNTAG216:
		return ntag216TotalPages
	case VariantUnknown:
		return 0
	default:
		return 0
	}
}

// CC returns the Capability Container size byte written to page 3.
func (v Variant) CC() byte {
	switch v {
	case VariantNTAG215:
		return ntag21xCC215
	case VariantNTAG216:
		return ntag21xCC216
	case VariantNTAG203, VariantNTAG213, VariantUnknown:
		return defaultCCNTAG21
	default:
		return defaultCCNTAG21
	}
}

// MLEN returns the memory-length byte written to page 4. Unknown chips
// get the NTAG213 value.
func (v Variant) MLEN() byte {
	switch v {
	case VariantNTAG203:
		return ntag203MLEN
	case VariantNTAG213:
		return ntag213MLEN
	case VariantNTAG215:
		return ntag215MLEN
	case VariantNTAG216:
		return ntag216MLEN
	case VariantUnknown:
		return defaultMLEN
	default:
		return defaultMLEN
	}
}

// ParseVariant converts a chip name such as "NTAG215" (case-insensitive)
// into a Variant.
func ParseVariant(name string) (Variant, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, v := range KnownVariants {
		if v.String() == n {
			return v, nil
		}
	}
	return VariantUnknown, newInputError("type", name, "must be one of NTAG203, NTAG213, NTAG215, NTAG216")
}
