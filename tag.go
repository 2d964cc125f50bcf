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
	"fmt"
	"strings"
)

// UIDLength is the size of an NTAG double-size UID.
const UIDLength = 7

// cascadeTag is mixed into BCC0 per ISO/IEC 14443-3.
const cascadeTag = 0x88

// Tag is one physical (or synthesized) NTAG and the pages known about it.
type Tag struct {
	Pages      *PageStore
	UID        []byte
	Variant    Variant
	TotalPages int
}

// NewTag returns an empty tag for the given UID. The UID is copied.
func NewTag(uid []byte) *Tag {
	return &Tag{
		UID:   append([]byte(nil), uid...),
		Pages: NewPageStore(),
	}
}

// UIDHex returns the UID as uppercase hex without separators.
func (t *Tag) UIDHex() string {
	return strings.ToUpper(hex.EncodeToString(t.UID))
}

// UIDString returns the UID as space separated uppercase hex.
func (t *Tag) UIDString() string {
	return formatHex(t.UID)
}

// NewSyntheticTag builds a tag without hardware: pages 0-4 are derived
// from the UID and variant exactly as a factory-fresh chip would carry them.
func NewSyntheticTag(uid []byte, variant Variant) (*Tag, error) {
	if len(uid) != UIDLength {
		return nil, newInputError("uid", hex.EncodeToString(uid), "must be exactly 7 bytes")
	}
	if variant == VariantUnknown {
		return nil, newInputError("type", variant.String(), "must be a known NTAG variant")
	}

	bcc0 := cascadeTag ^ uid[0] ^ uid[1] ^ uid[2]
	bcc1 := uid[3] ^ uid[4] ^ uid[5] ^ uid[6]

	t := NewTag(uid)
	t.Variant = variant
	t.TotalPages = variant.TotalPages()

	pages := [][]byte{
		{uid[0], uid[1], uid[2], bcc0},
		{uid[3], uid[4], uid[5], uid[6]},
		{bcc1, 0x48, 0x00, 0x00},
		{0xE1, 0x10, variant.CC(), 0x00},
		{0x01, 0x03, variant.MLEN(), 0x0C},
	}
	for i, p := range pages {
		if err := t.Pages.Set(i, p); err != nil {
			return nil, fmt.Errorf("synthesizing page %d: %w", i, err)
		}
	}
	return t, nil
}

// ParseUID decodes a 14 character hex string into a 7-byte UID.
func ParseUID(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != UIDLength*2 {
		return nil, newInputError("uid", s, "must be 14 hex characters (7 bytes)")
	}
	uid, err := hex.DecodeString(s)
	if err != nil {
		return nil, newInputError("uid", s, "must be hexadecimal")
	}
	return uid, nil
}
