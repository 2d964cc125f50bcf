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
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Text record layout
const (
	ndefRecordPage  = 6 // header, payload length, type, status
	ndefPayloadPage = 7 // first page of language code + text

	textRecordType   = 0x54 // 'T'
	statusUTF16      = 0x80
	statusLangMask   = 0x3F
	ndefTerminatorTL = 0xFE
)

// FabaID payload framing
const (
	FabaIDLength   = 4
	fabaIDPrefix   = "02190530"
	fabaIDSuffix   = "00"
	fabaIDLanguage = "en"
)

// Encoding names reported in TextRecord.Encoding.
const (
	EncodingUTF8  = "UTF-8"
	EncodingUTF16 = "UTF-16"
)

// TextRecord is a Text Record decoded from pages 6 onward.
type TextRecord struct {
	Language      string
	Text          string
	Encoding      string
	FabaID        string
	Header        byte
	PayloadLength byte
	Type          byte
	Status        byte
}

// HasFabaID reports whether the text carried an identifier.
func (r *TextRecord) HasFabaID() bool {
	return r.FabaID != ""
}

// IsTextRecord reports whether the type byte is 'T'.
func (r *TextRecord) IsTextRecord() bool {
	return r.Type == textRecordType
}

// DecodeTextRecord parses the Text Record starting at page 6.
//
// A type byte other than 'T' is logged and parsing continues with the same
// offsets: the header may still carry a usable payload length. This is
// knowingly more permissive than strict NDEF parsing.
//
// Payload bytes are collected from page 7 until the declared length is
// reached, a 0xFE terminator is seen or a page is missing. Text that does
// not carry the FabaID prefix decodes fine with an empty FabaID.
func DecodeTextRecord(store *PageStore) (*TextRecord, error) {
	header, err := store.Get(ndefRecordPage)
	if err != nil {
		return nil, fmt.Errorf("%w: record header: %w", ErrDecode, err)
	}

	rec := &TextRecord{
		Header:        header[0],
		PayloadLength: header[1],
		Type:          header[2],
		Status:        header[3],
		Encoding:      EncodingUTF8,
	}
	if rec.Status&statusUTF16 != 0 {
		rec.Encoding = EncodingUTF16
	}

	Debugf("NDEF header 0x%02X, payload 0x%02X, type 0x%02X, status 0x%02X",
		rec.Header, rec.PayloadLength, rec.Type, rec.Status)
	if !rec.IsTextRecord() {
		Debugf("No text record found [0x%02X]", rec.Type)
	}

	payload := collectPayload(store, int(rec.PayloadLength))
	langLen := int(rec.Status & statusLangMask)
	if len(payload) < langLen {
		return nil, fmt.Errorf("%w: language code needs %d bytes, payload has %d",
			ErrInsufficientData, langLen, len(payload))
	}

	lang := payload[:langLen]
	for _, b := range lang {
		if b > 0x7F {
			return nil, fmt.Errorf("%w: language code is not ASCII", ErrDecode)
		}
	}
	rec.Language = string(lang)

	text, err := decodeText(payload[langLen:], rec.Encoding)
	if err != nil {
		return nil, err
	}
	rec.Text = text
	rec.FabaID, _ = ExtractFabaID(text)

	Debugf("NDEF text: encoding %s, language %q, text %q", rec.Encoding, rec.Language, rec.Text)
	return rec, nil
}

func collectPayload(store *PageStore, length int) []byte {
	payload := make([]byte, 0, length)
	for page := ndefPayloadPage; len(payload) < length; page++ {
		data, err := store.Get(page)
		if err != nil {
			Debugf("Page %d missing, stopping payload read", page)
			return payload
		}
		for _, b := range data {
			if len(payload) == length || b == ndefTerminatorTL {
				return payload
			}
			payload = append(payload, b)
		}
	}
	return payload
}

func decodeText(raw []byte, encoding string) (string, error) {
	if encoding == EncodingUTF16 {
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: UTF-16 text: %w", ErrDecode, err)
		}
		return string(out), nil
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrDecode)
	}
	return string(raw), nil
}

// ExtractFabaID returns the 4 characters after the fixed prefix, when the
// text starts with it and is long enough.
func ExtractFabaID(text string) (string, bool) {
	if !strings.HasPrefix(text, fabaIDPrefix) {
		return "", false
	}
	// lengths count characters, not bytes
	runes := []rune(text)
	if len(runes) < len(fabaIDPrefix)+FabaIDLength {
		return "", false
	}
	return string(runes[len(fabaIDPrefix) : len(fabaIDPrefix)+FabaIDLength]), true
}

// ValidateFabaID checks that id is exactly four ASCII digits.
func ValidateFabaID(id string) error {
	if len(id) != FabaIDLength {
		return newInputError("id", id, "must be a 4-digit number")
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return newInputError("id", id, "must be a 4-digit number")
		}
	}
	return nil
}

// EncodeFabaID returns the Text Record payload for id: language code,
// prefix, id and suffix as one string.
func EncodeFabaID(id string) string {
	return fabaIDLanguage + fabaIDPrefix + id + fabaIDSuffix
}

// FabaIDPayload validates id and returns the payload bytes for pages 7-10.
func FabaIDPayload(id string) ([]byte, error) {
	if err := ValidateFabaID(id); err != nil {
		return nil, err
	}
	return []byte(EncodeFabaID(id)), nil
}
