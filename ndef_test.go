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

package fabantag_test

import (
	"testing"

	"github.com/fabaplus/fabantag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFromImage loads an image into a page store, page by page.
func storeFromImage(t *testing.T, image []byte) *fabantag.PageStore {
	t.Helper()
	s := fabantag.NewPageStore()
	for i := 0; i*4 < len(image); i++ {
		require.NoError(t, s.Set(i, fabantag.ImagePage(image, i)))
	}
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"0000", "1234", "9999"} {
		id := id
		t.Run(id, func(t *testing.T) {
			t.Parallel()
			image, err := fabantag.BuildImage(syntheticTag(t, fabantag.VariantNTAG215), fabaPayload(t, id))
			require.NoError(t, err)

			rec, err := fabantag.DecodeTextRecord(storeFromImage(t, image))
			require.NoError(t, err)
			assert.Equal(t, id, rec.FabaID)
			assert.True(t, rec.HasFabaID())
			assert.True(t, rec.IsTextRecord())
			assert.Equal(t, "en", rec.Language)
			assert.Equal(t, fabantag.EncodingUTF8, rec.Encoding)
			assert.Equal(t, "02190530"+id+"00", rec.Text)
			assert.Equal(t, byte(0x11), rec.PayloadLength)
		})
	}
}

func TestDecodeNonTextTypeStillDecodes(t *testing.T) {
	t.Parallel()

	image, err := fabantag.BuildImage(syntheticTag(t, fabantag.VariantNTAG213), fabaPayload(t, "4711"))
	require.NoError(t, err)
	image[6*4+2] = 0x55

	rec, err := fabantag.DecodeTextRecord(storeFromImage(t, image))
	require.NoError(t, err)
	assert.False(t, rec.IsTextRecord())
	assert.Equal(t, "4711", rec.FabaID)
}

func TestDecodeTextRecordFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wantErr error
		name    string
		pages   map[int][]byte
	}{
		{
			name:    "missing header page",
			pages:   map[int][]byte{7: []byte("en02")},
			wantErr: fabantag.ErrDecode,
		},
		{
			name: "language longer than payload",
			pages: map[int][]byte{
				6: {0x01, 0x11, 0x54, 0x3F},
				7: []byte("en02"),
			},
			wantErr: fabantag.ErrInsufficientData,
		},
		{
			name: "terminator cuts language",
			pages: map[int][]byte{
				6: {0x01, 0x11, 0x54, 0x02},
				7: {'e', 0xFE, 0x00, 0x00},
			},
			wantErr: fabantag.ErrInsufficientData,
		},
		{
			name: "invalid utf-8",
			pages: map[int][]byte{
				6: {0x01, 0x05, 0x54, 0x02},
				7: {'e', 'n', 0xC3, 0x28},
			},
			wantErr: fabantag.ErrDecode,
		},
		{
			name: "non ascii language",
			pages: map[int][]byte{
				6: {0x01, 0x05, 0x54, 0x02},
				7: {'e', 0x80, '0', '2'},
			},
			wantErr: fabantag.ErrDecode,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := fabantag.NewPageStore()
			for i, p := range tt.pages {
				require.NoError(t, s.Set(i, p))
			}
			_, err := fabantag.DecodeTextRecord(s)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, fabantag.IsDecodeFailure(err))
		})
	}
}

func TestDecodeStopsAtMissingPage(t *testing.T) {
	t.Parallel()

	s := fabantag.NewPageStore()
	require.NoError(t, s.Set(6, []byte{0x01, 0x11, 0x54, 0x02}))
	require.NoError(t, s.Set(7, []byte("en02")))
	require.NoError(t, s.Set(8, []byte("1905")))

	rec, err := fabantag.DecodeTextRecord(s)
	require.NoError(t, err)
	assert.Equal(t, "021905", rec.Text)
	assert.False(t, rec.HasFabaID())
}

func TestDecodeUTF16(t *testing.T) {
	t.Parallel()

	s := fabantag.NewPageStore()
	require.NoError(t, s.Set(6, []byte{0x01, 0x0A, 0x54, 0x82}))
	require.NoError(t, s.Set(7, []byte{'e', 'n', 0x00, 0x30}))
	require.NoError(t, s.Set(8, []byte{0x00, 0x32, 0x00, 0x31}))
	require.NoError(t, s.Set(9, []byte{0x00, 0x39, 0xFE, 0x00}))

	rec, err := fabantag.DecodeTextRecord(s)
	require.NoError(t, err)
	assert.Equal(t, fabantag.EncodingUTF16, rec.Encoding)
	assert.Equal(t, "0219", rec.Text)
	assert.Empty(t, rec.FabaID)
}

func TestExtractFabaID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{text: "02190530123400", want: "1234", wantOK: true},
		{text: "021905309876", want: "9876", wantOK: true},
		{text: "0219053012", wantOK: false},
		{text: "02190530éé", wantOK: false},
		{text: "02190530éñüß00", want: "éñüß", wantOK: true},
		{text: "hello world!!", wantOK: false},
		{text: "", wantOK: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got, ok := fabantag.ExtractFabaID(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateFabaID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "0000"},
		{id: "1234"},
		{id: "123", wantErr: true},
		{id: "12345", wantErr: true},
		{id: "12a4", wantErr: true},
		{id: "-123", wantErr: true},
		{id: "١٢٣٤", wantErr: true},
		{id: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			err := fabantag.ValidateFabaID(tt.id)
			if tt.wantErr {
				require.ErrorIs(t, err, fabantag.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFabaIDPayload(t *testing.T) {
	t.Parallel()
	payload, err := fabantag.FabaIDPayload("1234")
	require.NoError(t, err)
	assert.Equal(t, []byte("en0219053012340"+"0"), payload)
	assert.Len(t, payload, 16)

	_, err = fabantag.FabaIDPayload("12")
	require.ErrorIs(t, err, fabantag.ErrInvalidInput)
}
