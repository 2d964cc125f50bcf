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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fabaplus/fabantag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createImage(t *testing.T) (*fabantag.Tag, []byte) {
	t.Helper()
	tag := syntheticTag(t, fabantag.VariantNTAG213)
	image, err := fabantag.BuildImage(tag, fabaPayload(t, "1234"))
	require.NoError(t, err)
	return tag, image
}

func TestRenderRaw(t *testing.T) {
	t.Parallel()
	_, image := createImage(t)

	lines := strings.Split(fabantag.RenderRaw(image), "\n")
	require.Len(t, lines, 45)
	assert.Equal(t, "04742FD7", lines[0])
	assert.Equal(t, "656E3032", lines[7])
	assert.Equal(t, "000000BD", lines[40])
}

func TestRenderNDEF(t *testing.T) {
	t.Parallel()
	_, image := createImage(t)

	assert.Equal(t,
		"<NdefMessage>d101115402656e3032313930353330313233343030</NdefMessage>",
		fabantag.RenderNDEF(image))
}

func TestRenderFlipper(t *testing.T) {
	t.Parallel()
	tag, image := createImage(t)

	out := fabantag.RenderFlipper(image, tag)
	lines := strings.Split(out, "\n")
	assert.Equal(t, "Filetype: Flipper NFC device", lines[0])
	assert.Equal(t, "Version: 4", lines[1])
	assert.Contains(t, lines, "UID: 04 74 2F F1 78 00 00")
	assert.Contains(t, lines, "NTAG/Ultralight type: NTAG213")
	assert.Contains(t, lines, "Pages total: 45")
	assert.Contains(t, lines, "Pages read: 45")
	assert.Contains(t, lines, "Page 0: 04 74 2F D7")
	assert.Contains(t, lines, "Page 44: 00 00 00 00")
	assert.Contains(t, lines, "Signature:"+strings.Repeat(" 00", 32))
	assert.Equal(t, "Failed authentication attempts: 0", lines[len(lines)-1])
}

func TestFileStem(t *testing.T) {
	t.Parallel()
	_, image := createImage(t)
	assert.Equal(t, "1234", fabantag.FileStem(image, testUID))

	blank := make([]byte, 45*4)
	assert.Equal(t, "04742FF1780000", fabantag.FileStem(blank, testUID))

	// only the printable bytes are kept
	blank[39], blank[40] = '7', '9'
	assert.Equal(t, "79", fabantag.FileStem(blank, testUID))
}

func TestSaveDumps(t *testing.T) {
	t.Parallel()
	tag, image := createImage(t)
	dir := t.TempDir()

	res, err := fabantag.SaveDumps(dir, image, tag)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, []string{
		filepath.Join(dir, "1234.raw"),
		filepath.Join(dir, "1234.ndef"),
		filepath.Join(dir, "1234.nfc"),
	}, res.Files)

	raw, err := os.ReadFile(filepath.Join(dir, "1234.raw"))
	require.NoError(t, err)
	assert.Equal(t, fabantag.RenderRaw(image), string(raw))
}

func TestSaveDumpsFailuresAreIndependent(t *testing.T) {
	t.Parallel()
	tag, image := createImage(t)

	res, err := fabantag.SaveDumps(filepath.Join(t.TempDir(), "missing"), image, tag)
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.Len(t, res.Errors, 3)
	require.Error(t, res.Err())
}

func TestSaveDumpsShortImage(t *testing.T) {
	t.Parallel()
	tag, image := createImage(t)

	_, err := fabantag.SaveDumps(t.TempDir(), image[:40], tag)
	require.ErrorIs(t, err, fabantag.ErrInsufficientData)
}
