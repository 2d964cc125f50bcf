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
	"context"
	"fmt"
	"time"
)

// Options carries the settings shared by every operation.
type Options struct {
	// OutDir receives dump files. Empty means the current directory.
	OutDir string
	// PollInterval is the pause between empty passive-target polls.
	PollInterval time.Duration
}

// Result is what an operation produced. Fields that do not apply to the
// operation are left zero.
type Result struct {
	Tag     *Tag
	Record  *TextRecord
	Dumps   *DumpResult
	FabaID  string
	Records []RecordSummary
	Image   []byte
}

func (o Options) detect(ctx context.Context, r Reader) (*Tag, error) {
	tag, err := Detect(ctx, r, DetectOptions{PollInterval: o.PollInterval})
	if err != nil {
		return nil, fmt.Errorf("detecting tag: %w", err)
	}
	return tag, nil
}

// Read detects the tag and decodes its FabaID. Malformed NDEF content is
// not an error: the result simply carries no FabaID.
func Read(ctx context.Context, r Reader, opts Options) (*Result, error) {
	tag, err := opts.detect(ctx, r)
	if err != nil {
		return nil, err
	}

	res := &Result{Tag: tag, Image: tag.Pages.Bytes()}
	rec, err := DecodeTextRecord(tag.Pages)
	switch {
	case err == nil:
		res.Record = rec
		res.FabaID = rec.FabaID
	case IsDecodeFailure(err):
		Debugf("No FabaID: %v", err)
	default:
		return nil, err
	}

	if records, err := InspectNDEF(res.Image); err == nil {
		res.Records = records
	} else {
		Debugf("NDEF message not parsed: %v", err)
	}
	return res, nil
}

// Write detects the tag, rewrites pages 4-11 with a Text Record carrying
// id, verifies them and saves dumps of the new image.
func Write(ctx context.Context, r Reader, id string, opts Options) (*Result, error) {
	payload, err := FabaIDPayload(id)
	if err != nil {
		return nil, err
	}

	tag, err := opts.detect(ctx, r)
	if err != nil {
		return nil, err
	}

	image, err := BuildImage(tag, payload)
	if err != nil {
		return nil, err
	}
	Debugf("Image for FabaID %s:\n%s", id, FormatPageTable(image))

	if err := WriteAndVerify(ctx, r, tag, image, writeStart, writeEnd); err != nil {
		return nil, err
	}

	res := &Result{Tag: tag, Image: image, FabaID: id}
	res.Dumps = saveDumpsBestEffort(opts.OutDir, image, tag)
	return res, nil
}

// Dump detects the tag and saves the pages it read, in page order. An
// image too short to hold the NDEF region is returned without dumps.
func Dump(ctx context.Context, r Reader, opts Options) (*Result, error) {
	tag, err := opts.detect(ctx, r)
	if err != nil {
		return nil, err
	}

	image := tag.Pages.Bytes()
	res := &Result{Tag: tag, Image: image}
	if len(image) < MinDumpImageLen {
		Debugf("Image has %d bytes, dumps need %d; nothing saved", len(image), MinDumpImageLen)
	} else {
		dumps, err := SaveDumps(opts.OutDir, image, tag)
		if err != nil {
			return nil, err
		}
		res.Dumps = dumps
	}
	if rec, err := DecodeTextRecord(tag.Pages); err == nil {
		res.Record = rec
		res.FabaID = rec.FabaID
	}
	return res, nil
}

// Erase detects the tag and restores pages 4 through the last page to
// their factory defaults.
func Erase(ctx context.Context, r Reader, opts Options) (*Result, error) {
	tag, err := opts.detect(ctx, r)
	if err != nil {
		return nil, err
	}

	image, err := BuildEraseImage(tag)
	if err != nil {
		return nil, err
	}
	Debugf("Erase image:\n%s", FormatPageTable(image))

	if err := WriteAndVerify(ctx, r, tag, image, writeStart, tag.TotalPages-1); err != nil {
		return nil, err
	}
	return &Result{Tag: tag, Image: image}, nil
}

// Create builds the image a tag with the given UID, type and FabaID would
// carry and saves it as dumps, without touching hardware. All three inputs
// are validated before any work starts.
func Create(uidHex, typeName, id string, opts Options) (*Result, error) {
	uid, err := ParseUID(uidHex)
	if err != nil {
		return nil, err
	}
	variant, err := ParseVariant(typeName)
	if err != nil {
		return nil, err
	}
	payload, err := FabaIDPayload(id)
	if err != nil {
		return nil, err
	}

	tag, err := NewSyntheticTag(uid, variant)
	if err != nil {
		return nil, err
	}
	image, err := BuildImage(tag, payload)
	if err != nil {
		return nil, err
	}
	Debugf("Image for FabaID %s:\n%s", id, FormatPageTable(image))

	dumps, err := SaveDumps(opts.OutDir, image, tag)
	if err != nil {
		return nil, err
	}
	return &Result{Tag: tag, Image: image, FabaID: id, Dumps: dumps}, nil
}

// saveDumpsBestEffort saves dumps after a hardware write has already
// succeeded; a failure here must not turn the write into an error.
func saveDumpsBestEffort(dir string, image []byte, tag *Tag) *DumpResult {
	dumps, err := SaveDumps(dir, image, tag)
	if err != nil {
		Debugf("Dumps not saved: %v", err)
		return &DumpResult{Errors: []error{err}}
	}
	return dumps
}
