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

// maxScanPages caps the detection scan at the 8-bit page address space.
const maxScanPages = 256

// DetectVariant maps the Capability Container size byte and the number of
// pages that could actually be read to a variant and its page count.
//
// The CC byte wins over the observed count: clone chips often answer for
// more or fewer pages than they really have, so a known CC always yields
// the canonical size. Only CC 0x12 needs the observed count, to tell an
// NTAG203 (42 pages) from an NTAG213.
func DetectVariant(cc byte, observed int) (Variant, int) {
	switch cc {
	case ntag21xCC213:
		switch observed {
		case ntag203TotalPages:
			return VariantNTAG203, ntag203TotalPages
		case ntag213TotalPages:
			return VariantNTAG213, ntag213TotalPages
		default:
			Debugf("CC 0x%02X with %d pages, treating as NTAG213 clone", cc, observed)
			return VariantNTAG213, ntag213TotalPages
		}
	case ntag21xCC215:
		if observed != ntag215TotalPages {
			Debugf("CC 0x%02X with %d pages, treating as NTAG215 clone", cc, observed)
		}
		return VariantNTAG215, ntag215TotalPages
	case ntag21xCC216:
		if observed != ntag216TotalPages {
			Debugf("CC 0x%02X with %d pages, treating as NTAG216 clone", cc, observed)
		}
		return VariantNTAG216, ntag216TotalPages
	default:
		return VariantUnknown, observed
	}
}

// DetectOptions tunes the detection pass.
type DetectOptions struct {
	// PollInterval is the pause between empty passive-target polls.
	PollInterval time.Duration
}

// Detect waits for a tag, reads its pages from 0 upward until a read
// fails, and finalizes the variant and page count.
func Detect(ctx context.Context, r Reader, opts DetectOptions) (*Tag, error) {
	uid, err := WaitForTag(ctx, r, opts.PollInterval)
	if err != nil {
		return nil, err
	}

	tag := NewTag(uid)
	observed, err := scanPages(ctx, r, tag.Pages)
	if err != nil {
		return nil, err
	}
	if observed == 0 {
		return nil, fmt.Errorf("%w: tag %s has no readable pages", ErrHardwareIO, tag.UIDString())
	}

	FinalizeTag(tag, observed)
	return tag, nil
}

// FinalizeTag applies DetectVariant to a scanned tag and drops any page
// beyond the final page count. A missing page 3 reads as CC 0x00.
func FinalizeTag(tag *Tag, observed int) {
	cc := tag.Pages.GetOrZero(ntagPageCC)[ntagCCSizeIndex]
	tag.Variant, tag.TotalPages = DetectVariant(cc, observed)
	tag.Pages.Truncate(tag.TotalPages)

	Debugf("Type: %s [CC: 0x%02X], pages: %d (observed %d)", tag.Variant, cc, tag.TotalPages, observed)
}

// scanPages reads sequentially until the first failed page and returns
// how many pages were read. A failing read marks the end of memory; only
// context cancellation is reported as an error.
func scanPages(ctx context.Context, r Reader, store *PageStore) (int, error) {
	for page := 0; page < maxScanPages; page++ {
		data, err := r.ReadPage(ctx, uint8(page))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return page, fmt.Errorf("scanning page %d: %w", page, ctxErr)
			}
			Debugf("Read stopped at page %d: %v", page, err)
			return page, nil
		}
		if err := store.Set(page, data); err != nil {
			Debugf("Read stopped at page %d: %v", page, err)
			return page, nil
		}
	}
	return maxScanPages, nil
}
