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
	"sort"
)

// PageStore maps page indices to their 4-byte contents. It is the
// canonical in-memory picture of a tag and may be sparse while a scan is
// in progress.
type PageStore struct {
	pages map[int][PageSize]byte
}

// NewPageStore returns an empty store.
func NewPageStore() *PageStore {
	return &PageStore{pages: make(map[int][PageSize]byte)}
}

// Set stores a page. Data must be exactly PageSize bytes and index must
// not be negative.
func (s *PageStore) Set(index int, data []byte) error {
	if index < 0 {
		return fmt.Errorf("%w: negative page index %d", ErrInvalidInput, index)
	}
	if len(data) != PageSize {
		return fmt.Errorf("%w: page %d has %d bytes, want %d", ErrInvalidInput, index, len(data), PageSize)
	}
	var page [PageSize]byte
	copy(page[:], data)
	s.pages[index] = page
	return nil
}

// Get returns a copy of the page, or ErrPageNotFound when it was never set.
func (s *PageStore) Get(index int) ([]byte, error) {
	page, ok := s.pages[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, index)
	}
	return page[:], nil
}

// GetOrZero returns the page, or four zero bytes when it is missing.
func (s *PageStore) GetOrZero(index int) []byte {
	page := s.pages[index]
	return page[:]
}

// Has reports whether the page has been stored.
func (s *PageStore) Has(index int) bool {
	_, ok := s.pages[index]
	return ok
}

// Len returns the number of stored pages.
func (s *PageStore) Len() int {
	return len(s.pages)
}

// Indices returns the stored page indices in ascending order.
func (s *PageStore) Indices() []int {
	indices := make([]int, 0, len(s.pages))
	for i := range s.pages {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// Bytes concatenates every stored page in ascending index order.
func (s *PageStore) Bytes() []byte {
	out := make([]byte, 0, len(s.pages)*PageSize)
	for _, i := range s.Indices() {
		page := s.pages[i]
		out = append(out, page[:]...)
	}
	return out
}

// Truncate drops every page at or beyond total.
func (s *PageStore) Truncate(total int) {
	for i := range s.pages {
		if i >= total {
			delete(s.pages, i)
		}
	}
}
