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
	"strings"
)

// Error categories. Every typed error below unwraps to one of these so
// callers can branch with errors.Is.
var (
	// Hardware errors - abort the current multi-page operation, never retried
	ErrHardwareIO   = errors.New("hardware I/O failed")
	ErrNoTag        = errors.New("no tag present")
	ErrReaderClosed = errors.New("reader is closed")

	// Write/verify errors - abort the enclosing write-verify sequence
	ErrUIDMismatch    = errors.New("tag UID changed since detection")
	ErrWriteFailed    = errors.New("page write failed")
	ErrVerifyMismatch = errors.New("page verification mismatch")

	// Data errors - read and dump degrade to "no identifier found"
	ErrPageNotFound     = errors.New("page not found")
	ErrInsufficientData = errors.New("insufficient NDEF payload data")
	ErrDecode           = errors.New("NDEF decode failed")

	// Input errors - rejected before any hardware or image work
	ErrInvalidInput = errors.New("invalid input")

	// Internal invariant violations
	ErrImageSize = errors.New("image size does not match page count")
)

// UIDMismatchError reports that the tag on the reader is not the one that
// was detected at the start of the operation.
type UIDMismatchError struct {
	Expected []byte
	Actual   []byte
}

func (e *UIDMismatchError) Error() string {
	return fmt.Sprintf("%v: expected %s, found %s",
		ErrUIDMismatch, formatHex(e.Expected), formatHex(e.Actual))
}

func (*UIDMismatchError) Unwrap() error {
	return ErrUIDMismatch
}

// WriteFailedError reports the first page whose write did not succeed.
// Pages before it have already been written and are not rolled back.
type WriteFailedError struct {
	Err  error
	Page uint8
}

func (e *WriteFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v (page %d): %v", ErrWriteFailed, e.Page, e.Err)
	}
	return fmt.Sprintf("%v (page %d)", ErrWriteFailed, e.Page)
}

func (e *WriteFailedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrWriteFailed, e.Err}
	}
	return []error{ErrWriteFailed}
}

// VerifyMismatchError reports the first page whose read-back content differs
// from the intended image. Later pages are not checked.
type VerifyMismatchError struct {
	Expected []byte
	Actual   []byte
	Page     uint8
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf("%v (page %d): expected %s, read %s",
		ErrVerifyMismatch, e.Page, formatHex(e.Expected), formatHex(e.Actual))
}

func (*VerifyMismatchError) Unwrap() error {
	return ErrVerifyMismatch
}

// InputError reports a malformed create/write parameter.
type InputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%v: %s %q: %s", ErrInvalidInput, e.Field, e.Value, e.Reason)
}

func (*InputError) Unwrap() error {
	return ErrInvalidInput
}

func newInputError(field, value, reason string) *InputError {
	return &InputError{Field: field, Value: value, Reason: reason}
}

// FailedPage returns the page index carried by a write or verify failure.
func FailedPage(err error) (uint8, bool) {
	var wf *WriteFailedError
	if errors.As(err, &wf) {
		return wf.Page, true
	}
	var vm *VerifyMismatchError
	if errors.As(err, &vm) {
		return vm.Page, true
	}
	return 0, false
}

// IsDecodeFailure returns true for malformed NDEF content. Read and dump
// treat these as "no identifier found".
func IsDecodeFailure(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrDecode)
}

// formatHex renders bytes as space separated uppercase hex.
func formatHex(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	return strings.ToUpper(strings.Join(splitHex(hex.EncodeToString(data)), " "))
}

func splitHex(s string) []string {
	parts := make([]string, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return parts
}
