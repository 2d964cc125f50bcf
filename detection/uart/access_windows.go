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

//go:build windows

package uart

import "errors"

// ErrPortAccess means the port exists but cannot be opened read/write.
var ErrPortAccess = errors.New("no read/write access to serial port")

// checkAccess is left to the open call on Windows, which reports a busy
// COM port itself.
func checkAccess(string) error {
	return nil
}
