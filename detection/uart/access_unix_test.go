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

//go:build !windows

package uart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAccess(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	rw := filepath.Join(dir, "ttyRW")
	require.NoError(t, os.WriteFile(rw, nil, 0o600))
	require.NoError(t, checkAccess(rw))

	err := checkAccess(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, ErrPortAccess)

	if os.Geteuid() == 0 {
		return // root bypasses permission bits
	}
	ro := filepath.Join(dir, "ttyRO")
	require.NoError(t, os.WriteFile(ro, nil, 0o400))
	err = checkAccess(ro)
	require.ErrorIs(t, err, ErrPortAccess)
	assert.Contains(t, err.Error(), "dialout")
}
