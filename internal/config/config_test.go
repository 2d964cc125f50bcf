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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(New(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "uart", cfg.Transport)
	assert.Equal(t, ".", cfg.OutDir)
	assert.Equal(t, 500*time.Millisecond, cfg.PollTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.Debug)
	assert.Empty(t, cfg.Port)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yaml := `port: /dev/ttyUSB0
transport: serial
out_dir: dumps
poll_timeout: 1s
blocklist:
  - "1A86:7523"
debug: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fabantag.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(New(dir))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, "uart", cfg.TransportName())
	assert.Equal(t, "dumps", cfg.OutDir)
	assert.Equal(t, time.Second, cfg.PollTimeout)
	assert.Equal(t, []string{"1A86:7523"}, cfg.Blocklist)
	assert.True(t, cfg.Debug)
}

func TestLoadBadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fabantag.yaml"), []byte("port: [unterminated"), 0o600))

	_, err := Load(New(dir))
	require.Error(t, err)
}

//nolint:paralleltest // t.Setenv
func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fabantag.yaml"), []byte("port: /dev/ttyUSB0\n"), 0o600))
	t.Setenv("FABANTAG_PORT", "/dev/ttyACM0")
	t.Setenv("FABANTAG_OUT_DIR", "/tmp/dumps")

	cfg, err := Load(New(dir))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
	assert.Equal(t, "/tmp/dumps", cfg.OutDir)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "uart", cfg: Config{Transport: "uart", PollTimeout: time.Second}},
		{name: "pcsc upper case", cfg: Config{Transport: "PCSC", PollTimeout: time.Second}},
		{name: "unknown transport", cfg: Config{Transport: "spi", PollTimeout: time.Second}, wantErr: true},
		{name: "zero poll timeout", cfg: Config{Transport: "i2c"}, wantErr: true},
		{name: "negative interval", cfg: Config{Transport: "i2c", PollTimeout: time.Second, PollInterval: -1}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}
