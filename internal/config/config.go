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

// Package config loads fabantag settings from defaults, fabantag.yaml,
// FABANTAG_* environment variables and command line flags, in rising
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys shared by the config file, the environment and flags.
const (
	KeyPort         = "port"
	KeyTransport    = "transport"
	KeyReader       = "reader"
	KeyOutDir       = "out_dir"
	KeyPollTimeout  = "poll_timeout"
	KeyPollInterval = "poll_interval"
	KeyDebug        = "debug"
	KeySessionLog   = "session_log"
	KeyBlocklist    = "blocklist"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FABANTAG"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Port         string        `mapstructure:"port"`
	Transport    string        `mapstructure:"transport"`
	Reader       string        `mapstructure:"reader"`
	OutDir       string        `mapstructure:"out_dir"`
	Blocklist    []string      `mapstructure:"blocklist"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Debug        bool          `mapstructure:"debug"`
	SessionLog   bool          `mapstructure:"session_log"`
}

// New returns a viper instance with defaults, environment binding and the
// config search path set. Without searchPaths it looks in the current
// directory and $HOME/.config/fabantag.
func New(searchPaths ...string) *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyPort, "")
	v.SetDefault(KeyTransport, "uart")
	v.SetDefault(KeyReader, "")
	v.SetDefault(KeyOutDir, ".")
	v.SetDefault(KeyBlocklist, []string{})
	v.SetDefault(KeyPollTimeout, 500*time.Millisecond)
	v.SetDefault(KeyPollInterval, 100*time.Millisecond)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeySessionLog, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("fabantag")
	v.SetConfigType("yaml")
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
		if home, err := os.UserHomeDir(); err == nil {
			searchPaths = append(searchPaths, filepath.Join(home, ".config", "fabantag"))
		}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	return v
}

// Load reads the config file if one exists and decodes the result. A
// missing file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values no flag parser can.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Transport) {
	case "uart", "serial", "i2c", "pcsc":
	default:
		return fmt.Errorf("%w: transport %q (want uart, i2c or pcsc)", ErrInvalidConfig, c.Transport)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("%w: poll_timeout must be positive", ErrInvalidConfig)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll_interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

// TransportName returns the transport in canonical lower case.
func (c *Config) TransportName() string {
	t := strings.ToLower(c.Transport)
	if t == "serial" {
		return "uart"
	}
	return t
}
