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
	"os"

	"github.com/rs/zerolog"
)

// debugEnabled controls whether debug messages reach the console logger.
var debugEnabled = false

// logger is the console side of the debug channel. It discards everything
// until SetLogger is called.
var logger = zerolog.Nop()

func init() {
	if os.Getenv("FABANTAG_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// SetLogger replaces the logger used for console debug output.
func SetLogger(l zerolog.Logger) {
	logger = l
}

// Logger returns the logger used for console debug output.
func Logger() *zerolog.Logger {
	return &logger
}

// Debugf logs a debug message.
// Always written to the session log (if initialized); only reaches the
// console logger when debug mode is enabled.
func Debugf(format string, args ...any) {
	if sessionLogger != nil {
		sessionLogger.Debug().Msgf(format, args...)
	}
	if debugEnabled {
		logger.Debug().Msgf(format, args...)
	}
}

// Debugln logs a debug message built like fmt.Sprint.
func Debugln(args ...any) {
	if sessionLogger == nil && !debugEnabled {
		return
	}
	msg := fmt.Sprint(args...)
	if sessionLogger != nil {
		sessionLogger.Debug().Msg(msg)
	}
	if debugEnabled {
		logger.Debug().Msg(msg)
	}
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	return debugEnabled
}
