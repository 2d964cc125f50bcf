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

// Command fabantag reads, writes, dumps, erases and creates NTAG images
// carrying a FabaID through a PN532 or PC/SC reader.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fabaplus/fabantag"
	"github.com/rs/zerolog"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code. A
// panic anywhere below is logged and reported as a failure.
func run(args []string, stdout, stderr io.Writer) (code int) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(stderr)
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Msgf("Unexpected error: %v", r)
			code = 1
		}
		if err := fabantag.CloseSessionLog(); err != nil {
			a.log.Warn().Err(err).Msg("Closing session log")
		}
	}()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintln(stderr, "Interrupted")
			return 1
		}
		a.log.Error().Msg(describeError(err))
		return 1
	}
	return 0
}

// describeError words the safety abort the way an operator expects.
func describeError(err error) string {
	var uidErr *fabantag.UIDMismatchError
	if errors.As(err, &uidErr) {
		return fmt.Sprintf("UID mismatch! Aborting write: %v", err)
	}
	return err.Error()
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
}
