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

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fabaplus/fabantag"
	"github.com/fabaplus/fabantag/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// readerOpener opens the reader the configuration points at.
type readerOpener func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (fabantag.Reader, error)

type app struct {
	v          *viper.Viper
	cfg        *config.Config
	openReader readerOpener
	log        zerolog.Logger
}

func newApp(stderr io.Writer) *app {
	return &app{
		v:          config.New(),
		log:        newLogger(stderr),
		openReader: openReader,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "fabantag",
		Short: "Read and write FabaID NTAG tags",
		Long: `fabantag manages NTAG203/213/215/216 tags that carry a FabaID inside an
NDEF Text Record. It talks to a PN532 over serial or I2C, or to a PC/SC
reader, and saves raw, NDEF and Flipper Zero dumps of every image.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("port", "p", "", "NFC reader serial port (e.g. COM1 or /dev/ttyUSB0); auto-detected when empty")
	flags.String("transport", "uart", "reader transport: uart, i2c or pcsc")
	flags.String("reader", "", "PC/SC reader name to match")
	flags.StringP("out", "o", ".", "directory for dump files")
	flags.Duration("poll-timeout", fabantag.DefaultPollTimeout, "timeout of one passive target poll")
	flags.BoolP("verbose", "v", false, "enable debug output")
	flags.Bool("session-log", false, "write a timestamped session log next to the dumps")

	for key, flag := range map[string]string{
		config.KeyPort:        "port",
		config.KeyTransport:   "transport",
		config.KeyReader:      "reader",
		config.KeyOutDir:      "out",
		config.KeyPollTimeout: "poll-timeout",
		config.KeyDebug:       "verbose",
		config.KeySessionLog:  "session-log",
	} {
		// Lookup cannot fail for flags defined above
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newReadCmd(a),
		newWriteCmd(a),
		newDumpCmd(a),
		newEraseCmd(a),
		newCreateCmd(a),
		newPortsCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup resolves the configuration and wires logging before any command
// runs.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log = newLogger(cmd.ErrOrStderr())
	if cfg.Debug {
		a.log = a.log.Level(zerolog.DebugLevel)
	}
	fabantag.SetLogger(a.log)
	fabantag.SetDebugEnabled(cfg.Debug)

	if cfg.SessionLog {
		path, err := fabantag.InitSessionLog(cfg.OutDir)
		if err != nil {
			return err
		}
		a.log.Info().Msgf("Session log: %s", path)
	}
	if used := a.v.ConfigFileUsed(); used != "" {
		fabantag.Debugf("Config file: %s", used)
	}
	return nil
}

func (a *app) options() fabantag.Options {
	return fabantag.Options{
		OutDir:       a.cfg.OutDir,
		PollInterval: a.cfg.PollInterval,
	}
}

// withReader opens the reader, runs fn and closes the reader again.
func (a *app) withReader(ctx context.Context, fn func(fabantag.Reader) error) error {
	r, err := a.openReader(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Closing reader")
		}
	}()

	if fw, err := r.FirmwareVersion(ctx); err == nil {
		a.log.Info().Msgf("Found reader with firmware version: %s", fw)
	}
	a.log.Info().Msg("Waiting for NTAG card...")
	return fn(r)
}

func reportTag(out io.Writer, res *fabantag.Result) {
	tag := res.Tag
	_, _ = fmt.Fprintf(out, "UID:   %s\n", tag.UIDString())
	_, _ = fmt.Fprintf(out, "Type:  %s (%d pages)\n", tag.Variant, tag.TotalPages)
}

func (a *app) reportDumps(out io.Writer, dumps *fabantag.DumpResult) {
	if dumps == nil {
		return
	}
	for _, f := range dumps.Files {
		_, _ = fmt.Fprintf(out, "Saved: %s\n", f)
	}
	if err := dumps.Err(); err != nil {
		a.log.Warn().Err(err).Msg("Some dump files were not saved")
	}
}
