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
	"fmt"

	"github.com/fabaplus/fabantag"
	"github.com/fabaplus/fabantag/detection"
	"github.com/spf13/cobra"
)

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read the FabaID from a tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withReader(cmd.Context(), func(r fabantag.Reader) error {
				res, err := fabantag.Read(cmd.Context(), r, a.options())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				reportTag(out, res)
				for _, rec := range res.Records {
					fabantag.Debugf("NDEF record TNF=%d type=%q payload=%X", rec.TNF, rec.Type, rec.Payload)
				}
				if res.FabaID == "" {
					_, _ = fmt.Fprintln(out, "FabaID: none found")
					return nil
				}
				_, _ = fmt.Fprintf(out, "FabaID: %s\n", res.FabaID)
				return nil
			})
		},
	}
}

func newWriteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "write ID",
		Short: "Write a 4-digit FabaID to a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			// reject bad input before touching hardware
			if err := fabantag.ValidateFabaID(id); err != nil {
				return err
			}
			return a.withReader(cmd.Context(), func(r fabantag.Reader) error {
				res, err := fabantag.Write(cmd.Context(), r, id, a.options())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				reportTag(out, res)
				_, _ = fmt.Fprintf(out, "Written and verified FabaID %s\n", res.FabaID)
				a.reportDumps(out, res.Dumps)
				return nil
			})
		},
	}
}

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Save raw, NDEF and Flipper dumps of a tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withReader(cmd.Context(), func(r fabantag.Reader) error {
				res, err := fabantag.Dump(cmd.Context(), r, a.options())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				reportTag(out, res)
				a.reportDumps(out, res.Dumps)
				return nil
			})
		},
	}
}

func newEraseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Restore a tag's user memory to factory defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withReader(cmd.Context(), func(r fabantag.Reader) error {
				res, err := fabantag.Erase(cmd.Context(), r, a.options())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				reportTag(out, res)
				_, _ = fmt.Fprintf(out, "Erased pages 4-%d\n", res.Tag.TotalPages-1)
				return nil
			})
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create UID TYPE ID",
		Short: "Create dump files for a tag without a reader",
		Long: `create builds the image a tag with the given 7-byte UID (14 hex characters),
type (NTAG203, NTAG213, NTAG215 or NTAG216) and 4-digit FabaID would carry,
and saves it as raw, NDEF and Flipper dumps.`,
		Example: "  fabantag create 04742FF1780000 NTAG213 1234",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := fabantag.Create(args[0], args[1], args[2], a.options())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			reportTag(out, res)
			_, _ = fmt.Fprintf(out, "FabaID: %s\n", res.FabaID)
			a.reportDumps(out, res.Dumps)
			return nil
		},
	}
}

func newPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports, I2C buses and PC/SC readers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := detectionOptions(a.cfg)
			opts.Transports = nil
			devices, err := detection.DetectAll(cmd.Context(), &opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range devices {
				_, _ = fmt.Fprintf(out, "   %s", d)
				if vidpid := d.Metadata["vidpid"]; vidpid != "" {
					_, _ = fmt.Fprintf(out, " [%s]", vidpid)
				}
				_, _ = fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fabantag version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "fabantag %s\n", version)
		},
	}
}
