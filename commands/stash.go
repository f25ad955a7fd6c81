// Copyright 2025 OpenPubkey
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
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fsguard/fsguard/stash"
)

func openArchive(e *Env) (*stash.Archive, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := stash.ProjectDir(filepath.Join(home, ".fsguard", "stashes"), e.Root)
	return stash.NewArchive(e.Fs, dir, e.Root)
}

func newStashCmd(env func() (*Env, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stash",
		Short: "Inspect and restore archived denied changes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stashes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			archive, err := openArchive(e)
			if err != nil {
				return err
			}
			entries, err := archive.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, entry := range entries {
				kind := entry.Operation
				if entry.Metadata.IsDeletion {
					kind = "delete"
				}
				fmt.Fprintf(out, "%s  %s  %s  %s (pid %d)\n",
					entry.ID,
					entry.Timestamp.Format(time.RFC3339),
					kind,
					entry.ProcessInfo.Name,
					entry.ProcessInfo.PID,
				)
				fmt.Fprintf(out, "    %s\n", entry.OriginalPath)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show one stash in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			archive, err := openArchive(e)
			if err != nil {
				return err
			}
			summary, err := archive.Summary(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "apply ID",
		Short: "Write a stash's archived content back to its original path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			archive, err := openArchive(e)
			if err != nil {
				return err
			}
			return archive.Apply(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop ID",
		Short: "Delete a stash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			archive, err := openArchive(e)
			if err != nil {
				return err
			}
			return archive.Delete(args[0])
		},
	})

	var maxAgeDays int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete stashes older than a maximum age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			archive, err := openArchive(e)
			if err != nil {
				return err
			}
			deleted, err := archive.Prune(time.Duration(maxAgeDays) * 24 * time.Hour)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d stashes\n", deleted)
			return nil
		},
	}
	prune.Flags().IntVar(&maxAgeDays, "max-age-days", 30, "delete stashes older than this many days")
	cmd.AddCommand(prune)

	return cmd
}
