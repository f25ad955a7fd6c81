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

	"github.com/spf13/cobra"
)

func newProfileCmd(env func() (*Env, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage named lock-pattern profiles",
	}

	var description string
	save := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the current patterns as a named profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			doc, store, err := e.LoadPolicy()
			if err != nil {
				return err
			}
			// Compact first so the profile stores canonical patterns.
			locked, unlocked := store.Compact()
			doc.SetPatterns(locked, unlocked)
			doc.SaveProfile(args[0], description)
			return doc.Save(e.Fs, e.StateFile)
		},
	}
	save.Flags().StringVar(&description, "description", "", "what this profile is for")
	cmd.AddCommand(save)

	cmd.AddCommand(&cobra.Command{
		Use:   "use NAME",
		Short: "Switch to a named profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			doc, _, err := e.LoadPolicy()
			if err != nil {
				return err
			}
			if !doc.SwitchProfile(args[0]) {
				return fmt.Errorf("no profile named %q", args[0])
			}
			return doc.Save(e.Fs, e.StateFile)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a named profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			doc, _, err := e.LoadPolicy()
			if err != nil {
				return err
			}
			if !doc.DeleteProfile(args[0]) {
				return fmt.Errorf("no profile named %q", args[0])
			}
			return doc.Save(e.Fs, e.StateFile)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			doc, _, err := e.LoadPolicy()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range doc.ProfileNames() {
				marker := " "
				if name == doc.ActiveProfile {
					marker = "*"
				}
				profile := doc.Profiles[name]
				if profile.Description != "" {
					fmt.Fprintf(out, "%s %s - %s\n", marker, name, profile.Description)
				} else {
					fmt.Fprintf(out, "%s %s\n", marker, name)
				}
			}
			return nil
		},
	})

	return cmd
}
