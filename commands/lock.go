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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fsguard/fsguard/policy"
)

// LockCmd marks paths as protected and persists the updated policy.
type LockCmd struct {
	Env   *Env
	Paths []string
	Undo  bool // true for unlock
}

func (c *LockCmd) Run() error {
	doc, store, err := c.Env.LoadPolicy()
	if err != nil {
		return err
	}
	for _, arg := range c.Paths {
		path := arg
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.Env.Root, path)
		}
		if c.Undo {
			store.Unlock(path)
		} else {
			store.Lock(path)
		}
	}
	return c.Env.SavePolicy(doc, store)
}

func newLockCmd(env func() (*Env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "lock PATH...",
		Short: "Protect one or more paths from modification",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			return (&LockCmd{Env: e, Paths: args}).Run()
		},
	}
}

func newUnlockCmd(env func() (*Env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock PATH...",
		Short: "Remove protection from one or more paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			return (&LockCmd{Env: e, Paths: args, Undo: true}).Run()
		},
	}
}

func newStatusCmd(env func() (*Env, error)) *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active lock patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			doc, store, err := e.LoadPolicy()
			if err != nil {
				return err
			}
			locked, unlocked := store.Compact()
			out := cmd.OutOrStdout()
			if legacy {
				doc.SetPatterns(locked, unlocked)
				fmt.Fprint(out, policy.FormatLegacyRules(doc))
				return nil
			}
			fmt.Fprintf(out, "root: %s\n", e.Root)
			if doc.ActiveProfile != "" {
				fmt.Fprintf(out, "profile: %s\n", doc.ActiveProfile)
			}
			fmt.Fprintln(out, "locked:")
			for _, p := range locked {
				fmt.Fprintf(out, "  %s\n", p)
			}
			fmt.Fprintln(out, "unlocked:")
			for _, p := range unlocked {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&legacy, "legacy", false, "print the policy in the legacy rules format")
	return cmd
}
