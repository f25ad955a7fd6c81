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

// Package commands is the thin operational surface over the guardian: lock
// and unlock paths, run the monitor, manage stashes and profiles. The
// interactive tree UI lives elsewhere and talks to the same packages.
package commands

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/fsguard/fsguard/policy"
)

// StateFileName is the policy document's name inside the project root.
const StateFileName = ".fsguard.yaml"

// Env groups what every command needs: a filesystem, the project root and
// the policy document location.
type Env struct {
	Fs        afero.Fs
	Root      string
	StateFile string
	Verbosity int
}

// NewEnv resolves the environment for root, defaulting to the working
// directory.
func NewEnv(root string) (*Env, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	return &Env{
		Fs:        afero.NewOsFs(),
		Root:      abs,
		StateFile: filepath.Join(abs, StateFileName),
	}, nil
}

// LoadPolicy loads the persisted document and builds a store from its
// active patterns. A malformed document is reported once and replaced by
// defaults, so a corrupt file never disables the tool.
func (e *Env) LoadPolicy() (*policy.Document, *policy.Store, error) {
	doc, err := policy.LoadDocument(e.Fs, e.Root, e.StateFile)
	if err != nil {
		if !errors.Is(err, policy.ErrConfig) {
			return nil, nil, err
		}
		log.Printf("Warning: %v; continuing with defaults", err)
	}
	store := policy.NewStore(e.Fs, e.Root)
	store.ApplyPatterns(doc.LockedPatterns, doc.UnlockedPatterns)
	return doc, store, nil
}

// SavePolicy compacts the store back into the document and persists it.
// Called after every policy mutation; an I/O failure is surfaced to the
// caller without losing the in-memory state.
func (e *Env) SavePolicy(doc *policy.Document, store *policy.Store) error {
	locked, unlocked := store.Compact()
	doc.SetPatterns(locked, unlocked)
	return doc.Save(e.Fs, e.StateFile)
}

// NewRoot assembles the command tree.
func NewRoot() *cobra.Command {
	var rootDir string
	var verbosity int

	rootCmd := &cobra.Command{
		Use:          "fsguard",
		Short:        "Protect locked paths in a working tree from unwanted modification",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "C", "", "project root (default: working directory)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity")

	env := func() (*Env, error) {
		e, err := NewEnv(rootDir)
		if err != nil {
			return nil, err
		}
		e.Verbosity = verbosity
		return e, nil
	}

	rootCmd.AddCommand(newLockCmd(env))
	rootCmd.AddCommand(newUnlockCmd(env))
	rootCmd.AddCommand(newStatusCmd(env))
	rootCmd.AddCommand(newWatchCmd(env))
	rootCmd.AddCommand(newStashCmd(env))
	rootCmd.AddCommand(newProfileCmd(env))
	return rootCmd
}

// Execute runs the CLI.
func Execute() int {
	if err := NewRoot().Execute(); err != nil {
		return 1
	}
	return 0
}
