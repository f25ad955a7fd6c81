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
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"
	"golang.org/x/term"

	"github.com/fsguard/fsguard/guard"
	"github.com/fsguard/fsguard/stash"
)

// WatchCmd runs the guardian monitor in the foreground, streaming guardian
// events until interrupted.
type WatchCmd struct {
	Env           *Env
	SourceCommand string
	BlockMode     guard.BlockMode
	LogDir        string
}

func (c *WatchCmd) Run() error {
	guard.SetupLogging(c.Env.Fs, c.LogDir)

	doc, store, err := c.Env.LoadPolicy()
	if err != nil {
		return err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		if u, uerr := user.Current(); uerr == nil {
			home = u.HomeDir
		} else {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
	}
	stashDir := stash.ProjectDir(filepath.Join(home, ".fsguard", "stashes"), c.Env.Root)
	archive, err := stash.NewArchive(c.Env.Fs, stashDir, c.Env.Root)
	if err != nil {
		return err
	}

	cfg := guard.DefaultConfig()
	cfg.Enabled = true
	cfg.BlockMode = c.BlockMode
	if len(doc.MonitoredProcesses) > 0 {
		cfg.MonitoredProcesses = doc.MonitoredProcesses
	}
	cfg.Verbose = c.Env.Verbosity >= 1

	source := guard.NewExecSource(c.SourceCommand)
	monitor := guard.NewMonitor(c.Env.Fs, store, archive, source, cfg, doc.IgnorePatterns)
	if err := monitor.Start(); err != nil {
		// Fatal to the guardian only; the caller decides what to do next.
		return err
	}
	defer func() { _ = monitor.Stop() }()

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		fmt.Printf("watching %s (%s mode), ctrl-c to stop\n", c.Env.Root, cfg.BlockMode)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigs:
			return nil
		case <-ticker.C:
			for {
				event, ok := monitor.Poll()
				if !ok {
					break
				}
				if interactive {
					fmt.Printf("%s %s\n", time.Now().Format("15:04:05"), event)
				} else {
					fmt.Println(event)
				}
				if _, isErr := event.(guard.MonitorError); isErr {
					return fmt.Errorf("monitor stopped: %s", event)
				}
			}
		}
	}
}

func newWatchCmd(env func() (*Env, error)) *cobra.Command {
	var sourceCommand string
	blockMode := guard.Revert
	var logDir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the guardian monitor and stream its events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			return (&WatchCmd{
				Env:           e,
				SourceCommand: sourceCommand,
				BlockMode:     blockMode,
				LogDir:        logDir,
			}).Run()
		},
	}
	cmd.Flags().StringVar(&sourceCommand, "source", "fsguard-trace", "tracing command emitting '<process> <pid> <op> <path>' lines")
	cmd.Flags().Var(
		enumflag.New(&blockMode, "mode", guard.BlockModeIdentifiers, enumflag.EnumCaseInsensitive),
		"mode",
		"what to do about violations: revert, stash-only or notify-only")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory to append log output to")
	return cmd
}
