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

package policy

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks a policy document that could not be read or parsed. The
// caller gets a default document alongside the error, so a corrupt file
// degrades to a fresh policy instead of disabling the guardian.
var ErrConfig = errors.New("policy document unreadable")

// DefaultIgnorePatterns are the tree-build excludes applied when the
// document does not name its own.
func DefaultIgnorePatterns() []string {
	return []string{
		".git/",
		"target/",
		"node_modules/",
		".idea/",
		".venv/",
		"venv/",
		"__pycache__/",
		".mypy_cache/",
		".pytest_cache/",
		".tox/",
		"dist/",
		"build/",
		".DS_Store",
		"*.log",
		"*.tmp",
		".env",
		".env.local",
	}
}

// Profile is a named, switchable snapshot of the three pattern lists.
type Profile struct {
	LockedPatterns      []string `yaml:"locked_patterns"`
	UnlockedPatterns    []string `yaml:"unlocked_patterns"`
	AllowCreatePatterns []string `yaml:"allow_create_patterns"`
	Description         string   `yaml:"description,omitempty"`
}

// Document is the persisted policy document. It is rewritten after every
// policy mutation and loaded once at startup.
type Document struct {
	RootPath string `yaml:"root_path"`

	ActiveProfile string             `yaml:"active_profile,omitempty"`
	Profiles      map[string]Profile `yaml:"profiles,omitempty"`

	LockedPatterns      []string `yaml:"locked_patterns"`
	UnlockedPatterns    []string `yaml:"unlocked_patterns"`
	AllowCreatePatterns []string `yaml:"allow_create_patterns"`

	MonitoredProcesses []string `yaml:"monitored_processes"`
	AllowedProcesses   []string `yaml:"allowed_processes"`

	// ExpandedDirs is display state for the tree UI; carried so an external
	// viewer round-trips through us without losing it.
	ExpandedDirs []string `yaml:"expanded_dirs,omitempty"`

	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// NewDocument returns the default document for a fresh root: nothing locked,
// everything unlocked, default ignore patterns.
func NewDocument(root string) *Document {
	return &Document{
		RootPath:         root,
		Profiles:         make(map[string]Profile),
		LockedPatterns:   []string{},
		UnlockedPatterns: []string{"**"},
		IgnorePatterns:   DefaultIgnorePatterns(),
	}
}

// LoadDocument reads the document at path. A missing file yields the default
// document and no error. An unreadable or malformed file yields the default
// document and an ErrConfig-wrapped error so the caller can warn and carry
// on. Unset optional fields are defaulted.
func LoadDocument(fs afero.Fs, root, path string) (*Document, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(root), nil
		}
		return NewDocument(root), fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var doc Document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		// Older releases stored a line-based rules file. Try that before
		// giving up on the document.
		legacy, legacyErr := parseLegacyRules(content)
		if legacyErr != nil {
			return NewDocument(root), fmt.Errorf("%w: %v", ErrConfig, err)
		}
		doc = *legacy
	}
	doc.applyDefaults(root)
	return &doc, nil
}

// Save writes the document to path.
func (d *Document) Save(fs afero.Fs, path string) error {
	out, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode policy document: %w", err)
	}
	if err := afero.WriteFile(fs, path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write policy document: %w", err)
	}
	return nil
}

func (d *Document) applyDefaults(root string) {
	if d.RootPath == "" {
		d.RootPath = root
	}
	if d.Profiles == nil {
		d.Profiles = make(map[string]Profile)
	}
	if d.LockedPatterns == nil {
		d.LockedPatterns = []string{}
	}
	if d.UnlockedPatterns == nil {
		if len(d.LockedPatterns) == 0 {
			d.UnlockedPatterns = []string{"**"}
		} else {
			d.UnlockedPatterns = []string{}
		}
	}
	if d.AllowCreatePatterns == nil {
		d.AllowCreatePatterns = []string{}
	}
	if len(d.IgnorePatterns) == 0 {
		d.IgnorePatterns = DefaultIgnorePatterns()
	}
}

// SetPatterns replaces the active pattern lists from a store's compaction.
func (d *Document) SetPatterns(locked, unlocked []string) {
	d.LockedPatterns = locked
	d.UnlockedPatterns = unlocked
}

// SaveProfile stores the current active pattern lists under name and makes
// it the active profile.
func (d *Document) SaveProfile(name, description string) {
	d.Profiles[name] = Profile{
		LockedPatterns:      append([]string(nil), d.LockedPatterns...),
		UnlockedPatterns:    append([]string(nil), d.UnlockedPatterns...),
		AllowCreatePatterns: append([]string(nil), d.AllowCreatePatterns...),
		Description:         description,
	}
	d.ActiveProfile = name
}

// SwitchProfile replaces the active pattern lists with the named profile's.
// Returns false when no such profile exists.
func (d *Document) SwitchProfile(name string) bool {
	profile, ok := d.Profiles[name]
	if !ok {
		return false
	}
	d.LockedPatterns = append([]string(nil), profile.LockedPatterns...)
	d.UnlockedPatterns = append([]string(nil), profile.UnlockedPatterns...)
	d.AllowCreatePatterns = append([]string(nil), profile.AllowCreatePatterns...)
	d.ActiveProfile = name
	return true
}

// DeleteProfile removes the named profile, clearing the active marker if it
// pointed at it. Returns false when no such profile exists.
func (d *Document) DeleteProfile(name string) bool {
	if _, ok := d.Profiles[name]; !ok {
		return false
	}
	delete(d.Profiles, name)
	if d.ActiveProfile == name {
		d.ActiveProfile = ""
	}
	return true
}

// ProfileNames lists the stored profiles, sorted.
func (d *Document) ProfileNames() []string {
	names := maps.Keys(d.Profiles)
	sort.Strings(names)
	return names
}
