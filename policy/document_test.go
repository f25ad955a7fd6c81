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
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const statePath = "/project/.fsguard.yaml"

func TestLoadDocumentMissingFileGivesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc, err := LoadDocument(fs, "/project", statePath)
	require.NoError(t, err)
	require.Equal(t, "/project", doc.RootPath)
	require.Empty(t, doc.LockedPatterns)
	require.Equal(t, []string{"**"}, doc.UnlockedPatterns)
	require.Equal(t, DefaultIgnorePatterns(), doc.IgnorePatterns)
}

func TestDocumentSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := NewDocument("/project")
	doc.SetPatterns([]string{"src/**"}, []string{"src/vendor/**"})
	doc.MonitoredProcesses = []string{"claude", "vim"}
	doc.AllowedProcesses = []string{"rustfmt"}
	doc.SaveProfile("strict", "everything but vendor")
	require.NoError(t, doc.Save(fs, statePath))

	loaded, err := LoadDocument(fs, "/project", statePath)
	require.NoError(t, err)
	require.Equal(t, doc.RootPath, loaded.RootPath)
	require.Equal(t, doc.LockedPatterns, loaded.LockedPatterns)
	require.Equal(t, doc.UnlockedPatterns, loaded.UnlockedPatterns)
	require.Equal(t, doc.MonitoredProcesses, loaded.MonitoredProcesses)
	require.Equal(t, doc.AllowedProcesses, loaded.AllowedProcesses)
	require.Equal(t, "strict", loaded.ActiveProfile)
	require.Contains(t, loaded.Profiles, "strict")
	require.Equal(t, "everything but vendor", loaded.Profiles["strict"].Description)
}

func TestLoadDocumentDefaultsMissingOptionalFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := []byte("root_path: /project\nlocked_patterns:\n  - \"src/**\"\n")
	require.NoError(t, afero.WriteFile(fs, statePath, content, 0o644))

	doc, err := LoadDocument(fs, "/project", statePath)
	require.NoError(t, err)
	require.Equal(t, []string{"src/**"}, doc.LockedPatterns)
	require.Equal(t, []string{}, doc.UnlockedPatterns)
	require.Equal(t, []string{}, doc.AllowCreatePatterns)
	require.NotNil(t, doc.Profiles)
	require.Equal(t, DefaultIgnorePatterns(), doc.IgnorePatterns)
}

func TestLoadDocumentLegacyFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := []byte(`# pre-yaml rules file
locked src/**
locked My\ Documents/plan.md
unlocked src/vendor/**
monitor claude
allow rustfmt
`)
	require.NoError(t, afero.WriteFile(fs, statePath, content, 0o644))

	doc, err := LoadDocument(fs, "/project", statePath)
	require.NoError(t, err)
	require.Equal(t, []string{"src/**", "My Documents/plan.md"}, doc.LockedPatterns)
	require.Equal(t, []string{"src/vendor/**"}, doc.UnlockedPatterns)
	require.Equal(t, []string{"claude"}, doc.MonitoredProcesses)
	require.Equal(t, []string{"rustfmt"}, doc.AllowedProcesses)
	require.Equal(t, "/project", doc.RootPath)
}

func TestLoadDocumentMalformedGivesDefaultsAndError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, statePath, []byte("{{{ not a document"), 0o644))

	doc, err := LoadDocument(fs, "/project", statePath)
	require.ErrorIs(t, err, ErrConfig)
	require.NotNil(t, doc)
	require.Equal(t, "/project", doc.RootPath)
	require.Equal(t, []string{"**"}, doc.UnlockedPatterns)
}

func TestProfileSwitchAndDelete(t *testing.T) {
	doc := NewDocument("/project")
	doc.SetPatterns([]string{"src/**"}, []string{})
	doc.SaveProfile("strict", "")
	doc.SetPatterns([]string{}, []string{"**"})
	doc.SaveProfile("open", "")

	require.Equal(t, []string{"open", "strict"}, doc.ProfileNames())
	require.Equal(t, "open", doc.ActiveProfile)

	require.True(t, doc.SwitchProfile("strict"))
	require.Equal(t, []string{"src/**"}, doc.LockedPatterns)
	require.Equal(t, "strict", doc.ActiveProfile)

	require.False(t, doc.SwitchProfile("missing"))

	require.True(t, doc.DeleteProfile("strict"))
	require.Empty(t, doc.ActiveProfile)
	require.False(t, doc.DeleteProfile("strict"))
	require.Equal(t, []string{"open"}, doc.ProfileNames())
}

func TestFormatLegacyRulesRoundTrip(t *testing.T) {
	doc := NewDocument("")
	doc.SetPatterns([]string{"src/**", "My Documents/plan.md"}, []string{"src/vendor/**"})
	doc.MonitoredProcesses = []string{"claude"}

	parsed, err := parseLegacyRules([]byte(FormatLegacyRules(doc)))
	require.NoError(t, err)
	require.Equal(t, doc.LockedPatterns, parsed.LockedPatterns)
	require.Equal(t, doc.UnlockedPatterns, parsed.UnlockedPatterns)
	require.Equal(t, doc.MonitoredProcesses, parsed.MonitoredProcesses)
}

func TestParseLegacyRulesRejectsGarbage(t *testing.T) {
	_, err := parseLegacyRules([]byte("locked src/** extra-field\n"))
	require.Error(t, err)

	_, err = parseLegacyRules([]byte("frobnicate src/**\n"))
	require.Error(t, err)

	_, err = parseLegacyRules([]byte("# only comments\n"))
	require.Error(t, err)
}
