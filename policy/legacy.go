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
	"fmt"
	"strings"
	"unicode"
)

// Legacy rules format: one rule per line, `#` comments, fields separated by
// whitespace with backslash escaping so patterns may contain spaces.
//
//	locked src/**
//	unlocked tests/**
//	allow-create docs/**
//	monitor claude
//	allow rustfmt
//
// Kept as a parse fallback so policy files written before the yaml document
// existed still load.

// parseLegacyRules parses content in the legacy rules format. Unknown
// keywords or malformed rows fail the whole parse; the caller then reports
// the document as unreadable rather than guessing.
func parseLegacyRules(content []byte) (*Document, error) {
	doc := NewDocument("")
	doc.UnlockedPatterns = nil
	sawRule := false
	sawIgnore := false

	for i, row := range strings.Split(string(content), "\n") {
		row = cleanRow(row)
		if row == "" {
			continue
		}
		fields := fieldsEscaped(row)
		if len(fields) != 2 {
			return nil, fmt.Errorf("legacy rules line %d: want 2 fields, got %d", i+1, len(fields))
		}
		keyword, value := fields[0], fields[1]
		switch keyword {
		case "locked":
			doc.LockedPatterns = append(doc.LockedPatterns, value)
		case "unlocked":
			doc.UnlockedPatterns = append(doc.UnlockedPatterns, value)
		case "allow-create":
			doc.AllowCreatePatterns = append(doc.AllowCreatePatterns, value)
		case "monitor":
			doc.MonitoredProcesses = append(doc.MonitoredProcesses, value)
		case "allow":
			doc.AllowedProcesses = append(doc.AllowedProcesses, value)
		case "ignore":
			if !sawIgnore {
				// Explicit ignore rows replace the defaults.
				doc.IgnorePatterns = nil
				sawIgnore = true
			}
			doc.IgnorePatterns = append(doc.IgnorePatterns, value)
		case "root":
			doc.RootPath = value
		default:
			return nil, fmt.Errorf("legacy rules line %d: unknown keyword %q", i+1, keyword)
		}
		sawRule = true
	}

	if !sawRule {
		return nil, fmt.Errorf("legacy rules: no rules found")
	}
	return doc, nil
}

// cleanRow strips comments and surrounding whitespace from a rules row.
func cleanRow(row string) string {
	row = strings.Split(row, "#")[0]
	return strings.TrimSpace(row)
}

// fieldsEscaped splits a string on whitespace boundaries, but preserves
// whitespace that is escaped with a backslash, so patterns containing spaces
// can be represented in the rules file.
func fieldsEscaped(s string) []string {
	var current strings.Builder
	escaped := false
	fields := []string{}

	for _, r := range s {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if unicode.IsSpace(r) {
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
		} else {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}
	return fields
}

// writeEscaped joins fields with spaces, escaping backslashes and whitespace
// inside a field so fieldsEscaped round-trips it.
func writeEscaped(fields []string) string {
	var result strings.Builder
	for i, field := range fields {
		if i > 0 {
			result.WriteRune(' ')
		}
		for _, r := range field {
			if r == '\\' || unicode.IsSpace(r) {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		}
	}
	return result.String()
}

// FormatLegacyRules renders the document's active rules in the legacy
// format. Kept so operators can export a policy for tools that predate the
// yaml document.
func FormatLegacyRules(doc *Document) string {
	var sb strings.Builder
	for _, p := range doc.LockedPatterns {
		sb.WriteString(writeEscaped([]string{"locked", p}) + "\n")
	}
	for _, p := range doc.UnlockedPatterns {
		sb.WriteString(writeEscaped([]string{"unlocked", p}) + "\n")
	}
	for _, p := range doc.AllowCreatePatterns {
		sb.WriteString(writeEscaped([]string{"allow-create", p}) + "\n")
	}
	for _, p := range doc.MonitoredProcesses {
		sb.WriteString(writeEscaped([]string{"monitor", p}) + "\n")
	}
	for _, p := range doc.AllowedProcesses {
		sb.WriteString(writeEscaped([]string{"allow", p}) + "\n")
	}
	return sb.String()
}
