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

// Package tree builds the directory tree a policy viewer renders: owned
// parent-to-children nodes annotated with each path's effective lock state.
// Walk, Find, ApplyRules and LockedFiles are the read surface for an
// external interactive viewer, which lives outside this module; within it
// only the ignore matching is shared with the backup snapshot.
package tree

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/fsguard/fsguard/policy"
)

// Node is one entry in the tree. Children are owned by their parent; there
// are no back-pointers, lookups go through Find.
type Node struct {
	Path     string
	Name     string
	IsDir    bool
	Locked   bool
	Depth    int
	Children []*Node
}

// Build walks root on fs and returns the tree. Dot entries are skipped
// unless showHidden is set; ignorePatterns accepts the document's forms:
// "dir/" (directory anywhere in the path), "*.ext" and "name*" (file name
// globs), "**"-style doublestar globs, and exact names.
func Build(fs afero.Fs, root string, ignorePatterns []string, showHidden bool) (*Node, error) {
	root = filepath.Clean(root)
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tree root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tree root %s is not a directory", root)
	}

	node := &Node{
		Path:  root,
		Name:  filepath.Base(root),
		IsDir: true,
	}
	if err := appendChildren(fs, node, ignorePatterns, showHidden); err != nil {
		return nil, err
	}
	return node, nil
}

func appendChildren(fs afero.Fs, parent *Node, ignorePatterns []string, showHidden bool) error {
	entries, err := afero.ReadDir(fs, parent.Path)
	if err != nil {
		// Unreadable directories are shown empty rather than failing the
		// whole build.
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if !showHidden && strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(parent.Path, name)
		if Ignored(path, name, ignorePatterns) {
			continue
		}
		child := &Node{
			Path:  path,
			Name:  name,
			IsDir: entry.IsDir(),
			Depth: parent.Depth + 1,
		}
		parent.Children = append(parent.Children, child)
		if entry.IsDir() {
			if err := appendChildren(fs, child, ignorePatterns, showHidden); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ignored reports whether a path with the given base name matches any of the
// ignore patterns.
func Ignored(path, name string, patterns []string) bool {
	slashPath := filepath.ToSlash(path)
	for _, pattern := range patterns {
		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			if name == dir || strings.Contains(slashPath, "/"+dir+"/") || strings.HasSuffix(slashPath, "/"+dir) {
				return true
			}
			continue
		}
		if strings.ContainsAny(pattern, "*?[") {
			if ok, err := doublestar.Match(pattern, name); err == nil && ok {
				return true
			}
			continue
		}
		if name == pattern {
			return true
		}
	}
	return false
}

// Walk visits every node in depth-first order.
func (n *Node) Walk(visit func(*Node)) {
	visit(n)
	for _, child := range n.Children {
		child.Walk(visit)
	}
}

// Find returns the node at path, or nil.
func (n *Node) Find(path string) *Node {
	path = filepath.Clean(path)
	var found *Node
	n.Walk(func(node *Node) {
		if found == nil && node.Path == path {
			found = node
		}
	})
	return found
}

// ApplyRules annotates every node with its effective authorization from the
// store. Display state only; enforcement always queries the store directly.
func (n *Node) ApplyRules(store *policy.Store) {
	n.Walk(func(node *Node) {
		node.Locked = store.IsLocked(node.Path)
	})
}

// LockedFiles returns the paths of all locked non-directory nodes.
func (n *Node) LockedFiles() []string {
	var locked []string
	n.Walk(func(node *Node) {
		if node.Locked && !node.IsDir {
			locked = append(locked, node.Path)
		}
	})
	return locked
}
