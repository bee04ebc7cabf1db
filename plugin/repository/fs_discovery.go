// Package repository implements filesystem discovery of plugin files.
package repository

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// UnitPattern matches the plugin files the registry loads. Only files
// directly inside a watched directory are considered; discovery never
// recurses.
const UnitPattern = "*.wasm"

// FSDiscovery resolves watched directories into the current set of candidate
// plugin files.
type FSDiscovery struct {
	pattern string
}

// NewFSDiscovery creates a discovery scanner for the standard plugin pattern.
func NewFSDiscovery() *FSDiscovery {
	return &FSDiscovery{pattern: UnitPattern}
}

// Candidates returns the absolute paths of every matching file directly
// inside the given directories. A directory that does not exist or cannot be
// read contributes no files. The result carries no defined order; callers
// must not depend on ordering across calls.
func (d *FSDiscovery) Candidates(dirs []string) []string {
	var files []string

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			matched, err := doublestar.Match(d.pattern, entry.Name())
			if err != nil || !matched {
				continue
			}

			abs, err := filepath.Abs(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			files = append(files, abs)
		}
	}

	return files
}
