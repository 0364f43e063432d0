// Package artifact locates, checks and copies the packaged artifact tree.
//
// Layout of an output root:
//
//	root/
//	  lib/        # static and shared libraries
//	  include/    # public headers
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmptyTree is returned by Check when a tree is missing or empty.
var ErrEmptyTree = errors.New("artifact tree missing or empty")

// Layout is the pair of logical roots under one output root.
type Layout struct {
	Root       string
	LibDir     string
	IncludeDir string
}

// Locate derives the lib and include directories of root.
func Locate(root string) Layout {
	return Layout{
		Root:       root,
		LibDir:     filepath.Join(root, "lib"),
		IncludeDir: filepath.Join(root, "include"),
	}
}

// Check verifies that both trees exist and hold at least one entry.
func (l Layout) Check() error {
	for _, dir := range []string{l.LibDir, l.IncludeDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrEmptyTree, dir)
			}
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyTree, dir)
		}
	}
	return nil
}
