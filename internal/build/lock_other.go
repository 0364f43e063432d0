//go:build !unix && !windows

package build

import "os"

// Platforms without advisory locks run unlocked.
func lockFD(f *os.File) error { return nil }

func unlockFD(f *os.File) error { return nil }
