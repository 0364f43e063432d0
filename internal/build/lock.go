package build

import "os"

// lockFile takes an exclusive advisory lock on path, creating the file
// when needed. It blocks until the lock is available.
func lockFile(path string) (unlock func(), err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFD(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		unlockFD(f)
		f.Close()
	}, nil
}
