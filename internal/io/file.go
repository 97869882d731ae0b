// Package ioutils provides the small set of file system helpers shared
// by the fetch, resolve and merge stages.
//
// WriteFile is all-or-nothing: content lands under a temporary name and
// is renamed into place, so a crashed run never leaves a half-written
// segment that a later resume would treat as complete.
package ioutils

import (
	"os"
)

// WriteFile writes data to path atomically via a sibling temp file.
func WriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// EnsureDir creates a directory and all parent directories if they don't
// exist. Directories are created with mode 0755.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// IsRegularFile reports whether path exists and is a regular file.
func IsRegularFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// IsNonEmptyFile reports whether path exists, is a regular file and has
// non-zero size.
func IsNonEmptyFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// RemoveIfExists deletes path, ignoring the not-exist case.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
