// Package fsutil collects small filesystem helpers shared by the manifest
// codec, the objstore layer, and the fsck controller's sidecar status file.
package fsutil

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
)

// NormalizePath cleans a path and converts the OS path separator to "/",
// so manifest keys and on-disk paths compare consistently regardless of
// platform. On systems whose separator is "/", a "\" is left as is.
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// Exists reports whether path exists, regardless of type.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.New("failed to create directory " + path + ": " + err.Error())
	}
	return nil
}

// RandomSuffix returns a short hex string suitable for temp-file naming
// during atomic replace (<target>.<random> -> rename over <target>).
func RandomSuffix() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// AtomicWrite writes data to a sibling temp file in the same directory as
// target, fsyncs it, and renames it over target. Readers of target always
// see either the previous contents or the full new contents, never a
// partial file (the atomicity invariant of spec.md §8 property 4).
func AtomicWrite(target string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	suffix, err := RandomSuffix()
	if err != nil {
		return err
	}
	tmp := target + "." + suffix

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
