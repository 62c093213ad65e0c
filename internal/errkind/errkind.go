// Package errkind gives the error kinds of §7 typed sentinels so callers
// can errors.Is/errors.As instead of matching strings, while every
// constructor still wraps the underlying cause with %w.
package errkind

import "errors"

// Sentinel errors, one per kind named in spec.md §7. Wrap with fmt.Errorf
// ("...: %w", ErrX) at the call site to retain errors.Is compatibility
// while attaching context.
var (
	ErrConfigInvalid          = errors.New("config_invalid")
	ErrManifestFetchFailed    = errors.New("manifest_fetch_failed")
	ErrManifestParseFailed    = errors.New("manifest_parse_failed")
	ErrLockBusy               = errors.New("lock_busy")
	ErrGitTimeout             = errors.New("git_timeout")
	ErrGitFailed              = errors.New("git_failed")
	ErrObjstoreMigrationFailed = errors.New("objstore_migration_failed")
	ErrPurgeRefused           = errors.New("purge_refused")
	ErrDiskFull               = errors.New("disk_full")
	ErrIO                     = errors.New("io_error")
)

// Is reports whether err ultimately wraps the named kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
