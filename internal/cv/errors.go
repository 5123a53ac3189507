package cv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCannotBackupNow signals that the active backend does not allow a backup
	// at the moment (removable drive absent, network unavailable). Callers should
	// retry later; no state is marked as failed.
	ErrCannotBackupNow = errors.New("backend does not allow backups right now")

	// ErrFileEmpty is returned when a stored object has no bytes at all, not even a version byte.
	ErrFileEmpty = errors.New("file empty")

	// ErrStreamDesync is returned when a chunk plan does not match the bytes of the stream
	// it was computed for. It is never retried.
	ErrStreamDesync = errors.New("chunk plan does not match stream")

	// ErrDecrypt is returned when a ciphertext fails authentication.
	ErrDecrypt = errors.New("decryption failed")

	// ErrMalformed is returned when a decrypted manifest cannot be parsed.
	ErrMalformed = errors.New("malformed data")

	// ErrNotFound is returned by backends when an object does not exist.
	ErrNotFound = errors.New("not found")
)

// UnsupportedVersionError is returned for objects written by a newer format version.
type UnsupportedVersionError struct {
	Version byte
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("got version %d which is higher than what is supported (%d)", e.Version, MaxVersion)
}

// fatalError marks a failure that must abort the whole run instead of skipping one file.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe) ||
		errors.Is(err, ErrStreamDesync) ||
		errors.Is(err, ErrCannotBackupNow) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
