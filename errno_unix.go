//go:build unix

package sqnsdio

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Linux SDIO host drivers report CMD53 timeouts as ETIMEDOUT.
func isTimeoutErrno(err error) bool {
	return errors.Is(err, unix.ETIMEDOUT)
}

// errnoName returns the symbolic errno wrapped in err, or the empty string.
func errnoName(err error) string {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return unix.ErrnoName(errno)
	}
	return ""
}
