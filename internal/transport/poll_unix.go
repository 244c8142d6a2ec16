//go:build unix

package transport

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollWritable blocks up to timeout waiting for fd to become writable, on
// platforms where poll(2) is available.
func pollWritable(fd uintptr, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return true, nil
		}
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return fds[0].Revents&unix.POLLOUT != 0, nil
}
