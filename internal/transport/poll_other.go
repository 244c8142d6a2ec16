//go:build !unix

package transport

import "time"

// pollWritable has no poll(2) equivalent on this platform; it reports the
// fd writable at once and Send's write simply blocks until it completes.
func pollWritable(fd uintptr, timeout time.Duration) (bool, error) {
	return true, nil
}
