//go:build unix

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// drainNonBlocking reads f until the pipe is empty, without waiting.
func drainNonBlocking(f *os.File, deliver func([]byte)) {
	rc, err := f.SyscallConn()
	if err != nil {
		return
	}
	buf := make([]byte, pumpBufferSize)
	_ = rc.Read(func(fd uintptr) bool {
		for {
			n, err := unix.Read(int(fd), buf)
			if n > 0 {
				deliver(buf[:n])
				continue
			}
			if err == unix.EINTR {
				continue
			}
			// EAGAIN: empty. n == 0: all writers closed.
			return true
		}
	})
}
