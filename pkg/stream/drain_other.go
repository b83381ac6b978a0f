//go:build !unix

package stream

import "os"

// drainNonBlocking is a no-op where pipes cannot be read without blocking;
// pending bytes reach the sink through the pump instead.
func drainNonBlocking(*os.File, func([]byte)) {}
