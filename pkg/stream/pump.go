package stream

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

const pumpBufferSize = 32 * 1024

// pump copies the read end of a pipe into a writer until EOF.
type pump struct {
	r   *os.File
	dst io.Writer

	syncMu sync.Mutex
	paused chan struct{}
	resume chan struct{}
	done   chan struct{}
}

func newPump(r *os.File, dst io.Writer) *pump {
	return &pump{
		r:      r,
		dst:    dst,
		paused: make(chan struct{}),
		resume: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (p *pump) run() {
	defer close(p.done)
	buf := make([]byte, pumpBufferSize)
	for {
		n, err := p.r.Read(buf)
		if n > 0 {
			p.deliver(buf[:n])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// sync() wants the pipe to itself
			p.paused <- struct{}{}
			<-p.resume
			continue
		}
		return
	}
}

// deliver ignores sink errors: the sink records what it refuses.
func (p *pump) deliver(b []byte) {
	_, _ = p.dst.Write(b)
}

// sync parks the pump, drains whatever the pipe holds and resumes it. On
// return every write that completed before the call has reached dst.
func (p *pump) sync() {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()

	select {
	case <-p.done:
		return
	default:
	}

	if err := p.r.SetReadDeadline(time.Now()); err != nil {
		// Not pollable on this platform.
		return
	}
	select {
	case <-p.paused:
	case <-p.done:
		return
	}
	_ = p.r.SetReadDeadline(time.Time{})
	drainNonBlocking(p.r, p.deliver)
	p.resume <- struct{}{}
}
