package stream

import (
	"bytes"
	"io"
	"sync"
)

// Sink is a writer with three independently toggleable destinations.
type Sink struct {
	mu sync.Mutex

	original io.Writer

	passthroughMuted  bool
	logEnabled        bool
	failureLogEnabled bool

	liveLog    bytes.Buffer
	failureLog bytes.Buffer
}

// NewSink returns a Sink passing writes through to original.
func NewSink(original io.Writer) *Sink {
	return &Sink{original: original}
}

// Write offers p to every enabled destination. The passthrough error, if
// any, is returned after both logs have been appended.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var passErr error
	if !s.passthroughMuted && s.original != nil {
		_, passErr = s.original.Write(p)
	}
	if s.logEnabled {
		s.liveLog.Write(p)
	}
	if s.failureLogEnabled {
		s.failureLog.Write(p)
	}
	if passErr != nil {
		return 0, passErr
	}
	return len(p), nil
}

// Mute stops passthrough to the original stream.
func (s *Sink) Mute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passthroughMuted = true
}

// EnableLog starts appending writes to the live log.
func (s *Sink) EnableLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logEnabled = true
}

// EnableFailureLog starts appending writes to the failure log.
func (s *Sink) EnableFailureLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureLogEnabled = true
}

// ClearLog empties the live log. Flags and the failure log are untouched.
func (s *Sink) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveLog.Reset()
}

// LiveLog returns a copy of the live log.
func (s *Sink) LiveLog() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.liveLog.Bytes())
}

// FailureLog returns a copy of the failure log.
func (s *Sink) FailureLog() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.failureLog.Bytes())
}

// DiscardFailureLog drops the failure log without writing it anywhere.
func (s *Sink) DiscardFailureLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureLog.Reset()
}

// ReplayFailureLog writes the failure log to the original stream and
// empties it, so every byte is replayed at most once.
func (s *Sink) ReplayFailureLog() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failureLog.Len() == 0 || s.original == nil {
		s.failureLog.Reset()
		return nil
	}
	_, err := s.original.Write(s.failureLog.Bytes())
	s.failureLog.Reset()
	return err
}

// Muted reports whether passthrough is suppressed.
func (s *Sink) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passthroughMuted
}

func (s *Sink) setOriginal(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original = w
}
